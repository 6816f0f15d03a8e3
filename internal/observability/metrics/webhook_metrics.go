package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics captures webhook processing health on the /metrics endpoint.
type WebhookMetrics struct {
	outcomes    *prometheus.CounterVec
	processing  *prometheus.HistogramVec
	projections *prometheus.CounterVec
	payments    *prometheus.CounterVec
}

var (
	webhookMetricsOnce sync.Once
	webhookMetrics     *WebhookMetrics
)

// Webhook returns the singleton webhook metrics registry.
func Webhook() *WebhookMetrics {
	return WebhookWithConfig(Config{})
}

// WebhookWithConfig returns the singleton webhook metrics registry using config labels.
func WebhookWithConfig(cfg Config) *WebhookMetrics {
	webhookMetricsOnce.Do(func() {
		webhookMetrics = newWebhookMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return webhookMetrics
}

func newWebhookMetrics(registerer prometheus.Registerer, cfg Config) *WebhookMetrics {
	labels := constLabels(cfg)
	return &WebhookMetrics{
		outcomes: registerCounterVec(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "billsync_webhook_events_total",
			Help:        "Webhook deliveries by event type and outcome.",
			ConstLabels: labels,
		}, []string{"event_type", "outcome"})),
		processing: registerHistogramVec(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "billsync_webhook_processing_seconds",
			Help:        "Webhook processing latency by event type.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			ConstLabels: labels,
		}, []string{"event_type"})),
		projections: registerCounterVec(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "billsync_subscription_projections_total",
			Help:        "Subscription projector results.",
			ConstLabels: labels,
		}, []string{"result"})),
		payments: registerCounterVec(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "billsync_payments_recorded_total",
			Help:        "Payment ledger writes by status; created=false marks idempotent skips.",
			ConstLabels: labels,
		}, []string{"status", "created"})),
	}
}

func (m *WebhookMetrics) IncOutcome(eventType, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(eventType, outcome).Inc()
}

func (m *WebhookMetrics) ObserveProcessing(eventType string, duration time.Duration) {
	if m == nil {
		return
	}
	m.processing.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (m *WebhookMetrics) IncProjection(result string) {
	if m == nil {
		return
	}
	m.projections.WithLabelValues(result).Inc()
}

func (m *WebhookMetrics) IncPayment(status string, created bool) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(status, strconv.FormatBool(created)).Inc()
}
