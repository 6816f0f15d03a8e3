package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/billsync/internal/billingprojection/domain"
	"github.com/smallbiznis/billsync/internal/clock"
	obscontext "github.com/smallbiznis/billsync/internal/observability/context"
	"github.com/smallbiznis/billsync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/billsync/internal/observability/metrics"
	"github.com/smallbiznis/billsync/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/billsync/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/billsync/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/billsync/internal/webhook/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Adapter webhookdomain.Adapter
	Client  webhookdomain.ProviderClient `optional:"true"`
	Repo    webhookdomain.Repository

	Subscriptions subscriptiondomain.Service
	Payments      paymentdomain.Service
	Billing       billingdomain.Service

	ObsMetrics     *obsmetrics.Metrics        `optional:"true"`
	WebhookMetrics *obsmetrics.WebhookMetrics `optional:"true"`
}

type Dispatcher struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	adapter webhookdomain.Adapter
	client  webhookdomain.ProviderClient
	repo    webhookdomain.Repository

	subscriptions subscriptiondomain.Service
	payments      paymentdomain.Service
	billing       billingdomain.Service

	obsMetrics     *obsmetrics.Metrics
	webhookMetrics *obsmetrics.WebhookMetrics
}

func NewService(p Params) webhookdomain.Service {
	return &Dispatcher{
		db:      p.DB,
		log:     p.Log.Named("webhook.dispatcher"),
		genID:   p.GenID,
		clock:   p.Clock,
		adapter: p.Adapter,
		client:  p.Client,
		repo:    p.Repo,

		subscriptions: p.Subscriptions,
		payments:      p.Payments,
		billing:       p.Billing,

		obsMetrics:     p.ObsMetrics,
		webhookMetrics: p.WebhookMetrics,
	}
}

func (d *Dispatcher) Handle(ctx context.Context, payload []byte, signatureHeader string) (webhookdomain.Outcome, error) {
	if err := d.adapter.Verify(payload, signatureHeader); err != nil {
		d.log.Warn("webhook signature rejected", zap.Error(err))
		d.recordOutcome(ctx, "", "invalid_signature")
		return "", err
	}

	event, err := d.adapter.ParseEnvelope(payload)
	if err != nil {
		d.log.Warn("webhook envelope rejected", zap.Error(err))
		d.recordOutcome(ctx, "", "invalid_payload")
		return "", err
	}

	record := &webhookdomain.EventRecord{
		ID:         d.genID.Generate(),
		EventID:    event.ID,
		Type:       event.Type,
		Payload:    datatypes.JSON(payload),
		ReceivedAt: d.clock.Now().UTC(),
	}
	inserted, err := d.repo.InsertEvent(ctx, d.db, record)
	if err != nil {
		return "", fmt.Errorf("%w: store event: %w", webhookdomain.ErrProcessingFailed, err)
	}
	if !inserted {
		stored, err := d.repo.FindEvent(ctx, d.db, event.ID)
		if err != nil {
			return "", fmt.Errorf("%w: load event: %w", webhookdomain.ErrProcessingFailed, err)
		}
		if stored == nil {
			return "", fmt.Errorf("%w: event %s vanished after conflict", webhookdomain.ErrProcessingFailed, event.ID)
		}
		if stored.Processed() {
			d.log.Debug("duplicate webhook delivery", zap.String("event_id", event.ID), zap.String("event_type", event.Type))
			d.recordOutcome(ctx, event.Type, string(webhookdomain.OutcomeDuplicate))
			return webhookdomain.OutcomeDuplicate, nil
		}
		record = stored
	}

	return d.process(ctx, record, event)
}

// Replay re-runs a stored event from its persisted payload. The signature was
// checked when the event was first received.
func (d *Dispatcher) Replay(ctx context.Context, eventID string) (webhookdomain.Outcome, error) {
	stored, err := d.repo.FindEvent(ctx, d.db, eventID)
	if err != nil {
		return "", fmt.Errorf("%w: load event: %w", webhookdomain.ErrProcessingFailed, err)
	}
	if stored == nil {
		return "", webhookdomain.ErrEventNotFound
	}
	if stored.Processed() {
		return webhookdomain.OutcomeDuplicate, nil
	}

	event, err := d.adapter.ParseEnvelope(stored.Payload)
	if err != nil {
		d.recordFailure(ctx, stored, err)
		return "", err
	}
	return d.process(ctx, stored, event)
}

func (d *Dispatcher) process(ctx context.Context, record *webhookdomain.EventRecord, event *webhookdomain.Event) (webhookdomain.Outcome, error) {
	ctx = obscontext.WithEvent(ctx, event.ID, event.Type)
	ctx, span := otel.Tracer("billsync/webhook").Start(ctx, "webhook.dispatch")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("event_id", event.ID),
		attribute.String("event_type", event.Type),
	)...)

	log := logger.WithContext(ctx, d.log)
	start := d.clock.Now()

	outcome, err := d.run(ctx, log, record, event)
	d.observeProcessing(event.Type, d.clock.Now().Sub(start))
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "webhook processing failed")
		d.recordFailure(ctx, record, err)
		if isPayloadError(err) {
			d.recordOutcome(ctx, event.Type, "invalid_payload")
			log.Warn("webhook payload rejected", zap.Error(err))
			if errors.Is(err, webhookdomain.ErrInvalidPayload) {
				return "", err
			}
			return "", fmt.Errorf("%w: %w", webhookdomain.ErrInvalidPayload, err)
		}
		d.recordOutcome(ctx, event.Type, "failed")
		log.Error("webhook processing failed", zap.Error(err))
		return "", fmt.Errorf("%w: %w", webhookdomain.ErrProcessingFailed, err)
	}

	span.SetAttributes(attribute.String("outcome", string(outcome)))
	d.recordOutcome(ctx, event.Type, string(outcome))
	log.Info("webhook handled", zap.String("outcome", string(outcome)))
	return outcome, nil
}

func (d *Dispatcher) run(ctx context.Context, log *zap.Logger, record *webhookdomain.EventRecord, event *webhookdomain.Event) (webhookdomain.Outcome, error) {
	p, err := d.plan(ctx, log, event)
	if err != nil {
		return "", err
	}

	outcome := webhookdomain.OutcomeProcessed
	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := d.repo.ClaimEvent(ctx, tx, record.ID, d.clock.Now().UTC())
		if err != nil {
			return err
		}
		if !claimed {
			outcome = webhookdomain.OutcomeDuplicate
			return nil
		}

		routed, err := d.apply(ctx, tx, log, p)
		if err != nil {
			return err
		}
		outcome = routed
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, record *webhookdomain.EventRecord, cause error) {
	if record == nil || cause == nil {
		return
	}
	// The request context may already be done; the failure note must still land.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.repo.RecordFailure(writeCtx, d.db, record.ID, cause.Error()); err != nil {
		d.log.Error("failed to record webhook failure",
			zap.String("event_id", record.EventID),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) recordOutcome(ctx context.Context, eventType, outcome string) {
	label := metricEventType(eventType)
	if d.webhookMetrics != nil {
		d.webhookMetrics.IncOutcome(label, outcome)
	}
	if d.obsMetrics != nil {
		d.obsMetrics.RecordWebhookEvent(ctx, label, outcome)
	}
}

func (d *Dispatcher) observeProcessing(eventType string, duration time.Duration) {
	if d.webhookMetrics != nil {
		d.webhookMetrics.ObserveProcessing(metricEventType(eventType), duration)
	}
}

func isPayloadError(err error) bool {
	for _, target := range []error{
		webhookdomain.ErrInvalidPayload,
		subscriptiondomain.ErrInvalidPeriod,
		subscriptiondomain.ErrInvalidSnapshot,
		paymentdomain.ErrInvalidInvoice,
		paymentdomain.ErrInvalidStatus,
		paymentdomain.ErrInvalidAmount,
		paymentdomain.ErrInvalidCurrency,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// metricEventType bounds label cardinality to the types we recognise.
func metricEventType(eventType string) string {
	switch eventType {
	case "":
		return "unknown"
	case webhookdomain.EventTypeSubscriptionCreated,
		webhookdomain.EventTypeSubscriptionUpdated,
		webhookdomain.EventTypeSubscriptionDeleted,
		webhookdomain.EventTypeInvoicePaid,
		webhookdomain.EventTypeInvoicePaymentSucceeded,
		webhookdomain.EventTypeInvoicePaymentFailed,
		webhookdomain.EventTypeInvoiceUpcoming:
		return eventType
	default:
		return "other"
	}
}
