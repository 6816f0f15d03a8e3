package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: SchedulerJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestClassifySchedulerErrorType(t *testing.T) {
	if got := ClassifySchedulerErrorType(&pgconn.PgError{Code: "23505"}); got != SchedulerErrorTypeDB {
		t.Fatalf("expected db, got %q", got)
	}
	if got := ClassifySchedulerErrorType(gorm.ErrRecordNotFound); got != SchedulerErrorTypeBusinessRule {
		t.Fatalf("expected business_rule, got %q", got)
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "billsync",
		Environment: "test",
	})

	metrics.AddBatchProcessed("replay_unprocessed", "webhook_events", 3)
	metrics.AddBatchProcessed("replay_unprocessed", "webhook_events", 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("replay_unprocessed", "webhook_events"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestWebhookMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newWebhookMetrics(registry, Config{ServiceName: "billsync", Environment: "test"})

	m.IncOutcome("invoice.paid", "processed")
	m.IncOutcome("invoice.paid", "processed")
	m.IncPayment("succeeded", false)

	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("invoice.paid", "processed")); got != 2 {
		t.Fatalf("expected 2 outcomes, got %v", got)
	}
	if got := testutil.ToFloat64(m.payments.WithLabelValues("succeeded", "false")); got != 1 {
		t.Fatalf("expected 1 skipped payment, got %v", got)
	}
}

func TestRegisterReturnsExistingCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := newHTTPMetrics(registry, Config{})
	second := newHTTPMetrics(registry, Config{})
	if first.requests != second.requests {
		t.Fatalf("expected the already registered collector to be reused")
	}
}
