package scheduler

import (
	"context"
	"errors"

	obsmetrics "github.com/smallbiznis/billsync/internal/observability/metrics"
	webhookdomain "github.com/smallbiznis/billsync/internal/webhook/domain"
	"go.uber.org/zap"
)

const jobReplayUnprocessed = "replay_unprocessed"

// ReplayUnprocessedJob re-dispatches stored events whose first delivery never committed.
// Events still inside the threshold are left alone since the provider retry may be in flight.
func (s *Scheduler) ReplayUnprocessedJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobReplayUnprocessed, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	cutoff := s.clock.Now().Add(-s.cfg.ReplayThreshold)
	events, err := s.events.ListUnprocessed(ctx, s.db, cutoff, s.cfg.MaxAttempts, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	schedMetrics := obsmetrics.Scheduler()
	replayed := 0
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			schedMetrics.AddBatchProcessed(jobReplayUnprocessed, "webhook_event", replayed)
			return err
		}

		outcome, err := s.webhooks.Replay(ctx, event.EventID)
		if err != nil {
			reason := replayDeferredReason(err)
			schedMetrics.IncBatchDeferred(jobReplayUnprocessed, reason)
			s.logEventError(ctx, run, "scheduler.replay.failed", event.EventID, err,
				zap.String("event_type", event.Type),
				zap.Int("attempts", event.Attempts+1),
				zap.String("reason", reason),
			)
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				schedMetrics.AddBatchProcessed(jobReplayUnprocessed, "webhook_event", replayed)
				return err
			}
			continue
		}

		replayed++
		run.AddProcessed(1)
		s.logger(ctx).Info("scheduler.replay.done",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.Type),
			zap.String("outcome", string(outcome)),
		)
	}

	schedMetrics.AddBatchProcessed(jobReplayUnprocessed, "webhook_event", replayed)
	return nil
}

func replayDeferredReason(err error) string {
	switch {
	case errors.Is(err, webhookdomain.ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, webhookdomain.ErrEventNotFound):
		return "not_found"
	default:
		return obsmetrics.ClassifySchedulerJobReason(err)
	}
}
