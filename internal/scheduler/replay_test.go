package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/billsync/internal/clock"
	obsmetrics "github.com/smallbiznis/billsync/internal/observability/metrics"
	"github.com/smallbiznis/billsync/internal/ratelimit"
	"github.com/smallbiznis/billsync/internal/testutil"
	webhookdomain "github.com/smallbiznis/billsync/internal/webhook/domain"
	webhookrepo "github.com/smallbiznis/billsync/internal/webhook/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingReplayer struct {
	db       *gorm.DB
	repo     webhookdomain.Repository
	clock    clock.Clock
	failures map[string]error
	replayed []string
}

func (r *recordingReplayer) Handle(ctx context.Context, payload []byte, signatureHeader string) (webhookdomain.Outcome, error) {
	return "", errors.New("not used")
}

func (r *recordingReplayer) Replay(ctx context.Context, eventID string) (webhookdomain.Outcome, error) {
	r.replayed = append(r.replayed, eventID)
	stored, err := r.repo.FindEvent(ctx, r.db, eventID)
	if err != nil {
		return "", err
	}
	if stored == nil {
		return "", webhookdomain.ErrEventNotFound
	}
	if failure := r.failures[eventID]; failure != nil {
		if err := r.repo.RecordFailure(ctx, r.db, stored.ID, failure.Error()); err != nil {
			return "", err
		}
		return "", failure
	}
	if _, err := r.repo.ClaimEvent(ctx, r.db, stored.ID, r.clock.Now()); err != nil {
		return "", err
	}
	return webhookdomain.OutcomeProcessed, nil
}

type replayHarness struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	repo     webhookdomain.Repository
	replayer *recordingReplayer
	sched    *Scheduler
}

func newReplayHarness(t *testing.T, cfg Config) *replayHarness {
	t.Helper()
	restore := swapPrometheusRegistry(prometheus.NewRegistry())
	t.Cleanup(restore)
	obsmetrics.ResetSchedulerMetricsForTest()

	db := testutil.NewDB(t)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := webhookrepo.Provide()
	replayer := &recordingReplayer{db: db, repo: repo, clock: fake, failures: map[string]error{}}

	node := testutil.NewNode(t)
	sched, err := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Events:   repo,
		Webhooks: replayer,
		Config:   cfg,
	})
	require.NoError(t, err)

	return &replayHarness{db: db, node: node, clock: fake, repo: repo, replayer: replayer, sched: sched}
}

func (h *replayHarness) store(t *testing.T, eventID string, receivedAt time.Time, attempts int, processed bool) {
	t.Helper()
	record := &webhookdomain.EventRecord{
		ID:         h.node.Generate(),
		EventID:    eventID,
		Type:       webhookdomain.EventTypeInvoicePaid,
		Payload:    []byte(fmt.Sprintf(`{"id":%q}`, eventID)),
		ReceivedAt: receivedAt,
		Attempts:   attempts,
	}
	if processed {
		at := receivedAt
		record.ProcessedAt = &at
	}
	inserted, err := h.repo.InsertEvent(context.Background(), h.db, record)
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestReplayUnprocessedSelectsStaleEvents(t *testing.T) {
	h := newReplayHarness(t, Config{ReplayThreshold: 10 * time.Minute, MaxAttempts: 3})
	now := h.clock.Now()

	h.store(t, "evt_old_2", now.Add(-30*time.Minute), 0, false)
	h.store(t, "evt_old_1", now.Add(-time.Hour), 1, false)
	h.store(t, "evt_fresh", now.Add(-time.Minute), 0, false)
	h.store(t, "evt_done", now.Add(-time.Hour), 1, true)
	h.store(t, "evt_exhausted", now.Add(-time.Hour), 3, false)

	require.NoError(t, h.sched.ReplayUnprocessedJob(context.Background()))
	assert.Equal(t, []string{"evt_old_1", "evt_old_2"}, h.replayer.replayed)

	// the fresh event becomes eligible once the threshold has passed
	h.replayer.replayed = nil
	h.clock.Advance(15 * time.Minute)
	require.NoError(t, h.sched.ReplayUnprocessedJob(context.Background()))
	assert.Equal(t, []string{"evt_fresh"}, h.replayer.replayed)
}

func TestReplayUnprocessedContinuesPastFailures(t *testing.T) {
	h := newReplayHarness(t, Config{ReplayThreshold: time.Minute, MaxAttempts: 2})
	now := h.clock.Now()

	h.store(t, "evt_bad", now.Add(-time.Hour), 0, false)
	h.store(t, "evt_good", now.Add(-30*time.Minute), 0, false)
	h.replayer.failures["evt_bad"] = fmt.Errorf("%w: missing customer", webhookdomain.ErrInvalidPayload)

	require.NoError(t, h.sched.ReplayUnprocessedJob(context.Background()))
	assert.Equal(t, []string{"evt_bad", "evt_good"}, h.replayer.replayed)

	good, err := h.repo.FindEvent(context.Background(), h.db, "evt_good")
	require.NoError(t, err)
	assert.True(t, good.Processed())

	bad, err := h.repo.FindEvent(context.Background(), h.db, "evt_bad")
	require.NoError(t, err)
	assert.False(t, bad.Processed())
	assert.Equal(t, 1, bad.Attempts)

	// a second failure exhausts the attempt budget
	h.replayer.replayed = nil
	require.NoError(t, h.sched.ReplayUnprocessedJob(context.Background()))
	assert.Equal(t, []string{"evt_bad"}, h.replayer.replayed)

	h.replayer.replayed = nil
	require.NoError(t, h.sched.ReplayUnprocessedJob(context.Background()))
	assert.Empty(t, h.replayer.replayed)
}

func TestRunOnceRespectsEnabledJobs(t *testing.T) {
	h := newReplayHarness(t, Config{ReplayThreshold: time.Minute, EnabledJobs: []string{"something_else"}})
	h.store(t, "evt_old", h.clock.Now().Add(-time.Hour), 0, false)

	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Empty(t, h.replayer.replayed)

	h.sched.cfg.EnabledJobs = []string{"REPLAY_UNPROCESSED"}
	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Equal(t, []string{"evt_old"}, h.replayer.replayed)
}

func TestRunOnceSkipsWhenLockHeldElsewhere(t *testing.T) {
	h := newReplayHarness(t, Config{ReplayThreshold: time.Minute})
	h.store(t, "evt_old", h.clock.Now().Add(-time.Hour), 0, false)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := ratelimit.NewLocker(client)
	h.sched.locker = locker

	token, ok, err := locker.TryLock(context.Background(), jobReplayUnprocessed, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Empty(t, h.replayer.replayed)

	require.NoError(t, locker.Release(context.Background(), jobReplayUnprocessed, token))
	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Equal(t, []string{"evt_old"}, h.replayer.replayed)

	// the run released its own lease
	_, ok, err = locker.TryLock(context.Background(), jobReplayUnprocessed, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestReplayDeferredReason(t *testing.T) {
	assert.Equal(t, "invalid_payload", replayDeferredReason(fmt.Errorf("%w: x", webhookdomain.ErrInvalidPayload)))
	assert.Equal(t, "not_found", replayDeferredReason(webhookdomain.ErrEventNotFound))
	assert.Equal(t, obsmetrics.SchedulerJobReasonDeadlineExceeded, replayDeferredReason(context.DeadlineExceeded))
}
