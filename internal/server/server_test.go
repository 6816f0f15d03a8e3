package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/billsync/internal/config"
	"github.com/smallbiznis/billsync/internal/observability"
	"github.com/smallbiznis/billsync/internal/ratelimit"
	"github.com/smallbiznis/billsync/internal/testutil"
	webhookdomain "github.com/smallbiznis/billsync/internal/webhook/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWebhookService struct {
	outcome webhookdomain.Outcome
	err     error

	calls   int
	payload []byte
	header  string
}

func (f *fakeWebhookService) Handle(ctx context.Context, payload []byte, signatureHeader string) (webhookdomain.Outcome, error) {
	_ = ctx
	f.calls++
	f.payload = payload
	f.header = signatureHeader
	return f.outcome, f.err
}

func (f *fakeWebhookService) Replay(ctx context.Context, eventID string) (webhookdomain.Outcome, error) {
	_ = ctx
	_ = eventID
	return f.outcome, f.err
}

func newTestEngine(t *testing.T, svc webhookdomain.Service) *gin.Engine {
	t.Helper()
	return newLimitedTestEngine(t, svc, nil)
}

func newLimitedTestEngine(t *testing.T, svc webhookdomain.Service, limiter *ratelimit.WebhookLimiter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Webhook: config.WebhookConfig{MaxBodyBytes: 1024},
	}
	r := NewEngine(observability.Config{LogLevel: "info", Environment: "test"}, nil)
	RegisterRoutes(r, NewServer(ServerParams{
		Cfg:        cfg,
		DB:         testutil.NewDB(t),
		Log:        zap.NewNop(),
		WebhookSvc: svc,
		Limiter:    limiter,
	}))
	return r
}

func postWebhook(r http.Handler, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestStripeWebhookAcknowledgesOutcome(t *testing.T) {
	for _, outcome := range []webhookdomain.Outcome{
		webhookdomain.OutcomeProcessed,
		webhookdomain.OutcomeDuplicate,
		webhookdomain.OutcomeIgnored,
	} {
		t.Run(string(outcome), func(t *testing.T) {
			svc := &fakeWebhookService{outcome: outcome}
			r := newTestEngine(t, svc)

			body := []byte(`{"id":"evt_1","type":"invoice.paid"}`)
			w := postWebhook(r, body)

			require.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"status":"ok","outcome":%q}`, outcome), w.Body.String())
			assert.Equal(t, 1, svc.calls)
			assert.Equal(t, body, svc.payload)
			assert.Equal(t, "t=1,v1=abc", svc.header)
		})
	}
}

func TestStripeWebhookErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		typeName string
	}{
		{"bad signature", webhookdomain.ErrInvalidSignature, http.StatusBadRequest, "invalid_signature"},
		{"bad payload", fmt.Errorf("%w: missing id", webhookdomain.ErrInvalidPayload), http.StatusBadRequest, "invalid_payload"},
		{"processing", fmt.Errorf("%w: %w", webhookdomain.ErrProcessingFailed, context.Canceled), http.StatusInternalServerError, "internal_error"},
		{"timeout", context.DeadlineExceeded, http.StatusServiceUnavailable, "timeout"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestEngine(t, &fakeWebhookService{err: tc.err})
			w := postWebhook(r, []byte(`{}`))

			require.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.typeName, decodeError(t, w).Type)
		})
	}
}

func TestStripeWebhookRejectsOversizedBody(t *testing.T) {
	svc := &fakeWebhookService{outcome: webhookdomain.OutcomeProcessed}
	r := newTestEngine(t, svc)

	w := postWebhook(r, []byte(strings.Repeat("x", 2048)))

	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "payload_too_large", decodeError(t, w).Type)
	assert.Zero(t, svc.calls)
}

func TestStripeWebhookRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := ratelimit.NewWebhookLimiter(config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true, WebhookRate: 0.01, WebhookBurst: 2},
	}, client)

	svc := &fakeWebhookService{outcome: webhookdomain.OutcomeProcessed}
	r := newLimitedTestEngine(t, svc, limiter)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, postWebhook(r, []byte(`{}`)).Code)
	}

	w := postWebhook(r, []byte(`{}`))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", decodeError(t, w).Type)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, 2, svc.calls)
}

func TestStripeWebhookLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := ratelimit.NewWebhookLimiter(config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true, WebhookRate: 1, WebhookBurst: 1},
	}, client)
	mr.Close()

	svc := &fakeWebhookService{outcome: webhookdomain.OutcomeProcessed}
	r := newLimitedTestEngine(t, svc, limiter)

	require.Equal(t, http.StatusOK, postWebhook(r, []byte(`{}`)).Code)
	assert.Equal(t, 1, svc.calls)
}

func TestHealth(t *testing.T) {
	r := newTestEngine(t, &fakeWebhookService{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestClassifyErrorForLog(t *testing.T) {
	cases := []struct {
		err    error
		kind   string
		reason string
	}{
		{nil, "", ""},
		{webhookdomain.ErrInvalidSignature, "client", "invalid_signature"},
		{invalidRequestError(), "client", "invalid_payload"},
		{ErrPayloadTooLarge, "client", "payload_too_large"},
		{ErrRateLimited, "client", "rate_limited"},
		{fmt.Errorf("%w: boom", webhookdomain.ErrProcessingFailed), "server", "processing_failed"},
	}
	for _, tc := range cases {
		kind, reason := classifyErrorForLog(tc.err)
		assert.Equal(t, tc.kind, kind)
		assert.Equal(t, tc.reason, reason)
	}
}
