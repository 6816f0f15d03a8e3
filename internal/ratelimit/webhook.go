package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/billsync/internal/config"
)

const keyWebhookSource = "billsync:ratelimit:webhook:%s"

// WebhookLimiter throttles deliveries per source address before signature verification.
type WebhookLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

// NewWebhookLimiter returns nil when rate limiting is disabled or redis is not configured.
func NewWebhookLimiter(cfg config.Config, client *redis.Client) *WebhookLimiter {
	if !cfg.RateLimit.Enabled || client == nil {
		return nil
	}
	if cfg.RateLimit.WebhookRate <= 0 || cfg.RateLimit.WebhookBurst <= 0 {
		return nil
	}
	return &WebhookLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.RateLimit.WebhookRate,
		burst:  cfg.RateLimit.WebhookBurst,
	}
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow always admits when the limiter is disabled.
func (l *WebhookLimiter) Allow(ctx context.Context, source string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = "unknown"
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookSource, source), l.rate, l.burst)
}
