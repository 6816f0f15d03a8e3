package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smallbiznis/billsync/internal/config"
	subscriptiondomain "github.com/smallbiznis/billsync/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/billsync/internal/webhook/domain"
	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/subscription"
)

// Client fetches live subscription state when a webhook references one we have not seen.
type Client struct {
	subscriptions subscription.Client
}

// NewClient returns nil when no API key is configured; callers treat that as "lookups disabled".
func NewClient(cfg config.Config) webhookdomain.ProviderClient {
	key := strings.TrimSpace(cfg.Stripe.APIKey)
	if key == "" {
		return nil
	}
	return &Client{
		subscriptions: subscription.Client{B: stripeapi.GetBackend(stripeapi.APIBackend), Key: key},
	}
}

func (c *Client) FetchSubscription(ctx context.Context, providerSubscriptionID string) (subscriptiondomain.Snapshot, error) {
	params := &stripeapi.SubscriptionParams{}
	params.Context = ctx

	sub, err := c.subscriptions.Get(providerSubscriptionID, params)
	if err != nil {
		return subscriptiondomain.Snapshot{}, fmt.Errorf("fetch subscription %s: %w", providerSubscriptionID, err)
	}

	raw, err := json.Marshal(sub)
	if err != nil {
		return subscriptiondomain.Snapshot{}, fmt.Errorf("encode subscription %s: %w", providerSubscriptionID, err)
	}
	return ParseSubscriptionObject(raw)
}
