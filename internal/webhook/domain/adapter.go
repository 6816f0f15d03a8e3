package domain

import (
	"context"

	subscriptiondomain "github.com/smallbiznis/billsync/internal/subscription/domain"
)

// Adapter verifies and decodes provider deliveries.
type Adapter interface {
	Verify(payload []byte, signatureHeader string) error
	ParseEnvelope(payload []byte) (*Event, error)
	ParseSubscription(event *Event) (subscriptiondomain.Snapshot, error)
	ParseInvoice(event *Event) (Invoice, error)
}

// ProviderClient reads current state from the provider API.
type ProviderClient interface {
	FetchSubscription(ctx context.Context, providerSubscriptionID string) (subscriptiondomain.Snapshot, error)
}
