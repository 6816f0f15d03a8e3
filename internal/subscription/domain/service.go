package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service projects provider subscription snapshots onto local rows.
// All methods run on the caller's transaction.
type Service interface {
	Apply(ctx context.Context, db *gorm.DB, snapshot Snapshot, kind ChangeKind) (ProjectionResult, error)
	FindByProviderID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*Subscription, error)
}

// OwnerResolver maps a provider customer to the local user that owns it.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, db *gorm.DB, providerCustomerID string) (*snowflake.ID, error)
}
