package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type RecomputeResult struct {
	UserID     snowflake.ID
	Projection Projection
	Changed    bool
}

// Service re-derives the user billing columns from the user's subscriptions.
type Service interface {
	Recompute(ctx context.Context, db *gorm.DB, userID snowflake.ID) (RecomputeResult, error)
	ResolveOwner(ctx context.Context, db *gorm.DB, providerCustomerID string) (*snowflake.ID, error)
}
