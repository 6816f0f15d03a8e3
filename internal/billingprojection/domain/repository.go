package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*UserBilling, error)
	FindByProviderCustomerID(ctx context.Context, db *gorm.DB, providerCustomerID string) (*UserBilling, error)
	UpdateBilling(ctx context.Context, db *gorm.DB, userID snowflake.ID, projection Projection, updatedAt time.Time) error
}
