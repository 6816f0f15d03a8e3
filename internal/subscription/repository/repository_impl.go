package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/billsync/internal/subscription/domain"
	dbpkg "github.com/smallbiznis/billsync/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const subscriptionColumns = `id, user_id, provider_subscription_id, provider_customer_id, status,
	current_period_start, current_period_end, amount, currency, cancel_at_period_end,
	canceled_at, last_event_id, created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

// Insert reports false when a row for the provider subscription already exists.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_subscription_id"}},
			DoNothing: true,
		}).
		Create(subscription)
	if dbpkg.IsDuplicateKeyErr(result.Error) {
		return false, nil
	}
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET
			user_id = ?, provider_customer_id = ?, status = ?, current_period_start = ?,
			current_period_end = ?, amount = ?, currency = ?, cancel_at_period_end = ?,
			canceled_at = ?, last_event_id = ?, updated_at = ?
		 WHERE id = ?`,
		subscription.UserID,
		subscription.ProviderCustomerID,
		subscription.Status,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.Amount,
		subscription.Currency,
		subscription.CancelAtPeriodEnd,
		subscription.CanceledAt,
		subscription.LastEventID,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}

func (r *repo) FindByProviderID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*subscriptiondomain.Subscription, error) {
	return r.find(ctx, db, providerSubscriptionID, false)
}

// FindByProviderIDForUpdate row-locks the subscription on dialects that support it.
func (r *repo) FindByProviderIDForUpdate(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*subscriptiondomain.Subscription, error) {
	return r.find(ctx, db, providerSubscriptionID, true)
}

func (r *repo) find(ctx context.Context, db *gorm.DB, providerSubscriptionID string, lock bool) (*subscriptiondomain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE provider_subscription_id = ?`
	if lock && db.Dialector.Name() != "sqlite" {
		query += ` FOR UPDATE`
	}

	var items []subscriptiondomain.Subscription
	if err := db.WithContext(ctx).Raw(query, providerSubscriptionID).Scan(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]subscriptiondomain.Subscription, error) {
	var items []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = ? ORDER BY updated_at DESC, id DESC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
