package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billsync/internal/billingprojection/domain"
	"gorm.io/gorm"
)

var userColumns = []string{
	"id", "status", "is_paid", "next_billing_at", "provider_customer_id", "updated_at",
}

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// FindUser row-locks the user on dialects that support it so concurrent
// recomputes for the same user serialize.
func (r *repo) FindUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.UserBilling, error) {
	query := squirrel.Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"id": userID}).
		Limit(1).
		PlaceholderFormat(squirrel.Question)
	if db.Dialector.Name() != "sqlite" {
		query = query.Suffix("FOR UPDATE")
	}
	return r.scanOne(ctx, db, query)
}

func (r *repo) FindByProviderCustomerID(ctx context.Context, db *gorm.DB, providerCustomerID string) (*domain.UserBilling, error) {
	query := squirrel.Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"provider_customer_id": providerCustomerID}).
		OrderBy("id ASC").
		Limit(1).
		PlaceholderFormat(squirrel.Question)
	return r.scanOne(ctx, db, query)
}

func (r *repo) UpdateBilling(ctx context.Context, db *gorm.DB, userID snowflake.ID, projection domain.Projection, updatedAt time.Time) error {
	sql, args, err := squirrel.Update("users").
		Set("status", projection.Status).
		Set("is_paid", projection.IsPaid).
		Set("next_billing_at", projection.NextBillingAt).
		Set("provider_customer_id", projection.ProviderCustomerID).
		Set("updated_at", updatedAt).
		Where(squirrel.Eq{"id": userID}).
		PlaceholderFormat(squirrel.Question).
		ToSql()
	if err != nil {
		return fmt.Errorf("build user billing update: %w", err)
	}

	res := db.WithContext(ctx).Exec(sql, args...)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *repo) scanOne(ctx context.Context, db *gorm.DB, query squirrel.SelectBuilder) (*domain.UserBilling, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build user query: %w", err)
	}

	var items []domain.UserBilling
	if err := db.WithContext(ctx).Raw(sql, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}
