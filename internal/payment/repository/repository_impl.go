package repository

import (
	"context"

	"github.com/smallbiznis/billsync/internal/payment/domain"
	dbpkg "github.com/smallbiznis/billsync/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByInvoiceID(ctx context.Context, db *gorm.DB, providerInvoiceID string) (*domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, subscription_id, user_id, provider_invoice_id, provider_payment_intent_id,
			amount, currency, status, billing_reason, paid_at, created_at
		 FROM payments
		 WHERE provider_invoice_id = ?
		 LIMIT 1`,
		providerInvoiceID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// Insert reports false when the unique invoice constraint rejected the row.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_invoice_id"}},
			DoNothing: true,
		}).
		Create(payment)
	if dbpkg.IsDuplicateKeyErr(res.Error) {
		return false, nil
	}
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
