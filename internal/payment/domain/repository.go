package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByInvoiceID(ctx context.Context, db *gorm.DB, providerInvoiceID string) (*Payment, error)
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
}
