package domain

import (
	"context"

	"gorm.io/gorm"
)

// Service records invoice outcomes exactly once per provider invoice.
type Service interface {
	RecordPayment(ctx context.Context, db *gorm.DB, req RecordPaymentRequest) (RecordPaymentResult, error)
}
