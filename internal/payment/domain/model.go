package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment is an append-only ledger row, one per provider invoice.
type Payment struct {
	ID                      snowflake.ID  `json:"id" gorm:"primaryKey"`
	SubscriptionID          *snowflake.ID `json:"subscription_id" gorm:"index"`
	UserID                  *snowflake.ID `json:"user_id" gorm:"index"`
	ProviderInvoiceID       string        `json:"provider_invoice_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_payments_provider_invoice_id"`
	ProviderPaymentIntentID *string       `json:"provider_payment_intent_id" gorm:"type:varchar(255)"`
	Amount                  int64         `json:"amount" gorm:"not null"`
	Currency                string        `json:"currency" gorm:"type:varchar(8);not null"`
	Status                  PaymentStatus `json:"status" gorm:"type:varchar(32);not null"`
	BillingReason           string        `json:"billing_reason" gorm:"type:varchar(64);not null;default:''"`
	PaidAt                  *time.Time    `json:"paid_at"`
	CreatedAt               time.Time     `json:"created_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

type RecordPaymentRequest struct {
	ProviderInvoiceID       string
	ProviderPaymentIntentID string
	SubscriptionID          *snowflake.ID
	UserID                  *snowflake.ID
	Amount                  int64
	Currency                string
	Status                  PaymentStatus
	BillingReason           string
	PaidAt                  *time.Time
}

// RecordPaymentResult reports Created=false when the invoice was already recorded.
type RecordPaymentResult struct {
	Payment *Payment
	Created bool
}
