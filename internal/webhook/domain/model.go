package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is one provider delivery, stored before any handling happens.
type EventRecord struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	EventID     string         `json:"event_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_webhook_events_event_id"`
	Type        string         `json:"type" gorm:"type:varchar(128);not null;index"`
	Payload     datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt  time.Time      `json:"received_at" gorm:"not null;index"`
	ProcessedAt *time.Time     `json:"processed_at" gorm:"index"`
	Attempts    int            `json:"attempts" gorm:"not null;default:0"`
	LastError   *string        `json:"last_error"`
}

func (EventRecord) TableName() string { return "webhook_events" }

// Processed reports whether the event has been handled successfully.
func (r EventRecord) Processed() bool { return r.ProcessedAt != nil }

const (
	EventTypeSubscriptionCreated     = "customer.subscription.created"
	EventTypeSubscriptionUpdated     = "customer.subscription.updated"
	EventTypeSubscriptionDeleted     = "customer.subscription.deleted"
	EventTypeInvoicePaid             = "invoice.paid"
	EventTypeInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventTypeInvoicePaymentFailed    = "invoice.payment_failed"
	EventTypeInvoiceUpcoming         = "invoice.upcoming"
)

// Outcome is what the dispatcher reports back to the transport.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Event is the verified provider envelope.
type Event struct {
	ID         string
	Type       string
	Created    time.Time
	Livemode   bool
	APIVersion string
	Object     json.RawMessage
}

// Invoice is the subset of a provider invoice the ledger needs.
type Invoice struct {
	ID              string
	SubscriptionID  string
	CustomerID      string
	PaymentIntentID string
	Currency        string
	BillingReason   string
	Status          string
	AmountPaid      int64
	AmountDue       int64
	PaidAt          *time.Time
}
