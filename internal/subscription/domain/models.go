// Package domain contains the local projection of provider subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	StatusIncomplete SubscriptionStatus = "incomplete"
	StatusActive     SubscriptionStatus = "active"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusUnpaid     SubscriptionStatus = "unpaid"
	StatusCanceled   SubscriptionStatus = "canceled"
)

// Subscription is the canonical local copy of a provider subscription.
type Subscription struct {
	ID                     snowflake.ID       `gorm:"primaryKey"`
	UserID                 *snowflake.ID      `gorm:"index"`
	ProviderSubscriptionID string             `gorm:"type:varchar(255);not null;uniqueIndex:ux_subscriptions_provider_subscription_id"`
	ProviderCustomerID     string             `gorm:"type:varchar(255);not null;index"`
	Status                 SubscriptionStatus `gorm:"type:varchar(32);not null"`
	CurrentPeriodStart     *time.Time         `gorm:""`
	CurrentPeriodEnd       *time.Time         `gorm:""`
	Amount                 int64              `gorm:"not null;default:0"`
	Currency               string             `gorm:"type:varchar(8);not null;default:''"`
	CancelAtPeriodEnd      bool               `gorm:"not null;default:false"`
	CanceledAt             *time.Time         `gorm:""`
	LastEventID            string             `gorm:"type:varchar(255);not null;default:''"`
	CreatedAt              time.Time          `gorm:"not null"`
	UpdatedAt              time.Time          `gorm:"not null"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// ChangeKind identifies which provider notification produced a snapshot.
type ChangeKind string

const (
	KindCreated ChangeKind = "created"
	KindUpdated ChangeKind = "updated"
	KindDeleted ChangeKind = "deleted"
)

// Snapshot is a provider subscription as carried by a webhook payload or a fresh lookup.
// Zero times mean the field was absent.
type Snapshot struct {
	ProviderSubscriptionID string
	ProviderCustomerID     string
	Status                 string
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	Amount                 int64
	Currency               string
	CancelAtPeriodEnd      bool
	CanceledAt             *time.Time
	// UserHint is the owner id carried in provider metadata, if any.
	UserHint string
	EventID  string
}

func (s Snapshot) HasPeriod() bool {
	return !s.CurrentPeriodStart.IsZero() || !s.CurrentPeriodEnd.IsZero()
}
