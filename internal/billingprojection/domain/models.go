package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UserStatus is the account-level status exposed to the rest of the product.
type UserStatus string

const (
	UserStatusPending  UserStatus = "pending"
	UserStatusApproved UserStatus = "approved"
	UserStatusRejected UserStatus = "rejected"
	UserStatusOnHold   UserStatus = "on_hold"
)

// UserBilling is the billing slice of the users table. Other columns belong to the host application.
type UserBilling struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	Status             UserStatus   `gorm:"type:varchar(32);not null;default:'pending'"`
	IsPaid             bool         `gorm:"not null;default:false"`
	NextBillingAt      *time.Time   `gorm:""`
	ProviderCustomerID *string      `gorm:"type:varchar(255);index"`
	UpdatedAt          time.Time    `gorm:"not null"`
}

func (UserBilling) TableName() string { return "users" }

// Projection is the derived billing state for one user.
type Projection struct {
	Status             UserStatus
	IsPaid             bool
	NextBillingAt      *time.Time
	ProviderCustomerID *string
}

// Equal reports whether the projection already matches the stored row.
func (p Projection) Equal(user UserBilling) bool {
	return p.Status == user.Status &&
		p.IsPaid == user.IsPaid &&
		timeEqual(p.NextBillingAt, user.NextBillingAt) &&
		stringEqual(p.ProviderCustomerID, user.ProviderCustomerID)
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func stringEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
