// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/smallbiznis/billsync/internal/billingprojection/domain"
	"github.com/smallbiznis/billsync/internal/migration"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB opens an isolated in-memory sqlite database with the full schema.
// A single connection keeps every transaction serialized, matching the row
// locks production dialects take.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// NewNode returns a snowflake node for id generation in tests.
func NewNode(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// SeedUser inserts a users row with the given status and optional provider customer id.
func SeedUser(t testing.TB, db *gorm.DB, id snowflake.ID, status billingdomain.UserStatus, providerCustomerID string) {
	t.Helper()

	user := billingdomain.UserBilling{
		ID:        id,
		Status:    status,
		UpdatedAt: time.Now().UTC(),
	}
	if providerCustomerID != "" {
		user.ProviderCustomerID = &providerCustomerID
	}
	if err := db.WithContext(context.Background()).Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

// LoadUser reads the billing columns of a user.
func LoadUser(t testing.TB, db *gorm.DB, id snowflake.ID) billingdomain.UserBilling {
	t.Helper()

	var user billingdomain.UserBilling
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	return user
}

// Date returns a UTC midnight timestamp.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
