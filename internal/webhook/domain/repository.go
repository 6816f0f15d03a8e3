package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, eventID string) (*EventRecord, error)
	// ClaimEvent marks the event processed and reports false when another worker already did.
	ClaimEvent(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) (bool, error)
	RecordFailure(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error
	ListUnprocessed(ctx context.Context, db *gorm.DB, receivedBefore time.Time, maxAttempts int, limit int) ([]EventRecord, error)
}
