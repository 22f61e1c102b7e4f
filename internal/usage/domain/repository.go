package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrStorage marks storage unavailability. Callers treat the current pipeline
// step as retryable; cursors stay at their last committed value.
var ErrStorage = errors.New("storage_unavailable")

// StorageError wraps a driver error so pipelines can distinguish storage
// failures from upstream ones.
func StorageError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

// KindStats describes stored data for one interval kind.
type KindStats struct {
	OldestDate  *time.Time `json:"oldest_date,omitempty"`
	NewestDate  *time.Time `json:"newest_date,omitempty"`
	RecordCount int64      `json:"record_count"`
}

// Repository is the usage store: durable keyed storage for usage records and
// per-contract sync cursors. It owns persisted records exclusively; pipelines
// only hand it candidate batches.
type Repository interface {
	// Upsert writes records atomically, replacing on (contract, date, kind)
	// conflict. An empty batch is a no-op. Returns the number written.
	Upsert(ctx context.Context, db *gorm.DB, records []UsageRecord) (int, error)
	// Query returns records in the half-open range [from, to), ascending by date.
	Query(ctx context.Context, db *gorm.DB, contractID string, kind IntervalKind, from, to time.Time) ([]UsageRecord, error)
	// FindByDate returns the record for an exact date, or nil.
	FindByDate(ctx context.Context, db *gorm.DB, contractID string, kind IntervalKind, date time.Time) (*UsageRecord, error)
	// LatestDate returns the most recent date with data, or nil when none.
	LatestDate(ctx context.Context, db *gorm.DB, contractID string, kind IntervalKind) (*time.Time, error)
	// Stats reports oldest/newest/count per interval kind.
	Stats(ctx context.Context, db *gorm.DB, contractID string) (map[IntervalKind]KindStats, error)

	GetCursor(ctx context.Context, db *gorm.DB, contractID string, pipeline Pipeline) (*SyncCursor, error)
	SaveCursor(ctx context.Context, db *gorm.DB, cursor *SyncCursor) error
}
