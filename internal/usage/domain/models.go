// Package domain contains persistence models for interval usage data and
// per-contract sync cursors.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// IntervalKind is the granularity of a usage record.
type IntervalKind string

const (
	// IntervalHourly is a daily bucket of sub-day readings; Date is the day.
	IntervalHourly IntervalKind = "hourly"
	// IntervalMonthly covers a whole calendar month; Date is the month start.
	IntervalMonthly IntervalKind = "monthly"
)

// UsageRecord stores one observation of usage for a contract over an interval.
// (ContractID, Date, IntervalKind) is unique; a re-fetch of the same period
// overwrites all fields.
type UsageRecord struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"-"`
	ContractID         string       `gorm:"not null;uniqueIndex:uq_usage_records_key" json:"contract_id"`
	Date               time.Time    `gorm:"not null;uniqueIndex:uq_usage_records_key" json:"date"`
	IntervalKind       IntervalKind `gorm:"type:text;not null;uniqueIndex:uq_usage_records_key" json:"interval_kind"`
	Value              float64      `gorm:"not null" json:"value"`
	Unit               string       `gorm:"type:text;not null" json:"unit"`
	DollarValue        *float64     `json:"dollar_value,omitempty"`
	OffpeakValue       *float64     `json:"offpeak_value,omitempty"`
	OffpeakDollarValue *float64     `json:"offpeak_dollar_value,omitempty"`
	UnchargedValue     *float64     `json:"uncharged_value,omitempty"`
	RecordedAt         time.Time    `gorm:"not null" json:"recorded_at"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

// Pipeline identifies which fetch/store pipeline owns a cursor.
type Pipeline string

const (
	PipelineBackfill    Pipeline = "backfill"
	PipelineIncremental Pipeline = "incremental"
)

// CursorStatus is the lifecycle state of a sync cursor.
type CursorStatus string

const (
	CursorIdle      CursorStatus = "idle"
	CursorRunning   CursorStatus = "running"
	CursorCompleted CursorStatus = "completed"
	CursorFailed    CursorStatus = "failed"
)

// SyncCursor is the per-contract, per-pipeline progress marker. Created on the
// first run, mutated only by the pipeline holding the contract's token, never
// deleted.
type SyncCursor struct {
	ContractID           string       `gorm:"primaryKey" json:"contract_id"`
	Pipeline             Pipeline     `gorm:"primaryKey;type:text" json:"pipeline"`
	CursorDate           time.Time    `json:"cursor_date"`
	ConsecutiveEmptyDays int          `json:"consecutive_empty_days"`
	Status               CursorStatus `gorm:"type:text;not null" json:"status"`
	LastRunAt            *time.Time   `json:"last_run_at,omitempty"`
	LastError            *string      `json:"last_error,omitempty"`
}

// TableName sets the database table name.
func (SyncCursor) TableName() string { return "sync_cursors" }

// Day normalizes t to UTC midnight. All record dates are stored this way.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first day of t's calendar month at UTC midnight.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
