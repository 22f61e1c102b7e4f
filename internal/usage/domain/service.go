package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidContract = errors.New("invalid_contract")
	ErrContractUnknown = errors.New("contract_not_found")
)

// DailyUsage is one day's usage as exposed on the read surface.
type DailyUsage struct {
	Date               string   `json:"date"`
	Value              float64  `json:"value"`
	Unit               string   `json:"unit"`
	DollarValue        *float64 `json:"dollar_value,omitempty"`
	OffpeakValue       *float64 `json:"offpeak_value,omitempty"`
	OffpeakDollarValue *float64 `json:"offpeak_dollar_value,omitempty"`
	UnchargedValue     *float64 `json:"uncharged_value,omitempty"`
}

// MonthAggregate sums hourly-interval records over one calendar month.
// DailyAverage divides by days with data, not calendar days elapsed, so
// backfill gaps do not deflate it; it is nil when no days have data.
type MonthAggregate struct {
	Month        string   `json:"month"`
	Value        float64  `json:"value"`
	Unit         string   `json:"unit"`
	DollarValue  *float64 `json:"dollar_value,omitempty"`
	DailyAverage *float64 `json:"daily_average,omitempty"`
	DaysWithData int      `json:"days_with_data"`
}

// Comparisons holds percentage deltas. A field is nil whenever its baseline is
// absent or zero; it never carries NaN or infinity.
type Comparisons struct {
	VsPreviousDay     *float64 `json:"vs_previous_day,omitempty"`
	VsSameDayLastWeek *float64 `json:"vs_same_day_last_week,omitempty"`
	VsLastMonth       *float64 `json:"vs_last_month,omitempty"`
}

// Summary is the derived usage summary. It is recomputed from storage on each
// query and is a pure function of stored state and the clock.
type Summary struct {
	ContractID  string          `json:"contract_id"`
	LatestDay   *DailyUsage     `json:"latest_day,omitempty"`
	PreviousDay *DailyUsage     `json:"previous_day,omitempty"`
	ThisMonth   *MonthAggregate `json:"this_month,omitempty"`
	LastMonth   *MonthAggregate `json:"last_month,omitempty"`
	Comparisons Comparisons     `json:"comparisons"`
	DataAsOf    *string         `json:"data_as_of,omitempty"`
}

// StatsResponse reports stored-data extents per interval kind.
type StatsResponse struct {
	ContractID string                     `json:"contract_id"`
	Intervals  map[IntervalKind]KindStats `json:"intervals"`
}

// SyncStatus is a snapshot of both pipeline cursors for a contract.
type SyncStatus struct {
	ContractID  string      `json:"contract_id"`
	Backfill    *SyncCursor `json:"backfill,omitempty"`
	Incremental *SyncCursor `json:"incremental,omitempty"`
}

// Service computes derived metrics from the usage store. It never reaches the
// network.
type Service interface {
	Summary(ctx context.Context, contractID string) (*Summary, error)
	Stats(ctx context.Context, contractID string) (*StatsResponse, error)
	SyncStatus(ctx context.Context, contractID string) (*SyncStatus, error)
}
