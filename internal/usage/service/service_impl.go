package service

import (
	"context"
	"math"
	"strings"
	"time"

	usagedomain "github.com/smallbiznis/metersync/internal/usage/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	db   *gorm.DB
	repo usagedomain.Repository
	log  *zap.Logger
}

// NewService builds the aggregation engine. It only reads from storage; all
// fetching is done by the sync pipelines.
func NewService(db *gorm.DB, repo usagedomain.Repository, log *zap.Logger) usagedomain.Service {
	return &service{
		db:   db,
		repo: repo,
		log:  log.Named("usage.service"),
	}
}

func (s *service) Summary(ctx context.Context, contractID string) (*usagedomain.Summary, error) {
	contractID = strings.TrimSpace(contractID)
	if contractID == "" {
		return nil, usagedomain.ErrInvalidContract
	}

	summary := &usagedomain.Summary{ContractID: contractID}

	// Upstream lags real time by several days, so "today" is whatever day most
	// recently has data.
	latestDate, err := s.repo.LatestDate(ctx, s.db, contractID, usagedomain.IntervalHourly)
	if err != nil {
		return nil, err
	}
	if latestDate == nil {
		return summary, nil
	}

	latest, err := s.repo.FindByDate(ctx, s.db, contractID, usagedomain.IntervalHourly, *latestDate)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		// Date index and row disagree; treat as no data rather than guessing.
		s.log.Warn("latest date has no record", zap.String("contract_id", contractID))
		return summary, nil
	}
	summary.LatestDay = toDailyUsage(latest)
	asOf := usagedomain.Day(latest.Date).Format("2006-01-02")
	summary.DataAsOf = &asOf

	previous, err := s.repo.FindByDate(ctx, s.db, contractID, usagedomain.IntervalHourly, latestDate.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}
	summary.PreviousDay = toDailyUsage(previous)

	lastWeek, err := s.repo.FindByDate(ctx, s.db, contractID, usagedomain.IntervalHourly, latestDate.AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}

	thisMonthStart := usagedomain.MonthStart(*latestDate)
	lastMonthStart := thisMonthStart.AddDate(0, -1, 0)

	summary.ThisMonth, err = s.monthAggregate(ctx, contractID, thisMonthStart)
	if err != nil {
		return nil, err
	}
	summary.LastMonth, err = s.monthAggregate(ctx, contractID, lastMonthStart)
	if err != nil {
		return nil, err
	}

	summary.Comparisons = usagedomain.Comparisons{
		VsPreviousDay:     percentDelta(summary.LatestDay, summary.PreviousDay),
		VsSameDayLastWeek: percentDelta(summary.LatestDay, toDailyUsage(lastWeek)),
		VsLastMonth:       monthDelta(summary.ThisMonth, summary.LastMonth),
	}

	return summary, nil
}

func (s *service) Stats(ctx context.Context, contractID string) (*usagedomain.StatsResponse, error) {
	contractID = strings.TrimSpace(contractID)
	if contractID == "" {
		return nil, usagedomain.ErrInvalidContract
	}
	stats, err := s.repo.Stats(ctx, s.db, contractID)
	if err != nil {
		return nil, err
	}
	return &usagedomain.StatsResponse{ContractID: contractID, Intervals: stats}, nil
}

func (s *service) SyncStatus(ctx context.Context, contractID string) (*usagedomain.SyncStatus, error) {
	contractID = strings.TrimSpace(contractID)
	if contractID == "" {
		return nil, usagedomain.ErrInvalidContract
	}
	backfill, err := s.repo.GetCursor(ctx, s.db, contractID, usagedomain.PipelineBackfill)
	if err != nil {
		return nil, err
	}
	incremental, err := s.repo.GetCursor(ctx, s.db, contractID, usagedomain.PipelineIncremental)
	if err != nil {
		return nil, err
	}
	return &usagedomain.SyncStatus{
		ContractID:  contractID,
		Backfill:    backfill,
		Incremental: incremental,
	}, nil
}

// monthAggregate sums hourly records over the calendar month starting at
// monthStart. Returns nil when the month holds no data.
func (s *service) monthAggregate(ctx context.Context, contractID string, monthStart time.Time) (*usagedomain.MonthAggregate, error) {
	records, err := s.repo.Query(ctx, s.db, contractID, usagedomain.IntervalHourly, monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	var total, dollarTotal float64
	hasDollar := false
	for _, rec := range records {
		total += rec.Value
		if rec.DollarValue != nil {
			dollarTotal += *rec.DollarValue
			hasDollar = true
		}
	}

	agg := &usagedomain.MonthAggregate{
		Month:        monthStart.Format("2006-01"),
		Value:        total,
		Unit:         records[0].Unit,
		DaysWithData: len(records),
	}
	if hasDollar {
		agg.DollarValue = &dollarTotal
	}
	// Average over days with data, not calendar days elapsed; backfill gaps
	// must not deflate it.
	avg := total / float64(len(records))
	agg.DailyAverage = &avg
	return agg, nil
}

func toDailyUsage(rec *usagedomain.UsageRecord) *usagedomain.DailyUsage {
	if rec == nil {
		return nil
	}
	return &usagedomain.DailyUsage{
		Date:               usagedomain.Day(rec.Date).Format("2006-01-02"),
		Value:              rec.Value,
		Unit:               rec.Unit,
		DollarValue:        rec.DollarValue,
		OffpeakValue:       rec.OffpeakValue,
		OffpeakDollarValue: rec.OffpeakDollarValue,
		UnchargedValue:     rec.UnchargedValue,
	}
}

// percentDelta returns (current-baseline)/baseline*100 rounded to one decimal,
// or nil when either side is absent or the baseline is zero.
func percentDelta(current, baseline *usagedomain.DailyUsage) *float64 {
	if current == nil || baseline == nil || baseline.Value == 0 {
		return nil
	}
	return round1((current.Value - baseline.Value) / baseline.Value * 100)
}

// monthDelta compares daily averages so partial months are judged
// like-for-like.
func monthDelta(current, baseline *usagedomain.MonthAggregate) *float64 {
	if current == nil || baseline == nil {
		return nil
	}
	if current.DailyAverage == nil || baseline.DailyAverage == nil || *baseline.DailyAverage == 0 {
		return nil
	}
	return round1((*current.DailyAverage - *baseline.DailyAverage) / *baseline.DailyAverage * 100)
}

func round1(v float64) *float64 {
	r := math.Round(v*10) / 10
	return &r
}
