package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	usagedomain "github.com/smallbiznis/metersync/internal/usage/domain"
	usagerepository "github.com/smallbiznis/metersync/internal/usage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	repo usagedomain.Repository
	svc  usagedomain.Service
	node *snowflake.Node
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&usagedomain.UsageRecord{}, &usagedomain.SyncCursor{}))

	t.Cleanup(func() {
		db.Exec("DELETE FROM usage_records")
		db.Exec("DELETE FROM sync_cursors")
	})

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	repo := usagerepository.Provide()
	return &fixture{
		db:   db,
		repo: repo,
		svc:  NewService(db, repo, zap.NewNop()),
		node: node,
	}
}

func (f *fixture) store(t *testing.T, contractID string, date time.Time, kind usagedomain.IntervalKind, value float64, dollar *float64) {
	t.Helper()
	_, err := f.repo.Upsert(context.Background(), f.db, []usagedomain.UsageRecord{{
		ID:           f.node.Generate(),
		ContractID:   contractID,
		Date:         date,
		IntervalKind: kind,
		Value:        value,
		Unit:         "kWh",
		DollarValue:  dollar,
		RecordedAt:   time.Now().UTC(),
	}})
	require.NoError(t, err)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSummaryEmptyStore(t *testing.T) {
	f := setup(t)

	summary, err := f.svc.Summary(context.Background(), "S-1")
	require.NoError(t, err)
	assert.Equal(t, "S-1", summary.ContractID)
	assert.Nil(t, summary.LatestDay)
	assert.Nil(t, summary.PreviousDay)
	assert.Nil(t, summary.ThisMonth)
	assert.Nil(t, summary.LastMonth)
	assert.Nil(t, summary.DataAsOf)
	assert.Nil(t, summary.Comparisons.VsPreviousDay)
	assert.Nil(t, summary.Comparisons.VsSameDayLastWeek)
	assert.Nil(t, summary.Comparisons.VsLastMonth)
}

func TestSummaryInvalidContract(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Summary(context.Background(), "   ")
	assert.ErrorIs(t, err, usagedomain.ErrInvalidContract)
}

func TestSummaryAnchorsOnLatestDataDay(t *testing.T) {
	f := setup(t)

	// Data on Feb 1 and Feb 8 only: latest day is Feb 8, the previous
	// calendar day has no record, and Feb 1 is the same weekday one week back.
	f.store(t, "S-2", day(2026, 2, 1), usagedomain.IntervalHourly, 10, nil)
	f.store(t, "S-2", day(2026, 2, 8), usagedomain.IntervalHourly, 12, nil)

	summary, err := f.svc.Summary(context.Background(), "S-2")
	require.NoError(t, err)

	require.NotNil(t, summary.LatestDay)
	assert.Equal(t, "2026-02-08", summary.LatestDay.Date)
	assert.Equal(t, 12.0, summary.LatestDay.Value)
	assert.Nil(t, summary.PreviousDay)

	require.NotNil(t, summary.DataAsOf)
	assert.Equal(t, "2026-02-08", *summary.DataAsOf)

	assert.Nil(t, summary.Comparisons.VsPreviousDay)
	require.NotNil(t, summary.Comparisons.VsSameDayLastWeek)
	assert.Equal(t, 20.0, *summary.Comparisons.VsSameDayLastWeek)
}

func TestSummaryPreviousDayComparison(t *testing.T) {
	f := setup(t)

	f.store(t, "S-3", day(2026, 3, 9), usagedomain.IntervalHourly, 8, nil)
	f.store(t, "S-3", day(2026, 3, 10), usagedomain.IntervalHourly, 10, nil)

	summary, err := f.svc.Summary(context.Background(), "S-3")
	require.NoError(t, err)

	require.NotNil(t, summary.PreviousDay)
	assert.Equal(t, 8.0, summary.PreviousDay.Value)
	require.NotNil(t, summary.Comparisons.VsPreviousDay)
	assert.Equal(t, 25.0, *summary.Comparisons.VsPreviousDay)
}

func TestSummaryZeroBaselineYieldsNilComparison(t *testing.T) {
	f := setup(t)

	f.store(t, "S-4", day(2026, 3, 9), usagedomain.IntervalHourly, 0, nil)
	f.store(t, "S-4", day(2026, 3, 10), usagedomain.IntervalHourly, 10, nil)

	summary, err := f.svc.Summary(context.Background(), "S-4")
	require.NoError(t, err)

	require.NotNil(t, summary.PreviousDay)
	assert.Nil(t, summary.Comparisons.VsPreviousDay)
}

func TestSummaryMonthAggregates(t *testing.T) {
	f := setup(t)

	// Last month: two days averaging 10. This month: two days averaging 8.
	dollar := 3.0
	f.store(t, "S-5", day(2026, 1, 10), usagedomain.IntervalHourly, 9, &dollar)
	f.store(t, "S-5", day(2026, 1, 11), usagedomain.IntervalHourly, 11, &dollar)
	f.store(t, "S-5", day(2026, 2, 1), usagedomain.IntervalHourly, 7, nil)
	f.store(t, "S-5", day(2026, 2, 2), usagedomain.IntervalHourly, 9, nil)

	summary, err := f.svc.Summary(context.Background(), "S-5")
	require.NoError(t, err)

	require.NotNil(t, summary.ThisMonth)
	assert.Equal(t, "2026-02", summary.ThisMonth.Month)
	assert.Equal(t, 16.0, summary.ThisMonth.Value)
	assert.Equal(t, 2, summary.ThisMonth.DaysWithData)
	require.NotNil(t, summary.ThisMonth.DailyAverage)
	assert.Equal(t, 8.0, *summary.ThisMonth.DailyAverage)
	assert.Nil(t, summary.ThisMonth.DollarValue)

	require.NotNil(t, summary.LastMonth)
	assert.Equal(t, "2026-01", summary.LastMonth.Month)
	assert.Equal(t, 20.0, summary.LastMonth.Value)
	require.NotNil(t, summary.LastMonth.DollarValue)
	assert.Equal(t, 6.0, *summary.LastMonth.DollarValue)

	// Daily averages 8 vs 10: twenty percent down.
	require.NotNil(t, summary.Comparisons.VsLastMonth)
	assert.Equal(t, -20.0, *summary.Comparisons.VsLastMonth)
}

func TestSummaryRoundsToOneDecimal(t *testing.T) {
	f := setup(t)

	f.store(t, "S-6", day(2026, 3, 9), usagedomain.IntervalHourly, 3, nil)
	f.store(t, "S-6", day(2026, 3, 10), usagedomain.IntervalHourly, 4, nil)

	summary, err := f.svc.Summary(context.Background(), "S-6")
	require.NoError(t, err)

	// (4-3)/3*100 = 33.333... rounds to 33.3.
	require.NotNil(t, summary.Comparisons.VsPreviousDay)
	assert.Equal(t, 33.3, *summary.Comparisons.VsPreviousDay)
}

func TestSummaryIsPure(t *testing.T) {
	f := setup(t)

	f.store(t, "S-7", day(2026, 3, 10), usagedomain.IntervalHourly, 10, nil)

	first, err := f.svc.Summary(context.Background(), "S-7")
	require.NoError(t, err)
	second, err := f.svc.Summary(context.Background(), "S-7")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStats(t *testing.T) {
	f := setup(t)

	f.store(t, "S-8", day(2026, 2, 1), usagedomain.IntervalHourly, 1, nil)
	f.store(t, "S-8", day(2026, 2, 5), usagedomain.IntervalHourly, 2, nil)
	f.store(t, "S-8", day(2026, 2, 1), usagedomain.IntervalMonthly, 30, nil)

	stats, err := f.svc.Stats(context.Background(), "S-8")
	require.NoError(t, err)
	assert.Equal(t, "S-8", stats.ContractID)

	hourly := stats.Intervals[usagedomain.IntervalHourly]
	assert.Equal(t, int64(2), hourly.RecordCount)
	require.NotNil(t, hourly.NewestDate)
	assert.Equal(t, day(2026, 2, 5), *hourly.NewestDate)

	monthly := stats.Intervals[usagedomain.IntervalMonthly]
	assert.Equal(t, int64(1), monthly.RecordCount)
}

func TestSyncStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	status, err := f.svc.SyncStatus(ctx, "S-9")
	require.NoError(t, err)
	assert.Nil(t, status.Backfill)
	assert.Nil(t, status.Incremental)

	require.NoError(t, f.repo.SaveCursor(ctx, f.db, &usagedomain.SyncCursor{
		ContractID: "S-9",
		Pipeline:   usagedomain.PipelineBackfill,
		CursorDate: day(2026, 2, 1),
		Status:     usagedomain.CursorCompleted,
	}))

	status, err = f.svc.SyncStatus(ctx, "S-9")
	require.NoError(t, err)
	require.NotNil(t, status.Backfill)
	assert.Equal(t, usagedomain.CursorCompleted, status.Backfill.Status)
	assert.Nil(t, status.Incremental)
}
