package sync

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/metersync/internal/cache"
	"github.com/smallbiznis/metersync/internal/config"
	contractdomain "github.com/smallbiznis/metersync/internal/contract/domain"
	contractrepository "github.com/smallbiznis/metersync/internal/contract/repository"
	"github.com/smallbiznis/metersync/internal/gateway"
	usagedomain "github.com/smallbiznis/metersync/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type schedulerFixture struct {
	*backfillFixture
	contractRepo contractdomain.Repository
	scheduler    *Scheduler
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	bf := newBackfillFixture(t)
	contractRepo := contractrepository.Provide()

	cfg := config.Config{AppName: "metersync-test", CacheTTL: time.Minute, Sync: testSyncConfig()}
	tunables, err := config.NewSyncTunablesHolder(cfg)
	require.NoError(t, err)

	scheduler := NewScheduler(SchedulerParams{
		DB:           bf.db,
		Log:          zap.NewNop(),
		Clock:        bf.clock,
		Repo:         bf.repo,
		ContractRepo: contractRepo,
		Gateway:      bf.gateway,
		Locker:       bf.locker,
		Tunables:     tunables,
		Summaries:    cache.NewSummaryCache(cfg),
		Backfill:     bf.ctrl,
		AppConfig:    cfg,
	})

	return &schedulerFixture{
		backfillFixture: bf,
		contractRepo:    contractRepo,
		scheduler:       scheduler,
	}
}

func (f *schedulerFixture) addContract(t *testing.T, contractID string) {
	t.Helper()
	require.NoError(t, f.contractRepo.Upsert(context.Background(), f.db, []contractdomain.Contract{
		{ContractID: contractID, AccountID: "A-1"},
	}))
}

func TestRunOnceDiscoversContractsFromUpstream(t *testing.T) {
	f := newSchedulerFixture(t)

	f.gateway.contracts = []contractdomain.Contract{
		{ContractID: "SC-1", AccountID: "A-1", Address: "1 Main St"},
	}

	require.NoError(t, f.scheduler.RunOnce(context.Background()))

	contracts, err := f.contractRepo.List(context.Background(), f.db)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, "SC-1", contracts[0].ContractID)
}

func TestRunOnceBackfillsNewContract(t *testing.T) {
	f := newSchedulerFixture(t)
	f.addContract(t, "SC-2")

	start := usagedomain.Day(testToday).AddDate(0, 0, -5)
	f.gateway.setUsage(start, 10)

	require.NoError(t, f.scheduler.RunOnce(context.Background()))

	// No prior hourly data, so the pass ran a full backfill.
	cursor := f.cursor(t, "SC-2", usagedomain.PipelineBackfill)
	require.NotNil(t, cursor)
	assert.Equal(t, usagedomain.CursorCompleted, cursor.Status)

	got, err := f.repo.FindByDate(context.Background(), f.db, "SC-2", usagedomain.IntervalHourly, start)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestRunOnceIncrementalWindow(t *testing.T) {
	f := newSchedulerFixture(t)
	f.addContract(t, "SC-3")

	// Existing data flips the contract onto the incremental path.
	today := usagedomain.Day(testToday)
	seedHourly(t, f, "SC-3", today.AddDate(0, 0, -10))

	require.NoError(t, f.scheduler.RunOnce(context.Background()))

	cursor := f.cursor(t, "SC-3", usagedomain.PipelineIncremental)
	require.NotNil(t, cursor)
	assert.Equal(t, usagedomain.CursorCompleted, cursor.Status)
	assert.Equal(t, today, usagedomain.Day(cursor.CursorDate))

	// The incremental window starts RegularSyncDays back from today.
	calls := f.gateway.hourlyCalls()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, today.AddDate(0, 0, -7), last.From)
}

// seedHourly writes a record through the repository, bypassing pipelines.
func seedHourly(t *testing.T, f *schedulerFixture, contractID string, d time.Time) {
	t.Helper()
	_, err := f.repo.Upsert(context.Background(), f.db, []usagedomain.UsageRecord{{
		ID:           f.gateway.node.Generate(),
		ContractID:   contractID,
		Date:         d,
		IntervalKind: usagedomain.IntervalHourly,
		Value:        5,
		Unit:         "kWh",
		RecordedAt:   time.Now().UTC(),
	}})
	require.NoError(t, err)
}

func TestRunOnceSkipsBusyContract(t *testing.T) {
	f := newSchedulerFixture(t)
	f.addContract(t, "SC-4")

	token, ok := f.locker.TryLock("SC-4")
	require.True(t, ok)
	defer f.locker.Release("SC-4", token)

	// A held contract is skipped, not failed.
	require.NoError(t, f.scheduler.RunOnce(context.Background()))
	assert.Empty(t, f.gateway.hourlyCalls())
}

func TestRunOnceIsolatesContractFailures(t *testing.T) {
	f := newSchedulerFixture(t)
	f.addContract(t, "SC-5a")
	f.addContract(t, "SC-5b")

	// First contract's backfill dies on auth; the second still syncs.
	start := usagedomain.Day(testToday).AddDate(0, 0, -5)
	f.gateway.queueErr(start, &gateway.Error{Kind: gateway.KindAuth, StatusCode: 401, Message: "bad token"})

	err := f.scheduler.RunOnce(context.Background())
	require.Error(t, err)

	// Both contracts were attempted.
	seen := map[string]bool{}
	for _, call := range f.gateway.hourlyCalls() {
		seen[call.ContractID] = true
	}
	assert.True(t, seen["SC-5a"])
	assert.True(t, seen["SC-5b"])
}

func TestTriggerBackfillConflicts(t *testing.T) {
	f := newSchedulerFixture(t)
	f.addContract(t, "SC-6")

	token, ok := f.locker.TryLock("SC-6")
	require.True(t, ok)
	defer f.locker.Release("SC-6", token)

	assert.False(t, f.scheduler.TriggerBackfill("SC-6"))
}

func TestTriggerBackfillConcurrentWithSchedulerLoop(t *testing.T) {
	f := newSchedulerFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.scheduler.baseCtx = ctx

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		f.scheduler.RunForever(ctx)
	}()

	// The registry is empty, so the loop idles while the trigger works.
	require.True(t, f.scheduler.TriggerBackfill("SC-8"))

	require.Eventually(t, func() bool {
		cursor, err := f.repo.GetCursor(context.Background(), f.db, "SC-8", usagedomain.PipelineBackfill)
		return err == nil && cursor != nil && cursor.Status == usagedomain.CursorCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-loopDone
}

func TestTriggerBackfillRunsInBackground(t *testing.T) {
	f := newSchedulerFixture(t)
	f.addContract(t, "SC-7")

	require.True(t, f.scheduler.TriggerBackfill("SC-7"))

	require.Eventually(t, func() bool {
		cursor, err := f.repo.GetCursor(context.Background(), f.db, "SC-7", usagedomain.PipelineBackfill)
		return err == nil && cursor != nil && cursor.Status == usagedomain.CursorCompleted
	}, 2*time.Second, 10*time.Millisecond)

	// The lock is free again once the run finishes.
	tok, ok := f.locker.TryLock("SC-7")
	require.True(t, ok)
	f.locker.Release("SC-7", tok)
}
