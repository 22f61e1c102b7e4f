package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/smallbiznis/metersync/internal/cache"
	"github.com/smallbiznis/metersync/internal/clock"
	"github.com/smallbiznis/metersync/internal/config"
	contractdomain "github.com/smallbiznis/metersync/internal/contract/domain"
	"github.com/smallbiznis/metersync/internal/gateway"
	"github.com/smallbiznis/metersync/internal/metrics"
	usagedomain "github.com/smallbiznis/metersync/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SchedulerParams struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Repo         usagedomain.Repository
	ContractRepo contractdomain.Repository
	Gateway      gateway.Gateway
	Locker       *Locker
	Tunables     *config.SyncTunablesHolder
	Summaries    cache.SummaryCache
	Backfill     *BackfillController
	AppConfig    config.Config
}

// Scheduler drives the periodic incremental sync across all known
// contracts and serves manual trigger requests.
type Scheduler struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	repo         usagedomain.Repository
	contractRepo contractdomain.Repository
	gateway      gateway.Gateway
	locker       *Locker
	tunables     *config.SyncTunablesHolder
	summaries    cache.SummaryCache
	backfill     *BackfillController
	metrics      *metrics.SyncMetrics

	// baseCtx carries the process lifecycle into background trigger
	// runs. It must be assigned before any goroutine reads it; the fx
	// hook sets it ahead of starting the loop.
	baseCtx       context.Context
	manualRunning atomic.Bool
}

func NewScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{
		db:           p.DB,
		log:          p.Log.Named("sync.scheduler"),
		clock:        p.Clock,
		repo:         p.Repo,
		contractRepo: p.ContractRepo,
		gateway:      p.Gateway,
		locker:       p.Locker,
		tunables:     p.Tunables,
		summaries:    p.Summaries,
		backfill:     p.Backfill,
		metrics: metrics.SyncWithConfig(metrics.Config{
			ServiceName: p.AppConfig.AppName,
			Environment: p.AppConfig.Environment,
		}),
		baseCtx: context.Background(),
	}
}

// RunForever runs sync passes until ctx is cancelled. The interval is
// re-read every pass so tunable changes apply without a restart.
func (s *Scheduler) RunForever(ctx context.Context) {
	for {
		if err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("sync pass finished with errors", zap.Error(err))
		}

		interval := withDefaults(s.tunables.Current()).SyncInterval
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunOnce refreshes the contract registry and syncs every contract
// with the regular window. Per-contract failures are isolated.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	cfg := withDefaults(s.tunables.Current())
	return s.runPass(ctx, cfg.RegularSyncDays, cfg.RegularSyncMonths)
}

func (s *Scheduler) runPass(ctx context.Context, days, months int) error {
	s.refreshContracts(ctx)

	contracts, err := s.contractRepo.List(ctx, s.db)
	if err != nil {
		return usagedomain.StorageError(err)
	}
	if len(contracts) == 0 {
		s.log.Info("no contracts to sync")
		return nil
	}

	var errs []error
	for _, contract := range contracts {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := s.processContract(ctx, contract.ContractID, days, months); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// processContract claims the contract and either backfills it on first
// contact or runs the bounded incremental window.
func (s *Scheduler) processContract(ctx context.Context, contractID string, days, months int) error {
	token, ok := s.locker.TryLock(contractID)
	if !ok {
		s.metrics.IncPipelineSkipped(usagedomain.PipelineIncremental, metrics.SyncSkipReasonBusy)
		s.log.Info("contract busy, skipping",
			zap.String("contract_id", contractID),
		)
		return nil
	}
	defer s.locker.Release(contractID, token)

	latest, err := s.repo.LatestDate(ctx, s.db, contractID, usagedomain.IntervalHourly)
	if err != nil {
		return err
	}
	if latest == nil {
		// First contact: walk the whole history before regular syncs
		// take over.
		return s.backfill.RunLocked(ctx, contractID)
	}

	return s.syncContract(ctx, contractID, days, months)
}

// syncContract fetches the trailing daily window and monthly aggregates
// for one contract and advances its incremental cursor.
func (s *Scheduler) syncContract(ctx context.Context, contractID string, days, months int) error {
	cfg := withDefaults(s.tunables.Current())
	started := s.clock.Now()

	s.metrics.IncPipelineRun(usagedomain.PipelineIncremental)
	defer func() {
		s.metrics.ObservePipelineDuration(usagedomain.PipelineIncremental, s.clock.Now().Sub(started))
	}()

	cursor, err := s.repo.GetCursor(ctx, s.db, contractID, usagedomain.PipelineIncremental)
	if err != nil {
		s.metrics.IncPipelineError(usagedomain.PipelineIncremental, err)
		return err
	}
	if cursor == nil {
		cursor = &usagedomain.SyncCursor{
			ContractID: contractID,
			Pipeline:   usagedomain.PipelineIncremental,
		}
	}
	cursor.Status = usagedomain.CursorRunning
	cursor.LastError = nil
	if err := s.repo.SaveCursor(ctx, s.db, cursor); err != nil {
		s.metrics.IncPipelineError(usagedomain.PipelineIncremental, err)
		return err
	}

	today := usagedomain.Day(s.clock.Now())
	written := 0

	daily, err := s.backfill.fetchRange(ctx, contractID, usagedomain.IntervalHourly,
		today.AddDate(0, 0, -days), today.AddDate(0, 0, 1), cfg)
	if err != nil {
		return s.failIncremental(ctx, contractID, cursor, err)
	}
	if len(daily) > 0 {
		n, err := s.repo.Upsert(ctx, s.db, daily)
		if err != nil {
			return s.failIncremental(ctx, contractID, cursor, err)
		}
		written += n
	}

	if months > 0 {
		thisMonth := usagedomain.MonthStart(today)
		monthly, err := s.backfill.fetchRange(ctx, contractID, usagedomain.IntervalMonthly,
			thisMonth.AddDate(0, -(months-1), 0), thisMonth.AddDate(0, 1, 0), cfg)
		if err != nil {
			return s.failIncremental(ctx, contractID, cursor, err)
		}
		if len(monthly) > 0 {
			n, err := s.repo.Upsert(ctx, s.db, monthly)
			if err != nil {
				return s.failIncremental(ctx, contractID, cursor, err)
			}
			written += n
		}
	}

	s.metrics.AddRecordsUpserted(usagedomain.PipelineIncremental, written)

	now := s.clock.Now()
	cursor.CursorDate = today
	cursor.Status = usagedomain.CursorCompleted
	cursor.LastRunAt = &now
	if err := s.repo.SaveCursor(ctx, s.db, cursor); err != nil {
		s.metrics.IncPipelineError(usagedomain.PipelineIncremental, err)
		return err
	}

	s.summaries.Invalidate(contractID)
	s.log.Info("contract synced",
		zap.String("contract_id", contractID),
		zap.Int("records", written),
		zap.Duration("took", s.clock.Now().Sub(started)),
	)
	return nil
}

func (s *Scheduler) failIncremental(ctx context.Context, contractID string, cursor *usagedomain.SyncCursor, cause error) error {
	s.metrics.IncPipelineError(usagedomain.PipelineIncremental, cause)

	msg := cause.Error()
	now := s.clock.Now()
	cursor.Status = usagedomain.CursorFailed
	cursor.LastError = &msg
	cursor.LastRunAt = &now

	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := s.repo.SaveCursor(ctx, s.db, cursor); err != nil {
		s.log.Warn("failed to persist failed cursor",
			zap.String("contract_id", contractID),
			zap.Error(err),
		)
	}

	s.log.Warn("contract sync failed",
		zap.String("contract_id", contractID),
		zap.Error(cause),
	)
	return cause
}

// refreshContracts pulls the contract registry from upstream. Failures
// are tolerated; known contracts still sync from the local registry.
func (s *Scheduler) refreshContracts(ctx context.Context) {
	contracts, err := s.gateway.FetchContracts(ctx)
	if err != nil {
		s.log.Warn("contract refresh failed", zap.Error(err))
		return
	}
	if len(contracts) == 0 {
		return
	}
	if err := s.contractRepo.Upsert(ctx, s.db, contracts); err != nil {
		s.log.Warn("contract registry update failed", zap.Error(err))
	}
}

// TriggerSync starts a manual pass over all contracts in the background.
// Only one manual pass runs at a time; a false return means one is
// already in flight.
func (s *Scheduler) TriggerSync(days, months int) bool {
	cfg := withDefaults(s.tunables.Current())
	if days <= 0 {
		days = cfg.RegularSyncDays
	}
	if months <= 0 {
		months = cfg.RegularSyncMonths
	}
	days = clampInt(days, minManualSyncDays, maxManualSyncDays)
	months = clampInt(months, minManualSyncMonths, maxManualSyncMonths)

	if !s.manualRunning.CompareAndSwap(false, true) {
		return false
	}

	go func() {
		defer s.manualRunning.Store(false)
		if err := s.runPass(s.baseCtx, days, months); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("manual sync finished with errors", zap.Error(err))
		}
	}()
	return true
}

// TriggerBackfill starts a background backfill for one contract. A
// false return means the contract is already being worked on.
func (s *Scheduler) TriggerBackfill(contractID string) bool {
	token, ok := s.locker.TryLock(contractID)
	if !ok {
		s.metrics.IncPipelineSkipped(usagedomain.PipelineBackfill, metrics.SyncSkipReasonBusy)
		return false
	}

	go func() {
		defer s.locker.Release(contractID, token)
		if err := s.backfill.RunLocked(s.baseCtx, contractID); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("manual backfill failed",
				zap.String("contract_id", contractID),
				zap.Error(err),
			)
		}
	}()
	return true
}
