package sync

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/metersync/internal/cache"
	"github.com/smallbiznis/metersync/internal/clock"
	"github.com/smallbiznis/metersync/internal/config"
	"github.com/smallbiznis/metersync/internal/gateway"
	"github.com/smallbiznis/metersync/internal/metrics"
	usagedomain "github.com/smallbiznis/metersync/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrContractBusy means another pipeline currently holds the contract.
var ErrContractBusy = errors.New("contract_busy")

type BackfillParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      usagedomain.Repository
	Gateway   gateway.Gateway
	Locker    *Locker
	Tunables  *config.SyncTunablesHolder
	Summaries cache.SummaryCache
	AppConfig config.Config
}

// BackfillController walks a contract's history newest to oldest until
// the data runs out, then refreshes the monthly aggregates.
type BackfillController struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      usagedomain.Repository
	gateway   gateway.Gateway
	locker    *Locker
	tunables  *config.SyncTunablesHolder
	summaries cache.SummaryCache
	metrics   *metrics.SyncMetrics
}

func NewBackfillController(p BackfillParams) *BackfillController {
	return &BackfillController{
		db:        p.DB,
		log:       p.Log.Named("sync.backfill"),
		clock:     p.Clock,
		repo:      p.Repo,
		gateway:   p.Gateway,
		locker:    p.Locker,
		tunables:  p.Tunables,
		summaries: p.Summaries,
		metrics: metrics.SyncWithConfig(metrics.Config{
			ServiceName: p.AppConfig.AppName,
			Environment: p.AppConfig.Environment,
		}),
	}
}

// Run claims the contract and backfills it. Returns ErrContractBusy
// without doing any work when the contract is already claimed.
func (c *BackfillController) Run(ctx context.Context, contractID string) error {
	token, ok := c.locker.TryLock(contractID)
	if !ok {
		c.metrics.IncPipelineSkipped(usagedomain.PipelineBackfill, metrics.SyncSkipReasonBusy)
		return ErrContractBusy
	}
	defer c.locker.Release(contractID, token)

	return c.RunLocked(ctx, contractID)
}

// RunLocked backfills a contract the caller has already claimed.
func (c *BackfillController) RunLocked(ctx context.Context, contractID string) error {
	cfg := withDefaults(c.tunables.Current())
	started := c.clock.Now()

	c.metrics.IncPipelineRun(usagedomain.PipelineBackfill)
	defer func() {
		c.metrics.ObservePipelineDuration(usagedomain.PipelineBackfill, c.clock.Now().Sub(started))
	}()

	today := usagedomain.Day(c.clock.Now())
	day := today.AddDate(0, 0, -cfg.BackfillStartLagDays)
	emptyDays := 0

	cursor, err := c.repo.GetCursor(ctx, c.db, contractID, usagedomain.PipelineBackfill)
	if err != nil {
		c.metrics.IncPipelineError(usagedomain.PipelineBackfill, err)
		return err
	}
	if cursor == nil {
		cursor = &usagedomain.SyncCursor{
			ContractID: contractID,
			Pipeline:   usagedomain.PipelineBackfill,
		}
	} else if cursor.Status != usagedomain.CursorCompleted && !cursor.CursorDate.IsZero() {
		// Resume where the interrupted run left off. A completed cursor
		// means a fresh pass over the recent window instead.
		if resumed := usagedomain.Day(cursor.CursorDate); resumed.Before(day) {
			day = resumed
			emptyDays = cursor.ConsecutiveEmptyDays
		}
	}

	cursor.Status = usagedomain.CursorRunning
	cursor.LastError = nil
	if err := c.repo.SaveCursor(ctx, c.db, cursor); err != nil {
		c.metrics.IncPipelineError(usagedomain.PipelineBackfill, err)
		return err
	}

	c.log.Info("backfill started",
		zap.String("contract_id", contractID),
		zap.Time("start_day", day),
		zap.Int("empty_days", emptyDays),
	)

	processed := 0
	for {
		if ctx.Err() != nil {
			return c.suspend(contractID, cursor, day, emptyDays, ctx.Err())
		}
		if cfg.BackfillMaxDays > 0 && processed >= cfg.BackfillMaxDays {
			break
		}
		if emptyDays >= cfg.BackfillEmptyDaysThreshold {
			break
		}

		records, err := c.fetchRange(ctx, contractID, usagedomain.IntervalHourly, day, day.AddDate(0, 0, 1), cfg)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return c.suspend(contractID, cursor, day, emptyDays, err)
			}
			return c.fail(ctx, contractID, cursor, err)
		}

		if len(records) == 0 {
			emptyDays++
			c.metrics.IncEmptyDay(usagedomain.PipelineBackfill)
		} else {
			emptyDays = 0
			written, err := c.repo.Upsert(ctx, c.db, records)
			if err != nil {
				return c.fail(ctx, contractID, cursor, err)
			}
			c.metrics.AddRecordsUpserted(usagedomain.PipelineBackfill, written)
		}

		processed++
		cursor.CursorDate = day
		cursor.ConsecutiveEmptyDays = emptyDays
		if err := c.repo.SaveCursor(ctx, c.db, cursor); err != nil {
			c.metrics.IncPipelineError(usagedomain.PipelineBackfill, err)
			return err
		}

		day = day.AddDate(0, 0, -1)
		if err := sleepCtx(ctx, cfg.BackfillAPIDelay); err != nil {
			return c.suspend(contractID, cursor, day, emptyDays, err)
		}
	}

	if err := c.refreshMonths(ctx, contractID, today, cfg.BackfillMonths, cfg); err != nil {
		// Daily history is already durable; the monthly refresh rides on
		// the next run.
		c.metrics.IncPipelineError(usagedomain.PipelineBackfill, err)
		c.log.Warn("backfill monthly refresh failed",
			zap.String("contract_id", contractID),
			zap.Error(err),
		)
	}

	now := c.clock.Now()
	cursor.Status = usagedomain.CursorCompleted
	cursor.LastRunAt = &now
	if err := c.repo.SaveCursor(ctx, c.db, cursor); err != nil {
		c.metrics.IncPipelineError(usagedomain.PipelineBackfill, err)
		return err
	}

	c.summaries.Invalidate(contractID)
	c.log.Info("backfill completed",
		zap.String("contract_id", contractID),
		zap.Int("days_processed", processed),
		zap.Duration("took", c.clock.Now().Sub(started)),
	)
	return nil
}

// suspend persists resumable progress when the run is cancelled. The
// cursor goes back to idle so the next run picks up at the same day.
func (c *BackfillController) suspend(contractID string, cursor *usagedomain.SyncCursor, day time.Time, emptyDays int, cause error) error {
	cursor.CursorDate = day
	cursor.ConsecutiveEmptyDays = emptyDays
	cursor.Status = usagedomain.CursorIdle

	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.repo.SaveCursor(saveCtx, c.db, cursor); err != nil {
		c.log.Warn("failed to persist cursor on shutdown",
			zap.String("contract_id", contractID),
			zap.Error(err),
		)
	}

	c.log.Info("backfill suspended",
		zap.String("contract_id", contractID),
		zap.Time("cursor_date", day),
	)
	return cause
}

func (c *BackfillController) fail(ctx context.Context, contractID string, cursor *usagedomain.SyncCursor, cause error) error {
	c.metrics.IncPipelineError(usagedomain.PipelineBackfill, cause)

	msg := cause.Error()
	now := c.clock.Now()
	cursor.Status = usagedomain.CursorFailed
	cursor.LastError = &msg
	cursor.LastRunAt = &now

	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := c.repo.SaveCursor(ctx, c.db, cursor); err != nil {
		c.log.Warn("failed to persist failed cursor",
			zap.String("contract_id", contractID),
			zap.Error(err),
		)
	}

	c.log.Warn("backfill failed",
		zap.String("contract_id", contractID),
		zap.Error(cause),
	)
	return cause
}

// fetchRange pulls one unit of work from upstream. Rate limiting backs
// off with doubling waits and retries the same unit; transient faults
// get a bounded number of flat retries. Auth errors surface immediately.
func (c *BackfillController) fetchRange(ctx context.Context, contractID string, kind usagedomain.IntervalKind, from, to time.Time, cfg config.SyncConfig) ([]usagedomain.UsageRecord, error) {
	backoff := cfg.BackfillAPIDelay
	rateLimitRetries := 0
	transientRetries := 0

	for {
		records, err := c.gateway.FetchUsage(ctx, contractID, kind, from, to)
		switch {
		case err == nil:
			return records, nil
		case gateway.IsNotFound(err):
			return nil, nil
		case gateway.IsRateLimited(err):
			rateLimitRetries++
			if rateLimitRetries > maxRateLimitRetries {
				return nil, err
			}
			c.metrics.IncRateLimitWait()
			c.log.Warn("rate limited, backing off",
				zap.String("contract_id", contractID),
				zap.Duration("backoff", backoff),
			)
			if err := sleepCtx(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		case gateway.IsTransient(err):
			transientRetries++
			if transientRetries > maxTransientRetries {
				return nil, err
			}
			if err := sleepCtx(ctx, cfg.BackfillAPIDelay); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}
}

// refreshMonths re-fetches the trailing monthly aggregates so month
// totals stay consistent with the daily history just written.
func (c *BackfillController) refreshMonths(ctx context.Context, contractID string, today time.Time, months int, cfg config.SyncConfig) error {
	if months <= 0 {
		return nil
	}

	thisMonth := usagedomain.MonthStart(today)
	from := thisMonth.AddDate(0, -(months - 1), 0)
	to := thisMonth.AddDate(0, 1, 0)

	records, err := c.fetchRange(ctx, contractID, usagedomain.IntervalMonthly, from, to, cfg)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	written, err := c.repo.Upsert(ctx, c.db, records)
	if err != nil {
		return err
	}
	c.metrics.AddRecordsUpserted(usagedomain.PipelineBackfill, written)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
