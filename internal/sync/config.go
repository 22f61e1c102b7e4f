package sync

import (
	"time"

	"github.com/smallbiznis/metersync/internal/config"
)

const (
	maxTransientRetries = 3
	maxRateLimitRetries = 6
	maxBackoff          = 5 * time.Minute

	minManualSyncDays   = 1
	maxManualSyncDays   = 365
	minManualSyncMonths = 1
	maxManualSyncMonths = 24
)

func withDefaults(c config.SyncConfig) config.SyncConfig {
	if c.BackfillMaxDays < 0 {
		c.BackfillMaxDays = 0
	}
	if c.BackfillEmptyDaysThreshold <= 0 {
		c.BackfillEmptyDaysThreshold = 3
	}
	if c.BackfillAPIDelay <= 0 {
		c.BackfillAPIDelay = time.Second
	}
	if c.BackfillStartLagDays < 0 {
		c.BackfillStartLagDays = 0
	}
	if c.BackfillMonths <= 0 {
		c.BackfillMonths = 12
	}
	if c.RegularSyncDays <= 0 {
		c.RegularSyncDays = 7
	}
	if c.RegularSyncMonths <= 0 {
		c.RegularSyncMonths = 2
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = time.Hour
	}
	return c
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
