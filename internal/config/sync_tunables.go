package config

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SyncTunablesHolder serves the live view of the sync tunables. Values come
// from the environment but an optional metersync.yml can override them at
// runtime without a restart.
type SyncTunablesHolder struct {
	current atomic.Value // holds SyncConfig
}

// NewSyncTunablesHolder loads metersync.yml if present and watches it for
// changes. The env-derived cfg.Sync is the fallback for every key.
func NewSyncTunablesHolder(cfg Config) (*SyncTunablesHolder, error) {
	holder := &SyncTunablesHolder{}
	holder.current.Store(cfg.Sync)

	v := viper.New()
	v.SetConfigName("metersync")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/metersync")
	v.AddConfigPath(".")

	v.SetEnvPrefix("METERSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No file: env values stand.
		return holder, nil
	}

	holder.current.Store(merge(cfg.Sync, v))

	v.OnConfigChange(func(fsnotify.Event) {
		holder.current.Store(merge(cfg.Sync, v))
	})
	v.WatchConfig()

	return holder, nil
}

// Current returns the tunables in effect right now.
func (h *SyncTunablesHolder) Current() SyncConfig {
	return h.current.Load().(SyncConfig)
}

func merge(base SyncConfig, v *viper.Viper) SyncConfig {
	out := base
	if v.IsSet("sync.backfillMaxDays") {
		out.BackfillMaxDays = v.GetInt("sync.backfillMaxDays")
	}
	if v.IsSet("sync.backfillEmptyDaysThreshold") {
		out.BackfillEmptyDaysThreshold = v.GetInt("sync.backfillEmptyDaysThreshold")
	}
	if v.IsSet("sync.backfillApiDelaySeconds") {
		out.BackfillAPIDelay = time.Duration(v.GetInt("sync.backfillApiDelaySeconds")) * time.Second
	}
	if v.IsSet("sync.backfillStartLagDays") {
		out.BackfillStartLagDays = v.GetInt("sync.backfillStartLagDays")
	}
	if v.IsSet("sync.backfillMonths") {
		out.BackfillMonths = v.GetInt("sync.backfillMonths")
	}
	if v.IsSet("sync.regularSyncDays") {
		out.RegularSyncDays = v.GetInt("sync.regularSyncDays")
	}
	if v.IsSet("sync.regularSyncMonths") {
		out.RegularSyncMonths = v.GetInt("sync.regularSyncMonths")
	}
	if v.IsSet("sync.intervalMinutes") {
		out.SyncInterval = time.Duration(v.GetInt("sync.intervalMinutes")) * time.Minute
	}
	return out
}
