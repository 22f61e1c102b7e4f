package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/metersync/internal/gateway"
	usagedomain "github.com/smallbiznis/metersync/internal/usage/domain"
)

const (
	SyncErrorReasonAuth        = "auth"
	SyncErrorReasonRateLimited = "rate_limited"
	SyncErrorReasonTransient   = "transient"
	SyncErrorReasonStorage     = "storage"
	SyncErrorReasonCanceled    = "canceled"
	SyncErrorReasonUnknown     = "unknown"
)

const (
	SyncSkipReasonBusy = "contract_busy"
)

// Config carries the constant labels stamped on every sync metric.
type Config struct {
	ServiceName string
	Environment string
}

// SyncMetrics captures pipeline health signals for the sync engine.
type SyncMetrics struct {
	pipelineRuns     *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
	pipelineErrors   *prometheus.CounterVec
	pipelineSkipped  *prometheus.CounterVec
	recordsUpserted  *prometheus.CounterVec
	emptyDays        *prometheus.CounterVec
	rateLimitWaits   prometheus.Counter
}

var (
	syncMetricsOnce sync.Once
	syncMetrics     *SyncMetrics
)

// Sync returns the singleton sync metrics registry.
func Sync() *SyncMetrics {
	return SyncWithConfig(Config{})
}

// SyncWithConfig returns the singleton sync metrics registry using config labels.
func SyncWithConfig(cfg Config) *SyncMetrics {
	syncMetricsOnce.Do(func() {
		syncMetrics = newSyncMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return syncMetrics
}

// ResetSyncMetricsForTest resets the sync metrics singleton for tests.
func ResetSyncMetricsForTest() {
	syncMetricsOnce = sync.Once{}
	syncMetrics = nil
}

func newSyncMetrics(registerer prometheus.Registerer, cfg Config) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "metersync"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	pipelineRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "metersync_pipeline_runs_total",
		Help:        "Sync pipeline runs by pipeline.",
		ConstLabels: constLabels,
	}, []string{"pipeline"})
	pipelineDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "metersync_pipeline_duration_seconds",
		Help:        "Sync pipeline latency to track upstream and storage health.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		ConstLabels: constLabels,
	}, []string{"pipeline"})
	pipelineErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "metersync_pipeline_errors_total",
		Help:        "Sync pipeline errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"pipeline", "reason"})
	pipelineSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "metersync_pipeline_skipped_total",
		Help:        "Sync pipeline skips by reason, mostly lock contention.",
		ConstLabels: constLabels,
	}, []string{"pipeline", "reason"})
	recordsUpserted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "metersync_records_upserted_total",
		Help:        "Usage records written by pipeline to gauge ingest throughput.",
		ConstLabels: constLabels,
	}, []string{"pipeline"})
	emptyDays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "metersync_backfill_empty_days_total",
		Help:        "Backfill days that returned no usage data.",
		ConstLabels: constLabels,
	}, []string{"pipeline"})
	rateLimitWaits := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "metersync_rate_limit_waits_total",
		Help:        "Backoff sleeps caused by upstream rate limiting.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		pipelineRuns,
		pipelineDuration,
		pipelineErrors,
		pipelineSkipped,
		recordsUpserted,
		emptyDays,
		rateLimitWaits,
	)

	return &SyncMetrics{
		pipelineRuns:     pipelineRuns,
		pipelineDuration: pipelineDuration,
		pipelineErrors:   pipelineErrors,
		pipelineSkipped:  pipelineSkipped,
		recordsUpserted:  recordsUpserted,
		emptyDays:        emptyDays,
		rateLimitWaits:   rateLimitWaits,
	}
}

// IncPipelineRun increments the run counter for a pipeline.
func (m *SyncMetrics) IncPipelineRun(pipeline usagedomain.Pipeline) {
	if m == nil || m.pipelineRuns == nil {
		return
	}
	m.pipelineRuns.WithLabelValues(string(pipeline)).Inc()
}

// ObservePipelineDuration records pipeline latency in seconds.
func (m *SyncMetrics) ObservePipelineDuration(pipeline usagedomain.Pipeline, duration time.Duration) {
	if m == nil || m.pipelineDuration == nil {
		return
	}
	m.pipelineDuration.WithLabelValues(string(pipeline)).Observe(duration.Seconds())
}

// IncPipelineError increments the pipeline error counter with classification.
func (m *SyncMetrics) IncPipelineError(pipeline usagedomain.Pipeline, err error) {
	if m == nil || m.pipelineErrors == nil || err == nil {
		return
	}
	m.pipelineErrors.WithLabelValues(string(pipeline), ClassifySyncErrorReason(err)).Inc()
}

// IncPipelineSkipped increments the skip counter for a pipeline and reason.
func (m *SyncMetrics) IncPipelineSkipped(pipeline usagedomain.Pipeline, reason string) {
	if m == nil || m.pipelineSkipped == nil {
		return
	}
	m.pipelineSkipped.WithLabelValues(string(pipeline), reason).Inc()
}

// AddRecordsUpserted increments the upsert counter for a pipeline by count.
func (m *SyncMetrics) AddRecordsUpserted(pipeline usagedomain.Pipeline, count int) {
	if m == nil || m.recordsUpserted == nil || count <= 0 {
		return
	}
	m.recordsUpserted.WithLabelValues(string(pipeline)).Add(float64(count))
}

// IncEmptyDay increments the empty-day counter for a pipeline.
func (m *SyncMetrics) IncEmptyDay(pipeline usagedomain.Pipeline) {
	if m == nil || m.emptyDays == nil {
		return
	}
	m.emptyDays.WithLabelValues(string(pipeline)).Inc()
}

// IncRateLimitWait increments the rate-limit backoff counter.
func (m *SyncMetrics) IncRateLimitWait() {
	if m == nil || m.rateLimitWaits == nil {
		return
	}
	m.rateLimitWaits.Inc()
}

// ClassifySyncErrorReason maps pipeline errors to low-cardinality reasons.
func ClassifySyncErrorReason(err error) string {
	switch {
	case err == nil:
		return SyncErrorReasonUnknown
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return SyncErrorReasonCanceled
	case gateway.IsAuth(err):
		return SyncErrorReasonAuth
	case gateway.IsRateLimited(err):
		return SyncErrorReasonRateLimited
	case gateway.IsTransient(err):
		return SyncErrorReasonTransient
	case errors.Is(err, usagedomain.ErrStorage):
		return SyncErrorReasonStorage
	default:
		return SyncErrorReasonUnknown
	}
}
