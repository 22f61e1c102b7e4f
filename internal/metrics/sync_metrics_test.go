package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/metersync/internal/gateway"
	usagedomain "github.com/smallbiznis/metersync/internal/usage/domain"
	"github.com/stretchr/testify/assert"
)

func TestClassifySyncErrorReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"auth", &gateway.Error{Kind: gateway.KindAuth}, SyncErrorReasonAuth},
		{"rate limited", &gateway.Error{Kind: gateway.KindRateLimited}, SyncErrorReasonRateLimited},
		{"transient", &gateway.Error{Kind: gateway.KindTransient}, SyncErrorReasonTransient},
		{"storage", usagedomain.StorageError(errors.New("disk full")), SyncErrorReasonStorage},
		{"canceled", context.Canceled, SyncErrorReasonCanceled},
		{"unknown", errors.New("boom"), SyncErrorReasonUnknown},
		{"nil", nil, SyncErrorReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifySyncErrorReason(tc.err))
		})
	}
}

func TestSyncMetricsNilReceiversAreSafe(t *testing.T) {
	var m *SyncMetrics

	m.IncPipelineRun(usagedomain.PipelineBackfill)
	m.IncPipelineError(usagedomain.PipelineBackfill, errors.New("boom"))
	m.AddRecordsUpserted(usagedomain.PipelineBackfill, 3)
	m.IncRateLimitWait()
}

func TestSyncMetricsRegistersOnce(t *testing.T) {
	ResetSyncMetricsForTest()
	t.Cleanup(ResetSyncMetricsForTest)

	registry := prometheus.NewRegistry()
	m := newSyncMetrics(registry, Config{ServiceName: "metersync-test", Environment: "test"})

	m.IncPipelineRun(usagedomain.PipelineBackfill)
	m.AddRecordsUpserted(usagedomain.PipelineBackfill, 2)
	m.IncEmptyDay(usagedomain.PipelineBackfill)

	families, err := registry.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
