package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/internal/contracts"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Round("ets", "success", 2*time.Minute)
	m.Round("ets", "success", time.Minute)
	m.Round("ets", "skipped", time.Minute)
	m.Retry("ets", "predictor")
	m.CleanupFailed(contracts.KindDataset)
	m.AlgorithmRun("ets", "success", 36)
	m.Tag(contracts.TagNone)
	m.Tag(contracts.TagFlat)
	m.Error(contracts.ErrorWarning)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RoundsTotal.WithLabelValues("ets", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("ets", "predictor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CleanupFailures.WithLabelValues("dataset")))
	assert.Equal(t, 36.0, testutil.ToFloat64(m.ForecastRecords.WithLabelValues("ets")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrendTags.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrendTags.WithLabelValues("F")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorRecords.WithLabelValues("WARNING")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RoundDuration))
}

func TestMetrics_ObservePoll(t *testing.T) {
	m := New()
	m.ObservePoll(contracts.KindPredictor, contracts.StatusActive, 90*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteJobs.WithLabelValues("predictor", "ACTIVE")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Round("ets", "success", time.Second)
		m.ObservePoll(contracts.KindForecast, contracts.StatusActive, time.Second)
		m.Champion("skip")
		m.RunCompleted(time.Now())
	})
	assert.NoError(t, m.Push(context.Background(), "http://unused", "job"))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Champion("success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `demandcast_champion_outcomes_total{outcome="success"} 1`)
}

func TestMetrics_Push(t *testing.T) {
	var pushed atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/metrics/job/demandcast"))
		pushed.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := New()
	m.RunCompleted(time.Unix(1700000000, 0))
	require.NoError(t, m.Push(context.Background(), server.URL, "demandcast"))
	assert.Equal(t, int32(1), pushed.Load())

	assert.NoError(t, m.Push(context.Background(), "", "demandcast"))
}
