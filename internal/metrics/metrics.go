package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/wonny/demandcast/internal/contracts"
)

// Metrics holds all Prometheus collectors for the pipeline
// 레지스트리는 인스턴스별 (테스트 간 충돌 없음)
type Metrics struct {
	registry *prometheus.Registry

	RoundsTotal      *prometheus.CounterVec   // algorithm, outcome
	RoundDuration    *prometheus.HistogramVec // algorithm
	RemoteJobs       *prometheus.CounterVec   // kind, status
	PollWait         *prometheus.HistogramVec // kind
	RetriesTotal     *prometheus.CounterVec   // algorithm, stage
	CleanupFailures  *prometheus.CounterVec   // kind
	AlgorithmRuns    *prometheus.CounterVec   // algorithm, outcome
	ForecastRecords  *prometheus.CounterVec   // algorithm
	ChampionOutcomes *prometheus.CounterVec   // outcome
	TrendTags        *prometheus.CounterVec   // tag
	ErrorRecords     *prometheus.CounterVec   // kind
	LastRunTimestamp prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RoundsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "demandcast_rounds_total",
			Help: "Forecast rounds finished per algorithm and outcome",
		}, []string{"algorithm", "outcome"}),
		RoundDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "demandcast_round_duration_seconds",
			Help:    "Wall time of one forecast round",
			Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"algorithm"}),
		RemoteJobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "demandcast_remote_jobs_total",
			Help: "Remote resources that reached a terminal or timed-out state",
		}, []string{"kind", "status"}),
		PollWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "demandcast_poll_wait_seconds",
			Help:    "Time spent waiting for remote resources",
			Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"kind"}),
		RetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "demandcast_stage_retries_total",
			Help: "Single retries of predictor/forecast stages",
		}, []string{"algorithm", "stage"}),
		CleanupFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "demandcast_cleanup_failures_total",
			Help: "Remote resource deletions that failed",
		}, []string{"kind"}),
		AlgorithmRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "demandcast_algorithm_runs_total",
			Help: "Per-algorithm executions by outcome",
		}, []string{"algorithm", "outcome"}),
		ForecastRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "demandcast_forecast_records_total",
			Help: "Forecast records persisted per algorithm",
		}, []string{"algorithm"}),
		ChampionOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "demandcast_champion_outcomes_total",
			Help: "Per-item champion composition outcomes",
		}, []string{"outcome"}),
		TrendTags: f.NewCounterVec(prometheus.CounterOpts{
			Name: "demandcast_trend_tags_total",
			Help: "Long-forecast classifications by tag",
		}, []string{"tag"}),
		ErrorRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "demandcast_error_records_total",
			Help: "Central error records written by kind",
		}, []string{"kind"}),
		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "demandcast_last_run_timestamp_seconds",
			Help: "Unix time of the last completed pipeline run",
		}),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves /metrics for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePoll implements forecastsvc.PollObserver
func (m *Metrics) ObservePoll(kind contracts.ResourceKind, status contracts.JobStatus, waited time.Duration) {
	if m == nil {
		return
	}
	m.RemoteJobs.WithLabelValues(string(kind), string(status)).Inc()
	m.PollWait.WithLabelValues(string(kind)).Observe(waited.Seconds())
}

// Round records a finished round
func (m *Metrics) Round(algorithm, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RoundsTotal.WithLabelValues(algorithm, outcome).Inc()
	m.RoundDuration.WithLabelValues(algorithm).Observe(d.Seconds())
}

// Retry records a stage retry
func (m *Metrics) Retry(algorithm, stage string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(algorithm, stage).Inc()
}

// CleanupFailed records a failed deletion
func (m *Metrics) CleanupFailed(kind contracts.ResourceKind) {
	if m == nil {
		return
	}
	m.CleanupFailures.WithLabelValues(string(kind)).Inc()
}

// AlgorithmRun records a per-algorithm outcome and its record count
func (m *Metrics) AlgorithmRun(algorithm, outcome string, records int) {
	if m == nil {
		return
	}
	m.AlgorithmRuns.WithLabelValues(algorithm, outcome).Inc()
	if records > 0 {
		m.ForecastRecords.WithLabelValues(algorithm).Add(float64(records))
	}
}

// Champion records a composition outcome
func (m *Metrics) Champion(outcome string) {
	if m == nil {
		return
	}
	m.ChampionOutcomes.WithLabelValues(outcome).Inc()
}

// Tag records a trend classification
func (m *Metrics) Tag(tag contracts.LongForecastTag) {
	if m == nil {
		return
	}
	label := string(tag)
	if label == "" {
		label = "none"
	}
	m.TrendTags.WithLabelValues(label).Inc()
}

// Error records an error record write
func (m *Metrics) Error(kind contracts.ErrorKind) {
	if m == nil {
		return
	}
	m.ErrorRecords.WithLabelValues(string(kind)).Inc()
}

// RunCompleted stamps the last run time
func (m *Metrics) RunCompleted(at time.Time) {
	if m == nil {
		return
	}
	m.LastRunTimestamp.Set(float64(at.Unix()))
}

// Push sends the registry to a pushgateway (batch CLI runs); empty url = no-op
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
