package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/internal/errorlog"
	"github.com/wonny/demandcast/internal/forecastsvc"
	"github.com/wonny/demandcast/internal/metrics"
	"github.com/wonny/demandcast/internal/objectstore"
	"github.com/wonny/demandcast/internal/pipelineconfig"
	"github.com/wonny/demandcast/internal/warehouse"
	"github.com/wonny/demandcast/internal/window"
)

const runID = "20240101"

var clockStart = time.Date(2024, 1, 15, 2, 30, 0, 0, time.UTC)

type fixture struct {
	cfg     *pipelineconfig.Config
	store   *objectstore.Memory
	sim     *forecastsvc.Simulator
	clock   *forecastsvc.VirtualClock
	wh      *warehouse.Memory
	errs    *errorlog.MemoryLog
	metrics *metrics.Metrics
	runner  *Runner
}

func newFixture(t *testing.T, algs ...pipelineconfig.Algorithm) *fixture {
	t.Helper()

	cfg := pipelineconfig.Default()
	cfg.Meta.Timezone = "UTC"
	cfg.Algorithms = algs
	cfg.Polling.MaxWait = time.Hour

	f := &fixture{
		cfg:     cfg,
		store:   objectstore.NewMemory("bucket"),
		clock:   forecastsvc.NewVirtualClock(clockStart),
		wh:      warehouse.NewMemory(cfg.FeedQuantile, runID),
		errs:    errorlog.NewMemoryLog(),
		metrics: metrics.New(),
	}
	f.sim = forecastsvc.NewSimulator(f.store, 2, zerolog.Nop())
	poller := forecastsvc.NewPoller(f.sim, f.clock, cfg.Polling.Interval, cfg.Polling.MaxWait, zerolog.Nop()).
		WithObserver(f.metrics)
	recorder := errorlog.NewRecorder(f.errs, cfg.Meta.Job, f.metrics, zerolog.Nop()).WithClock(f.clock.Now)

	f.runner = NewRunner(cfg, Deps{
		Service:   f.sim,
		Poller:    poller,
		Store:     f.store,
		Warehouse: f.wh,
		Recorder:  recorder,
		Metrics:   f.metrics,
	}, zerolog.Nop())

	f.seed(t, 36)
	return f
}

// seed writes months of target / related data for item A1 and B2, starting 2021-01
func (f *fixture) seed(t *testing.T, months int) {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	var target, related strings.Builder
	target.WriteString("timestamp,target_value,item_id\n")
	related.WriteString("timestamp,item_id,Future_Orders\n")
	for m := 0; m < months; m++ {
		ts := window.AddMonths(start, m).Format("2006-01-02")
		fmt.Fprintf(&target, "%s,%d,A1\n", ts, 100+m%5)
		fmt.Fprintf(&target, "%s,%d,B2\n", ts, 40+m%3)
	}
	for m := 0; m < months+f.cfg.Horizon.TotalForecastPeriod; m++ {
		ts := window.AddMonths(start, m).Format("2006-01-02")
		fmt.Fprintf(&related, "%s,A1,%d\n", ts, 90)
		fmt.Fprintf(&related, "%s,B2,%d\n", ts, 30)
	}
	items := "item_id,Demand_Profile,Product_Line,Business_Team\nA1,smooth,line,team\nB2,lumpy,line,team\n"

	p := f.cfg.Paths
	require.NoError(t, f.store.Put(ctx, objectstore.Join(p.Source, p.TargetFile), []byte(target.String())))
	require.NoError(t, f.store.Put(ctx, objectstore.Join(p.Source, p.RelatedFile), []byte(related.String())))
	require.NoError(t, f.store.Put(ctx, objectstore.Join(p.Source, p.ItemFile), []byte(items)))
}

// created returns the names of created resources of a kind
func (f *fixture) created(kind contracts.ResourceKind) []string {
	var out []string
	for _, c := range f.sim.Calls() {
		if c.Op == "create" && c.Kind == kind {
			out = append(out, c.Name)
		}
	}
	return out
}

func countContaining(names []string, sub string) int {
	n := 0
	for _, name := range names {
		if strings.Contains(name, sub) {
			n++
		}
	}
	return n
}

func ets() pipelineconfig.Algorithm {
	return pipelineconfig.Algorithm{ID: "ets"}
}

func TestRunner_FiveRoundsTwelveMonths(t *testing.T) {
	f := newFixture(t, ets())

	res, err := f.runner.Run(context.Background(), "ets", runID)
	require.NoError(t, err)

	assert.Equal(t, "AUTO_20240101_0230", res.Project)
	assert.Equal(t, 5, res.PlannedRounds)
	assert.Equal(t, 5, res.Rounds)
	assert.Empty(t, res.SkippedRounds)

	month := func(y int, m time.Month) time.Time { return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC) }
	require.Len(t, res.Windows, 5)
	wantEnds := []time.Time{
		month(2023, 10), month(2024, 1), month(2024, 4), month(2024, 7), month(2024, 10),
	}
	for i, w := range res.Windows {
		assert.Equal(t, month(2021, 1), w.Start, "round %d", i+1)
		assert.Equal(t, wantEnds[i], w.End, "round %d", i+1)
	}

	// 12개월 예측이 rolling 시리즈에 병합됨
	assert.Equal(t, 12, res.MergedMonths)
	assert.Len(t, res.Rolling, 2*(36+12))
	rr, err := res.Rolling.Range()
	require.NoError(t, err)
	assert.Equal(t, month(2025, 1), rr.End)

	// 2 items × 12 months × 3 quantiles
	assert.Equal(t, 72, res.Records)
	assert.Len(t, f.wh.Baseline(), 72)
	input, err := f.wh.LoadChampionInput(context.Background(), runID)
	require.NoError(t, err)
	assert.Len(t, input, 24)

	for _, rec := range res.Forecasts {
		assert.Contains(t, []string{"A1", "B2"}, rec.ItemID, "item casing restored")
		assert.GreaterOrEqual(t, rec.Value, int64(0))
		assert.True(t, rec.Month.Before(month(2025, 1)))
		assert.LessOrEqual(t, rec.TestMAPE, 100.0)
	}

	preds := f.created(contracts.KindPredictor)
	require.Len(t, preds, 5)
	for i, name := range preds {
		assert.Equal(t, fmt.Sprintf("AUTO_20240101_0230_etsr%d", i+1), name)
	}
	assert.Equal(t, 0, f.sim.Live(), "every round cleans up")

	_, err = f.store.Get(context.Background(), "Forecast_output/AUTO_20240101_0230_ets/output.csv")
	assert.NoError(t, err)
	assert.Empty(t, f.errs.Records())
	assert.Equal(t, 5.0, testutil.ToFloat64(f.metrics.RoundsTotal.WithLabelValues("ets", "success")))
}

func TestRunner_RoundThreePredictorFailsAfterRetry(t *testing.T) {
	f := newFixture(t, ets())
	f.sim.Inject(forecastsvc.Fault{
		Kind: contracts.KindPredictor, NameContains: "etsr3", Mode: forecastsvc.FaultFail, Times: 2,
	})

	res, err := f.runner.Run(context.Background(), "ets", runID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteJobFailed)

	var re *RoundError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 3, re.Round)
	assert.Equal(t, StagePredictor, re.Stage)
	assert.Equal(t, 2, res.Rounds)

	preds := f.created(contracts.KindPredictor)
	assert.Equal(t, 2, countContaining(preds, "etsr3"), "exactly one retry")
	assert.Zero(t, countContaining(preds, "etsr4"), "remaining rounds never run")
	assert.Zero(t, countContaining(f.created(contracts.KindDatasetGroup), "r4"))

	fatal := f.errs.ByKind(contracts.ErrorFatalAlgorithm)
	require.Len(t, fatal, 1)
	assert.Equal(t, 3, fatal[0].Round)
	assert.Equal(t, "ets", fatal[0].Algorithm)
	assert.Equal(t, runID, fatal[0].RunID)

	assert.GreaterOrEqual(t, f.clock.Slept(), f.cfg.Polling.StuckBackoff)
	assert.Equal(t, 0, f.sim.Live(), "failed round still cleans up")
	assert.Empty(t, f.wh.Baseline())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RetriesTotal.WithLabelValues("ets", "predictor")))
}

func TestRunner_CreateFailedRecoversOnRetry(t *testing.T) {
	f := newFixture(t, ets())
	f.sim.Inject(forecastsvc.Fault{
		Kind: contracts.KindPredictor, NameContains: "etsr3", Mode: forecastsvc.FaultFail, Times: 1,
	})

	res, err := f.runner.Run(context.Background(), "ets", runID)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Rounds)
	assert.Equal(t, 2, countContaining(f.created(contracts.KindPredictor), "etsr3"))
	assert.Empty(t, f.errs.ByKind(contracts.ErrorFatalAlgorithm))
}

func TestRunner_StuckPredictorRetriesOnce(t *testing.T) {
	f := newFixture(t, ets())
	// MaxWait 1h / 10s poll = 360 describes; 400 stuck describes outlast the first wait only
	f.sim.Inject(forecastsvc.Fault{
		Kind: contracts.KindPredictor, NameContains: "etsr2", Mode: forecastsvc.FaultStuck, StuckDescribes: 400,
	})

	res, err := f.runner.Run(context.Background(), "ets", runID)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Rounds)
	assert.Equal(t, 1, countContaining(f.created(contracts.KindPredictor), "etsr2"), "re-awaits the same predictor")
	assert.GreaterOrEqual(t, f.clock.Slept(), f.cfg.Polling.MaxWait+f.cfg.Polling.StuckBackoff)
}

func TestRunner_StuckForeverFails(t *testing.T) {
	f := newFixture(t, ets())
	f.sim.Inject(forecastsvc.Fault{
		Kind: contracts.KindForecast, NameContains: "fctr2", Mode: forecastsvc.FaultStuck,
	})

	_, err := f.runner.Run(context.Background(), "ets", runID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteJobFailed)
	assert.Equal(t, 2, RoundOf(err))

	var re *RoundError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, StageForecast, re.Stage)
}

func TestRunner_BusyForecastWaitsAndRecreates(t *testing.T) {
	f := newFixture(t, ets())
	f.sim.Inject(forecastsvc.Fault{
		Kind: contracts.KindForecast, NameContains: "fctr1", Mode: forecastsvc.FaultBusy,
	})

	_, err := f.runner.Run(context.Background(), "ets", runID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RetriesTotal.WithLabelValues("ets", "forecast")))
	assert.GreaterOrEqual(t, f.clock.Slept(), f.cfg.Polling.StuckBackoff)
}

func TestRunner_ImportFailureIsFatalWithoutRetry(t *testing.T) {
	f := newFixture(t, ets())
	f.sim.Inject(forecastsvc.Fault{
		Kind: contracts.KindDatasetImportJob, NameContains: "target_data_importr1", Mode: forecastsvc.FaultFail,
	})

	_, err := f.runner.Run(context.Background(), "ets", runID)
	require.Error(t, err)
	var re *RoundError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, StageImport, re.Stage)
	assert.Equal(t, 1, re.Round)
	assert.Empty(t, f.created(contracts.KindPredictor))
}

func TestRunner_InsufficientData(t *testing.T) {
	f := newFixture(t, pipelineconfig.Algorithm{ID: "deep_ar_plus", UsesRelated: true, MinObservations: 300})

	res, err := f.runner.Run(context.Background(), "deep_ar_plus", runID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Zero(t, res.Rounds)
	assert.Empty(t, f.sim.Calls(), "fails before round 1")

	fatal := f.errs.ByKind(contracts.ErrorFatalAlgorithm)
	require.Len(t, fatal, 1)
	assert.Zero(t, fatal[0].Round)
}

func TestRunner_EmptyExportSkipsRound(t *testing.T) {
	f := newFixture(t, ets())
	f.sim.Inject(forecastsvc.Fault{
		Kind: contracts.KindForecastExportJob, NameContains: "fct_expr4", Mode: forecastsvc.FaultEmptyExport,
	})

	res, err := f.runner.Run(context.Background(), "ets", runID)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, res.SkippedRounds)
	assert.Equal(t, 4, res.Rounds)

	rec := f.errs.ByKind(contracts.ErrorRecoverable)
	require.Len(t, rec, 1)
	assert.Equal(t, 4, rec[0].Round)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RoundsTotal.WithLabelValues("ets", "skipped")))
}

func TestRunner_CleanupFailureIsRecoverable(t *testing.T) {
	f := newFixture(t, ets())
	f.sim.Inject(forecastsvc.Fault{
		Kind: contracts.KindDatasetGroup, Mode: forecastsvc.FaultDeleteError, Times: 5,
	})

	res, err := f.runner.Run(context.Background(), "ets", runID)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Rounds)

	rec := f.errs.ByKind(contracts.ErrorRecoverable)
	assert.Len(t, rec, 5)
	assert.Equal(t, 5.0, testutil.ToFloat64(f.metrics.CleanupFailures.WithLabelValues("dataset_group")))
	assert.Equal(t, 5, f.sim.Live(), "only the groups survive")
}

func TestRunner_CovariatesAndItemMetadata(t *testing.T) {
	f := newFixture(t, pipelineconfig.Algorithm{ID: "cnn_qr", UsesRelated: true, UsesItemMetadata: true})

	res, err := f.runner.Run(context.Background(), "cnn_qr", runID)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Rounds)

	datasets := f.created(contracts.KindDataset)
	assert.Equal(t, 5, countContaining(datasets, "_related_datar"))
	assert.Equal(t, 5, countContaining(datasets, "_item_meta_datar"))
	imports := f.created(contracts.KindDatasetImportJob)
	assert.Len(t, imports, 15)

	// round 2 related window reaches one horizon past the target end
	data, err := f.store.Get(context.Background(),
		"Intermediate_output/AUTO_20240101_0230_cnn_qr/r2/KFS_Orders_Related_Batch.csv")
	require.NoError(t, err)
	assert.Contains(t, string(data), "2024-03-01")
	assert.NotContains(t, string(data), "2024-04-01")
}

func TestRunner_UnknownAlgorithm(t *testing.T) {
	f := newFixture(t, ets())
	_, err := f.runner.Run(context.Background(), "lstm", runID)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestSupervisor_IsolatesFailures(t *testing.T) {
	f := newFixture(t, ets(), pipelineconfig.Algorithm{ID: "npts"})
	f.sim.Inject(forecastsvc.Fault{
		Kind: contracts.KindPredictor, NameContains: "nptsr1", Mode: forecastsvc.FaultFail, Times: 2,
	})

	sup := NewSupervisor(f.cfg, f.runner, zerolog.Nop())
	summary, err := sup.RunAll(context.Background(), runID)
	require.NoError(t, err)

	assert.Equal(t, []string{"ets"}, summary.Succeeded())
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "npts", summary.Failures[0].Algorithm)
	assert.Equal(t, 1, summary.Failures[0].Round)
	assert.Equal(t, 72, summary.Records)
	assert.Equal(t, "AUTO_20240101_0230", summary.Project)

	for _, rec := range f.wh.Baseline() {
		assert.Equal(t, "ets", rec.Algorithm)
	}
}

func TestSupervisor_AllFailed(t *testing.T) {
	f := newFixture(t, pipelineconfig.Algorithm{ID: "deep_ar_plus", UsesRelated: true, MinObservations: 300})

	summary, err := NewSupervisor(f.cfg, f.runner, zerolog.Nop()).RunAll(context.Background(), runID)
	assert.ErrorIs(t, err, ErrAllAlgorithmsFailed)
	require.NotNil(t, summary)
	assert.Len(t, summary.Failures, 1)
}

func TestSupervisor_Subset(t *testing.T) {
	f := newFixture(t, ets(), pipelineconfig.Algorithm{ID: "npts"})
	sup := NewSupervisor(f.cfg, f.runner, zerolog.Nop()).WithLimit(1)

	summary, err := sup.RunAll(context.Background(), runID, "npts")
	require.NoError(t, err)
	assert.Equal(t, []string{"npts"}, summary.Succeeded())

	_, err = sup.RunAll(context.Background(), runID, "nope")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestProjectName(t *testing.T) {
	assert.Equal(t, "AUTO_2024_01_01_0902",
		ProjectName("AUTO", "2024-01-01", time.Date(2024, 2, 1, 9, 2, 0, 0, time.UTC)))
}

func TestNames(t *testing.T) {
	n := newNames(pipelineconfig.Default(), "AUTO_r_0000", "ets", 3)
	assert.Equal(t, "AUTO_r_0000_etsr3", n.predictor())
	assert.Equal(t, "AUTO_r_0000_ets_fctr3", n.forecast())
	assert.Equal(t, "AUTO_r_0000_ets_fct_expr3", n.export())
	assert.Equal(t, "AUTO_r_0000_ets_datasetsr3", n.group())
	assert.Equal(t, "AUTO_r_0000_ets_target_data_importr3", n.targetImport())
	assert.Equal(t, "Forecast_output/AUTO_r_0000_ets/ets_fct_expr3", n.exportPrefix())
	assert.Equal(t, "Intermediate_output/AUTO_r_0000_ets/r3/t.csv", n.processedKey("t.csv"))
}

func TestStageRetryable(t *testing.T) {
	assert.True(t, StagePredictor.Retryable())
	assert.True(t, StageForecast.Retryable())
	assert.False(t, StageImport.Retryable())
	assert.False(t, StageExport.Retryable())
}
