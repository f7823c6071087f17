// Package orchestrator drives the rolling multi-round forecast per algorithm
// and fans algorithms out under a supervisor.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/demandcast/internal/accuracy"
	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/internal/errorlog"
	"github.com/wonny/demandcast/internal/forecastsvc"
	"github.com/wonny/demandcast/internal/metrics"
	"github.com/wonny/demandcast/internal/objectstore"
	"github.com/wonny/demandcast/internal/pipelineconfig"
	"github.com/wonny/demandcast/internal/series"
	"github.com/wonny/demandcast/internal/window"
)

// Deps collaborators of the runner
type Deps struct {
	Service   contracts.ForecastService
	Poller    *forecastsvc.Poller
	Store     contracts.ObjectStore
	Warehouse contracts.Warehouse
	Recorder  *errorlog.Recorder
	Metrics   *metrics.Metrics // nil 허용
}

// AlgorithmResult one algorithm's run
type AlgorithmResult struct {
	Algorithm     string          `json:"algorithm"`
	RunID         string          `json:"run_id"`
	Project       string          `json:"project"`
	Rounds        int             `json:"rounds"`
	PlannedRounds int             `json:"planned_rounds"`
	SkippedRounds []int           `json:"skipped_rounds,omitempty"`
	Windows       []window.Window `json:"windows"`
	MergedMonths  int             `json:"merged_months"`
	Records       int             `json:"records"`
	Dropped       int             `json:"dropped"`
	Scored        int             `json:"scored_series"`
	Duration      time.Duration   `json:"duration"`
	Err           error           `json:"-"`

	// Rolling 마지막 라운드 이후의 학습 시리즈
	Rolling series.Target `json:"-"`
	// Forecasts 저장된 예측 레코드
	Forecasts []contracts.ForecastRecord `json:"-"`
}

// Runner executes every round of one algorithm
// ⭐ SSOT: 라운드 오케스트레이션은 여기서만
type Runner struct {
	cfg       *pipelineconfig.Config
	svc       contracts.ForecastService
	poller    *forecastsvc.Poller
	clock     forecastsvc.Clock
	store     contracts.ObjectStore
	warehouse contracts.Warehouse
	recorder  *errorlog.Recorder
	metrics   *metrics.Metrics
	location  *time.Location
	projects  sync.Map // runID → project name
	logger    zerolog.Logger
}

// NewRunner creates a runner
func NewRunner(cfg *pipelineconfig.Config, deps Deps, logger zerolog.Logger) *Runner {
	log := logger.With().Str("component", "orchestrator.runner").Logger()

	recorder := deps.Recorder
	if recorder == nil {
		recorder = errorlog.NewRecorder(nil, cfg.Meta.Job, deps.Metrics, logger)
	}
	loc, err := time.LoadLocation(cfg.Meta.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", cfg.Meta.Timezone).Msg("unknown timezone, using UTC")
		loc = time.UTC
	}

	return &Runner{
		cfg:       cfg,
		svc:       deps.Service,
		poller:    deps.Poller,
		clock:     deps.Poller.Clock(),
		store:     deps.Store,
		warehouse: deps.Warehouse,
		recorder:  recorder,
		metrics:   deps.Metrics,
		location:  loc,
		logger:    log,
	}
}

// Project returns the run's project name, fixed at first use
func (r *Runner) Project(runID string) string {
	name := ProjectName(r.cfg.Meta.ProjectPrefix, runID, r.clock.Now().In(r.location))
	v, _ := r.projects.LoadOrStore(runID, name)
	return v.(string)
}

// Run executes all rounds for algorithmID and persists its forecast records.
// 실패는 FATAL_ALGORITHM으로 기록한 뒤 반환
func (r *Runner) Run(ctx context.Context, algorithmID, runID string) (*AlgorithmResult, error) {
	alg, ok := r.cfg.Algorithm(algorithmID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithmID)
	}

	start := r.clock.Now()
	project := r.Project(runID)
	result := &AlgorithmResult{
		Algorithm:     alg.ID,
		RunID:         runID,
		Project:       project,
		PlannedRounds: window.RoundCount(r.cfg.Horizon.TotalForecastPeriod, r.cfg.Horizon.ForecastHorizon),
	}
	log := r.logger.With().Str("run_id", runID).Str("algorithm", alg.ID).Str("project", project).Logger()
	log.Info().Int("rounds", result.PlannedRounds).Msg("algorithm run started")

	err := r.run(ctx, alg, result, log)
	result.Duration = since(r.clock, start)

	if err != nil {
		result.Err = err
		r.recorder.Record(ctx, contracts.ErrorFatalAlgorithm, errorlog.Entry{
			RunID:     runID,
			Algorithm: alg.ID,
			Round:     RoundOf(err),
		}, err)
		r.metrics.AlgorithmRun(alg.ID, "failed", 0)
		return result, err
	}

	r.metrics.AlgorithmRun(alg.ID, "success", result.Records)
	log.Info().
		Int("rounds", result.Rounds).
		Ints("skipped_rounds", result.SkippedRounds).
		Int("records", result.Records).
		Int("dropped", result.Dropped).
		Dur("duration", result.Duration).
		Msg("algorithm run completed")
	return result, nil
}

// inputs 알고리즘 입력 파일
type inputs struct {
	target  series.Target
	related series.Related
	items   string // item metadata URI, 사용 안 하면 ""
}

func (r *Runner) run(ctx context.Context, alg pipelineconfig.Algorithm, result *AlgorithmResult, log zerolog.Logger) error {
	in, err := r.load(ctx, alg)
	if err != nil {
		return err
	}
	if err := checkObservations(alg, in); err != nil {
		return err
	}

	rng, err := in.target.Range()
	if err != nil {
		return err
	}
	h := r.cfg.Horizon.ForecastHorizon
	caseIdx := in.target.CaseIndex()
	original := in.target.Sorted()
	rolling := original

	var backtest, future []contracts.ExportPoint
	for i := 1; i <= result.PlannedRounds; i++ {
		roundStart := r.clock.Now()

		input, err := r.prepare(rng, h, i, original, rolling, in.related)
		if err != nil {
			return &RoundError{Algorithm: alg.ID, Round: i, Stage: StagePrepare, Err: err}
		}
		result.Windows = append(result.Windows, input.window)

		rd := r.newRound(alg, result.RunID, result.Project, input, log)
		points, err := r.executeRound(ctx, rd, in.items)
		if errors.Is(err, series.ErrEmptyExport) {
			r.recorder.Record(ctx, contracts.ErrorRecoverable, errorlog.Entry{
				RunID: result.RunID, Algorithm: alg.ID, Round: i,
			}, err)
			r.metrics.Round(alg.ID, "skipped", since(r.clock, roundStart))
			result.SkippedRounds = append(result.SkippedRounds, i)
			continue
		}
		if err != nil {
			r.metrics.Round(alg.ID, "failed", since(r.clock, roundStart))
			return err
		}

		points = finalize(points, caseIdx)
		result.Rounds++
		r.metrics.Round(alg.ID, "success", since(r.clock, roundStart))

		if i == 1 {
			// 라운드 1은 backtest: 정확도 평가용, 병합 안 함
			backtest = points
			continue
		}
		future = append(future, points...)
		before := len(rolling)
		rolling = rolling.Merge(feedPoints(points, r.cfg.FeedQuantile))
		log.Debug().Int("round", i).Int("merged_rows", len(rolling)-before).Msg("round output merged")
	}

	result.Rolling = rolling
	if rr, err := rolling.Range(); err == nil {
		result.MergedMonths = window.MonthsBetween(rng.End, rr.End)
	}

	return r.score(ctx, alg, result, original, backtest, future, rng)
}

// executeRound runs one round; cleanup always follows
func (r *Runner) executeRound(ctx context.Context, rd *round, items string) ([]contracts.ExportPoint, error) {
	defer rd.cleanup(ctx)
	return rd.execute(ctx, items)
}

// prepare slices the target and related series for round i.
// 라운드 1-2는 원본, 3 이상은 병합된 rolling 시리즈를 자름
func (r *Runner) prepare(rng window.Range, h, i int, original, rolling series.Target, related series.Related) (roundInput, error) {
	tw, err := window.Compute(rng, h, i)
	if err != nil {
		return roundInput{}, err
	}
	source := original
	if i >= 3 {
		source = rolling
	}
	in := roundInput{index: i, window: tw, target: source.Slice(tw)}
	if len(in.target) == 0 {
		return roundInput{}, fmt.Errorf("%w: no target rows in %s", ErrInsufficientData, tw)
	}

	if related != nil {
		rw, err := window.Related(rng, h, i)
		if err != nil {
			return roundInput{}, err
		}
		in.related = related.Slice(rw)
	}
	return in, nil
}

// score computes backtest accuracy and persists the future horizon
func (r *Runner) score(ctx context.Context, alg pipelineconfig.Algorithm, result *AlgorithmResult,
	actual series.Target, backtest, future []contracts.ExportPoint, rng window.Range) error {
	backRecords := toRecords(backtest, result.RunID, alg.ID, r.cfg.Quantiles)
	acc, err := accuracy.Compute(backRecords, actual, r.cfg.EvaluationMonths())
	if err != nil {
		return fmt.Errorf("algorithm %s accuracy: %w", alg.ID, err)
	}
	result.Scored = len(accuracy.Overall(acc))

	horizonEnd := window.AddMonths(rng.End, r.cfg.Horizon.TotalForecastPeriod)
	futRecords := toRecords(future, result.RunID, alg.ID, r.cfg.Quantiles)
	kept := futRecords[:0]
	for _, rec := range futRecords {
		if rec.Month.Before(horizonEnd) {
			kept = append(kept, rec)
		}
	}

	records, dropped, err := accuracy.BuildForecastRecords(kept, acc)
	if err != nil {
		return fmt.Errorf("algorithm %s forecast records: %w", alg.ID, err)
	}
	result.Dropped = dropped
	if dropped > 0 {
		r.logger.Warn().Str("algorithm", alg.ID).Int("dropped", dropped).Msg("forecast rows without accuracy dropped")
	}
	if len(records) == 0 {
		r.logger.Warn().Str("algorithm", alg.ID).Msg("no forecast records to save")
		return nil
	}

	if err := r.warehouse.SaveForecasts(ctx, records); err != nil {
		return fmt.Errorf("algorithm %s save forecasts: %w", alg.ID, err)
	}
	data, err := series.WriteForecastRecords(records)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, outputKey(r.cfg, result.Project, alg.ID), data); err != nil {
		return fmt.Errorf("algorithm %s output copy: %w", alg.ID, err)
	}

	result.Records = len(records)
	result.Forecasts = records
	return nil
}

// load reads the algorithm's source files
func (r *Runner) load(ctx context.Context, alg pipelineconfig.Algorithm) (inputs, error) {
	var in inputs

	data, err := r.store.Get(ctx, objectstore.Join(r.cfg.Paths.Source, r.cfg.Paths.TargetFile))
	if err != nil {
		return in, fmt.Errorf("load target: %w", err)
	}
	if in.target, err = series.ReadTarget(data); err != nil {
		return in, err
	}

	if alg.UsesRelated {
		data, err := r.store.Get(ctx, objectstore.Join(r.cfg.Paths.Source, r.cfg.Paths.RelatedFile))
		if err != nil {
			return in, fmt.Errorf("load related: %w", err)
		}
		if in.related, err = series.ReadRelated(data, relatedColumn(r.cfg)); err != nil {
			return in, err
		}
	}

	if r.cfg.UsesItemMetadata(alg) {
		key := objectstore.Join(r.cfg.Paths.Source, r.cfg.Paths.ItemFile)
		data, err := r.store.Get(ctx, key)
		if err != nil {
			return in, fmt.Errorf("load item metadata: %w", err)
		}
		if _, err := series.ReadItems(data, r.cfg.Datasets.ItemSchema); err != nil {
			return in, err
		}
		in.items = r.store.URI(key)
	}
	return in, nil
}

// checkObservations enforces min_observations on target and related rows
func checkObservations(alg pipelineconfig.Algorithm, in inputs) error {
	if alg.MinObservations <= 0 {
		return nil
	}
	if n := len(in.target); n < alg.MinObservations {
		return fmt.Errorf("%w: %s needs %d target rows, have %d", ErrInsufficientData, alg.ID, alg.MinObservations, n)
	}
	if alg.UsesRelated {
		if n := len(in.related); n < alg.MinObservations {
			return fmt.Errorf("%w: %s needs %d related rows, have %d", ErrInsufficientData, alg.ID, alg.MinObservations, n)
		}
	}
	return nil
}

// toRecords expands export points into one record per quantile
func toRecords(points []contracts.ExportPoint, runID, alg string, quantiles []contracts.Quantile) []contracts.ForecastRecord {
	out := make([]contracts.ForecastRecord, 0, len(points)*len(quantiles))
	for _, p := range points {
		for _, q := range quantiles {
			v, ok := p.Values[q]
			if !ok {
				continue
			}
			out = append(out, contracts.ForecastRecord{
				RunID:     runID,
				ItemID:    p.ItemID,
				Month:     p.Timestamp,
				Algorithm: alg,
				Quantile:  q,
				Value:     int64(v),
			})
		}
	}
	return out
}

// feedPoints converts the feed quantile into target rows
func feedPoints(points []contracts.ExportPoint, feed contracts.Quantile) []contracts.TargetPoint {
	out := make([]contracts.TargetPoint, 0, len(points))
	for _, p := range points {
		v, ok := p.Values[feed]
		if !ok {
			continue
		}
		out = append(out, contracts.TargetPoint{Timestamp: p.Timestamp, ItemID: p.ItemID, Value: v})
	}
	return out
}
