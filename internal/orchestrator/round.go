package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/internal/errorlog"
	"github.com/wonny/demandcast/internal/forecastsvc"
	"github.com/wonny/demandcast/internal/pipelineconfig"
	"github.com/wonny/demandcast/internal/series"
	"github.com/wonny/demandcast/internal/window"
)

// roundInput 라운드 학습 데이터
type roundInput struct {
	index   int
	window  window.Window
	target  series.Target
	related series.Related
}

type remoteResource struct {
	kind contracts.ResourceKind
	arn  string
}

// round one slice → import → predict → forecast → export cycle.
// 생성한 리소스는 cleanup에서 역순으로 삭제
type round struct {
	runner  *Runner
	alg     pipelineconfig.Algorithm
	runID   string
	names   names
	in      roundInput
	created []remoteResource
	logger  zerolog.Logger
}

func (r *Runner) newRound(alg pipelineconfig.Algorithm, runID, project string, in roundInput, log zerolog.Logger) *round {
	return &round{
		runner: r,
		alg:    alg,
		runID:  runID,
		names:  newNames(r.cfg, project, alg.ID, in.index),
		in:     in,
		logger: log.With().Int("round", in.index).Str("window", in.window.String()).Logger(),
	}
}

func (rd *round) fail(stage Stage, err error) error {
	return &RoundError{Algorithm: rd.alg.ID, Round: rd.in.index, Stage: stage, Err: err}
}

// execute runs the remote cycle and returns the round's export points
func (rd *round) execute(ctx context.Context, items string) ([]contracts.ExportPoint, error) {
	cfg := rd.runner.cfg
	svc := rd.runner.svc

	targetURI, relatedURI, err := rd.writeInputs(ctx)
	if err != nil {
		return nil, rd.fail(StagePrepare, err)
	}

	groupARN, err := svc.CreateDatasetGroup(ctx, contracts.DatasetGroupSpec{
		Name:   rd.names.group(),
		Domain: cfg.Datasets.Domain,
	})
	if err != nil {
		return nil, rd.fail(StageGroup, err)
	}
	rd.track(contracts.KindDatasetGroup, groupARN)

	type importSource struct {
		dataset string
		job     string
		uri     string
	}
	var datasetARNs []string
	var imports []importSource

	create := func(name string, typ contracts.DatasetType, schema []contracts.SchemaAttribute, job, uri string) error {
		arn, err := svc.CreateDataset(ctx, contracts.DatasetSpec{
			Name:      name,
			Domain:    cfg.Datasets.Domain,
			Type:      typ,
			Frequency: cfg.Datasets.Frequency,
			Schema:    schema,
		})
		if err != nil {
			return err
		}
		rd.track(contracts.KindDataset, arn)
		datasetARNs = append(datasetARNs, arn)
		imports = append(imports, importSource{dataset: arn, job: job, uri: uri})
		return nil
	}

	if err := create(rd.names.targetDataset(), contracts.DatasetTarget, cfg.Datasets.TargetSchema,
		rd.names.targetImport(), targetURI); err != nil {
		return nil, rd.fail(StageDataset, err)
	}
	if rd.alg.UsesRelated {
		if err := create(rd.names.relatedDataset(), contracts.DatasetRelated, cfg.Datasets.RelatedSchema,
			rd.names.relatedImport(), relatedURI); err != nil {
			return nil, rd.fail(StageDataset, err)
		}
	}
	if items != "" {
		if err := create(rd.names.itemDataset(), contracts.DatasetItemMetadata, cfg.Datasets.ItemSchema,
			rd.names.itemImport(), items); err != nil {
			return nil, rd.fail(StageDataset, err)
		}
	}

	if err := svc.UpdateDatasetGroup(ctx, groupARN, datasetARNs); err != nil {
		return nil, rd.fail(StageGroup, err)
	}

	for _, imp := range imports {
		arn, err := svc.CreateDatasetImportJob(ctx, contracts.ImportJobSpec{
			Name:            imp.job,
			DatasetARN:      imp.dataset,
			DataURI:         imp.uri,
			TimestampFormat: cfg.Datasets.TimestampFormat,
		})
		if err != nil {
			return nil, rd.fail(StageImport, err)
		}
		rd.track(contracts.KindDatasetImportJob, arn)
		if err := rd.await(ctx, StageImport, contracts.KindDatasetImportJob, arn); err != nil {
			return nil, err
		}
	}

	predictorARN, err := rd.createWithRetry(ctx, StagePredictor, contracts.KindPredictor, func() (string, error) {
		return svc.CreatePredictor(ctx, contracts.PredictorSpec{
			Name:            rd.names.predictor(),
			Algorithm:       pipelineconfig.ServiceAlgorithmName(rd.alg),
			Horizon:         cfg.Horizon.ForecastHorizon,
			PerformHPO:      rd.alg.PerformHPO,
			DatasetGroupARN: groupARN,
			Frequency:       cfg.Datasets.Frequency,
		})
	})
	if err != nil {
		return nil, err
	}

	types := make([]string, len(cfg.Quantiles))
	for i, q := range cfg.Quantiles {
		types[i] = q.String()
	}
	forecastARN, err := rd.createWithRetry(ctx, StageForecast, contracts.KindForecast, func() (string, error) {
		return svc.CreateForecast(ctx, contracts.ForecastSpec{
			Name:         rd.names.forecast(),
			PredictorARN: predictorARN,
			Types:        types,
		})
	})
	if err != nil {
		return nil, err
	}

	prefix := rd.names.exportPrefix()
	exportARN, err := svc.CreateForecastExportJob(ctx, contracts.ExportJobSpec{
		Name:           rd.names.export(),
		ForecastARN:    forecastARN,
		DestinationURI: rd.runner.store.URI(prefix) + "/",
	})
	if err != nil {
		return nil, rd.fail(StageExport, err)
	}
	rd.track(contracts.KindForecastExportJob, exportARN)
	if err := rd.await(ctx, StageExport, contracts.KindForecastExportJob, exportARN); err != nil {
		return nil, err
	}

	points, err := rd.readExport(ctx, prefix)
	if err != nil {
		if errors.Is(err, series.ErrEmptyExport) {
			return nil, err
		}
		return nil, rd.fail(StageExport, err)
	}
	return points, nil
}

// writeInputs stores the round's slices under the processed prefix
func (rd *round) writeInputs(ctx context.Context) (string, string, error) {
	cfg := rd.runner.cfg
	store := rd.runner.store

	data, err := series.WriteTarget(rd.in.target)
	if err != nil {
		return "", "", err
	}
	targetKey := rd.names.processedKey(cfg.Paths.TargetFile)
	if err := store.Put(ctx, targetKey, data); err != nil {
		return "", "", err
	}

	var relatedURI string
	if rd.alg.UsesRelated {
		data, err := series.WriteRelated(rd.in.related, relatedColumn(cfg))
		if err != nil {
			return "", "", err
		}
		key := rd.names.processedKey(cfg.Paths.RelatedFile)
		if err := store.Put(ctx, key, data); err != nil {
			return "", "", err
		}
		relatedURI = store.URI(key)
	}

	rd.logger.Debug().
		Int("target_rows", len(rd.in.target)).
		Int("related_rows", len(rd.in.related)).
		Str("target_key", targetKey).
		Msg("round inputs written")
	return store.URI(targetKey), relatedURI, nil
}

// await fails the round unless the resource becomes ACTIVE
func (rd *round) await(ctx context.Context, stage Stage, kind contracts.ResourceKind, arn string) error {
	status, err := rd.runner.poller.AwaitTerminal(ctx, kind, arn)
	if err != nil {
		if errors.Is(err, forecastsvc.ErrPollTimeout) {
			return rd.fail(stage, fmt.Errorf("%w: %v", ErrRemoteJobFailed, err))
		}
		return rd.fail(stage, err)
	}
	if status != contracts.StatusActive {
		return rd.fail(stage, fmt.Errorf("%w: %s %s is %s", ErrRemoteJobFailed, kind, arn, status))
	}
	return nil
}

// createWithRetry creates and awaits a predictor or forecast.
// busy create, stuck IN_PROGRESS, CREATE_FAILED 각각 StuckBackoff 후 정확히 1회 재시도
func (rd *round) createWithRetry(ctx context.Context, stage Stage, kind contracts.ResourceKind, create func() (string, error)) (string, error) {
	retried := false
	retry := func(reason string, cause error) error {
		if retried {
			return rd.fail(stage, fmt.Errorf("%w: %s after retry: %v", ErrRemoteJobFailed, reason, cause))
		}
		retried = true
		rd.runner.metrics.Retry(rd.alg.ID, string(stage))
		rd.logger.Warn().
			Str("stage", string(stage)).
			Str("reason", reason).
			Dur("backoff", rd.runner.cfg.Polling.StuckBackoff).
			Msg("retrying remote job")
		if err := rd.runner.clock.Sleep(ctx, rd.runner.cfg.Polling.StuckBackoff); err != nil {
			return rd.fail(stage, err)
		}
		return nil
	}

	var arn string
	for {
		if arn == "" {
			created, err := create()
			if errors.Is(err, contracts.ErrResourceInProgress) {
				if rerr := retry("resource in progress", err); rerr != nil {
					return "", rerr
				}
				continue
			}
			if err != nil {
				return "", rd.fail(stage, err)
			}
			arn = created
			rd.track(kind, arn)
		}

		status, err := rd.runner.poller.AwaitTerminal(ctx, kind, arn)
		switch {
		case errors.Is(err, forecastsvc.ErrPollTimeout):
			if rerr := retry("stuck in progress", err); rerr != nil {
				return "", rerr
			}
		case err != nil:
			return "", rd.fail(stage, err)
		case status == contracts.StatusActive:
			return arn, nil
		default:
			cause := fmt.Errorf("%s %s is %s", kind, arn, status)
			if rerr := retry("create failed", cause); rerr != nil {
				return "", rerr
			}
			rd.remove(ctx, kind, arn)
			arn = ""
		}
	}
}

// readExport concatenates the non-empty export files under prefix
func (rd *round) readExport(ctx context.Context, prefix string) ([]contracts.ExportPoint, error) {
	store := rd.runner.store
	keys, err := store.List(ctx, prefix+"/")
	if err != nil {
		return nil, err
	}

	var out []contracts.ExportPoint
	for _, key := range keys {
		if !strings.HasSuffix(key, ".csv") {
			continue
		}
		data, err := store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		points, err := series.ReadExport(data, rd.runner.cfg.Quantiles)
		if errors.Is(err, series.ErrEmptyExport) {
			rd.logger.Warn().Str("key", key).Msg("empty export file skipped")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out = append(out, points...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", prefix, series.ErrEmptyExport)
	}
	return out, nil
}

func (rd *round) track(kind contracts.ResourceKind, arn string) {
	rd.created = append(rd.created, remoteResource{kind: kind, arn: arn})
}

// remove deletes one resource best-effort and stops tracking it
func (rd *round) remove(ctx context.Context, kind contracts.ResourceKind, arn string) {
	rd.delete(ctx, remoteResource{kind: kind, arn: arn})
	kept := rd.created[:0]
	for _, c := range rd.created {
		if c.arn != arn {
			kept = append(kept, c)
		}
	}
	rd.created = kept
}

// cleanup deletes every tracked resource in reverse creation order
func (rd *round) cleanup(ctx context.Context) int {
	ctx = context.WithoutCancel(ctx)
	failed := 0
	for i := len(rd.created) - 1; i >= 0; i-- {
		if !rd.delete(ctx, rd.created[i]) {
			failed++
		}
	}
	rd.logger.Debug().Int("resources", len(rd.created)).Int("failed", failed).Msg("round resources deleted")
	rd.created = nil
	return failed
}

func (rd *round) delete(ctx context.Context, res remoteResource) bool {
	err := rd.runner.svc.Delete(ctx, res.kind, res.arn)
	if err == nil || errors.Is(err, contracts.ErrResourceNotFound) {
		return true
	}
	rd.runner.metrics.CleanupFailed(res.kind)
	rd.runner.recorder.Record(ctx, contracts.ErrorRecoverable, errorlog.Entry{
		RunID:     rd.runID,
		Algorithm: rd.alg.ID,
		Round:     rd.in.index,
		Key:       res.arn,
	}, fmt.Errorf("delete %s: %w", res.kind, err))
	return false
}

// finalize rounds and clamps export values and restores item id casing
func finalize(points []contracts.ExportPoint, caseIdx map[string]string) []contracts.ExportPoint {
	out := make([]contracts.ExportPoint, len(points))
	for i, p := range points {
		id := p.ItemID
		if orig, ok := caseIdx[strings.ToLower(id)]; ok {
			id = orig
		}
		values := make(map[contracts.Quantile]float64, len(p.Values))
		for q, v := range p.Values {
			values[q] = math.Max(0, math.RoundToEven(v))
		}
		out[i] = contracts.ExportPoint{
			ItemID:    id,
			Timestamp: window.MonthStart(p.Timestamp),
			Values:    values,
		}
	}
	return out
}

func relatedColumn(cfg *pipelineconfig.Config) string {
	schema := cfg.Datasets.RelatedSchema
	if len(schema) == 0 {
		return "Future_Orders"
	}
	return schema[len(schema)-1].Name
}

func since(clock forecastsvc.Clock, start time.Time) time.Duration {
	return clock.Now().Sub(start)
}
