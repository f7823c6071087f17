package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/demandcast/internal/champion"
	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/internal/metrics"
	"github.com/wonny/demandcast/internal/notify"
	"github.com/wonny/demandcast/internal/orchestrator"
	"github.com/wonny/demandcast/internal/pipelineconfig"
	"github.com/wonny/demandcast/pkg/logger"
)

// RunLocker guards a stage against a concurrent run of the same run id
type RunLocker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// StageDeps 파이프라인 단계 의존성
type StageDeps struct {
	Supervisor *orchestrator.Supervisor
	Champion   *champion.Service
	Warehouse  contracts.Warehouse
	Notifier   contracts.Notifier // nil = notify.Nop
	Metrics    *metrics.Metrics   // nil = no metrics
	Lock       RunLocker          // nil = no locking
	PushURL    string
}

// PipelineSummary forecast + champion 결과
type PipelineSummary struct {
	RunID    string                   `json:"run_id"`
	Forecast *orchestrator.RunSummary `json:"forecast"`
	Champion *champion.Summary        `json:"champion"`
}

// Stages runs pipeline stages for both cron jobs and CLI commands
// ⭐ SSOT: 단계 실행 (run id 결정, lock, 알림, metrics)은 여기서만
type Stages struct {
	cfg     *pipelineconfig.Config
	deps    StageDeps
	lockTTL time.Duration
	now     func() time.Time
	logger  *logger.Logger
}

// NewStages creates the stage runner
func NewStages(cfg *pipelineconfig.Config, deps StageDeps, log *logger.Logger) *Stages {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	return &Stages{
		cfg:     cfg,
		deps:    deps,
		lockTTL: 24 * time.Hour,
		now:     time.Now,
		logger:  log.WithField("component", "scheduler.stages"),
	}
}

// ResolveRunID returns runID, or the latest run id in the warehouse when empty
func (s *Stages) ResolveRunID(ctx context.Context, runID string) (string, error) {
	if runID != "" {
		return runID, nil
	}
	id, err := s.deps.Warehouse.LatestRunID(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve run id: %w", err)
	}
	return id, nil
}

// Forecast runs every algorithm (or the given subset) for runID
func (s *Stages) Forecast(ctx context.Context, runID string, only ...string) (*orchestrator.RunSummary, error) {
	runID, err := s.ResolveRunID(ctx, runID)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, "forecast", runID)
	if err != nil {
		return nil, err
	}
	defer s.release(release, "forecast", runID)

	log := s.logger.WithRun(runID)
	log.Info("Starting forecast stage")

	summary, err := s.deps.Supervisor.RunAll(ctx, runID, only...)
	if err != nil {
		s.alertFailure(ctx, runID, err)
		s.push(ctx, "forecast")
		return summary, err
	}

	s.deps.Metrics.RunCompleted(s.now())
	s.alertSuccess(ctx, runID, forecastDetail(summary))
	s.push(ctx, "forecast")

	log.WithFields(map[string]interface{}{
		"succeeded": len(summary.Succeeded()),
		"failed":    len(summary.Failures),
		"records":   summary.Records,
	}).Info("Forecast stage completed")
	return summary, nil
}

// Champion runs the champion alteration for runID
func (s *Stages) Champion(ctx context.Context, runID string) (*champion.Summary, error) {
	runID, err := s.ResolveRunID(ctx, runID)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, "champion", runID)
	if err != nil {
		return nil, err
	}
	defer s.release(release, "champion", runID)

	log := s.logger.WithRun(runID)
	log.Info("Starting champion stage")

	summary, err := s.deps.Champion.Run(ctx, runID)
	if err != nil {
		s.alertFailure(ctx, runID, err)
		s.push(ctx, "champion")
		return nil, err
	}

	s.alertSuccess(ctx, runID, championDetail(summary))
	s.push(ctx, "champion")
	log.Infof("Champion stage completed: %d items, %d hybrids", summary.Items, summary.Hybrids)
	return summary, nil
}

// Pipeline runs forecast then champion; champion is skipped when no algorithm succeeded
func (s *Stages) Pipeline(ctx context.Context, runID string, only ...string) (*PipelineSummary, error) {
	runID, err := s.ResolveRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := &PipelineSummary{RunID: runID}

	out.Forecast, err = s.Forecast(ctx, runID, only...)
	if err != nil {
		return out, fmt.Errorf("forecast stage: %w", err)
	}

	out.Champion, err = s.Champion(ctx, runID)
	if err != nil {
		return out, fmt.Errorf("champion stage: %w", err)
	}
	return out, nil
}

func (s *Stages) acquire(ctx context.Context, stage, runID string) (func(context.Context) error, error) {
	if s.deps.Lock == nil {
		return func(context.Context) error { return nil }, nil
	}
	release, err := s.deps.Lock.Acquire(ctx, stage+":"+runID, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("%s stage for run %s: %w", stage, runID, err)
	}
	return release, nil
}

func (s *Stages) release(release func(context.Context) error, stage, runID string) {
	if err := release(context.WithoutCancel(context.Background())); err != nil {
		s.logger.WithRun(runID).WithError(err).Warnf("Failed to release %s lock", stage)
	}
}

// 알림은 best-effort, 실패해도 단계 결과는 바뀌지 않음
func (s *Stages) alertSuccess(ctx context.Context, runID, detail string) {
	subject, text := notify.Success(s.cfg.Meta.Job, runID, detail)
	if err := s.deps.Notifier.Publish(ctx, subject, text); err != nil {
		s.logger.WithRun(runID).WithError(err).Warn("Failed to publish success notification")
	}
}

func (s *Stages) alertFailure(ctx context.Context, runID string, cause error) {
	subject, text := notify.Failure(s.cfg.Meta.Job, runID, s.cfg.Tables.ErrorLog, cause)
	if err := s.deps.Notifier.Publish(context.WithoutCancel(ctx), subject, text); err != nil {
		s.logger.WithRun(runID).WithError(err).Warn("Failed to publish failure notification")
	}
}

func (s *Stages) push(ctx context.Context, stage string) {
	if err := s.deps.Metrics.Push(context.WithoutCancel(ctx), s.deps.PushURL, "demandcast_"+stage); err != nil {
		s.logger.WithError(err).Warn("Failed to push metrics")
	}
}

func forecastDetail(summary *orchestrator.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "project %s: %d algorithms succeeded (%s), %d records in %s",
		summary.Project, len(summary.Succeeded()), strings.Join(summary.Succeeded(), ", "),
		summary.Records, summary.Duration.Round(time.Second))
	for _, f := range summary.Failures {
		fmt.Fprintf(&b, "\nfailed %s", f.Algorithm)
		if f.Round > 0 {
			fmt.Fprintf(&b, " at round %d", f.Round)
		}
		fmt.Fprintf(&b, ": %s", f.Error)
	}
	return b.String()
}

func championDetail(summary *champion.Summary) string {
	return fmt.Sprintf("%d items, %d hybrids, %d skipped, %d low volume, %d rows",
		summary.Items, summary.Hybrids, summary.Skipped, summary.Exempt, summary.Rows)
}

