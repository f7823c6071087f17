package jobs

import (
	"context"

	"github.com/wonny/demandcast/pkg/logger"
)

// ForecastJob runs the forecast rounds of every algorithm
// Schedule: pipeline.yaml schedule.forecast (기본 매월 1일 02:00)
type ForecastJob struct {
	stages   *Stages
	schedule string
	runID    string // 비어 있으면 warehouse 최신 run id
	logger   *logger.Logger
}

// NewForecastJob creates a new forecast job
func NewForecastJob(stages *Stages, schedule, runID string, log *logger.Logger) *ForecastJob {
	return &ForecastJob{
		stages:   stages,
		schedule: schedule,
		runID:    runID,
		logger:   log,
	}
}

// Name returns the job name
func (j *ForecastJob) Name() string {
	return "forecast_pipeline"
}

// Schedule returns the cron schedule
func (j *ForecastJob) Schedule() string {
	return j.schedule
}

// Run executes the forecast stage
func (j *ForecastJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled forecast pipeline")

	_, err := j.stages.Forecast(ctx, j.runID)
	return err
}
