package jobs

import (
	"context"

	"github.com/wonny/demandcast/pkg/logger"
)

// ChampionJob ranks forecasts and writes the champion table
// Schedule: pipeline.yaml schedule.champion (forecast 이후)
type ChampionJob struct {
	stages   *Stages
	schedule string
	runID    string
	logger   *logger.Logger
}

// NewChampionJob creates a new champion job
func NewChampionJob(stages *Stages, schedule, runID string, log *logger.Logger) *ChampionJob {
	return &ChampionJob{
		stages:   stages,
		schedule: schedule,
		runID:    runID,
		logger:   log,
	}
}

// Name returns the job name
func (j *ChampionJob) Name() string {
	return "champion_alteration"
}

// Schedule returns the cron schedule
func (j *ChampionJob) Schedule() string {
	return j.schedule
}

// Run executes the champion stage
func (j *ChampionJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled champion alteration")

	_, err := j.stages.Champion(ctx, j.runID)
	return err
}
