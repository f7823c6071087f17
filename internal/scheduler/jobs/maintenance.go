package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/pkg/logger"
)

// ProcessedCleanupJob removes per-round intermediate files from the object store
type ProcessedCleanupJob struct {
	store  contracts.ObjectStore
	prefix string
	logger *logger.Logger
}

// NewProcessedCleanupJob creates a cleanup job for keys under prefix
func NewProcessedCleanupJob(store contracts.ObjectStore, prefix string, log *logger.Logger) *ProcessedCleanupJob {
	return &ProcessedCleanupJob{
		store:  store,
		prefix: prefix,
		logger: log,
	}
}

// Name returns the job name
func (j *ProcessedCleanupJob) Name() string {
	return "processed_cleanup"
}

// Schedule returns the cron schedule (mid-month, between monthly runs)
func (j *ProcessedCleanupJob) Schedule() string {
	return "0 0 4 15 * *"
}

// Run deletes every processed key; a single failed delete does not stop the sweep
func (j *ProcessedCleanupJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled processed cleanup")

	keys, err := j.store.List(ctx, j.prefix+"/")
	if err != nil {
		return fmt.Errorf("list %s: %w", j.prefix, err)
	}

	removed, failed := 0, 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := j.store.Delete(ctx, key); err != nil {
			failed++
			j.logger.WithField("key", key).WithError(err).Warn("Failed to delete processed file")
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.Infof("Removed %d processed files", removed)
	}
	if failed > 0 {
		return fmt.Errorf("processed cleanup: %d of %d deletes failed", failed, len(keys))
	}
	return nil
}
