package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/demandcast/internal/pipelineconfig"
)

// AlgorithmFailure 실패한 알고리즘
type AlgorithmFailure struct {
	Algorithm string `json:"algorithm"`
	Round     int    `json:"round,omitempty"`
	Error     string `json:"error"`
}

// RunSummary fan-in result of one forecast run
type RunSummary struct {
	RunID     string             `json:"run_id"`
	Project   string             `json:"project"`
	Results   []*AlgorithmResult `json:"results"`
	Failures  []AlgorithmFailure `json:"failures,omitempty"`
	Records   int                `json:"records"`
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
}

// Succeeded returns the ids of algorithms that completed
func (s *RunSummary) Succeeded() []string {
	var out []string
	for _, r := range s.Results {
		if r != nil && r.Err == nil {
			out = append(out, r.Algorithm)
		}
	}
	return out
}

// Supervisor runs one task per algorithm and joins them.
// 한 알고리즘의 실패는 다른 알고리즘을 취소하지 않음
type Supervisor struct {
	cfg    *pipelineconfig.Config
	runner *Runner
	limit  int
	logger zerolog.Logger
}

// NewSupervisor creates a supervisor; all algorithms run concurrently by default
func NewSupervisor(cfg *pipelineconfig.Config, runner *Runner, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		runner: runner,
		limit:  len(cfg.Algorithms),
		logger: logger.With().Str("component", "orchestrator.supervisor").Logger(),
	}
}

// WithLimit caps concurrent algorithms
func (s *Supervisor) WithLimit(n int) *Supervisor {
	if n > 0 {
		s.limit = n
	}
	return s
}

// RunAll runs every configured algorithm, or only the given subset
func (s *Supervisor) RunAll(ctx context.Context, runID string, only ...string) (*RunSummary, error) {
	ids := s.cfg.AlgorithmIDs()
	if len(only) > 0 {
		for _, id := range only {
			if _, ok := s.cfg.Algorithm(id); !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, id)
			}
		}
		ids = only
	}

	summary := &RunSummary{
		RunID:     runID,
		Project:   s.runner.Project(runID),
		Results:   make([]*AlgorithmResult, len(ids)),
		StartedAt: s.runner.clock.Now(),
	}
	s.logger.Info().
		Str("run_id", runID).
		Str("project", summary.Project).
		Strs("algorithms", ids).
		Int("limit", s.limit).
		Msg("forecast run started")

	errs := make([]error, len(ids))
	var g errgroup.Group
	if s.limit > 0 {
		g.SetLimit(s.limit)
	}
	for i, id := range ids {
		g.Go(func() error {
			res, err := s.runner.Run(ctx, id, runID)
			summary.Results[i] = res
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			summary.Failures = append(summary.Failures, AlgorithmFailure{
				Algorithm: ids[i],
				Round:     RoundOf(err),
				Error:     err.Error(),
			})
			continue
		}
		summary.Records += summary.Results[i].Records
	}
	summary.Duration = s.runner.clock.Now().Sub(summary.StartedAt)

	s.logger.Info().
		Str("run_id", runID).
		Int("succeeded", len(ids)-len(summary.Failures)).
		Int("failed", len(summary.Failures)).
		Int("records", summary.Records).
		Dur("duration", summary.Duration).
		Msg("forecast run completed")

	if len(summary.Failures) == len(ids) {
		return summary, fmt.Errorf("run %s: %w", runID, ErrAllAlgorithmsFailed)
	}
	return summary, nil
}
