package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var (
	// ErrJobNotFound 등록되지 않은 작업
	ErrJobNotFound = errors.New("job not found")
	// ErrJobRunning 같은 작업이 이미 실행 중
	ErrJobRunning = errors.New("job already running")
)

type entry struct {
	job     Job
	id      cron.EntryID
	running bool
	history *JobHistory
}

// Scheduler runs pipeline jobs on cron schedules
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron   *cron.Cron
	jobs   map[string]*entry
	mu     sync.RWMutex
	now    func() time.Time
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 파이프라인 작업은 길어서 기본 재시도 없음
	maxRetries int
	retryDelay time.Duration
}

// New creates a scheduler evaluating schedules in loc
func New(loc *time.Location, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	log := logger.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithLocation(loc), cron.WithLogger(cronLogger{log})),
		jobs:   make(map[string]*entry),
		now:    time.Now,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// WithRetry retries failed runs up to maxRetries times
func (s *Scheduler) WithRetry(maxRetries int, delay time.Duration) *Scheduler {
	s.maxRetries = maxRetries
	s.retryDelay = delay
	return s
}

// AddJob registers job on its schedule
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	e := &entry{job: job, history: &JobHistory{}}
	id, err := s.cron.AddFunc(job.Schedule(), func() {
		if _, err := s.execute(s.ctx, e, "cron"); err != nil && !errors.Is(err, ErrJobRunning) {
			s.logger.Debug().Err(err).Str("job", name).Msg("cron run returned error")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	e.id = id
	s.jobs[name] = e

	s.logger.Info().Str("job", name).Str("schedule", job.Schedule()).Msg("job added to scheduler")
	return nil
}

// RemoveJob unschedules a job
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrJobNotFound)
	}
	s.cron.Remove(e.id)
	delete(s.jobs, name)
	s.logger.Info().Str("job", name).Msg("job removed from scheduler")
	return nil
}

// Start starts the cron loop
func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("starting scheduler")
	s.cron.Start()
}

// Stop stops the cron loop, cancels running jobs and waits for them
func (s *Scheduler) Stop() {
	s.logger.Info().Msg("stopping scheduler")
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

// Trigger starts a job in the background outside its schedule
func (s *Scheduler) Trigger(name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	s.mu.RLock()
	running := e.running
	s.mu.RUnlock()
	if running {
		return fmt.Errorf("%s: %w", name, ErrJobRunning)
	}

	go func() { _, _ = s.execute(s.ctx, e, "manual") }()
	return nil
}

// RunNow runs a job synchronously and returns its result
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobResult, error) {
	e, err := s.lookup(name)
	if err != nil {
		return JobResult{}, err
	}
	return s.execute(ctx, e, "manual")
}

func (s *Scheduler) lookup(name string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrJobNotFound)
	}
	return e, nil
}

// execute runs one invocation with retries; overlapping runs are skipped
func (s *Scheduler) execute(ctx context.Context, e *entry, trigger string) (JobResult, error) {
	name := e.job.Name()
	result := JobResult{
		ExecutionID: uuid.NewString(),
		JobName:     name,
		Trigger:     trigger,
		StartTime:   s.now(),
	}

	s.mu.Lock()
	if e.running {
		s.mu.Unlock()
		result.EndTime = result.StartTime
		result.Skipped = true
		s.record(e, result)
		s.logger.Warn().Str("job", name).Str("trigger", trigger).Msg("job still running, skipped")
		return result, fmt.Errorf("%s: %w", name, ErrJobRunning)
	}
	e.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		e.running = false
		s.mu.Unlock()
		s.wg.Done()
	}()

	log := s.logger.With().Str("job", name).Str("execution_id", result.ExecutionID).Str("trigger", trigger).Logger()
	log.Info().Msg("job started")

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		result.Attempts++
		lastErr = e.job.Run(ctx)
		if lastErr == nil || ctx.Err() != nil {
			break
		}
		if attempt < s.maxRetries {
			log.Warn().Err(lastErr).Int("attempt", attempt+1).Dur("delay", s.retryDelay).Msg("job failed, retrying")
			select {
			case <-ctx.Done():
			case <-time.After(s.retryDelay):
			}
		}
	}

	result.EndTime = s.now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Success = lastErr == nil
	if lastErr != nil {
		result.Error = lastErr.Error()
	}
	s.record(e, result)

	if result.Success {
		log.Info().Dur("duration", result.Duration).Msg("job completed")
	} else {
		log.Error().Err(lastErr).Int("attempts", result.Attempts).Dur("duration", result.Duration).Msg("job failed")
	}
	return result, lastErr
}

func (s *Scheduler) record(e *entry, result JobResult) {
	s.mu.Lock()
	e.history.AddResult(result)
	s.mu.Unlock()
}

// History returns a copy of a job's results
func (s *Scheduler) History(name string) ([]JobResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrJobNotFound)
	}
	return e.history.Latest(len(e.history.Results)), nil
}

// Jobs returns registered job names in order
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns per-job statistics
func (s *Scheduler) Stats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats, len(s.jobs))
	for name, e := range s.jobs {
		h := e.history
		st := JobStats{
			JobName:      name,
			Schedule:     e.job.Schedule(),
			Running:      e.running,
			TotalRuns:    len(h.Results),
			FailureCount: len(h.Failed()),
			SuccessRate:  h.SuccessRate(),
		}
		if next := s.cron.Entry(e.id).Next; !next.IsZero() {
			st.NextRun = &next
		}
		for i := range h.Results {
			r := h.Results[i]
			if r.Skipped {
				continue
			}
			st.LastRun = &h.Results[i].StartTime
			if r.Success {
				st.SuccessCount++
				st.LastSuccess = &h.Results[i].StartTime
			} else {
				st.LastFailure = &h.Results[i].StartTime
				st.LastError = r.Error
			}
		}
		stats[name] = st
	}
	return stats
}

// cronLogger routes robfig/cron logs to zerolog
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
