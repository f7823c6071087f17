package scheduler

import (
	"context"
	"time"
)

// Job is a cron-triggered pipeline stage
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	Name() string

	// Run executes one invocation; ctx is cancelled when the scheduler stops
	Run(ctx context.Context) error

	// Schedule returns a cron expression with seconds, e.g. "0 0 2 1 * *"
	Schedule() string
}

// JobResult 한 번의 실행 결과
type JobResult struct {
	ExecutionID string        `json:"execution_id"`
	JobName     string        `json:"job_name"`
	Trigger     string        `json:"trigger"` // cron, manual
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	Attempts    int           `json:"attempts"`
	Success     bool          `json:"success"`
	Skipped     bool          `json:"skipped,omitempty"` // 이전 실행이 아직 진행 중
	Error       string        `json:"error,omitempty"`
}

const historyLimit = 100

// JobHistory keeps the latest results of one job
type JobHistory struct {
	Results []JobResult
}

// AddResult appends a result, keeping the last historyLimit
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)
	if len(h.Results) > historyLimit {
		h.Results = h.Results[len(h.Results)-historyLimit:]
	}
}

// Latest returns up to n most recent results, oldest first
func (h *JobHistory) Latest(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}
	out := make([]JobResult, n)
	copy(out, h.Results[len(h.Results)-n:])
	return out
}

// Failed returns failed results
func (h *JobHistory) Failed() []JobResult {
	var out []JobResult
	for _, r := range h.Results {
		if !r.Success && !r.Skipped {
			out = append(out, r)
		}
	}
	return out
}

// SuccessRate over executed (non-skipped) runs, 0 when none
func (h *JobHistory) SuccessRate() float64 {
	ran, ok := 0, 0
	for _, r := range h.Results {
		if r.Skipped {
			continue
		}
		ran++
		if r.Success {
			ok++
		}
	}
	if ran == 0 {
		return 0
	}
	return float64(ok) / float64(ran)
}

// JobStats 작업 통계 (status API 응답)
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	Running      bool       `json:"running"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}
