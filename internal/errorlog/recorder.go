// Package errorlog writes central error records before errors propagate.
package errorlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wonny/demandcast/internal/contracts"
)

// Counter receives one increment per written record
type Counter interface {
	Error(kind contracts.ErrorKind)
}

// Recorder logs, counts and persists error records.
// sink 쓰기 실패는 로그만 남김 (원래 에러를 가리지 않음)
type Recorder struct {
	sink    contracts.ErrorLog
	job     string
	counter Counter
	now     func() time.Time
	logger  zerolog.Logger
}

// NewRecorder creates a recorder for one job; sink and counter may be nil
func NewRecorder(sink contracts.ErrorLog, job string, counter Counter, logger zerolog.Logger) *Recorder {
	return &Recorder{
		sink:    sink,
		job:     job,
		counter: counter,
		now:     time.Now,
		logger:  logger.With().Str("component", "errorlog").Str("job", job).Logger(),
	}
}

// WithClock overrides the timestamp source
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Entry optional record context
type Entry struct {
	RunID     string
	Algorithm string
	Round     int
	Key       string
}

// Record writes one error record and returns it
func (r *Recorder) Record(ctx context.Context, kind contracts.ErrorKind, e Entry, err error) contracts.ErrorRecord {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	key := e.Key
	if key == "" {
		key = "NA"
	}
	rec := contracts.ErrorRecord{
		ID:        uuid.NewString(),
		RunID:     e.RunID,
		Job:       r.job,
		Algorithm: e.Algorithm,
		Round:     e.Round,
		Kind:      kind,
		Key:       key,
		Message:   msg,
		RaisedAt:  r.now(),
	}
	rec.Message = rec.Truncated()

	ev := r.logger.Error()
	if kind == contracts.ErrorWarning || kind == contracts.ErrorRecoverable {
		ev = r.logger.Warn()
	}
	ev.Str("run_id", rec.RunID).
		Str("kind", string(kind)).
		Str("algorithm", rec.Algorithm).
		Int("round", rec.Round).
		Str("key", key).
		Msg(msg)

	if r.counter != nil {
		r.counter.Error(kind)
	}
	if r.sink != nil {
		if werr := r.sink.Record(ctx, rec); werr != nil {
			r.logger.Error().Err(werr).Str("record_id", rec.ID).Msg("failed to persist error record")
		}
	}
	return rec
}

// MemoryLog in-process ErrorLog (simulate mode, tests)
type MemoryLog struct {
	mu      sync.Mutex
	records []contracts.ErrorRecord
}

// NewMemoryLog creates an empty log
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Record appends a record
func (m *MemoryLog) Record(ctx context.Context, rec contracts.ErrorRecord) error {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return nil
}

// Records returns a copy of all records
func (m *MemoryLog) Records() []contracts.ErrorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]contracts.ErrorRecord, len(m.records))
	copy(out, m.records)
	return out
}

// ByKind filters records by kind
func (m *MemoryLog) ByKind(kind contracts.ErrorKind) []contracts.ErrorRecord {
	var out []contracts.ErrorRecord
	for _, r := range m.Records() {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}
