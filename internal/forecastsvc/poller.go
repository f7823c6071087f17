package forecastsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/demandcast/internal/contracts"
)

// ErrPollTimeout 최대 대기 시간 내 terminal 상태에 도달하지 못함
var ErrPollTimeout = errors.New("remote job did not reach a terminal state")

// Clock 폴링 시간 소스 (테스트에서 fake로 교체)
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock wall clock
type RealClock struct{}

// Now returns time.Now
func (RealClock) Now() time.Time { return time.Now() }

// Sleep waits for d or until ctx is done
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PollObserver receives the outcome of each await
type PollObserver interface {
	ObservePoll(kind contracts.ResourceKind, status contracts.JobStatus, waited time.Duration)
}

// Poller waits for remote resources to reach ACTIVE or CREATE_FAILED
type Poller struct {
	svc      contracts.ForecastService
	clock    Clock
	interval time.Duration
	maxWait  time.Duration
	observer PollObserver
	logger   zerolog.Logger
}

// NewPoller creates a poller; maxWait <= 0 waits until ctx is done
func NewPoller(svc contracts.ForecastService, clock Clock, interval, maxWait time.Duration, logger zerolog.Logger) *Poller {
	if clock == nil {
		clock = RealClock{}
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{
		svc:      svc,
		clock:    clock,
		interval: interval,
		maxWait:  maxWait,
		logger:   logger.With().Str("component", "forecastsvc.poller").Logger(),
	}
}

// WithObserver attaches a metrics observer
func (p *Poller) WithObserver(o PollObserver) *Poller {
	p.observer = o
	return p
}

// Clock returns the poller's clock
func (p *Poller) Clock() Clock {
	return p.clock
}

// AwaitTerminal polls describe until the resource is ACTIVE or CREATE_FAILED.
// Past maxWait it returns the last observed status wrapped in ErrPollTimeout.
func (p *Poller) AwaitTerminal(ctx context.Context, kind contracts.ResourceKind, arn string) (contracts.JobStatus, error) {
	start := p.clock.Now()
	var last contracts.JobStatus

	for {
		st, err := p.svc.Describe(ctx, kind, arn)
		if err != nil {
			return last, fmt.Errorf("await %s: %w", kind, err)
		}
		last = st.Status

		waited := p.clock.Now().Sub(start)
		if last.IsTerminal() {
			p.observe(kind, last, waited)
			ev := p.logger.Debug()
			if last == contracts.StatusCreateFailed {
				ev = p.logger.Warn().Str("message", st.Message)
			}
			ev.Str("kind", string(kind)).
				Str("arn", arn).
				Str("status", string(last)).
				Dur("waited", waited).
				Msg("remote job terminal")
			return last, nil
		}

		if p.maxWait > 0 && waited >= p.maxWait {
			p.observe(kind, last, waited)
			return last, fmt.Errorf("await %s %s (%s after %s): %w", kind, arn, last, waited, ErrPollTimeout)
		}

		if err := p.clock.Sleep(ctx, p.interval); err != nil {
			return last, fmt.Errorf("await %s: %w", kind, err)
		}
	}
}

func (p *Poller) observe(kind contracts.ResourceKind, status contracts.JobStatus, waited time.Duration) {
	if p.observer != nil {
		p.observer.ObservePoll(kind, status, waited)
	}
}
