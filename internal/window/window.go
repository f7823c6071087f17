// Package window computes the per-round training slices for the rolling
// forecast. All bounds are month starts in UTC; End is exclusive.
package window

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow start_date >= end_date
var ErrInvalidWindow = errors.New("invalid window")

// Range 시리즈 전체 기간 [Min, End)
type Range struct {
	Min time.Time
	End time.Time // 마지막 월 + 1개월
}

// Window 라운드 학습 구간 [Start, End)
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether month t falls in [Start, End)
func (w Window) Contains(t time.Time) bool {
	m := MonthStart(t)
	return !m.Before(w.Start) && m.Before(w.End)
}

// LastMonth returns the final month inside the window
func (w Window) LastMonth() time.Time {
	return AddMonths(w.End, -1)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format("2006-01"), w.End.Format("2006-01"))
}

// NewRange builds a Range from the first and last observed months
func NewRange(first, last time.Time) Range {
	return Range{Min: MonthStart(first), End: AddMonths(MonthStart(last), 1)}
}

// Compute returns the target-series window for round (1-based)
//
//	round 1:  [min, end - h)
//	round 2:  [min, end)
//	round i:  [min, end + (i*h - 2*h))
func Compute(r Range, horizon, round int) (Window, error) {
	if horizon <= 0 {
		return Window{}, fmt.Errorf("%w: horizon %d must be > 0", ErrInvalidWindow, horizon)
	}
	if round < 1 {
		return Window{}, fmt.Errorf("%w: round %d must be >= 1", ErrInvalidWindow, round)
	}

	var shift int
	switch round {
	case 1:
		shift = -horizon
	case 2:
		shift = 0
	default:
		shift = round*horizon - 2*horizon
	}

	w := Window{Start: r.Min, End: AddMonths(r.End, shift)}
	if !w.Start.Before(w.End) {
		return Window{}, fmt.Errorf("%w: round %d %s", ErrInvalidWindow, round, w)
	}
	return w, nil
}

// Related returns the covariate window for round. Covariates must reach past
// the training window by one horizon; rounds >= 3 extend by h*i - 2 months.
//
//	round 1:  [min, end)
//	round 2:  [min, end + h)
//	round i:  [min, end + (h*i - 2))
func Related(r Range, horizon, round int) (Window, error) {
	if horizon <= 0 {
		return Window{}, fmt.Errorf("%w: horizon %d must be > 0", ErrInvalidWindow, horizon)
	}
	if round < 1 {
		return Window{}, fmt.Errorf("%w: round %d must be >= 1", ErrInvalidWindow, round)
	}

	var shift int
	switch round {
	case 1:
		shift = 0
	case 2:
		shift = horizon
	default:
		shift = horizon*round - 2
	}

	w := Window{Start: r.Min, End: AddMonths(r.End, shift)}
	if !w.Start.Before(w.End) {
		return Window{}, fmt.Errorf("%w: related round %d %s", ErrInvalidWindow, round, w)
	}
	return w, nil
}

// RoundCount returns ceil(total/h) + 1; round 1 is the backtest
func RoundCount(totalPeriod, horizon int) int {
	if horizon <= 0 || totalPeriod <= 0 {
		return 0
	}
	return (totalPeriod+horizon-1)/horizon + 1
}

// MonthStart truncates t to the first day of its month in UTC
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths shifts a month start by n months
func AddMonths(t time.Time, n int) time.Time {
	return MonthStart(t).AddDate(0, n, 0)
}

// MonthsBetween counts whole months from a to b (b exclusive)
func MonthsBetween(a, b time.Time) int {
	a, b = MonthStart(a), MonthStart(b)
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
