package window

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestCompute(t *testing.T) {
	// 36개월: 2021-01 .. 2023-12
	r := NewRange(month(2021, 1), month(2023, 12))
	require.Equal(t, month(2024, 1), r.End)

	tests := []struct {
		round   int
		wantEnd time.Time
	}{
		{1, month(2023, 10)}, // 마지막 3개월 holdout
		{2, month(2024, 1)},
		{3, month(2024, 4)},
		{4, month(2024, 7)},
		{5, month(2024, 10)},
	}

	for _, tt := range tests {
		w, err := Compute(r, 3, tt.round)
		require.NoError(t, err)
		assert.Equal(t, month(2021, 1), w.Start, "round %d", tt.round)
		assert.Equal(t, tt.wantEnd, w.End, "round %d", tt.round)
	}
}

func TestCompute_MonotonicAndNonEmpty(t *testing.T) {
	r := NewRange(month(2020, 6), month(2022, 5))
	for _, h := range []int{1, 2, 3, 6} {
		prev := time.Time{}
		for round := 1; round <= 8; round++ {
			w, err := Compute(r, h, round)
			require.NoError(t, err)
			assert.True(t, w.Start.Before(w.End), "h=%d round=%d", h, round)
			assert.False(t, w.End.Before(prev), "h=%d round=%d", h, round)
			prev = w.End
		}
	}
}

func TestCompute_Invalid(t *testing.T) {
	short := NewRange(month(2023, 1), month(2023, 2)) // 2개월

	_, err := Compute(short, 3, 1)
	assert.True(t, errors.Is(err, ErrInvalidWindow))

	_, err = Compute(short, 0, 2)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = Compute(short, 3, 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestRelated(t *testing.T) {
	r := NewRange(month(2021, 1), month(2023, 12))

	tests := []struct {
		round   int
		wantEnd time.Time
	}{
		{1, month(2024, 1)},
		{2, month(2024, 4)},
		{3, month(2024, 8)},  // 3*3-2 = 7
		{4, month(2024, 11)}, // 3*4-2 = 10
	}
	for _, tt := range tests {
		w, err := Related(r, 3, tt.round)
		require.NoError(t, err)
		assert.Equal(t, tt.wantEnd, w.End, "round %d", tt.round)

		target, err := Compute(r, 3, tt.round)
		require.NoError(t, err)
		assert.False(t, w.End.Before(target.End), "covariates must cover training window")
	}
}

func TestRoundCount(t *testing.T) {
	assert.Equal(t, 5, RoundCount(12, 3))
	assert.Equal(t, 6, RoundCount(13, 3))
	assert.Equal(t, 2, RoundCount(1, 3))
	assert.Equal(t, 0, RoundCount(12, 0))
}

func TestWindowHelpers(t *testing.T) {
	w := Window{Start: month(2023, 1), End: month(2023, 4)}
	assert.True(t, w.Contains(time.Date(2023, 3, 15, 12, 0, 0, 0, time.UTC)))
	assert.False(t, w.Contains(month(2023, 4)))
	assert.False(t, w.Contains(month(2022, 12)))
	assert.Equal(t, month(2023, 3), w.LastMonth())
	assert.Equal(t, "[2023-01, 2023-04)", w.String())

	assert.Equal(t, 12, MonthsBetween(month(2023, 1), month(2024, 1)))
	assert.Equal(t, month(2022, 11), AddMonths(month(2023, 1), -2))
}
