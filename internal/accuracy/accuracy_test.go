package accuracy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/internal/series"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestAPE(t *testing.T) {
	tests := []struct {
		name      string
		actual    float64
		predicted float64
		want      float64
	}{
		{"zero actual zero predicted", 0, 0, 0},
		{"zero actual positive predicted", 0, 7, 100},
		{"capped at 100", 10, 35, 100},
		{"exact", 50, 50, 0},
		{"regular", 200, 150, 25},
		{"rounded to 4 decimals before scaling", 3, 2, 33.33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, APE(tt.actual, tt.predicted), 1e-9)
			assert.LessOrEqual(t, APE(tt.actual, tt.predicted), MaxAPE)
		})
	}
}

func TestAD(t *testing.T) {
	assert.Equal(t, 5.0, AD(10, 15))
	assert.Equal(t, 5.0, AD(15, 10))
}

func records(item, alg string, q contracts.Quantile, start time.Time, values ...int64) []contracts.ForecastRecord {
	out := make([]contracts.ForecastRecord, len(values))
	for i, v := range values {
		out[i] = contracts.ForecastRecord{
			ItemID: item, Algorithm: alg, Quantile: q,
			Month: start.AddDate(0, i, 0), Value: v,
		}
	}
	return out
}

func TestCompute_OverallIsMeanOfMonths(t *testing.T) {
	actual := series.Target{
		{Timestamp: month(2023, 10), ItemID: "A1", Value: 100},
		{Timestamp: month(2023, 11), ItemID: "A1", Value: 0},
		{Timestamp: month(2023, 12), ItemID: "A1", Value: 40},
	}
	pred := records("A1", "ets", 0.5, month(2023, 10), 80, 5, 40)

	got, err := Compute(pred, actual, 3)
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, 20.0, got[0].APE)
	assert.Equal(t, 100.0, got[1].APE)
	assert.Equal(t, 0.0, got[2].APE)

	overall := got[3]
	assert.True(t, overall.Overall)
	assert.Equal(t, "ETS_P50", overall.Method)
	assert.InDelta(t, (20.0+100.0+0.0)/3, overall.APE, 1e-9)
	assert.InDelta(t, (20.0+5.0+0.0)/3, overall.AD, 1e-9)

	// 같은 입력 재집계 시 동일
	again, err := Compute(pred, actual, 3)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestCompute_OnlyFirstHorizonMonths(t *testing.T) {
	actual := series.Target{
		{Timestamp: month(2023, 10), ItemID: "A1", Value: 10},
	}
	// 12개월 예측 중 첫 달만 평가
	pred := records("A1", "arima", 0.3, month(2023, 10), 10, 999, 999)
	got, err := Compute(pred, actual, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0.0, got[1].APE)
}

func TestCompute_MissingActual(t *testing.T) {
	actual := series.Target{
		{Timestamp: month(2023, 10), ItemID: "A1", Value: 10},
	}
	pred := records("B2", "ets", 0.5, month(2023, 10), 10)
	_, err := Compute(pred, actual, 1)
	assert.True(t, errors.Is(err, ErrMissingActual))
}

func TestCompute_InvalidHorizon(t *testing.T) {
	_, err := Compute(nil, nil, 0)
	assert.Error(t, err)
}

func TestBuildForecastRecords(t *testing.T) {
	acc := []contracts.AccuracyRecord{
		{ItemID: "A1", Method: "ETS_P50", Overall: true, APE: 12.5, AD: 3},
		{ItemID: "A1", Method: "ETS_P50", Month: month(2023, 10), APE: 99, AD: 99},
	}
	fc := append(
		records("A1", "ets", 0.5, month(2024, 1), 10, 11),
		records("A1", "ets", 0.4, month(2024, 1), 9)...,
	)

	out, dropped, err := BuildForecastRecords(fc, acc)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	require.Len(t, out, 2)
	for _, r := range out {
		assert.Equal(t, 12.5, r.TestMAPE)
		assert.Equal(t, 3.0, r.TestMAD)
	}
}
