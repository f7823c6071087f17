// Package accuracy scores held-out forecasts against actuals (MAPE/MAD).
package accuracy

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/internal/series"
	"github.com/wonny/demandcast/internal/window"
)

// ErrMissingActual 평가 구간에 실적이 없는 품목
var ErrMissingActual = errors.New("missing actuals for evaluation window")

// MaxAPE APE 상한 (%)
const MaxAPE = 100.0

// APE returns the capped absolute percentage error for one month
func APE(actual, predicted float64) float64 {
	switch {
	case actual == 0 && predicted != 0:
		return MaxAPE
	case actual == 0:
		return 0
	}
	ratio := math.Min(math.Abs(actual-predicted)/actual, 1)
	return round4(ratio) * 100
}

// AD returns the absolute deviation for one month
func AD(actual, predicted float64) float64 {
	return round4(math.Abs(actual - predicted))
}

type seriesKey struct {
	item   string
	method string
}

// Compute scores the first horizonLen months of each (item, method) prediction
// series against actual. Output per pair: one row per month then OVERALL.
func Compute(predicted []contracts.ForecastRecord, actual series.Target, horizonLen int) ([]contracts.AccuracyRecord, error) {
	if horizonLen <= 0 {
		return nil, fmt.Errorf("compute accuracy: horizon must be > 0, got %d", horizonLen)
	}

	type actualKey struct {
		item  string
		month time.Time
	}
	actuals := make(map[actualKey]float64, len(actual))
	for _, p := range actual {
		actuals[actualKey{p.ItemID, window.MonthStart(p.Timestamp)}] = p.Value
	}

	groups := make(map[seriesKey][]contracts.ForecastRecord)
	for _, r := range predicted {
		k := seriesKey{r.ItemID, r.Method()}
		groups[k] = append(groups[k], r)
	}

	keys := make([]seriesKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].item != keys[j].item {
			return keys[i].item < keys[j].item
		}
		return keys[i].method < keys[j].method
	})

	out := make([]contracts.AccuracyRecord, 0, len(keys)*(horizonLen+1))
	for _, k := range keys {
		rows := groups[k]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Month.Before(rows[j].Month) })
		if len(rows) > horizonLen {
			rows = rows[:horizonLen]
		}

		var sumAPE, sumAD float64
		for _, r := range rows {
			month := window.MonthStart(r.Month)
			a, ok := actuals[actualKey{k.item, month}]
			if !ok {
				return nil, fmt.Errorf("item %s month %s: %w", k.item, month.Format("2006-01"), ErrMissingActual)
			}
			pred := float64(r.Value)
			ape, ad := APE(a, pred), AD(a, pred)
			sumAPE += ape
			sumAD += ad
			out = append(out, contracts.AccuracyRecord{
				ItemID: k.item,
				Method: k.method,
				Month:  month,
				APE:    ape,
				AD:     ad,
			})
		}

		n := float64(len(rows))
		out = append(out, contracts.AccuracyRecord{
			ItemID:  k.item,
			Method:  k.method,
			Overall: true,
			APE:     math.Min(sumAPE/n, MaxAPE),
			AD:      sumAD / n,
		})
	}
	return out, nil
}

// Overall indexes OVERALL rows by (item, method)
func Overall(records []contracts.AccuracyRecord) map[string]map[string]contracts.AccuracyRecord {
	idx := make(map[string]map[string]contracts.AccuracyRecord)
	for _, r := range records {
		if !r.Overall {
			continue
		}
		if idx[r.ItemID] == nil {
			idx[r.ItemID] = make(map[string]contracts.AccuracyRecord)
		}
		idx[r.ItemID][r.Method] = r
	}
	return idx
}

// BuildForecastRecords stamps TEST_MAPE/TEST_MAD onto forecast rows.
// Rows whose (item, method) has no OVERALL score are dropped and counted.
func BuildForecastRecords(forecasts []contracts.ForecastRecord, acc []contracts.AccuracyRecord) ([]contracts.ForecastRecord, int, error) {
	overall := Overall(acc)
	out := make([]contracts.ForecastRecord, 0, len(forecasts))
	dropped := 0
	for _, f := range forecasts {
		score, ok := overall[f.ItemID][f.Method()]
		if !ok {
			dropped++
			continue
		}
		f.TestMAPE = score.APE
		f.TestMAD = score.AD
		if err := f.Validate(); err != nil {
			return nil, dropped, err
		}
		out = append(out, f)
	}
	return out, dropped, nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
