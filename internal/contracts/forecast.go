package contracts

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Quantile 예측 분위수 (0.3 = P30)
type Quantile float64

// String returns the service representation ("0.5")
func (q Quantile) String() string {
	return strconv.FormatFloat(float64(q), 'f', -1, 64)
}

// Label returns the column label ("P50")
func (q Quantile) Label() string {
	return fmt.Sprintf("P%d", int(math.Round(float64(q)*100)))
}

// Column returns the export file column name ("p50")
func (q Quantile) Column() string {
	return strings.ToLower(q.Label())
}

// ForecastRecord 품목/월/모델/분위수별 최종 예측
// test_MAPE는 월별 100 상한 후 평균
type ForecastRecord struct {
	RunID     string    `json:"run_id"`
	ItemID    string    `json:"item_id"`
	Month     time.Time `json:"month"`
	Algorithm string    `json:"algorithm"`
	Quantile  Quantile  `json:"quantile"`
	Value     int64     `json:"forecast_value"`
	TestMAPE  float64   `json:"test_mape"` // [0,100]
	TestMAD   float64   `json:"test_mad"`  // >= 0
}

// Method returns FORECAST_METHOD, e.g. "ETS_P50"
func (r ForecastRecord) Method() string {
	return MethodName(r.Algorithm, r.Quantile)
}

// MethodName builds the forecast method label for an algorithm/quantile pair
func MethodName(algorithm string, q Quantile) string {
	return strings.ToUpper(algorithm) + "_" + q.Label()
}

// MethodOwner reports whether method is a quantile label of algorithm ("ETS_P50" for ets)
func MethodOwner(method, algorithm string) bool {
	prefix := strings.ToUpper(algorithm) + "_P"
	if !strings.HasPrefix(method, prefix) || len(method) == len(prefix) {
		return false
	}
	for _, c := range method[len(prefix):] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Validate checks a record before it is persisted
func (r ForecastRecord) Validate() error {
	if r.ItemID == "" {
		return fmt.Errorf("forecast record: item_id is required")
	}
	if r.Value < 0 {
		return fmt.Errorf("forecast record %s: negative value %d", r.ItemID, r.Value)
	}
	if r.TestMAPE < 0 || r.TestMAPE > 100 {
		return fmt.Errorf("forecast record %s: test_mape %.4f out of [0,100]", r.ItemID, r.TestMAPE)
	}
	if r.TestMAD < 0 {
		return fmt.Errorf("forecast record %s: negative test_mad", r.ItemID)
	}
	return nil
}

// AccuracyRecord 정확도 (월별 또는 OVERALL)
type AccuracyRecord struct {
	ItemID  string    `json:"item_id"`
	Method  string    `json:"method"`
	Overall bool      `json:"overall"`
	Month   time.Time `json:"month,omitempty"` // Overall이면 zero
	APE     float64   `json:"ape"`             // Overall이면 MAPE
	AD      float64   `json:"ad"`              // Overall이면 MAD
}

// LongForecastTag 장기 예측 추세 플래그
type LongForecastTag string

const (
	TagNone      LongForecastTag = ""
	TagFlat      LongForecastTag = "F"
	TagDeclining LongForecastTag = "D"
)

// Flagged reports whether the tag disqualifies a champion
func (t LongForecastTag) Flagged() bool {
	return t == TagFlat || t == TagDeclining
}

// ChampionRow 챔피언 테이블 한 행 (품목/월/모델)
type ChampionRow struct {
	RunID        string          `json:"run_id"`
	ItemID       string          `json:"item_id"`
	Month        time.Time       `json:"month"`
	Method       string          `json:"forecast_method"`
	Value        float64         `json:"forecast_value"`
	TestMAPE     float64         `json:"test_mape"`
	TestMAD      float64         `json:"test_mad"`
	ChampRank    int             `json:"champ_rank"`
	LongForecast LongForecastTag `json:"long_forecast"`
	UpdatedAt    time.Time       `json:"update_time_stamp"`
}

// MonthLabel formats a month the way the warehouse stores MONTH_YEAR ("Jan-2024")
func MonthLabel(t time.Time) string {
	return t.Format("Jan-2006")
}
