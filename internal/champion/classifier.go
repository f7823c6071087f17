package champion

import (
	"fmt"
	"math"

	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/internal/pipelineconfig"
)

// Classification 추세 분류 결과
type Classification struct {
	Tag contracts.LongForecastTag
	// Warning 0 나눗셈 또는 길이 부족 (에러 로그 WARNING)
	Warning string
}

// Classifier flags flat and declining long-horizon forecasts
type Classifier struct {
	cfg pipelineconfig.Champion
}

// NewClassifier creates a classifier from champion settings
func NewClassifier(cfg pipelineconfig.Champion) *Classifier {
	return &Classifier{cfg: cfg}
}

// MinLength returns the shortest series the checks can index
func (c *Classifier) MinLength() int {
	n := c.cfg.FlatWindow
	if c.cfg.DeclineRecent > n {
		n = c.cfg.DeclineRecent
	}
	if c.cfg.DeclineBaseEnd > n {
		n = c.cfg.DeclineBaseEnd
	}
	return n
}

// Classify tags a month-ascending forecast series.
// Flat: round(std(tail))/round(mean(tail)) <= threshold. Declining (only if not flat):
// round(mean(recent))/round(mean(base)) < threshold. A zero denominator flags with a warning.
func (c *Classifier) Classify(values []float64) Classification {
	if len(values) < c.MinLength() {
		return Classification{
			Tag:     contracts.TagNone,
			Warning: fmt.Sprintf("series has %d months, need %d for trend checks", len(values), c.MinLength()),
		}
	}

	tail := values[len(values)-c.cfg.FlatWindow:]
	std := math.RoundToEven(sampleStd(tail))
	mean := math.RoundToEven(meanOf(tail))
	if mean == 0 {
		return Classification{Tag: contracts.TagFlat, Warning: "division by zero while checking FLAT FORECAST"}
	}
	if std/mean <= c.cfg.FlatThreshold {
		return Classification{Tag: contracts.TagFlat}
	}

	recent := math.RoundToEven(meanOf(values[len(values)-c.cfg.DeclineRecent:]))
	base := math.RoundToEven(meanOf(values[c.cfg.DeclineBaseStart:c.cfg.DeclineBaseEnd]))
	if base == 0 {
		return Classification{Tag: contracts.TagDeclining, Warning: "division by zero while checking DECLINING FORECAST"}
	}
	if recent/base < c.cfg.DeclineThreshold {
		return Classification{Tag: contracts.TagDeclining}
	}
	return Classification{Tag: contracts.TagNone}
}

func meanOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

// sampleStd n-1 표준편차
func sampleStd(v []float64) float64 {
	if len(v) < 2 {
		return 0
	}
	m := meanOf(v)
	var ss float64
	for _, x := range v {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(v)-1))
}
