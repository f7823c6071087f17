package series

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/internal/window"
)

// Target 월별 주문량 시리즈 (item당 월 1행)
type Target []contracts.TargetPoint

// Range returns the [min, last+1) month range of the series
func (t Target) Range() (window.Range, error) {
	if len(t) == 0 {
		return window.Range{}, fmt.Errorf("empty target series")
	}
	first, last := t[0].Timestamp, t[0].Timestamp
	for _, p := range t[1:] {
		if p.Timestamp.Before(first) {
			first = p.Timestamp
		}
		if p.Timestamp.After(last) {
			last = p.Timestamp
		}
	}
	return window.NewRange(first, last), nil
}

// Slice returns the rows whose month falls inside w, sorted
func (t Target) Slice(w window.Window) Target {
	out := make(Target, 0, len(t))
	for _, p := range t {
		if w.Contains(p.Timestamp) {
			out = append(out, p)
		}
	}
	return out.Sorted()
}

// Sorted returns a copy ordered by (timestamp, item_id)
func (t Target) Sorted() Target {
	out := make(Target, len(t))
	copy(out, t)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out
}

// Merge appends points; an existing (item, month) row is overwritten
func (t Target) Merge(points []contracts.TargetPoint) Target {
	type key struct {
		item  string
		month time.Time
	}
	idx := make(map[key]int, len(t))
	out := make(Target, len(t), len(t)+len(points))
	copy(out, t)
	for i, p := range out {
		idx[key{p.ItemID, window.MonthStart(p.Timestamp)}] = i
	}
	for _, p := range points {
		k := key{p.ItemID, window.MonthStart(p.Timestamp)}
		if i, ok := idx[k]; ok {
			out[i] = p
			continue
		}
		idx[k] = len(out)
		out = append(out, p)
	}
	return out.Sorted()
}

// ItemIDs returns distinct item ids in sorted order
func (t Target) ItemIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, p := range t {
		if !seen[p.ItemID] {
			seen[p.ItemID] = true
			ids = append(ids, p.ItemID)
		}
	}
	sort.Strings(ids)
	return ids
}

// ByItem groups rows per item, each group sorted by month
func (t Target) ByItem() map[string]Target {
	groups := make(map[string]Target)
	for _, p := range t.Sorted() {
		groups[p.ItemID] = append(groups[p.ItemID], p)
	}
	return groups
}

// MeanVolumeByItem returns each item's mean monthly volume rounded half to even
func (t Target) MeanVolumeByItem() map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, p := range t {
		sums[p.ItemID] += p.Value
		counts[p.ItemID]++
	}
	means := make(map[string]float64, len(sums))
	for id, s := range sums {
		means[id] = math.RoundToEven(s / float64(counts[id]))
	}
	return means
}

// CaseIndex maps lower-cased item ids back to their original spelling
func (t Target) CaseIndex() map[string]string {
	idx := make(map[string]string)
	for _, p := range t {
		idx[lower(p.ItemID)] = p.ItemID
	}
	return idx
}

// Related covariate 시리즈
type Related []contracts.RelatedPoint

// Slice returns the rows inside w, sorted by (timestamp, item_id)
func (r Related) Slice(w window.Window) Related {
	out := make(Related, 0, len(r))
	for _, p := range r {
		if w.Contains(p.Timestamp) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out
}
