package champion

import (
	"sort"

	"github.com/wonny/demandcast/internal/contracts"
)

// Rank assigns CHAMP_RANK per item: ascending TEST_MAPE, then TEST_MAD, then method.
// 같은 (item, method)의 모든 월은 같은 rank
func Rank(rows []contracts.ChampionRow) []contracts.ChampionRow {
	type score struct {
		method string
		mape   float64
		mad    float64
	}

	scores := make(map[string]map[string]score)
	for _, r := range rows {
		if scores[r.ItemID] == nil {
			scores[r.ItemID] = make(map[string]score)
		}
		if _, ok := scores[r.ItemID][r.Method]; !ok {
			scores[r.ItemID][r.Method] = score{method: r.Method, mape: r.TestMAPE, mad: r.TestMAD}
		}
	}

	ranks := make(map[string]map[string]int, len(scores))
	for item, byMethod := range scores {
		list := make([]score, 0, len(byMethod))
		for _, s := range byMethod {
			list = append(list, s)
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].mape != list[j].mape {
				return list[i].mape < list[j].mape
			}
			if list[i].mad != list[j].mad {
				return list[i].mad < list[j].mad
			}
			return list[i].method < list[j].method
		})
		ranks[item] = make(map[string]int, len(list))
		for i, s := range list {
			ranks[item][s.method] = i + 1
		}
	}

	out := make([]contracts.ChampionRow, len(rows))
	for i, r := range rows {
		r.ChampRank = ranks[r.ItemID][r.Method]
		out[i] = r
	}
	SortRows(out)
	return out
}

// SortRows orders rows by (item, rank, method, month)
func SortRows(rows []contracts.ChampionRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ItemID != b.ItemID {
			return a.ItemID < b.ItemID
		}
		if a.ChampRank != b.ChampRank {
			return a.ChampRank < b.ChampRank
		}
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		return a.Month.Before(b.Month)
	})
}

// Methods returns the distinct forecast methods in rows
func Methods(rows []contracts.ChampionRow) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		if !seen[r.Method] {
			seen[r.Method] = true
			out = append(out, r.Method)
		}
	}
	sort.Strings(out)
	return out
}

// methodSeries groups one item's rows by method, each sorted by month
func methodSeries(rows []contracts.ChampionRow) map[string][]contracts.ChampionRow {
	out := make(map[string][]contracts.ChampionRow)
	for _, r := range rows {
		out[r.Method] = append(out[r.Method], r)
	}
	for _, s := range out {
		sort.SliceStable(s, func(i, j int) bool { return s[i].Month.Before(s[j].Month) })
	}
	return out
}
