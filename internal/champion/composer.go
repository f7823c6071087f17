package champion

import (
	"errors"
	"fmt"
	"sort"

	"github.com/wonny/demandcast/internal/contracts"
)

// ErrNoAlternateChampion 대체 챔피언 없음 + 단일 모델 실행
var ErrNoAlternateChampion = errors.New("no alternate champion")

// Outcome 품목별 하이브리드 구성 결과
type Outcome int

const (
	// Success 하이브리드 생성 또는 불필요
	Success Outcome = iota
	// Skip 대체 모델이 없거나 길이가 맞지 않음
	Skip
	// FatalAbort 구조적으로 대체 불가 (런 중단)
	FatalAbort
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Skip:
		return "skip"
	case FatalAbort:
		return "fatal_abort"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result 구성 결과 + 하이브리드 행
type Result struct {
	Outcome   Outcome
	Champion  string
	Alternate string
	Hybrid    []contracts.ChampionRow // rank 0, 없으면 nil
	Reason    string
	Err       error
}

// Composer splices a flagged champion with the best untagged alternative
type Composer struct {
	split int
}

// NewComposer creates a composer; months [0, split) come from the champion
func NewComposer(split int) *Composer {
	return &Composer{split: split}
}

// Compose builds the hybrid for one item's tagged, ranked rows
func (c *Composer) Compose(item string, rows []contracts.ChampionRow, methodsRun int) Result {
	bySeries := methodSeries(rows)

	// RANK() 동점이면 rank 1이 여럿: 메서드명 순으로 결정
	var leaders []string
	for m, s := range bySeries {
		if len(s) > 0 && s[0].ChampRank == 1 {
			leaders = append(leaders, m)
		}
	}
	if len(leaders) == 0 {
		return Result{Outcome: Skip, Reason: "no rank 1 method"}
	}
	sort.Strings(leaders)
	champion := leaders[0]
	champ := bySeries[champion]
	if !champ[0].LongForecast.Flagged() {
		return Result{Outcome: Success, Champion: champion, Reason: "champion not flagged"}
	}

	type candidate struct {
		method string
		rank   int
	}
	var candidates []candidate
	for m, s := range bySeries {
		if m == champion || len(s) == 0 || s[0].LongForecast.Flagged() {
			continue
		}
		candidates = append(candidates, candidate{m, s[0].ChampRank})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].rank != candidates[j].rank {
			return candidates[i].rank < candidates[j].rank
		}
		return candidates[i].method < candidates[j].method
	})

	if len(candidates) == 0 {
		if methodsRun < 2 {
			return Result{
				Outcome:  FatalAbort,
				Champion: champion,
				Err:      fmt.Errorf("item %s with only method %s: %w", item, champion, ErrNoAlternateChampion),
			}
		}
		return Result{Outcome: Skip, Champion: champion, Reason: "no untagged alternative"}
	}

	alternate := candidates[0].method
	if len(champ) <= c.split {
		return Result{
			Outcome:   Skip,
			Champion:  champion,
			Alternate: alternate,
			Reason:    fmt.Sprintf("champion has %d months, split at %d", len(champ), c.split),
		}
	}
	alt := bySeries[alternate]
	if len(alt) < len(champ) {
		return Result{
			Outcome:   Skip,
			Champion:  champion,
			Alternate: alternate,
			Reason:    fmt.Sprintf("alternative has %d months, champion %d", len(alt), len(champ)),
		}
	}

	hybrid := make([]contracts.ChampionRow, len(champ))
	for i, row := range champ {
		if i >= c.split {
			row.Value = alt[i].Value
		}
		row.Method = champion + "-" + alternate
		row.ChampRank = 0
		hybrid[i] = row
	}
	return Result{Outcome: Success, Champion: champion, Alternate: alternate, Hybrid: hybrid}
}
