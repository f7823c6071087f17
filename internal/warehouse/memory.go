package warehouse

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonny/demandcast/internal/champion"
	"github.com/wonny/demandcast/internal/contracts"
)

// Memory in-process warehouse for simulate mode and tests
type Memory struct {
	mu       sync.RWMutex
	feed     contracts.Quantile
	runIDs   []string
	baseline []contracts.ForecastRecord
	input    []contracts.ChampionRow
	ranked   []contracts.ChampionRow
	output   map[string][]contracts.ChampionRow
	errors   []contracts.ErrorRecord
	calls    []string
}

// NewMemory creates an empty warehouse; runIDs seeds the processed orders table
func NewMemory(feed contracts.Quantile, runIDs ...string) *Memory {
	return &Memory{
		feed:   feed,
		runIDs: append([]string(nil), runIDs...),
		output: make(map[string][]contracts.ChampionRow),
	}
}

// AddRun appends a processed run id
func (m *Memory) AddRun(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runIDs = append(m.runIDs, runID)
}

func (m *Memory) LatestRunID(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.runIDs) == 0 {
		return "", contracts.ErrNoRunID
	}
	ids := append([]string(nil), m.runIDs...)
	sort.Strings(ids)
	return ids[len(ids)-1], nil
}

// SaveForecasts replaces (run, algorithm) partitions like the SQL repository
func (m *Memory) SaveForecasts(ctx context.Context, records []contracts.ForecastRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	runID := records[0].RunID
	algorithms := distinctAlgorithms(records)
	owned := func(run, method string) bool {
		if run != runID {
			return false
		}
		for _, alg := range algorithms {
			if contracts.MethodOwner(method, alg) {
				return true
			}
		}
		return false
	}

	kept := m.baseline[:0:0]
	for _, r := range m.baseline {
		if !owned(r.RunID, r.Method()) {
			kept = append(kept, r)
		}
	}
	m.baseline = append(kept, records...)

	keptInput := m.input[:0:0]
	for _, r := range m.input {
		if !owned(r.RunID, r.Method) {
			keptInput = append(keptInput, r)
		}
	}
	for _, r := range records {
		if r.Quantile != m.feed {
			continue
		}
		keptInput = append(keptInput, contracts.ChampionRow{
			RunID:    r.RunID,
			ItemID:   r.ItemID,
			Month:    r.Month,
			Method:   r.Method(),
			Value:    float64(r.Value),
			TestMAPE: r.TestMAPE,
			TestMAD:  r.TestMAD,
		})
	}
	m.input = keptInput
	return nil
}

func (m *Memory) LoadChampionInput(ctx context.Context, runID string) ([]contracts.ChampionRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterRun(m.input, runID), nil
}

// CallProcedure emulates the ranking procedure over the champion input table
func (m *Memory) CallProcedure(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, name)
	now := time.Now().UTC()
	// run별로 독립 순위 계산
	var runs []string
	byRun := make(map[string][]contracts.ChampionRow)
	for _, r := range m.input {
		if _, ok := byRun[r.RunID]; !ok {
			runs = append(runs, r.RunID)
		}
		byRun[r.RunID] = append(byRun[r.RunID], r)
	}
	var ranked []contracts.ChampionRow
	for _, run := range runs {
		ranked = append(ranked, champion.Rank(byRun[run])...)
	}
	for i := range ranked {
		ranked[i].UpdatedAt = now
	}
	m.ranked = ranked
	return nil
}

func (m *Memory) LoadRankedForecasts(ctx context.Context, runID string) ([]contracts.ChampionRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := filterRun(m.ranked, runID)
	if len(rows) == 0 && len(m.calls) == 0 {
		return nil, fmt.Errorf("ranked table is empty: procedure not called")
	}
	return rows, nil
}

func (m *Memory) SaveChampionOutput(ctx context.Context, runID string, rows []contracts.ChampionRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.output[runID] = append([]contracts.ChampionRow(nil), rows...)
	return nil
}

// Record implements contracts.ErrorLog
func (m *Memory) Record(ctx context.Context, rec contracts.ErrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, rec)
	return nil
}

// Baseline returns a copy of the baseline table
func (m *Memory) Baseline() []contracts.ForecastRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]contracts.ForecastRecord(nil), m.baseline...)
}

// ChampionOutput returns the stored output of a run
func (m *Memory) ChampionOutput(runID string) []contracts.ChampionRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]contracts.ChampionRow(nil), m.output[runID]...)
}

// Errors returns recorded error rows
func (m *Memory) Errors() []contracts.ErrorRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]contracts.ErrorRecord(nil), m.errors...)
}

// Procedures returns the names of called procedures
func (m *Memory) Procedures() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.calls...)
}

func filterRun(rows []contracts.ChampionRow, runID string) []contracts.ChampionRow {
	var out []contracts.ChampionRow
	for _, r := range rows {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out
}
