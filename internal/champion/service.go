package champion

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/internal/errorlog"
	"github.com/wonny/demandcast/internal/metrics"
	"github.com/wonny/demandcast/internal/objectstore"
	"github.com/wonny/demandcast/internal/pipelineconfig"
	"github.com/wonny/demandcast/internal/series"
)

// Summary 챔피언 단계 결과
type Summary struct {
	RunID    string         `json:"run_id"`
	Items    int            `json:"items"`
	Methods  []string       `json:"methods"`
	Exempt   int            `json:"low_volume_exempt"`
	Tags     map[string]int `json:"tags"`
	Hybrids  int            `json:"hybrids"`
	Skipped  int            `json:"skipped"`
	Warnings int            `json:"warnings"`
	Rows     int            `json:"rows"`
}

// Service ranks forecasts, tags trends and writes the final champion table
// ⭐ SSOT: 챔피언 변경 로직은 여기서만
type Service struct {
	cfg        *pipelineconfig.Config
	warehouse  contracts.Warehouse
	store      contracts.ObjectStore
	recorder   *errorlog.Recorder
	metrics    *metrics.Metrics
	classifier *Classifier
	composer   *Composer
	now        func() time.Time
	logger     zerolog.Logger
}

// NewService creates the champion service; m may be nil
func NewService(cfg *pipelineconfig.Config, wh contracts.Warehouse, store contracts.ObjectStore,
	recorder *errorlog.Recorder, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		warehouse:  wh,
		store:      store,
		recorder:   recorder,
		metrics:    m,
		classifier: NewClassifier(cfg.Champion),
		composer:   NewComposer(cfg.Champion.SplitMonth),
		now:        time.Now,
		logger:     logger.With().Str("component", "champion.service").Logger(),
	}
}

// WithClock overrides the update timestamp source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run loads ranked forecasts for runID, applies overrides and persists the result
func (s *Service) Run(ctx context.Context, runID string) (*Summary, error) {
	log := s.logger.With().Str("run_id", runID).Logger()

	rows, err := s.ranked(ctx, runID)
	if err != nil {
		return nil, s.fail(ctx, runID, "load ranked forecasts", err)
	}
	if len(rows) == 0 {
		return nil, s.fail(ctx, runID, "load ranked forecasts", fmt.Errorf("no forecasts for run %s", runID))
	}

	lowVolume, err := s.lowVolumeItems(ctx)
	if err != nil {
		return nil, s.fail(ctx, runID, "read target volumes", err)
	}

	methods := Methods(rows)
	summary := &Summary{RunID: runID, Methods: methods, Tags: make(map[string]int)}

	byItem := make(map[string][]contracts.ChampionRow)
	for _, r := range rows {
		byItem[r.ItemID] = append(byItem[r.ItemID], r)
	}
	items := make([]string, 0, len(byItem))
	for id := range byItem {
		items = append(items, id)
	}
	sort.Strings(items)
	summary.Items = len(items)

	var out []contracts.ChampionRow
	for _, item := range items {
		itemRows := byItem[item]
		if lowVolume[item] {
			summary.Exempt++
			out = append(out, itemRows...)
			continue
		}

		tagged := s.tag(ctx, runID, item, itemRows, summary)

		res := s.composer.Compose(item, tagged, len(methods))
		s.metrics.Champion(res.Outcome.String())
		switch res.Outcome {
		case FatalAbort:
			s.recorder.Record(ctx, contracts.ErrorFatalRun, errorlog.Entry{RunID: runID, Key: item}, res.Err)
			return nil, res.Err
		case Skip:
			summary.Skipped++
			log.Info().Str("item_id", item).Str("champion", res.Champion).Str("reason", res.Reason).Msg("hybrid skipped")
			out = append(out, tagged...)
			continue
		}

		if res.Hybrid == nil {
			out = append(out, tagged...)
			continue
		}

		// 하이브리드 rank 0, 기존 rank +1
		for i := range tagged {
			tagged[i].ChampRank++
		}
		out = append(out, res.Hybrid...)
		out = append(out, tagged...)
		summary.Hybrids++
		log.Info().
			Str("item_id", item).
			Str("champion", res.Champion).
			Str("alternate", res.Alternate).
			Msg("hybrid composed")
	}

	updated := s.now()
	for i := range out {
		out[i].RunID = runID
		out[i].UpdatedAt = updated
		out[i].Value = float64(int64(out[i].Value))
	}
	SortRows(out)
	summary.Rows = len(out)

	if err := s.warehouse.SaveChampionOutput(ctx, runID, out); err != nil {
		return nil, s.fail(ctx, runID, "save champion output", err)
	}

	log.Info().
		Int("items", summary.Items).
		Int("hybrids", summary.Hybrids).
		Int("skipped", summary.Skipped).
		Int("exempt", summary.Exempt).
		Int("rows", summary.Rows).
		Msg("champion alteration completed")
	return summary, nil
}

// ranked returns rows with CHAMP_RANK from the configured source
func (s *Service) ranked(ctx context.Context, runID string) ([]contracts.ChampionRow, error) {
	if s.cfg.Champion.RankMode == "procedure" {
		if err := s.warehouse.CallProcedure(ctx, s.cfg.Champion.Procedure); err != nil {
			return nil, err
		}
		rows, err := s.warehouse.LoadRankedForecasts(ctx, runID)
		if err != nil {
			return nil, err
		}
		SortRows(rows)
		return rows, nil
	}

	rows, err := s.warehouse.LoadChampionInput(ctx, runID)
	if err != nil {
		return nil, err
	}
	return Rank(rows), nil
}

// lowVolumeItems reads the source target file; rounded mean volume <= floor is exempt
func (s *Service) lowVolumeItems(ctx context.Context) (map[string]bool, error) {
	key := objectstore.Join(s.cfg.Paths.Source, s.cfg.Paths.TargetFile)
	data, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	target, err := series.ReadTarget(data)
	if err != nil {
		return nil, err
	}

	out := make(map[string]bool)
	for item, mean := range target.MeanVolumeByItem() {
		if mean <= s.cfg.Champion.LowVolumeFloor {
			out[item] = true
		}
	}
	return out, nil
}

// tag classifies each method series of one item and stamps LONG_FORECAST
func (s *Service) tag(ctx context.Context, runID, item string, rows []contracts.ChampionRow, summary *Summary) []contracts.ChampionRow {
	bySeries := methodSeries(rows)
	tags := make(map[string]contracts.LongForecastTag, len(bySeries))

	methods := make([]string, 0, len(bySeries))
	for m := range bySeries {
		methods = append(methods, m)
	}
	sort.Strings(methods)

	for _, m := range methods {
		values := make([]float64, len(bySeries[m]))
		for i, r := range bySeries[m] {
			values[i] = r.Value
		}
		c := s.classifier.Classify(values)
		tags[m] = c.Tag
		s.metrics.Tag(c.Tag)
		summary.Tags[tagLabel(c.Tag)]++

		if c.Warning != "" {
			summary.Warnings++
			s.recorder.Record(ctx, contracts.ErrorWarning, errorlog.Entry{RunID: runID, Key: item},
				fmt.Errorf("WARNING: %s for %s of forecast method %s", c.Warning, item, m))
		}
	}

	out := make([]contracts.ChampionRow, len(rows))
	for i, r := range rows {
		r.LongForecast = tags[r.Method]
		out[i] = r
	}
	return out
}

func (s *Service) fail(ctx context.Context, runID, stage string, err error) error {
	err = fmt.Errorf("%s: %w", stage, err)
	s.recorder.Record(ctx, contracts.ErrorFatalRun, errorlog.Entry{RunID: runID}, err)
	return err
}

func tagLabel(t contracts.LongForecastTag) string {
	if t == contracts.TagNone {
		return "none"
	}
	return string(t)
}
