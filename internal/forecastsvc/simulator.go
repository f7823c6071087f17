package forecastsvc

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/internal/objectstore"
	"github.com/wonny/demandcast/internal/series"
	"github.com/wonny/demandcast/internal/window"
)

// FaultMode 시뮬레이터 장애 종류
type FaultMode string

const (
	// FaultFail 리소스가 CREATE_FAILED로 끝남
	FaultFail FaultMode = "fail"
	// FaultStuck 리소스가 StuckDescribes 동안 IN_PROGRESS 유지 (0 = 영원히)
	FaultStuck FaultMode = "stuck"
	// FaultBusy create 호출이 ErrResourceInProgress로 거부됨
	FaultBusy FaultMode = "busy"
	// FaultEmptyExport export 파일을 빈 내용으로 씀
	FaultEmptyExport FaultMode = "empty_export"
	// FaultDeleteError delete 호출 실패
	FaultDeleteError FaultMode = "delete_error"
)

// Fault scripted failure matched by kind and resource name substring
type Fault struct {
	Kind           contracts.ResourceKind
	NameContains   string
	Mode           FaultMode
	Times          int // 매칭 횟수, 0이면 1
	StuckDescribes int
}

// Call 시뮬레이터 호출 기록
type Call struct {
	Op   string
	Kind contracts.ResourceKind
	Name string
	ARN  string
}

type simResource struct {
	kind      contracts.ResourceKind
	name      string
	describes int
	failed    bool
	message   string
	stuck     bool
	stuckFor  int
	deleted   bool
}

type simDataset struct {
	typ         contracts.DatasetType
	valueColumn string
	target      series.Target
}

type simPredictor struct {
	groupARN string
	horizon  int
}

// Simulator in-memory forecasting service; exports land in the object store.
// 예측값: 품목별 최근 3개월 평균 × (quantile / 0.5)
type Simulator struct {
	store  contracts.ObjectStore
	settle int
	logger zerolog.Logger

	mu         sync.Mutex
	seq        int
	resources  map[string]*simResource
	groups     map[string][]string
	datasets   map[string]*simDataset
	predictors map[string]simPredictor
	forecasts  map[string]contracts.ForecastSpec
	faults     []*Fault
	calls      []Call
}

// NewSimulator creates a simulator; resources turn terminal after settle describes
func NewSimulator(store contracts.ObjectStore, settle int, logger zerolog.Logger) *Simulator {
	if settle < 1 {
		settle = 1
	}
	return &Simulator{
		store:      store,
		settle:     settle,
		logger:     logger.With().Str("component", "forecastsvc.simulator").Logger(),
		resources:  make(map[string]*simResource),
		groups:     make(map[string][]string),
		datasets:   make(map[string]*simDataset),
		predictors: make(map[string]simPredictor),
		forecasts:  make(map[string]contracts.ForecastSpec),
	}
}

// Inject registers a scripted fault
func (s *Simulator) Inject(f Fault) {
	if f.Times <= 0 {
		f.Times = 1
	}
	s.mu.Lock()
	s.faults = append(s.faults, &f)
	s.mu.Unlock()
}

// Calls returns a copy of the call log
func (s *Simulator) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Live returns the number of resources not yet deleted
func (s *Simulator) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.resources {
		if !r.deleted {
			n++
		}
	}
	return n
}

// CreateDatasetGroup registers an empty group
func (s *Simulator) CreateDatasetGroup(ctx context.Context, spec contracts.DatasetGroupSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	arn, _, err := s.register(contracts.KindDatasetGroup, spec.Name)
	if err != nil {
		return "", err
	}
	s.groups[arn] = nil
	return arn, nil
}

// CreateDataset registers a dataset of the given type
func (s *Simulator) CreateDataset(ctx context.Context, spec contracts.DatasetSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	arn, _, err := s.register(contracts.KindDataset, spec.Name)
	if err != nil {
		return "", err
	}
	ds := &simDataset{typ: spec.Type}
	if n := len(spec.Schema); n > 0 {
		ds.valueColumn = spec.Schema[n-1].Name
	}
	s.datasets[arn] = ds
	return arn, nil
}

// UpdateDatasetGroup attaches datasets to a group
func (s *Simulator) UpdateDatasetGroup(ctx context.Context, groupARN string, datasetARNs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: "update", Kind: contracts.KindDatasetGroup, ARN: groupARN})

	if _, ok := s.groups[groupARN]; !ok {
		return fmt.Errorf("update dataset group %s: %w", groupARN, contracts.ErrResourceNotFound)
	}
	for _, d := range datasetARNs {
		if _, ok := s.datasets[d]; !ok {
			return fmt.Errorf("update dataset group: dataset %s: %w", d, contracts.ErrResourceNotFound)
		}
	}
	s.groups[groupARN] = append([]string(nil), datasetARNs...)
	return nil
}

// CreateDatasetImportJob reads the source file from the object store
func (s *Simulator) CreateDatasetImportJob(ctx context.Context, spec contracts.ImportJobSpec) (string, error) {
	s.mu.Lock()
	ds, ok := s.datasets[spec.DatasetARN]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("create import job: dataset %s: %w", spec.DatasetARN, contracts.ErrResourceNotFound)
	}

	var parseErr error
	_, key, err := objectstore.ParseURI(spec.DataURI)
	if err != nil {
		parseErr = err
	} else if data, err := s.store.Get(ctx, key); err != nil {
		parseErr = err
	} else {
		switch ds.typ {
		case contracts.DatasetTarget:
			t, err := series.ReadTarget(data)
			parseErr = err
			if err == nil {
				s.mu.Lock()
				ds.target = t
				s.mu.Unlock()
			}
		case contracts.DatasetRelated:
			_, parseErr = series.ReadRelated(data, ds.valueColumn)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	arn, res, err := s.register(contracts.KindDatasetImportJob, spec.Name)
	if err != nil {
		return "", err
	}
	if parseErr != nil {
		res.failed = true
		res.message = parseErr.Error()
	}
	return arn, nil
}

// CreatePredictor trains on the group's target dataset
func (s *Simulator) CreatePredictor(ctx context.Context, spec contracts.PredictorSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[spec.DatasetGroupARN]; !ok {
		return "", fmt.Errorf("create predictor: group %s: %w", spec.DatasetGroupARN, contracts.ErrResourceNotFound)
	}
	arn, res, err := s.register(contracts.KindPredictor, spec.Name)
	if err != nil {
		return "", err
	}
	if s.groupTarget(spec.DatasetGroupARN) == nil {
		res.failed = true
		res.message = "dataset group has no target data"
	}
	s.predictors[arn] = simPredictor{groupARN: spec.DatasetGroupARN, horizon: spec.Horizon}
	return arn, nil
}

// CreateForecast registers a forecast for a predictor
func (s *Simulator) CreateForecast(ctx context.Context, spec contracts.ForecastSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.predictors[spec.PredictorARN]; !ok {
		return "", fmt.Errorf("create forecast: predictor %s: %w", spec.PredictorARN, contracts.ErrResourceNotFound)
	}
	arn, _, err := s.register(contracts.KindForecast, spec.Name)
	if err != nil {
		return "", err
	}
	s.forecasts[arn] = spec
	return arn, nil
}

// CreateForecastExportJob writes the forecast file under the destination prefix
func (s *Simulator) CreateForecastExportJob(ctx context.Context, spec contracts.ExportJobSpec) (string, error) {
	s.mu.Lock()
	fc, ok := s.forecasts[spec.ForecastARN]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("create export job: forecast %s: %w", spec.ForecastARN, contracts.ErrResourceNotFound)
	}
	arn, res, err := s.register(contracts.KindForecastExportJob, spec.Name)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	empty := s.matchFault(contracts.KindForecastExportJob, spec.Name, FaultEmptyExport) != nil
	pred := s.predictors[fc.PredictorARN]
	target := s.groupTarget(pred.groupARN)
	s.mu.Unlock()

	var data []byte
	if !empty {
		quantiles, err := parseTypes(fc.Types)
		if err != nil {
			return "", fmt.Errorf("create export job: %w", err)
		}
		data, err = series.WriteExport(predict(target, pred.horizon, quantiles), quantiles)
		if err != nil {
			return "", fmt.Errorf("create export job: %w", err)
		}
	}

	_, prefix, err := objectstore.ParseURI(spec.DestinationURI)
	if err != nil {
		return "", fmt.Errorf("create export job: %w", err)
	}
	key := objectstore.Join(prefix, spec.Name+"_part0.csv")
	if err := s.store.Put(ctx, key, data); err != nil {
		s.mu.Lock()
		res.failed = true
		res.message = err.Error()
		s.mu.Unlock()
	}
	return arn, nil
}

// Describe advances the resource one step towards its terminal state
func (s *Simulator) Describe(ctx context.Context, kind contracts.ResourceKind, arn string) (contracts.ResourceStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.resources[arn]
	if !ok || res.deleted || res.kind != kind {
		return contracts.ResourceStatus{}, fmt.Errorf("describe %s %s: %w", kind, arn, contracts.ErrResourceNotFound)
	}
	res.describes++

	status := contracts.StatusCreateInProgress
	switch {
	case res.stuck && (res.stuckFor == 0 || res.describes <= res.stuckFor):
	case res.describes < s.settle:
	case res.failed:
		status = contracts.StatusCreateFailed
	default:
		status = contracts.StatusActive
	}
	return contracts.ResourceStatus{ARN: arn, Status: status, Message: res.message}, nil
}

// Delete marks a resource deleted
func (s *Simulator) Delete(ctx context.Context, kind contracts.ResourceKind, arn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.resources[arn]
	if !ok || res.deleted {
		return fmt.Errorf("delete %s %s: %w", kind, arn, contracts.ErrResourceNotFound)
	}
	s.calls = append(s.calls, Call{Op: "delete", Kind: kind, Name: res.name, ARN: arn})
	if s.matchFault(kind, res.name, FaultDeleteError) != nil {
		return fmt.Errorf("delete %s %s: simulated failure", kind, arn)
	}
	res.deleted = true
	return nil
}

// register applies create-time faults and stores the resource; caller holds mu
func (s *Simulator) register(kind contracts.ResourceKind, name string) (string, *simResource, error) {
	if s.matchFault(kind, name, FaultBusy) != nil {
		s.calls = append(s.calls, Call{Op: "create_busy", Kind: kind, Name: name})
		return "", nil, fmt.Errorf("create %s %s: %w", kind, name, contracts.ErrResourceInProgress)
	}

	s.seq++
	arn := fmt.Sprintf("arn:sim:%s/%s/%d", kind, name, s.seq)
	res := &simResource{kind: kind, name: name}
	if s.matchFault(kind, name, FaultFail) != nil {
		res.failed = true
		res.message = "simulated failure"
	}
	if f := s.matchFault(kind, name, FaultStuck); f != nil {
		res.stuck = true
		res.stuckFor = f.StuckDescribes
	}
	s.resources[arn] = res
	s.calls = append(s.calls, Call{Op: "create", Kind: kind, Name: name, ARN: arn})

	s.logger.Debug().Str("kind", string(kind)).Str("arn", arn).Bool("failed", res.failed).Msg("resource created")
	return arn, res, nil
}

// matchFault consumes one matching fault; caller holds mu
func (s *Simulator) matchFault(kind contracts.ResourceKind, name string, mode FaultMode) *Fault {
	for _, f := range s.faults {
		if f.Mode != mode || f.Kind != kind || f.Times <= 0 {
			continue
		}
		if f.NameContains != "" && !strings.Contains(name, f.NameContains) {
			continue
		}
		f.Times--
		return f
	}
	return nil
}

// groupTarget returns the group's target series; caller holds mu
func (s *Simulator) groupTarget(groupARN string) series.Target {
	for _, d := range s.groups[groupARN] {
		if ds := s.datasets[d]; ds != nil && ds.typ == contracts.DatasetTarget && len(ds.target) > 0 {
			return ds.target
		}
	}
	return nil
}

func parseTypes(types []string) ([]contracts.Quantile, error) {
	out := make([]contracts.Quantile, 0, len(types))
	for _, t := range types {
		v, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid forecast type %q", t)
		}
		out = append(out, contracts.Quantile(v))
	}
	return out, nil
}

// predict forecasts horizon months past the series end; item ids come back lower-cased
func predict(t series.Target, horizon int, quantiles []contracts.Quantile) []contracts.ExportPoint {
	r, err := t.Range()
	if err != nil {
		return nil
	}
	byItem := t.ByItem()
	var out []contracts.ExportPoint
	for _, id := range t.ItemIDs() {
		rows := byItem[id]
		n := len(rows)
		if n > 3 {
			rows = rows[n-3:]
		}
		var sum float64
		for _, p := range rows {
			sum += p.Value
		}
		mean := sum / float64(len(rows))

		for k := 0; k < horizon; k++ {
			values := make(map[contracts.Quantile]float64, len(quantiles))
			for _, q := range quantiles {
				values[q] = math.Round(mean*float64(q)/0.5*100) / 100
			}
			out = append(out, contracts.ExportPoint{
				ItemID:    strings.ToLower(id),
				Timestamp: window.AddMonths(r.End, k),
				Values:    values,
			})
		}
	}
	return out
}
