package pipelineconfig

import (
	"time"

	"github.com/wonny/demandcast/internal/contracts"
)

// Config는 수요 예측 파이프라인 전체 설정
type Config struct {
	Meta       Meta                 `yaml:"meta" json:"meta"`
	Horizon    Horizon              `yaml:"horizon" json:"horizon"`
	Algorithms []Algorithm          `yaml:"algorithms" json:"algorithms"`
	Quantiles  []contracts.Quantile `yaml:"quantiles" json:"quantiles"`
	// FeedQuantile 다음 라운드 학습 입력으로 병합되는 분위수
	FeedQuantile contracts.Quantile `yaml:"feed_quantile" json:"feed_quantile"`
	Polling      Polling            `yaml:"polling" json:"polling"`
	Datasets     Datasets           `yaml:"datasets" json:"datasets"`
	Paths        Paths              `yaml:"paths" json:"paths"`
	Champion     Champion           `yaml:"champion" json:"champion"`
	Tables       Tables             `yaml:"tables" json:"tables"`
	Schedule     Schedule           `yaml:"schedule" json:"schedule"`
}

// Meta 메타 정보
type Meta struct {
	PipelineID    string `yaml:"pipeline_id" json:"pipeline_id"`
	ProjectPrefix string `yaml:"project_prefix" json:"project_prefix"` // AUTO
	Job           string `yaml:"job" json:"job"`                       // 에러 로그의 job 식별자
	Timezone      string `yaml:"timezone" json:"timezone"`
}

// Horizon 라운드 구성
type Horizon struct {
	ForecastHorizon     int `yaml:"forecast_horizon" json:"forecast_horizon"`           // 라운드당 개월 수
	TotalForecastPeriod int `yaml:"total_forecast_period" json:"total_forecast_period"` // 전체 예측 기간
	// AccuracyMonths 정확도 평가 개월 수 (0이면 forecast_horizon)
	AccuracyMonths int `yaml:"accuracy_months" json:"accuracy_months"`
}

// Algorithm 알고리즘별 설정
type Algorithm struct {
	ID               string `yaml:"id" json:"id"`
	ServiceName      string `yaml:"service_name" json:"service_name"` // 비어 있으면 ID에서 유도
	UsesRelated      bool   `yaml:"uses_related" json:"uses_related"`
	UsesItemMetadata bool   `yaml:"uses_item_metadata" json:"uses_item_metadata"`
	PerformHPO       bool   `yaml:"perform_hpo" json:"perform_hpo"`
	MinObservations  int    `yaml:"min_observations" json:"min_observations"` // target/related 각각 최소 행 수
}

// Polling 원격 작업 대기
type Polling struct {
	Interval     time.Duration `yaml:"interval" json:"interval"`           // 10s
	MaxWait      time.Duration `yaml:"max_wait" json:"max_wait"`           // 이 시간 넘게 IN_PROGRESS면 stuck
	StuckBackoff time.Duration `yaml:"stuck_backoff" json:"stuck_backoff"` // 1200s, 1회 재시도 전 대기
}

// Datasets 데이터셋 이름/스키마
type Datasets struct {
	Domain           string                      `yaml:"domain" json:"domain"`
	Frequency        string                      `yaml:"frequency" json:"frequency"`
	TimestampFormat  string                      `yaml:"timestamp_format" json:"timestamp_format"`
	GroupName        string                      `yaml:"group_name" json:"group_name"`
	TargetName       string                      `yaml:"target_name" json:"target_name"`
	RelatedName      string                      `yaml:"related_name" json:"related_name"`
	ItemMetadataName string                      `yaml:"item_metadata_name" json:"item_metadata_name"` // 비어 있으면 사용 안 함
	TargetSchema     []contracts.SchemaAttribute `yaml:"target_schema" json:"target_schema"`
	RelatedSchema    []contracts.SchemaAttribute `yaml:"related_schema" json:"related_schema"`
	ItemSchema       []contracts.SchemaAttribute `yaml:"item_schema" json:"item_schema"`
}

// Paths object store 경로
type Paths struct {
	Source      string `yaml:"source" json:"source"`       // 분석 결과 입력 폴더
	Processed   string `yaml:"processed" json:"processed"` // 라운드별 중간 파일
	Output      string `yaml:"output" json:"output"`       // export 결과
	TargetFile  string `yaml:"target_file" json:"target_file"`
	RelatedFile string `yaml:"related_file" json:"related_file"`
	ItemFile    string `yaml:"item_file" json:"item_file"`
}

// Champion 추세 분류 / 하이브리드 구성
type Champion struct {
	RankMode         string  `yaml:"rank_mode" json:"rank_mode"` // inprocess, procedure
	Procedure        string  `yaml:"procedure" json:"procedure"`
	LowVolumeFloor   float64 `yaml:"low_volume_floor" json:"low_volume_floor"`
	FlatWindow       int     `yaml:"flat_window" json:"flat_window"`
	FlatThreshold    float64 `yaml:"flat_threshold" json:"flat_threshold"`
	DeclineRecent    int     `yaml:"decline_recent" json:"decline_recent"`
	DeclineBaseStart int     `yaml:"decline_base_start" json:"decline_base_start"`
	DeclineBaseEnd   int     `yaml:"decline_base_end" json:"decline_base_end"` // exclusive
	DeclineThreshold float64 `yaml:"decline_threshold" json:"decline_threshold"`
	SplitMonth       int     `yaml:"split_month" json:"split_month"` // 하이브리드: [0,split)은 챔피언
}

// Tables warehouse 테이블 이름
type Tables struct {
	ProcessedOrders string `yaml:"processed_orders" json:"processed_orders"`
	Baseline        string `yaml:"baseline" json:"baseline"`               // 전체 분위수
	ChampionInput   string `yaml:"champion_input" json:"champion_input"`   // P50만
	Ranked          string `yaml:"ranked" json:"ranked"`                   // 프로시저 결과
	ChampionOutput  string `yaml:"champion_output" json:"champion_output"` // 하이브리드 포함 최종
	ErrorLog        string `yaml:"error_log" json:"error_log"`
}

// Schedule cron 표현식 (초 포함)
type Schedule struct {
	Forecast string `yaml:"forecast" json:"forecast"`
	Champion string `yaml:"champion" json:"champion"`
}

// Algorithm looks up an algorithm by id
func (c *Config) Algorithm(id string) (Algorithm, bool) {
	for _, a := range c.Algorithms {
		if a.ID == id {
			return a, true
		}
	}
	return Algorithm{}, false
}

// AlgorithmIDs returns configured algorithm ids in order
func (c *Config) AlgorithmIDs() []string {
	ids := make([]string, len(c.Algorithms))
	for i, a := range c.Algorithms {
		ids[i] = a.ID
	}
	return ids
}

// EvaluationMonths returns how many held-out months feed accuracy
func (c *Config) EvaluationMonths() int {
	if c.Horizon.AccuracyMonths > 0 {
		return c.Horizon.AccuracyMonths
	}
	return c.Horizon.ForecastHorizon
}

// UsesItemMetadata reports whether the algorithm imports item metadata
func (c *Config) UsesItemMetadata(a Algorithm) bool {
	return a.UsesItemMetadata && c.Datasets.ItemMetadataName != "" && c.Paths.ItemFile != ""
}
