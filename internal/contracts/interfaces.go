package contracts

import "context"

// ForecastService hosted forecasting API
// ⭐ SSOT: 원격 예측 서비스 인터페이스
type ForecastService interface {
	CreateDatasetGroup(ctx context.Context, spec DatasetGroupSpec) (string, error)
	CreateDataset(ctx context.Context, spec DatasetSpec) (string, error)
	UpdateDatasetGroup(ctx context.Context, groupARN string, datasetARNs []string) error
	CreateDatasetImportJob(ctx context.Context, spec ImportJobSpec) (string, error)
	CreatePredictor(ctx context.Context, spec PredictorSpec) (string, error)
	CreateForecast(ctx context.Context, spec ForecastSpec) (string, error)
	CreateForecastExportJob(ctx context.Context, spec ExportJobSpec) (string, error)

	Describe(ctx context.Context, kind ResourceKind, arn string) (ResourceStatus, error)
	Delete(ctx context.Context, kind ResourceKind, arn string) error
}

// ObjectStore tabular file storage keyed by path
// ⭐ SSOT: 파일 I/O 인터페이스
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	// URI returns the address the forecasting service uses to reach key
	URI(key string) string
}

// Warehouse SQL store for run ids, forecast output and champion tables
// ⭐ SSOT: warehouse 인터페이스
type Warehouse interface {
	LatestRunID(ctx context.Context) (string, error)
	SaveForecasts(ctx context.Context, records []ForecastRecord) error
	LoadChampionInput(ctx context.Context, runID string) ([]ChampionRow, error)
	CallProcedure(ctx context.Context, name string) error
	LoadRankedForecasts(ctx context.Context, runID string) ([]ChampionRow, error)
	SaveChampionOutput(ctx context.Context, runID string, rows []ChampionRow) error
}

// ErrorLog central error record sink
type ErrorLog interface {
	Record(ctx context.Context, rec ErrorRecord) error
}

// Notifier fire-and-forget alert channel
type Notifier interface {
	Publish(ctx context.Context, subject, message string) error
}

// DatasetGroupSpec dataset group 생성 요청
type DatasetGroupSpec struct {
	Name   string `json:"DatasetGroupName"`
	Domain string `json:"Domain"`
}

// DatasetSpec dataset 생성 요청
type DatasetSpec struct {
	Name      string            `json:"DatasetName"`
	Domain    string            `json:"Domain"`
	Type      DatasetType       `json:"DatasetType"`
	Frequency string            `json:"DataFrequency,omitempty"`
	Schema    []SchemaAttribute `json:"Attributes"`
}

// ImportJobSpec dataset import job 생성 요청
type ImportJobSpec struct {
	Name            string `json:"DatasetImportJobName"`
	DatasetARN      string `json:"DatasetArn"`
	DataURI         string `json:"DataSource"`
	TimestampFormat string `json:"TimestampFormat"`
}

// PredictorSpec predictor 생성 요청
type PredictorSpec struct {
	Name            string `json:"PredictorName"`
	Algorithm       string `json:"AlgorithmName"`
	Horizon         int    `json:"ForecastHorizon"`
	PerformHPO      bool   `json:"PerformHPO"`
	DatasetGroupARN string `json:"DatasetGroupArn"`
	Frequency       string `json:"ForecastFrequency"`
}

// ForecastSpec forecast 생성 요청
type ForecastSpec struct {
	Name         string   `json:"ForecastName"`
	PredictorARN string   `json:"PredictorArn"`
	Types        []string `json:"ForecastTypes"`
}

// ExportJobSpec forecast export job 생성 요청
type ExportJobSpec struct {
	Name           string `json:"ForecastExportJobName"`
	ForecastARN    string `json:"ForecastArn"`
	DestinationURI string `json:"Destination"`
}
