package contracts

// JobStatus 원격 리소스 상태
type JobStatus string

const (
	StatusCreatePending    JobStatus = "CREATE_PENDING"
	StatusCreateInProgress JobStatus = "CREATE_IN_PROGRESS"
	StatusActive           JobStatus = "ACTIVE"
	StatusCreateFailed     JobStatus = "CREATE_FAILED"
	StatusDeletePending    JobStatus = "DELETE_PENDING"
	StatusDeleteInProgress JobStatus = "DELETE_IN_PROGRESS"
	StatusUpdatePending    JobStatus = "UPDATE_PENDING"
	StatusUpdateInProgress JobStatus = "UPDATE_IN_PROGRESS"
)

// IsTerminal reports ACTIVE or CREATE_FAILED
func (s JobStatus) IsTerminal() bool {
	return s == StatusActive || s == StatusCreateFailed
}

// ResourceKind 원격 리소스 종류
type ResourceKind string

const (
	KindDatasetGroup      ResourceKind = "dataset_group"
	KindDataset           ResourceKind = "dataset"
	KindDatasetImportJob  ResourceKind = "dataset_import_job"
	KindPredictor         ResourceKind = "predictor"
	KindForecast          ResourceKind = "forecast"
	KindForecastExportJob ResourceKind = "forecast_export_job"
)

// ResourceStatus describe 응답
type ResourceStatus struct {
	ARN     string    `json:"arn"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message,omitempty"`
}
