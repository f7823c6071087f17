package contracts

import "time"

// TargetPoint 월별 주문량 (target series 한 행)
type TargetPoint struct {
	Timestamp time.Time `json:"timestamp"` // 월 시작일 (UTC)
	ItemID    string    `json:"item_id"`
	Value     float64   `json:"target_value"`
}

// RelatedPoint 미래 주문량 covariate (related series 한 행)
type RelatedPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	ItemID       string    `json:"item_id"`
	FutureOrders float64   `json:"future_orders"`
}

// ItemMeta 품목 메타데이터
type ItemMeta struct {
	ItemID        string `json:"item_id"`
	DemandProfile string `json:"demand_profile"`
	ProductLine   string `json:"product_line"`
	BusinessTeam  string `json:"business_team"`
}

// ExportPoint 예측 export 파일의 한 행 (quantile별 값)
type ExportPoint struct {
	ItemID    string               `json:"item_id"`
	Timestamp time.Time            `json:"date"`
	Values    map[Quantile]float64 `json:"values"`
}

// DatasetType 데이터셋 종류
type DatasetType string

const (
	DatasetTarget       DatasetType = "TARGET_TIME_SERIES"
	DatasetRelated      DatasetType = "RELATED_TIME_SERIES"
	DatasetItemMetadata DatasetType = "ITEM_METADATA"
)

// SchemaAttribute 데이터셋 스키마 컬럼
type SchemaAttribute struct {
	Name string `json:"AttributeName" yaml:"name"`
	Type string `json:"AttributeType" yaml:"type"`
}

// Columns returns the attribute names in order
func Columns(schema []SchemaAttribute) []string {
	cols := make([]string, len(schema))
	for i, a := range schema {
		cols[i] = a.Name
	}
	return cols
}
