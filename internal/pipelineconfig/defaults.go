package pipelineconfig

import (
	"strings"
	"time"

	"github.com/wonny/demandcast/internal/contracts"
)

// Default returns the production pipeline settings
func Default() *Config {
	return &Config{
		Meta: Meta{
			PipelineID:    "orders_baseline",
			ProjectPrefix: "AUTO",
			Job:           "demandcast.forecast",
			Timezone:      "America/New_York",
		},
		Horizon: Horizon{
			ForecastHorizon:     3,
			TotalForecastPeriod: 12,
		},
		Algorithms: []Algorithm{
			{ID: "ets"},
			{ID: "arima"},
			{ID: "npts"},
			{ID: "cnn_qr", UsesRelated: true, UsesItemMetadata: true, PerformHPO: true},
			{ID: "prophet", UsesRelated: true},
			{ID: "deep_ar_plus", UsesRelated: true, UsesItemMetadata: true, PerformHPO: true, MinObservations: 300},
		},
		Quantiles:    []contracts.Quantile{0.3, 0.4, 0.5},
		FeedQuantile: 0.5,
		Polling: Polling{
			Interval:     10 * time.Second,
			MaxWait:      4 * time.Hour,
			StuckBackoff: 1200 * time.Second,
		},
		Datasets: Datasets{
			Domain:           "CUSTOM",
			Frequency:        "M",
			TimestampFormat:  "yyyy-MM-dd",
			GroupName:        "datasets",
			TargetName:       "target_data",
			RelatedName:      "related_data",
			ItemMetadataName: "item_meta_data",
			TargetSchema: []contracts.SchemaAttribute{
				{Name: "timestamp", Type: "timestamp"},
				{Name: "target_value", Type: "float"},
				{Name: "item_id", Type: "string"},
			},
			RelatedSchema: []contracts.SchemaAttribute{
				{Name: "timestamp", Type: "timestamp"},
				{Name: "item_id", Type: "string"},
				{Name: "Future_Orders", Type: "float"},
			},
			ItemSchema: []contracts.SchemaAttribute{
				{Name: "item_id", Type: "string"},
				{Name: "Demand_Profile", Type: "string"},
				{Name: "Product_Line", Type: "string"},
				{Name: "Business_Team", Type: "string"},
			},
		},
		Paths: Paths{
			Source:      "Analytical_outputs",
			Processed:   "Intermediate_output",
			Output:      "Forecast_output",
			TargetFile:  "KFS_Orders_Target_Batch.csv",
			RelatedFile: "KFS_Orders_Related_Batch.csv",
			ItemFile:    "KFS_Orders_Itemmeta_Batch.csv",
		},
		Champion: Champion{
			RankMode:         "inprocess",
			Procedure:        "champ_rank",
			LowVolumeFloor:   5,
			FlatWindow:       9,
			FlatThreshold:    0.01,
			DeclineRecent:    6,
			DeclineBaseStart: 3,
			DeclineBaseEnd:   6,
			DeclineThreshold: 0.5,
			SplitMonth:       3,
		},
		Tables: Tables{
			ProcessedOrders: "kfs_processed_orders_target",
			Baseline:        "kfs_orders_baseline_forecast",
			ChampionInput:   "kfs_orders_baseline_forecast2",
			Ranked:          "kfs_orders_baseline_forecast_ranked",
			ChampionOutput:  "kfs_orders_baseline_forecast3",
			ErrorLog:        "kfs_error_log",
		},
		Schedule: Schedule{
			Forecast: "0 0 2 1 * *",
			Champion: "0 0 8 1 * *",
		},
	}
}

// ServiceAlgorithmName maps an algorithm id to the hosted service's algorithm name
func ServiceAlgorithmName(a Algorithm) string {
	if a.ServiceName != "" {
		return a.ServiceName
	}
	name := strings.ReplaceAll(strings.ToUpper(a.ID), "_", "-")
	switch name {
	case "PROPHET":
		return "Prophet"
	case "DEEP-AR-PLUS":
		return "Deep_AR_Plus"
	}
	return name
}
