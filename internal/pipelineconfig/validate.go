package pipelineconfig

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/wonny/demandcast/internal/contracts"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks all required constraints
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.ProjectPrefix == "" {
		return ValidationError{"meta.project_prefix", "required"}
	}

	// === Horizon ===
	if cfg.Horizon.ForecastHorizon <= 0 {
		return ValidationError{"horizon.forecast_horizon", "must be > 0"}
	}
	if cfg.Horizon.TotalForecastPeriod <= 0 {
		return ValidationError{"horizon.total_forecast_period", "must be > 0"}
	}
	if cfg.Horizon.AccuracyMonths < 0 || cfg.Horizon.AccuracyMonths > cfg.Horizon.ForecastHorizon {
		return ValidationError{"horizon.accuracy_months", "must be in [0, forecast_horizon]"}
	}

	// === Algorithms ===
	if len(cfg.Algorithms) == 0 {
		return ValidationError{"algorithms", "at least one algorithm required"}
	}
	seen := make(map[string]bool)
	for i, a := range cfg.Algorithms {
		field := fmt.Sprintf("algorithms[%d]", i)
		if a.ID == "" {
			return ValidationError{field + ".id", "required"}
		}
		if seen[a.ID] {
			return ValidationError{field + ".id", fmt.Sprintf("duplicate algorithm %q", a.ID)}
		}
		seen[a.ID] = true
		if a.MinObservations < 0 {
			return ValidationError{field + ".min_observations", "must be >= 0"}
		}
	}

	// === Quantiles ===
	if len(cfg.Quantiles) == 0 {
		return ValidationError{"quantiles", "at least one quantile required"}
	}
	feedFound := false
	for _, q := range cfg.Quantiles {
		if q <= 0 || q >= 1 {
			return ValidationError{"quantiles", fmt.Sprintf("%s must be in (0,1)", q)}
		}
		if q == cfg.FeedQuantile {
			feedFound = true
		}
	}
	if !feedFound {
		return ValidationError{"feed_quantile", "must be one of quantiles"}
	}

	// === Polling ===
	if cfg.Polling.Interval <= 0 {
		return ValidationError{"polling.interval", "must be > 0"}
	}
	if cfg.Polling.MaxWait < cfg.Polling.Interval {
		return ValidationError{"polling.max_wait", "must be >= interval"}
	}
	if cfg.Polling.StuckBackoff < 0 {
		return ValidationError{"polling.stuck_backoff", "must be >= 0"}
	}

	// === Datasets ===
	if err := validateSchema("datasets.target_schema", cfg.Datasets.TargetSchema,
		[]string{"timestamp", "target_value", "item_id"}); err != nil {
		return err
	}
	if err := validateSchema("datasets.related_schema", cfg.Datasets.RelatedSchema,
		[]string{"timestamp", "item_id", ""}); err != nil {
		return err
	}
	if cfg.Datasets.ItemMetadataName != "" && len(cfg.Datasets.ItemSchema) == 0 {
		return ValidationError{"datasets.item_schema", "required when item_metadata_name is set"}
	}
	for _, a := range cfg.Datasets.ItemSchema {
		if a.Type != "string" {
			return ValidationError{"datasets.item_schema", fmt.Sprintf("%s must be string", a.Name)}
		}
	}

	// === Paths ===
	if cfg.Paths.TargetFile == "" {
		return ValidationError{"paths.target_file", "required"}
	}
	for _, a := range cfg.Algorithms {
		if a.UsesRelated && cfg.Paths.RelatedFile == "" {
			return ValidationError{"paths.related_file", fmt.Sprintf("required by %s", a.ID)}
		}
	}

	// === Champion ===
	if err := validateChampion(cfg.Champion); err != nil {
		return err
	}

	// === Tables ===
	if cfg.Tables.Baseline == "" || cfg.Tables.ChampionInput == "" || cfg.Tables.ChampionOutput == "" {
		return ValidationError{"tables", "baseline, champion_input and champion_output are required"}
	}

	// === Schedule ===
	for field, spec := range map[string]string{
		"schedule.forecast": cfg.Schedule.Forecast,
		"schedule.champion": cfg.Schedule.Champion,
	} {
		if spec == "" {
			continue
		}
		if _, err := cronParser.Parse(spec); err != nil {
			return ValidationError{field, err.Error()}
		}
	}

	return nil
}

func validateChampion(c Champion) error {
	switch c.RankMode {
	case "inprocess":
	case "procedure":
		if c.Procedure == "" {
			return ValidationError{"champion.procedure", "required when rank_mode=procedure"}
		}
	default:
		return ValidationError{"champion.rank_mode", "must be inprocess or procedure"}
	}
	if c.FlatWindow < 2 {
		return ValidationError{"champion.flat_window", "must be >= 2"}
	}
	if c.DeclineRecent <= 0 {
		return ValidationError{"champion.decline_recent", "must be > 0"}
	}
	if c.DeclineBaseStart < 0 || c.DeclineBaseEnd <= c.DeclineBaseStart {
		return ValidationError{"champion.decline_base", "need 0 <= start < end"}
	}
	if c.FlatThreshold < 0 || c.DeclineThreshold <= 0 {
		return ValidationError{"champion", "thresholds must be positive"}
	}
	if c.SplitMonth <= 0 {
		return ValidationError{"champion.split_month", "must be > 0"}
	}
	return nil
}

// validateSchema 컬럼 순서 고정; 빈 문자열은 이름 무관
func validateSchema(field string, schema []contracts.SchemaAttribute, want []string) error {
	if len(schema) != len(want) {
		return ValidationError{field, fmt.Sprintf("expected %d attributes, got %d", len(want), len(schema))}
	}
	for i, name := range want {
		if name != "" && schema[i].Name != name {
			return ValidationError{field, fmt.Sprintf("attribute %d must be %q, got %q", i, name, schema[i].Name)}
		}
	}
	return nil
}
