package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/demandcast/internal/pipelineconfig"
	"github.com/wonny/demandcast/internal/window"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "파이프라인 설정 확인",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "pipeline YAML 검증 + 라운드 구성 출력",
	Long: `pipeline YAML을 읽어 검증하고, 해시와 알고리즘별 라운드 구성을 출력합니다.
원격 서비스나 warehouse에는 연결하지 않습니다.

Example:
  go run ./cmd/demandcast config check --pipeline config/pipeline.yaml`,
	RunE: runConfigCheck,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCheckCmd)
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	path := pipelineFile
	if path == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.PipelineFile
	}

	w := cmd.OutOrStdout()
	pc, _, err := pipelineconfig.Load(path)
	if err != nil {
		printError(w, err.Error())
		return err
	}
	hash, err := pipelineconfig.Hash(pc)
	if err != nil {
		return err
	}

	h := pc.Horizon
	printHeader(w, "Pipeline "+pc.Meta.PipelineID)
	printKeyValue(w, "File", path)
	printKeyValue(w, "Hash", hash)
	printKeyValue(w, "Horizon", fmt.Sprintf("%d months x %d rounds (total %d)",
		h.ForecastHorizon, window.RoundCount(h.TotalForecastPeriod, h.ForecastHorizon), h.TotalForecastPeriod))
	printKeyValue(w, "Quantiles", fmt.Sprint(pc.Quantiles))
	printKeyValue(w, "Feed", pc.FeedQuantile.String())
	printKeyValue(w, "Rank mode", pc.Champion.RankMode)
	printKeyValue(w, "Schedule", fmt.Sprintf("forecast %q, champion %q", pc.Schedule.Forecast, pc.Schedule.Champion))
	fmt.Fprintln(w, singleLine)

	rows := make([][]string, 0, len(pc.Algorithms))
	for _, alg := range pc.Algorithms {
		rows = append(rows, []string{
			alg.ID,
			pipelineconfig.ServiceAlgorithmName(alg),
			yesNo(alg.UsesRelated),
			yesNo(pc.UsesItemMetadata(alg)),
			yesNo(alg.PerformHPO),
			fmt.Sprintf("%d", alg.MinObservations),
		})
	}
	printTable(w, []string{"ALGORITHM", "SERVICE", "RELATED", "ITEMS", "HPO", "MIN_OBS"},
		[]int{14, 14, 7, 5, 3, 7}, rows)

	printSuccess(w, "Pipeline config is valid")
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
