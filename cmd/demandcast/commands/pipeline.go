package commands

import (
	"github.com/spf13/cobra"
)

// pipelineCmd represents the pipeline command
var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "forecast → champion 전체 실행",
	Long: `forecast 단계와 champion 단계를 순서대로 실행합니다.
forecast 단계가 실패하면 champion 단계는 실행하지 않습니다.

Example:
  go run ./cmd/demandcast pipeline run
  FORECAST_MODE=simulate go run ./cmd/demandcast pipeline run`,
}

var pipelineRunCmd = &cobra.Command{
	Use:   "run",
	Short: "전체 파이프라인 실행",
	RunE:  runPipeline,
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
	pipelineCmd.AddCommand(pipelineRunCmd)

	addRunFlags(pipelineRunCmd)
	pipelineRunCmd.Flags().StringVar(&algorithmFlag, "algorithm", "", "comma-separated algorithm subset (default all)")
	pipelineRunCmd.Flags().IntVar(&parallelFlag, "parallel", 0, "max concurrent algorithms (default all)")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, runIDFlag, parallelFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.stages.Pipeline(ctx, runIDFlag, splitList(algorithmFlag)...)
	w := cmd.OutOrStdout()
	if out != nil && out.Forecast != nil {
		printForecastSummary(w, out.Forecast)
	}
	if out != nil && out.Champion != nil {
		printChampionSummary(w, out.Champion)
	}
	if err != nil {
		printError(w, err.Error())
		return err
	}
	printSuccess(w, "Pipeline completed for run "+out.RunID)
	return nil
}
