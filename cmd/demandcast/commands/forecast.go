package commands

import (
	"github.com/spf13/cobra"
)

var (
	runIDFlag     string
	algorithmFlag string
	parallelFlag  int
)

// forecastCmd represents the forecast command
var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "알고리즘별 rolling forecast 실행",
	Long: `알고리즘별 라운드(backtest + rolling)를 원격 예측 서비스에서 실행합니다.

라운드 1은 정확도 백테스트, 라운드 2부터는 예측 결과를 다음 라운드 입력에 병합합니다.
알고리즘 하나의 실패는 다른 알고리즘을 중단하지 않습니다.

Example:
  go run ./cmd/demandcast forecast run
  go run ./cmd/demandcast forecast run --run-id 20240101 --algorithm ets,cnn_qr`,
}

var forecastRunCmd = &cobra.Command{
	Use:   "run",
	Short: "forecast 단계 실행",
	RunE:  runForecast,
}

func init() {
	rootCmd.AddCommand(forecastCmd)
	forecastCmd.AddCommand(forecastRunCmd)

	addRunFlags(forecastRunCmd)
	forecastRunCmd.Flags().StringVar(&algorithmFlag, "algorithm", "", "comma-separated algorithm subset (default all)")
	forecastRunCmd.Flags().IntVar(&parallelFlag, "parallel", 0, "max concurrent algorithms (default all)")
}

// addRunFlags registers --run-id on a stage command
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runIDFlag, "run-id", "", "run identifier (default latest RUN_TIME_STAMP)")
}

func runForecast(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, runIDFlag, parallelFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.stages.Forecast(ctx, runIDFlag, splitList(algorithmFlag)...)
	if summary != nil {
		printForecastSummary(cmd.OutOrStdout(), summary)
	}
	if err != nil {
		printError(cmd.OutOrStdout(), err.Error())
		return err
	}
	printSuccess(cmd.OutOrStdout(), "Forecast stage completed")
	return nil
}
