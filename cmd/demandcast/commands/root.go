package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	pipelineFile string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "demandcast",
	Short: "demandcast - 월별 수요 예측 파이프라인",
	Long: `demandcast Unified CLI

알고리즘별 rolling forecast 라운드를 원격 예측 서비스에서 실행하고,
정확도를 집계한 뒤 챔피언 모델을 선정/보정합니다.

Usage:
  go run ./cmd/demandcast [command]

Examples:
  go run ./cmd/demandcast config check
  go run ./cmd/demandcast forecast run --algorithm ets,npts
  go run ./cmd/demandcast champion run --run-id 20240101
  go run ./cmd/demandcast pipeline run
  go run ./cmd/demandcast scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&pipelineFile, "pipeline", "", "pipeline YAML (default is $PIPELINE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
