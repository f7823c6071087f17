package commands

import (
	"github.com/spf13/cobra"
)

// championCmd represents the champion command
var championCmd = &cobra.Command{
	Use:   "champion",
	Short: "챔피언 모델 선정 및 하이브리드 보정",
	Long: `forecast 결과에 CHAMP_RANK를 매기고, 장기 추세(평탄/하락)가 감지된 챔피언을
하이브리드 예측으로 대체한 최종 테이블을 씁니다.

Example:
  go run ./cmd/demandcast champion run
  go run ./cmd/demandcast champion run --run-id 20240101`,
}

var championRunCmd = &cobra.Command{
	Use:   "run",
	Short: "champion 단계 실행",
	RunE:  runChampion,
}

func init() {
	rootCmd.AddCommand(championCmd)
	championCmd.AddCommand(championRunCmd)
	addRunFlags(championRunCmd)
}

func runChampion(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, runIDFlag, 0)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.stages.Champion(ctx, runIDFlag)
	if err != nil {
		printError(cmd.OutOrStdout(), err.Error())
		return err
	}
	printChampionSummary(cmd.OutOrStdout(), summary)
	printSuccess(cmd.OutOrStdout(), "Champion stage completed")
	return nil
}
