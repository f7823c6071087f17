package commands

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/demandcast/internal/scheduler"
	"github.com/wonny/demandcast/pkg/httputil"
)

var statusAddr string

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "실행 중인 스케줄러의 작업 상태 조회",
	Long: `scheduler start로 떠 있는 상태 서버에서 작업 통계를 가져와 출력합니다.

Example:
  go run ./cmd/demandcast status
  go run ./cmd/demandcast status --addr http://scheduler:8090`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "status server address (default http://localhost:$PORT)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	addr := statusAddr
	if addr == "" {
		addr = "http://localhost:" + cfg.Port
	}

	client := httputil.New(log, 5*time.Second).DisableRetry()
	resp, err := client.Get(cmd.Context(), addr+"/api/jobs")
	if err != nil {
		return fmt.Errorf("query scheduler: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = httputil.DecodeJSON(resp, nil)
		return fmt.Errorf("query scheduler: status %d", resp.StatusCode)
	}

	var body struct {
		Jobs []scheduler.JobStats `json:"jobs"`
	}
	if err := httputil.DecodeJSON(resp, &body); err != nil {
		return fmt.Errorf("decode job stats: %w", err)
	}

	printJobStats(cmd.OutOrStdout(), body.Jobs)
	return nil
}

func printJobStats(w io.Writer, stats []scheduler.JobStats) {
	fmt.Fprintln(w, "Job Statistics:")
	for _, st := range stats {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "📊 %s", st.JobName)
		if st.Running {
			fmt.Fprint(w, " (running)")
		}
		fmt.Fprintln(w)
		printKeyValue(w, "Schedule", st.Schedule)
		printKeyValue(w, "Total Runs", fmt.Sprintf("%d", st.TotalRuns))
		printKeyValue(w, "Success", fmt.Sprintf("%d (%.1f%%)", st.SuccessCount, st.SuccessRate*100))
		printKeyValue(w, "Failures", fmt.Sprintf("%d", st.FailureCount))
		if st.NextRun != nil {
			printKeyValue(w, "Next Run", st.NextRun.Format("2006-01-02 15:04:05"))
		}
		if st.LastRun != nil {
			printKeyValue(w, "Last Run", st.LastRun.Format("2006-01-02 15:04:05"))
		}
		if st.LastError != "" {
			printKeyValue(w, "Last Error", st.LastError)
		}
	}
}
