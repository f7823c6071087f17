package commands

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/demandcast/internal/api"
	"github.com/wonny/demandcast/internal/api/handlers"
	"github.com/wonny/demandcast/internal/scheduler"
	"github.com/wonny/demandcast/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `월간 파이프라인 스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 + 상태 서버 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (동기)

Example:
  go run ./cmd/demandcast scheduler start
  go run ./cmd/demandcast scheduler list
  go run ./cmd/demandcast scheduler run forecast_pipeline`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- forecast_pipeline: schedule.forecast (기본 매월 1일 02:00)
- champion_alteration: schedule.champion (기본 매월 1일 08:00)
- processed_cleanup: 매월 15일 04:00 (라운드 중간 파일 정리)

상태 서버: GET /health, GET /api/jobs, POST /api/jobs/{name}/run, GET /metrics
스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// newScheduler registers pipeline jobs on a scheduler in the pipeline timezone
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	loc, err := time.LoadLocation(a.pipeline.Meta.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", a.pipeline.Meta.Timezone, err)
	}

	sched := scheduler.New(loc, a.log.Zerolog())
	for _, job := range []scheduler.Job{
		jobs.NewForecastJob(a.stages, a.pipeline.Schedule.Forecast, "", a.log),
		jobs.NewChampionJob(a.stages, a.pipeline.Schedule.Champion, "", a.log),
		jobs.NewProcessedCleanupJob(a.store, a.pipeline.Paths.Processed, a.log),
	} {
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "=== demandcast Scheduler ===")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, "", 0)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	printSuccess(w, "Scheduler started")
	for _, name := range sched.Jobs() {
		fmt.Fprintf(w, "  - %s\n", name)
	}

	var metricsHandler = a.metrics.Handler()
	if !a.cfg.Metrics.Enabled {
		metricsHandler = nil
	}
	router := api.NewRouter(handlers.NewJobsHandler(sched, a.log), metricsHandler, a.log)
	fmt.Fprintf(w, "Status server on :%s (Ctrl+C to stop)\n", a.cfg.Port)

	// ctx 취소 시 서버 종료 후 스케줄러 정지
	return api.New(a.cfg.Port, router, a.log).ListenAndRun(ctx)
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), "", 0)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	stats := sched.Stats()
	rows := make([][]string, 0, len(stats))
	for _, name := range sched.Jobs() {
		rows = append(rows, []string{name, stats[name].Schedule})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Registered jobs:")
	printTable(w, []string{"JOB", "SCHEDULE"}, []int{22, 16}, rows)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Running job: %s\n", jobName)

	a, err := newApp(cmd.Context(), "", 0)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	result, err := sched.RunNow(cmd.Context(), jobName)
	printKeyValue(w, "Execution", result.ExecutionID)
	printKeyValue(w, "Duration", result.Duration.Round(time.Millisecond).String())
	if err != nil {
		printError(w, err.Error())
		return fmt.Errorf("run job: %w", err)
	}
	printSuccess(w, "Job completed")
	return nil
}
