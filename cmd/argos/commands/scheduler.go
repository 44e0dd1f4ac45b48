package commands

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/argos/internal/scheduler"
	"github.com/wonny/argos/internal/scheduler/jobs"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 제어",
	Long:  `자동 분석 스케줄러를 실행하거나 작업 상태를 확인합니다.`,
}

// schedulerStartCmd runs the cron loop in the foreground
var schedulerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "스케줄러 시작",
	Long: `등록된 작업을 cron 루프로 실행합니다.

  daily_analysis  @every 30s (설정 시각 ±1분 창에서 하루 1회 발화)
  backtest_repair 매일 18:30
  maintenance     매시 정각

Example:
  go run ./cmd/argos scheduler start`,
	RunE: runSchedulerStart,
}

// schedulerStatusCmd prints per-job run statistics
var schedulerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "작업 실행 통계",
	RunE:  runSchedulerStatus,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)
}

func buildScheduler(a *app) (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log)

	if err := sched.AddJob(jobs.NewDailyAnalysisJob(a.schedule, a.bulk, a.log)); err != nil {
		return nil, err
	}
	if err := sched.AddJob(jobs.NewBacktestRepairJob(a.backtest, a.log)); err != nil {
		return nil, err
	}
	if err := sched.AddJob(jobs.NewMaintenanceJob(a.prices, a.registry, a.log)); err != nil {
		return nil, err
	}
	return sched, nil
}

func runSchedulerStart(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Argos Scheduler ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := buildScheduler(a)
	if err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}

	sched.Start()
	fmt.Println("✅ Scheduler running. Ctrl+C to stop.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	sched.Stop()
	return nil
}

func runSchedulerStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Argos Scheduler Jobs ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := buildScheduler(a)
	if err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}

	stats := sched.Stats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := stats[name]
		fmt.Printf("  %-16s %-14s runs %d, success %.0f%%", st.JobName, st.Schedule, st.TotalRuns, st.SuccessRate*100)
		if st.LastError != "" {
			fmt.Printf(", last error: %s", st.LastError)
		}
		fmt.Println()
	}
	return nil
}
