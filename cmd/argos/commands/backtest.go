package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wonny/argos/internal/contracts"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "백테스트 도구",
	Long:  `과거 판정의 사후 수익률을 계산하고 정확도를 점검합니다.`,
}

// backtestRepairCmd re-evaluates stale or degenerate backtest rows
var backtestRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "백테스트 데이터 복구",
	Long: `백테스트 테이블을 전수 점검합니다.

- 고아 행(원본 결과가 없는 행) 제거
- 퇴화 행(수익률 전부 0/NULL) 재평가
- 결과는 있는데 백테스트 행이 없는 작업 보충

Example:
  go run ./cmd/argos backtest repair`,
	RunE: runBacktestRepair,
}

// backtestAccuracyCmd prints the decision accuracy report
var backtestAccuracyCmd = &cobra.Command{
	Use:   "accuracy",
	Short: "판정 정확도 리포트",
	Long: `1주 수익률 기준으로 BUY/SELL/HOLD 판정의 적중률을 출력합니다.

Example:
  go run ./cmd/argos backtest accuracy`,
	RunE: runBacktestAccuracy,
}

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRepairCmd)
	backtestCmd.AddCommand(backtestAccuracyCmd)
}

func runBacktestRepair(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Argos Backtest Repair ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.backtest.Repair(context.Background())
	if err != nil {
		return fmt.Errorf("repair: %w", err)
	}

	fmt.Printf("Examined:    %d\n", report.Examined)
	fmt.Printf("Reevaluated: %d\n", report.Reevaluated)
	fmt.Printf("Purged:      %d\n", report.Purged)
	fmt.Printf("Backfilled:  %d\n", report.Backfilled)
	fmt.Println("✅ Repair complete")
	return nil
}

func runBacktestAccuracy(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Argos Decision Accuracy ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.backtest.Accuracy(context.Background())
	if err != nil {
		return fmt.Errorf("accuracy: %w", err)
	}

	if report.Total == 0 {
		fmt.Println("No evaluated rows yet.")
		return nil
	}

	fmt.Printf("Overall: %.1f%% (%d/%d)\n\n", report.Overall*100, report.Correct, report.Total)

	decisions := make([]string, 0, len(report.ByDecision))
	for d := range report.ByDecision {
		decisions = append(decisions, string(d))
	}
	sort.Strings(decisions)
	for _, d := range decisions {
		acc := report.ByDecision[contracts.Decision(d)]
		fmt.Printf("  %-5s %.1f%% (%d/%d)\n", d, acc.Accuracy*100, acc.Correct, acc.Total)
	}
	return nil
}
