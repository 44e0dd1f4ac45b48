package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/argos/internal/contracts"
	"github.com/wonny/argos/internal/tasks"
)

// analyzeCmd submits one symbol and waits for its verdict
var analyzeCmd = &cobra.Command{
	Use:   "analyze SYMBOL",
	Short: "단일 종목 분석 실행",
	Long: `한 종목을 분석 엔진에 제출하고 결과를 기다립니다.

엔진 호출은 멀티 에이전트 LLM 토론이므로 수 분이 걸릴 수 있습니다.

Example:
  go run ./cmd/argos analyze AAPL
  go run ./cmd/argos analyze MSFT --date 2026-03-02`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var analyzeDate string

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&analyzeDate, "date", "", "분석 기준일 (YYYY-MM-DD, 기본: 오늘)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	symbol := args[0]
	fmt.Printf("=== Argos Analyze: %s ===\n", symbol)

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	req := tasks.SubmitRequest{Symbol: symbol}
	if analyzeDate != "" {
		date, err := time.Parse("2006-01-02", analyzeDate)
		if err != nil {
			return fmt.Errorf("invalid --date (expected YYYY-MM-DD): %w", err)
		}
		req.Date = date
	}

	ctx := context.Background()
	task, err := a.orch.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("submit analysis: %w", err)
	}

	fmt.Printf("Task %s submitted, waiting for the engine...\n\n", task.ID)

	view, err := waitForTerminal(ctx, a, task.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Status: %s\n", view.Status)
	if view.Error != "" {
		fmt.Printf("Error:  %s\n", view.Error)
		return nil
	}

	results, err := a.taskRepo.ResultsByTask(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("load result: %w", err)
	}
	for _, res := range results {
		fmt.Printf("\n%s: %s (confidence %s, risk %s", res.Symbol, res.Decision, res.Confidence, res.Risk)
		if res.HoldDays > 0 {
			fmt.Printf(", hold %dd", res.HoldDays)
		}
		fmt.Println(")")
		if res.Rationale != "" {
			fmt.Printf("  %s\n", res.Rationale)
		}
	}

	return nil
}

// waitForTerminal polls a task until it leaves the active states
func waitForTerminal(ctx context.Context, a *app, taskID string) (*contracts.StatusView, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		view, err := a.orch.Status(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("poll status: %w", err)
		}
		if view.Status.IsTerminal() {
			return view, nil
		}
		<-ticker.C
	}
}
