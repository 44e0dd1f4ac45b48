package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// statusCmd shows one task or the recent task list
var statusCmd = &cobra.Command{
	Use:   "status [TASK_ID|SYMBOL]",
	Short: "작업 상태 조회",
	Long: `작업 ID 또는 종목 코드로 단일 작업의 상태를 조회합니다.
인자가 없으면 최근 작업 목록을 출력합니다.

Example:
  go run ./cmd/argos status
  go run ./cmd/argos status 9f1c2a...
  go run ./cmd/argos status AAPL`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var statusLimit int

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "목록 조회 시 최대 건수")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	if len(args) == 1 {
		view, err := a.orch.Status(ctx, args[0])
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		fmt.Printf("Task:   %s\n", view.TaskID)
		fmt.Printf("Kind:   %s\n", view.Kind)
		if view.Symbol != "" {
			fmt.Printf("Symbol: %s\n", view.Symbol)
		}
		fmt.Printf("Status: %s (source: %s)\n", view.Status, view.Source)
		if view.Kind != "single" {
			c := view.Counters
			fmt.Printf("Done:   %d/%d (ok %d, failed %d, skipped %d)\n",
				c.Completed+c.Failed+c.Skipped, c.Total, c.Completed, c.Failed, c.Skipped)
		}
		if len(view.Active) > 0 {
			fmt.Printf("Active: %s\n", strings.Join(view.Active, ", "))
		}
		if view.Error != "" {
			fmt.Printf("Error:  %s\n", view.Error)
		}
		return nil
	}

	rows, err := a.taskRepo.ListTasks(ctx, "", statusLimit)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(rows) == 0 {
		fmt.Println("No tasks yet.")
		return nil
	}

	fmt.Printf("%-36s  %-8s  %-10s  %-11s  %s\n", "ID", "KIND", "SYMBOL", "STATUS", "CREATED")
	for _, task := range rows {
		symbol := task.Symbol
		if symbol == "" {
			symbol = "-"
		}
		fmt.Printf("%-36s  %-8s  %-10s  %-11s  %s\n",
			task.ID, task.Kind, symbol, task.Status, task.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
