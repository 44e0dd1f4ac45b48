package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/argos/internal/tasks"
)

// bulkCmd runs the whole universe through the engine and watches progress
var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "대량 분석 실행",
	Long: `설정된 유니버스(또는 --symbols) 전체를 워커 풀로 분석합니다.

진행 상황은 2초마다 카운터로 표시되며, 모든 종목이 끝나면
추천 요약(Top Picks / Avoid)을 출력합니다.

Example:
  go run ./cmd/argos bulk
  go run ./cmd/argos bulk --symbols AAPL,MSFT,NVDA --workers 5`,
	RunE: runBulk,
}

var (
	bulkSymbols string
	bulkWorkers int
	bulkDate    string
)

func init() {
	rootCmd.AddCommand(bulkCmd)
	bulkCmd.Flags().StringVar(&bulkSymbols, "symbols", "", "쉼표로 구분한 종목 목록 (기본: 스케줄 설정의 유니버스)")
	bulkCmd.Flags().IntVar(&bulkWorkers, "workers", 0, "동시 워커 수 1~5 (기본: 스케줄 설정)")
	bulkCmd.Flags().StringVar(&bulkDate, "date", "", "분석 기준일 (YYYY-MM-DD, 기본: 오늘)")
}

func runBulk(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Argos Bulk Analysis ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	req := tasks.BulkRequest{Workers: bulkWorkers}
	if bulkSymbols != "" {
		req.Symbols = strings.Split(bulkSymbols, ",")
	}
	if bulkDate != "" {
		date, err := time.Parse("2006-01-02", bulkDate)
		if err != nil {
			return fmt.Errorf("invalid --date (expected YYYY-MM-DD): %w", err)
		}
		req.Date = date
	}

	// fall back to the persisted schedule settings for universe and workers
	if len(req.Symbols) == 0 || req.Workers == 0 {
		s, err := a.schedule.Get(ctx)
		if err != nil {
			return fmt.Errorf("load schedule settings: %w", err)
		}
		if s != nil {
			if len(req.Symbols) == 0 {
				req.Symbols = s.Universe
			}
			if req.Workers == 0 {
				req.Workers = s.Workers
			}
		}
	}
	if len(req.Symbols) == 0 {
		return fmt.Errorf("no symbols: pass --symbols or configure the schedule universe")
	}

	parent, err := a.bulk.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("submit bulk: %w", err)
	}

	fmt.Printf("Task %s: %d symbols, %d workers\n\n", parent.ID, len(tasks.NormalizeUniverse(req.Symbols)), tasks.ClampWorkers(req.Workers))

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		view, err := a.orch.Status(ctx, parent.ID)
		if err != nil {
			return fmt.Errorf("poll status: %w", err)
		}
		c := view.Counters
		fmt.Printf("\r[%s] done %d/%d (ok %d, failed %d) | active: %s        ",
			view.Status, c.Completed+c.Failed, c.Total, c.Completed, c.Failed,
			strings.Join(view.Active, ","))
		if view.Status.IsTerminal() {
			fmt.Println()
			break
		}
		<-ticker.C
	}

	summary, err := a.taskRepo.GetSummary(ctx, parent.ID)
	if err != nil {
		return fmt.Errorf("load summary: %w", err)
	}
	if summary == nil {
		fmt.Println("No summary produced.")
		return nil
	}

	fmt.Println("\n✅ Top Picks")
	for _, p := range summary.TopPicks {
		fmt.Printf("  %d. %-8s score %d (confidence %s, risk %s, hold %dd)\n",
			p.Rank, p.Symbol, p.Score, p.Confidence, p.Risk, p.HoldDays)
	}
	if len(summary.AvoidList) > 0 {
		fmt.Println("\n⚠️  Avoid")
		for _, av := range summary.AvoidList {
			fmt.Printf("  %-8s %s\n", av.Symbol, av.Rationale)
		}
	}

	return nil
}
