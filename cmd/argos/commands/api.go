package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/argos/internal/api"
	"github.com/wonny/argos/internal/api/handlers"
)

// apiCmd starts the HTTP server
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET  /health                          - Health check
  GET  /metrics                         - Prometheus metrics
  POST /api/v1/analyze                  - 단일 종목 분석 제출
  POST /api/v1/analyze/bulk             - 전체 종목 분석 시작
  GET  /api/v1/tasks                    - 최근 태스크 목록
  GET  /api/v1/tasks/{ref}              - 태스크/종목 상태 조회
  POST /api/v1/tasks/{ref}/cancel       - 협조적 취소
  GET  /api/v1/recommendations/{taskId} - 추천 요약
  GET  /api/v1/backtest/accuracy        - 예측 정확도
  GET  /ws/tasks                        - 진행 상황 스트림

Example:
  go run ./cmd/argos api
  go run ./cmd/argos api --port 8090`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT 환경변수)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Argos API Server ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	router := api.NewRouter(api.Handlers{
		Tasks:           handlers.NewTaskHandler(a.orch, a.bulk, a.taskRepo, a.taskRepo, a.schedule, a.log),
		Recommendations: handlers.NewRecommendationHandler(a.taskRepo, a.cache, a.log),
		Backtest:        handlers.NewBacktestHandler(a.backtest, a.btRepo, a.cache, a.log),
		Schedule:        handlers.NewScheduleHandler(a.schedule, a.log),
		Stream:          a.hub.ServeWS,
	}, a.db, a.redis, a.log)

	server := api.New(a.cfg, a.log, router)

	go func() {
		if err := server.Start(); err != nil {
			a.log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	a.log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
