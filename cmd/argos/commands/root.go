package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd is the base command
var rootCmd = &cobra.Command{
	Use:   "argos",
	Short: "Argos - LLM 기반 종목 분석 오케스트레이션 시스템",
	Long: `Argos Unified CLI

외부 분석 엔진(LLM 카운슬)에 종목 분석을 맡기고, 태스크 수명주기와
추천 랭킹, 예측 백테스트를 관리합니다.

Usage:
  go run ./cmd/argos [command]

Examples:
  go run ./cmd/argos api
  go run ./cmd/argos analyze AAPL
  go run ./cmd/argos bulk --symbols AAPL,MSFT,NVDA
  go run ./cmd/argos backtest accuracy
  go run ./cmd/argos scheduler start`,
}

// Execute runs the root command; called once from main
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
