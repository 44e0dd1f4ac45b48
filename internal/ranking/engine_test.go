package ranking

import (
	"context"
	"strings"
	"testing"

	"github.com/wonny/argos/internal/contracts"
	"github.com/wonny/argos/pkg/logger"
)

func result(symbol string, d contracts.Decision, c contracts.Confidence, r contracts.Risk, holdDays int) *contracts.SymbolResult {
	return &contracts.SymbolResult{
		TaskID:     "task-1",
		Symbol:     symbol,
		Decision:   d,
		Confidence: c,
		Risk:       r,
		HoldDays:   holdDays,
		Rationale:  "rationale for " + symbol,
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		res  *contracts.SymbolResult
		want int
	}{
		{"best possible", result("NVDA", contracts.DecisionBuy, contracts.ConfidenceHigh, contracts.RiskLow, 5), 70},
		{"worst possible", result("TSLA", contracts.DecisionSell, contracts.ConfidenceLow, contracts.RiskHigh, 0), 0},
		{"hold middle ground", result("AAPL", contracts.DecisionHold, contracts.ConfidenceMedium, contracts.RiskMedium, 0), 33},
		{"hold gets no hold bonus", result("AAPL", contracts.DecisionHold, contracts.ConfidenceHigh, contracts.RiskLow, 5), 50},
		{"sell gets no hold bonus", result("TSLA", contracts.DecisionSell, contracts.ConfidenceHigh, contracts.RiskLow, 3), 35},
		{"buy without hold days", result("NVDA", contracts.DecisionBuy, contracts.ConfidenceHigh, contracts.RiskLow, 0), 65},
		{"noisy decision is sanitized", result("NVDA", contracts.Decision("**BUY**"), contracts.ConfidenceHigh, contracts.RiskLow, 5), 70},
		{"unknown confidence scores zero", result("NVDA", contracts.DecisionBuy, contracts.Confidence("EXTREME"), contracts.RiskLow, 5), 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.res); got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHoldBonusTiers(t *testing.T) {
	tests := []struct {
		holdDays int
		want     int
	}{
		{1, 5}, {5, 5}, {6, 4}, {10, 4}, {11, 3}, {15, 3},
		{16, 2}, {20, 2}, {21, 1}, {60, 1}, {0, 0}, {-3, 0},
	}

	for _, tt := range tests {
		if got := holdBonus(contracts.DecisionBuy, tt.holdDays); got != tt.want {
			t.Errorf("holdBonus(BUY, %d) = %d, want %d", tt.holdDays, got, tt.want)
		}
	}
}

func TestRankDeterministic(t *testing.T) {
	build := func() []*contracts.SymbolResult {
		return []*contracts.SymbolResult{
			result("TSLA", contracts.DecisionHold, contracts.ConfidenceLow, contracts.RiskHigh, 0),
			result("NVDA", contracts.DecisionBuy, contracts.ConfidenceHigh, contracts.RiskLow, 5),
			result("AAPL", contracts.DecisionSell, contracts.ConfidenceMedium, contracts.RiskMedium, 0),
			result("AMZN", contracts.DecisionBuy, contracts.ConfidenceMedium, contracts.RiskLow, 12),
		}
	}

	first := Rank(build())

	// Same input in a different arrival order must produce the same ranks
	shuffled := build()
	shuffled[0], shuffled[3] = shuffled[3], shuffled[0]
	shuffled[1], shuffled[2] = shuffled[2], shuffled[1]
	second := Rank(shuffled)

	firstRanks := make(map[string]int)
	for _, res := range first {
		firstRanks[res.Symbol] = *res.Rank
	}
	for _, res := range second {
		if firstRanks[res.Symbol] != *res.Rank {
			t.Errorf("rank for %s differs between runs: %d vs %d", res.Symbol, firstRanks[res.Symbol], *res.Rank)
		}
	}

	// Ranks form a gapless permutation of 1..K
	seen := make(map[int]bool)
	for _, res := range first {
		if res.Rank == nil {
			t.Fatalf("%s has no rank", res.Symbol)
		}
		seen[*res.Rank] = true
	}
	for i := 1; i <= len(first); i++ {
		if !seen[i] {
			t.Errorf("rank %d missing from permutation", i)
		}
	}

	// Highest score first
	if first[0].Symbol != "NVDA" {
		t.Errorf("rank 1 = %s, want NVDA", first[0].Symbol)
	}
}

func TestRankTieBreakAlphabetical(t *testing.T) {
	results := []*contracts.SymbolResult{
		result("TSLA", contracts.DecisionBuy, contracts.ConfidenceHigh, contracts.RiskLow, 5),
		result("AAPL", contracts.DecisionBuy, contracts.ConfidenceHigh, contracts.RiskLow, 5),
		result("NVDA", contracts.DecisionBuy, contracts.ConfidenceHigh, contracts.RiskLow, 5),
	}

	ranked := Rank(results)

	want := []string{"AAPL", "NVDA", "TSLA"}
	for i, symbol := range want {
		if ranked[i].Symbol != symbol {
			t.Errorf("rank %d = %s, want %s", i+1, ranked[i].Symbol, symbol)
		}
	}
}

func TestBuildSummary(t *testing.T) {
	results := []*contracts.SymbolResult{
		result("AAPL", contracts.DecisionBuy, contracts.ConfidenceHigh, contracts.RiskLow, 5),
		result("AMZN", contracts.DecisionBuy, contracts.ConfidenceHigh, contracts.RiskLow, 10),
		result("GOOG", contracts.DecisionBuy, contracts.ConfidenceMedium, contracts.RiskLow, 10),
		result("META", contracts.DecisionBuy, contracts.ConfidenceMedium, contracts.RiskMedium, 0),
		result("MSFT", contracts.DecisionBuy, contracts.ConfidenceLow, contracts.RiskMedium, 0),
		result("NFLX", contracts.DecisionBuy, contracts.ConfidenceLow, contracts.RiskHigh, 0),
		result("INTC", contracts.DecisionHold, contracts.ConfidenceMedium, contracts.RiskMedium, 0),
		result("TSLA", contracts.DecisionSell, contracts.ConfidenceHigh, contracts.RiskHigh, 0),
		result("PLTR", contracts.DecisionSell, contracts.ConfidenceLow, contracts.RiskHigh, 0),
	}

	summary := BuildSummary("task-1", Rank(results))

	if summary.Total != 9 || summary.BuyCount != 6 || summary.SellCount != 2 || summary.HoldCount != 1 {
		t.Errorf("counts = total %d buy %d sell %d hold %d, want 9/6/2/1",
			summary.Total, summary.BuyCount, summary.SellCount, summary.HoldCount)
	}

	// Six BUY rows but the shortlist caps at five
	if len(summary.TopPicks) != 5 {
		t.Fatalf("top picks = %d, want 5", len(summary.TopPicks))
	}
	if summary.TopPicks[0].Symbol != "AAPL" || summary.TopPicks[0].Rank != 1 {
		t.Errorf("first pick = %s rank %d, want AAPL rank 1", summary.TopPicks[0].Symbol, summary.TopPicks[0].Rank)
	}

	// Every SELL appears on the avoid list, in rank order
	if len(summary.AvoidList) != 2 {
		t.Fatalf("avoid list = %d, want 2", len(summary.AvoidList))
	}
	if summary.AvoidList[0].Symbol != "TSLA" || summary.AvoidList[1].Symbol != "PLTR" {
		t.Errorf("avoid list order = %s, %s, want TSLA, PLTR", summary.AvoidList[0].Symbol, summary.AvoidList[1].Symbol)
	}
}

func TestBuildSummaryExcerptsRationale(t *testing.T) {
	res := result("NVDA", contracts.DecisionBuy, contracts.ConfidenceHigh, contracts.RiskLow, 5)
	res.Rationale = strings.Repeat("a", 500)

	summary := BuildSummary("task-1", Rank([]*contracts.SymbolResult{res}))

	if got := len(summary.TopPicks[0].Rationale); got != 200 {
		t.Errorf("rationale excerpt length = %d, want 200", got)
	}
}

// fakeResults covers just the methods Recompute touches
type fakeResults struct {
	contracts.ResultRepository
	rows    []*contracts.SymbolResult
	ranks   map[string]int
	summary *contracts.RecommendationSummary
}

func (f *fakeResults) ResultsByTask(_ context.Context, _ string) ([]*contracts.SymbolResult, error) {
	return f.rows, nil
}

func (f *fakeResults) SaveRanks(_ context.Context, _ string, results []*contracts.SymbolResult) error {
	f.ranks = make(map[string]int)
	for _, res := range results {
		if res.Rank != nil {
			f.ranks[res.Symbol] = *res.Rank
		}
	}
	return nil
}

func (f *fakeResults) SaveSummary(_ context.Context, summary *contracts.RecommendationSummary) error {
	f.summary = summary
	return nil
}

func TestRecompute(t *testing.T) {
	store := &fakeResults{
		rows: []*contracts.SymbolResult{
			result("TSLA", contracts.DecisionSell, contracts.ConfidenceHigh, contracts.RiskHigh, 0),
			result("NVDA", contracts.DecisionBuy, contracts.ConfidenceHigh, contracts.RiskLow, 5),
		},
	}
	engine := NewEngine(store, logger.Nop())

	if err := engine.Recompute(context.Background(), "task-1"); err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	if store.ranks["NVDA"] != 1 || store.ranks["TSLA"] != 2 {
		t.Errorf("ranks = %v, want NVDA 1, TSLA 2", store.ranks)
	}
	if store.summary == nil || len(store.summary.TopPicks) != 1 || store.summary.TopPicks[0].Symbol != "NVDA" {
		t.Errorf("summary top picks = %+v, want exactly NVDA", store.summary)
	}
	if len(store.summary.AvoidList) != 1 || store.summary.AvoidList[0].Symbol != "TSLA" {
		t.Errorf("avoid list = %+v, want exactly TSLA", store.summary.AvoidList)
	}
}

func TestRecomputeEmptyTask(t *testing.T) {
	store := &fakeResults{}
	engine := NewEngine(store, logger.Nop())

	if err := engine.Recompute(context.Background(), "task-1"); err != nil {
		t.Fatalf("Recompute on empty task failed: %v", err)
	}
	if store.summary != nil {
		t.Errorf("summary written for empty task: %+v", store.summary)
	}
}
