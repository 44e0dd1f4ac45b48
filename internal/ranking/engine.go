package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/argos/internal/contracts"
	"github.com/wonny/argos/pkg/logger"
)

// Weight tables. Lower risk scores higher; the hold bonus rewards BUY
// verdicts with a concrete, near-term exit.
var (
	decisionWeights = map[contracts.Decision]int{
		contracts.DecisionBuy:  30,
		contracts.DecisionHold: 15,
		contracts.DecisionSell: 0,
	}

	confidenceWeights = map[contracts.Confidence]int{
		contracts.ConfidenceHigh:   20,
		contracts.ConfidenceMedium: 10,
		contracts.ConfidenceLow:    0,
	}

	riskWeights = map[contracts.Risk]int{
		contracts.RiskLow:    15,
		contracts.RiskMedium: 8,
		contracts.RiskHigh:   0,
	}
)

const (
	maxTopPicks      = 5
	rationaleExcerpt = 200
)

// Engine assigns ranks to a task's results and rebuilds its summary.
// Recompute is always a full rewrite, safe to repeat at any time.
// ⭐ SSOT: 랭킹 점수 계산과 추천 요약 생성은 여기서만
type Engine struct {
	results contracts.ResultRepository
	logger  *logger.Logger
}

// NewEngine creates a ranking engine
func NewEngine(results contracts.ResultRepository, log *logger.Logger) *Engine {
	return &Engine{results: results, logger: log}
}

// Score computes the composite score for one result. Pure and
// deterministic, range 0 to 70. Decision text is sanitized before
// scoring so noisy upstream rows cannot skew a rank.
func Score(res *contracts.SymbolResult) int {
	decision := contracts.SanitizeDecision(string(res.Decision))

	score := decisionWeights[decision]
	score += confidenceWeights[res.Confidence]
	score += riskWeights[res.Risk]
	score += holdBonus(decision, res.HoldDays)

	return score
}

// holdBonus rewards BUY verdicts that state a holding period.
// Shorter stated exits score higher.
func holdBonus(decision contracts.Decision, holdDays int) int {
	if decision != contracts.DecisionBuy || holdDays <= 0 {
		return 0
	}

	switch {
	case holdDays <= 5:
		return 5
	case holdDays <= 10:
		return 4
	case holdDays <= 15:
		return 3
	case holdDays <= 20:
		return 2
	default:
		return 1
	}
}

// Recompute reranks every result of the task and replaces its summary.
// Ordering: descending score, ties broken by ascending symbol.
func (e *Engine) Recompute(ctx context.Context, taskID string) error {
	results, err := e.results.ResultsByTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load results for ranking: %w", err)
	}
	if len(results) == 0 {
		return nil
	}

	ranked := Rank(results)

	if err := e.results.SaveRanks(ctx, taskID, ranked); err != nil {
		return fmt.Errorf("failed to save ranks: %w", err)
	}

	summary := BuildSummary(taskID, ranked)
	if err := e.results.SaveSummary(ctx, summary); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}

	e.logger.WithFields(map[string]interface{}{
		"task_id": taskID,
		"ranked":  len(ranked),
		"buy":     summary.BuyCount,
		"sell":    summary.SellCount,
		"hold":    summary.HoldCount,
	}).Debug("Recomputed ranking")

	return nil
}

// Rank orders results and assigns ranks 1..K in place, returning the
// same slice sorted. Every row gets a rank; the assignment is a gapless
// permutation.
func Rank(results []*contracts.SymbolResult) []*contracts.SymbolResult {
	sort.SliceStable(results, func(i, j int) bool {
		si, sj := Score(results[i]), Score(results[j])
		if si != sj {
			return si > sj
		}
		return results[i].Symbol < results[j].Symbol
	})

	for i, res := range results {
		rank := i + 1
		res.Rank = &rank
	}

	return results
}

// BuildSummary aggregates ranked results into the task's summary:
// decision counts, the first five ranked BUY rows as top picks, and
// every SELL row as an avoid entry, in rank order.
func BuildSummary(taskID string, ranked []*contracts.SymbolResult) *contracts.RecommendationSummary {
	summary := &contracts.RecommendationSummary{
		TaskID:      taskID,
		Total:       len(ranked),
		TopPicks:    make([]contracts.TopPick, 0, maxTopPicks),
		AvoidList:   make([]contracts.AvoidEntry, 0),
		GeneratedAt: time.Now(),
	}

	for _, res := range ranked {
		decision := contracts.SanitizeDecision(string(res.Decision))
		rank := 0
		if res.Rank != nil {
			rank = *res.Rank
		}

		switch decision {
		case contracts.DecisionBuy:
			summary.BuyCount++
			if len(summary.TopPicks) < maxTopPicks {
				summary.TopPicks = append(summary.TopPicks, contracts.TopPick{
					Symbol:     res.Symbol,
					Rank:       rank,
					Score:      Score(res),
					Confidence: res.Confidence,
					Risk:       res.Risk,
					HoldDays:   res.HoldDays,
					Rationale:  excerpt(res.Rationale, rationaleExcerpt),
				})
			}
		case contracts.DecisionSell:
			summary.SellCount++
			summary.AvoidList = append(summary.AvoidList, contracts.AvoidEntry{
				Symbol:     res.Symbol,
				Rank:       rank,
				Confidence: res.Confidence,
				Rationale:  excerpt(res.Rationale, rationaleExcerpt),
			})
		default:
			summary.HoldCount++
		}
	}

	return summary
}

// excerpt truncates rationale text on a rune boundary
func excerpt(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
