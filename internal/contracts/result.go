package contracts

import "time"

// SymbolResult is one engine verdict for one symbol. Bulk children write
// their results under the parent task id so a run reads as one set.
type SymbolResult struct {
	TaskID       string     `json:"task_id"`
	Symbol       string     `json:"symbol"`
	Decision     Decision   `json:"decision"`
	Confidence   Confidence `json:"confidence"`
	Risk         Risk       `json:"risk"`
	HoldDays     int        `json:"hold_days"`
	Rationale    string     `json:"rationale"`
	Rank         *int       `json:"rank,omitempty"`
	AnalysisDate time.Time  `json:"analysis_date"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TopPick is one row of the summary's best-BUY shortlist
type TopPick struct {
	Symbol     string     `json:"symbol"`
	Rank       int        `json:"rank"`
	Score      int        `json:"score"`
	Confidence Confidence `json:"confidence"`
	Risk       Risk       `json:"risk"`
	HoldDays   int        `json:"hold_days"`
	Rationale  string     `json:"rationale"`
}

// AvoidEntry is one SELL verdict surfaced on the summary's avoid list
type AvoidEntry struct {
	Symbol     string     `json:"symbol"`
	Rank       int        `json:"rank"`
	Confidence Confidence `json:"confidence"`
	Rationale  string     `json:"rationale"`
}

// RecommendationSummary is the per-task digest the ranking engine rebuilds
// after every result lands: decision counts, the top BUY picks, and every
// SELL as an avoid entry.
type RecommendationSummary struct {
	TaskID      string       `json:"task_id"`
	Total       int          `json:"total"`
	BuyCount    int          `json:"buy_count"`
	SellCount   int          `json:"sell_count"`
	HoldCount   int          `json:"hold_count"`
	TopPicks    []TopPick    `json:"top_picks"`
	AvoidList   []AvoidEntry `json:"avoid_list"`
	GeneratedAt time.Time    `json:"generated_at"`
}
