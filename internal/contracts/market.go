package contracts

import "time"

// DateOnly truncates a timestamp to its calendar day in UTC.
// Analysis dates, prediction dates and bar dates are all day-granular.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DailyPrice is one trading day's OHLCV bar
type DailyPrice struct {
	Symbol    string    `json:"symbol"`
	TradeDate time.Time `json:"trade_date"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// AnalysisRequest is what the orchestrator hands the engine for one symbol.
// Config is the task's opaque configuration snapshot, passed through as-is.
type AnalysisRequest struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Config []byte    `json:"-"`
}

// AnalysisResult is the engine's raw answer. Decision arrives as free text
// and must pass through SanitizeDecision before anything trusts it.
type AnalysisResult struct {
	Decision   string `json:"decision"`
	Confidence string `json:"confidence"`
	Risk       string `json:"risk"`
	HoldDays   int    `json:"hold_days"`
	Rationale  string `json:"rationale"`
}
