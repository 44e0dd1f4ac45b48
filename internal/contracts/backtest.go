package contracts

import "time"

// BacktestRow records how one prediction fared against realized prices.
// Returns are percentages relative to the base price. A nil return means
// the market has not yet produced a close for that horizon.
type BacktestRow struct {
	TaskID         string    `json:"task_id"`
	Symbol         string    `json:"symbol"`
	Decision       string    `json:"decision"`
	HoldDays       int       `json:"hold_days"`
	PredictionDate time.Time `json:"prediction_date"`
	BasePrice      float64   `json:"base_price"`
	Return1D       *float64  `json:"return_1d"`
	Return1W       *float64  `json:"return_1w"`
	Return1M       *float64  `json:"return_1m"`
	ReturnAtHold   *float64  `json:"return_at_hold"`
	Correct        *bool     `json:"prediction_correct"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
}

// PrimaryReturn is the return the prediction is judged on: the return at
// the stated hold exit, or the 1-day return when no hold was stated.
// A stated exit whose bar the market has not produced yet is nil, never
// a substitute horizon.
func (r *BacktestRow) PrimaryReturn() *float64 {
	if r.HoldDays > 0 {
		return r.ReturnAtHold
	}
	return r.Return1D
}

// HoldActive reports whether the holding window is still open at now,
// in which case correctness must stay unset.
func (r *BacktestRow) HoldActive(now time.Time) bool {
	return now.Before(r.PredictionDate.AddDate(0, 0, r.HoldDays))
}

// DecisionAccuracy is one decision's slice of the accuracy report
type DecisionAccuracy struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// AccuracyReport aggregates prediction correctness over every row with a
// usable primary return. An empty data set reports zero, never an error.
type AccuracyReport struct {
	Overall    float64                       `json:"overall"`
	Total      int                           `json:"total"`
	Correct    int                           `json:"correct"`
	ByDecision map[Decision]DecisionAccuracy `json:"by_decision"`
}

// RepairReport summarizes one repair pass over the backtest table
type RepairReport struct {
	Examined    int `json:"examined"`
	Reevaluated int `json:"reevaluated"`
	Purged      int `json:"purged"`
	Backfilled  int `json:"backfilled"`
}
