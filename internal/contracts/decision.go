package contracts

import (
	"regexp"
	"strings"
)

// Decision is the verdict of one analysis run
// ⭐ SSOT: 의사결정 값은 이 세 가지뿐
type Decision string

const (
	DecisionBuy  Decision = "BUY"
	DecisionSell Decision = "SELL"
	DecisionHold Decision = "HOLD"
)

// String returns the decision as stored
func (d Decision) String() string {
	return string(d)
}

// IsValid checks whether the decision is one of the three verdicts
func (d Decision) IsValid() bool {
	return d == DecisionBuy || d == DecisionSell || d == DecisionHold
}

// Confidence is the engine's stated conviction level
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Risk is the engine's stated risk level
type Risk string

const (
	RiskHigh   Risk = "HIGH"
	RiskMedium Risk = "MEDIUM"
	RiskLow    Risk = "LOW"
)

var (
	// Markup the engine likes to wrap verdicts in (markdown emphasis, headers)
	emphasisPattern = regexp.MustCompile("[*_~`#]+")

	buyPattern  = regexp.MustCompile(`(?i)\bBUY\b`)
	sellPattern = regexp.MustCompile(`(?i)\bSELL\b`)
	holdPattern = regexp.MustCompile(`(?i)\bHOLD\b`)
)

// SanitizeDecision maps arbitrary engine output to exactly one verdict.
// Resolution order: exact match, exact match after stripping markup,
// first token, whole-word search in BUY > SELL > HOLD priority, HOLD.
// Total and idempotent: never errors, and a sanitized value maps to itself.
// ⭐ SSOT: 저장되거나 읽히는 모든 decision 텍스트는 이 함수를 거침
func SanitizeDecision(text string) Decision {
	raw := strings.TrimSpace(text)

	if d, ok := exactDecision(raw); ok {
		return d
	}

	stripped := strings.TrimSpace(emphasisPattern.ReplaceAllString(raw, ""))
	if d, ok := exactDecision(stripped); ok {
		return d
	}

	if fields := strings.Fields(stripped); len(fields) > 0 {
		first := strings.Trim(fields[0], ".,:;!?()[]\"'")
		if d, ok := exactDecision(first); ok {
			return d
		}
	}

	// Keyword priority is fixed: BUY wins over a later SELL in the same text
	switch {
	case buyPattern.MatchString(stripped):
		return DecisionBuy
	case sellPattern.MatchString(stripped):
		return DecisionSell
	case holdPattern.MatchString(stripped):
		return DecisionHold
	}

	return DecisionHold
}

func exactDecision(s string) (Decision, bool) {
	switch strings.ToUpper(s) {
	case "BUY":
		return DecisionBuy, true
	case "SELL":
		return DecisionSell, true
	case "HOLD":
		return DecisionHold, true
	}
	return "", false
}
