package domain

// RuleConfig defines a custom anomaly rule. Rules are CEL expressions over
// the derived fraud features; a firing rule contributes an extra reason
// string after the built-in explanations. Rules never change the fraud
// score or the suspicious decision.
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression to evaluate
	Expression string `json:"expression"`

	// Outcome bands for score-to-outcome mapping
	Bands []RuleBand `json:"bands"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// RuleBand maps a score range to an outcome.
type RuleBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	SubRuleRef string   `json:"subRuleRef"` // e.g., ".pass", ".flag"
	Reason     string   `json:"reason"`
}

// RuleResult is the output of a rule evaluation.
type RuleResult struct {
	RuleID     string  `json:"ruleId"`
	CheckID    string  `json:"checkId"`
	SubRuleRef string  `json:"subRuleRef"` // ".pass", ".flag", ".err"
	Score      float64 `json:"score"`      // The computed value
	Reason     string  `json:"reason"`
	ProcessMs  int64   `json:"processMs"` // Processing time in milliseconds
}

// Predefined rule outcomes
const (
	RuleOutcomePass  = ".pass"
	RuleOutcomeFlag  = ".flag"
	RuleOutcomeError = ".err"
)
