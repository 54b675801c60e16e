// Package rules provides the CEL-Go based anomaly rule engine. Rules are
// boolean or numeric expressions over the derived fraud features; a rule
// whose score lands in a flag band contributes an extra reason string to
// the check result. Rules never alter the fraud score or the suspicious
// decision.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/Zoran-Janjic/truemeter-api/internal/domain"
)

// Engine is the CEL-based anomaly rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	recheckGetter RecheckGetter
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// RecheckGetter returns how many checks of the same vehicle fingerprint
// were seen inside a time window.
type RecheckGetter func(ctx context.Context, fingerprint string, windowSecs int) (int64, error)

// NewEngine creates a new anomaly rule engine.
func NewEngine(recheckGetter RecheckGetter, maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment exposing the car record and the derived features
	env, err := cel.NewEnv(
		cel.Variable("car", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("smart_ratio", cel.DoubleType),
		cel.Variable("age", cel.IntType),
		cel.Variable("market_km_diff", cel.IntType),
		cel.Variable("log_diff", cel.DoubleType),
		cel.Variable("fraud_probability", cel.DoubleType),
		cel.Variable("fraud_score", cel.IntType),
		cel.Variable("is_suspicious", cel.BoolType),
		cel.Variable("reported_km", cel.IntType),
		cel.Variable("expected_km", cel.IntType),
		cel.Variable("year", cel.IntType),
		cel.Variable("price", cel.IntType),
		cel.Variable("horsepower", cel.IntType),
		cel.Variable("make", cel.StringType),
		cel.Variable("model", cel.StringType),
		cel.Variable("fuel_type", cel.StringType),
		cel.Variable("gearbox", cel.StringType),
		cel.Variable("offer_type", cel.StringType),
		cel.Variable("recheck_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		recheckGetter: recheckGetter,
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateInput holds one completed check for rule evaluation.
type EvaluateInput struct {
	CheckID     string
	Car         *domain.CarRecord
	Features    domain.FraudFeatures
	ExpectedKm  int
	Probability float64
	FraudScore  int
	Suspicious  bool

	// RecheckWindow is the lookback window in seconds for the
	// recheck_count variable. Zero disables the lookup.
	RecheckWindow int
}

// EvaluateAll evaluates all loaded rules in parallel.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.RuleResult, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	// Results and appended reasons follow rule ID order, not map order
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Config.ID < rules[j].Config.ID
	})

	// Count rechecks of the same vehicle if a getter is available
	var recheckCount int64
	if e.recheckGetter != nil && input.RecheckWindow > 0 {
		count, err := e.recheckGetter(ctx, input.Car.Fingerprint(), input.RecheckWindow)
		if err == nil {
			recheckCount = count
		}
	}

	activation := map[string]any{
		"car": map[string]any{
			"make":        input.Car.Make,
			"model":       input.Car.Model,
			"year":        input.Car.Year,
			"reported_km": input.Car.ReportedKm,
			"fuel_type":   input.Car.FuelType,
			"gearbox":     input.Car.Gearbox,
			"horsepower":  input.Car.Horsepower,
			"price":       input.Car.Price,
			"offer_type":  input.Car.OfferType,
		},
		"smart_ratio":       input.Features.SmartRatio,
		"age":               input.Features.Age,
		"market_km_diff":    input.Features.MarketKmDiff,
		"log_diff":          input.Features.LogDiff,
		"fraud_probability": input.Probability,
		"fraud_score":       input.FraudScore,
		"is_suspicious":     input.Suspicious,
		"reported_km":       input.Car.ReportedKm,
		"expected_km":       input.ExpectedKm,
		"year":              input.Car.Year,
		"price":             input.Car.Price,
		"horsepower":        input.Car.Horsepower,
		"make":              input.Car.Make,
		"model":             input.Car.Model,
		"fuel_type":         input.Car.FuelType,
		"gearbox":           input.Car.Gearbox,
		"offer_type":        input.Car.OfferType,
		"recheck_count":     recheckCount,
	}

	// Parallel evaluation using worker pool pattern
	results := make([]domain.RuleResult, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(r, activation, input)
		}(i, rule)
	}

	wg.Wait()

	return results, nil
}

// evaluateRule evaluates a single rule and returns the result.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any, input *EvaluateInput) domain.RuleResult {
	start := time.Now()

	result := domain.RuleResult{
		RuleID:  rule.Config.ID,
		CheckID: input.CheckID,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.SubRuleRef = domain.RuleOutcomeError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	score := toScore(out)
	result.Score = score

	result.SubRuleRef, result.Reason = matchBand(score, rule.Config.Bands)
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the matching band for a score.
// Bands are evaluated in order. Use lower inclusive, upper exclusive,
// except when upper is nil (meaning infinity).
func matchBand(score float64, bands []domain.RuleBand) (string, string) {
	for _, band := range bands {
		lower := 0.0
		hasUpper := band.UpperLimit != nil
		upper := float64(1e9) // effectively infinity

		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if hasUpper {
			upper = *band.UpperLimit
		}

		if score >= lower {
			if !hasUpper || score < upper {
				return band.SubRuleRef, band.Reason
			}
		}
	}

	// Default to pass if no band matches
	return domain.RuleOutcomePass, "no matching band"
}

// FlagReasons collects the reason strings of flagged rule results, in the
// order the results were produced. Error and pass outcomes contribute
// nothing.
func FlagReasons(results []domain.RuleResult) []string {
	var reasons []string
	for _, result := range results {
		if result.SubRuleRef == domain.RuleOutcomeFlag && result.Reason != "" {
			reasons = append(reasons, result.Reason)
		}
	}
	return reasons
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
