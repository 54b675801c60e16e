// Package model owns the loaded model artifacts and the fraud decision
// threshold. Artifacts are JSON coefficient files produced by the training
// pipeline; at runtime they are read-only and used only through the
// domain.Predictor interface.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/Zoran-Janjic/truemeter-api/internal/domain"
)

// defaultCategory is the fallback weight key for category levels the
// training data never saw.
const defaultCategory = "__default__"

// Artifact kinds accepted by the loaders.
const (
	kindLinear   = "linear"
	kindLogistic = "logistic"
)

// LinearModel is a linear model over a fixed feature schema: numeric
// features contribute coefficient*value, categorical features contribute a
// per-level weight. The regression artifact predicts log-space mileage.
type LinearModel struct {
	Kind         string                        `json:"kind"`
	Target       string                        `json:"target,omitempty"`
	Intercept    float64                       `json:"intercept"`
	Coefficients map[string]float64            `json:"coefficients"`
	Categories   map[string]map[string]float64 `json:"categories"`
	Features     []string                      `json:"features"`
}

// Predict computes the linear score for a feature row. A row missing a
// schema feature, or carrying the wrong type for one, is a non-retryable
// inference error.
func (m *LinearModel) Predict(row domain.FeatureRow) (float64, error) {
	return m.score(row)
}

func (m *LinearModel) score(row domain.FeatureRow) (float64, error) {
	sum := m.Intercept

	for _, name := range m.Features {
		value, ok := row[name]
		if !ok {
			return 0, fmt.Errorf("%w: feature row is missing %q", domain.ErrInference, name)
		}

		if coef, isNumeric := m.Coefficients[name]; isNumeric {
			f, ok := value.(float64)
			if !ok {
				return 0, fmt.Errorf("%w: feature %q must be numeric, got %T", domain.ErrInference, name, value)
			}
			sum += coef * f
			continue
		}

		if levels, isCategorical := m.Categories[name]; isCategorical {
			s, ok := value.(string)
			if !ok {
				return 0, fmt.Errorf("%w: feature %q must be a string, got %T", domain.ErrInference, name, value)
			}
			weight, ok := levels[s]
			if !ok {
				weight = levels[defaultCategory]
			}
			sum += weight
			continue
		}

		return 0, fmt.Errorf("%w: artifact has no weights for feature %q", domain.ErrInference, name)
	}

	return sum, nil
}

// validate checks that the artifact schema is internally consistent.
func (m *LinearModel) validate(wantKind string) error {
	if m.Kind != wantKind {
		return fmt.Errorf("artifact kind %q, want %q", m.Kind, wantKind)
	}
	if len(m.Features) == 0 {
		return fmt.Errorf("artifact declares no features")
	}
	for _, name := range m.Features {
		_, numeric := m.Coefficients[name]
		_, categorical := m.Categories[name]
		if !numeric && !categorical {
			return fmt.Errorf("feature %q has neither a coefficient nor category weights", name)
		}
	}
	return nil
}

// LogisticModel is a logistic model: the linear score squashed through a
// sigmoid. The classification artifact predicts a fraud probability.
type LogisticModel struct {
	LinearModel
}

// Predict returns the positive-class probability in [0, 1].
func (m *LogisticModel) Predict(row domain.FeatureRow) (float64, error) {
	z, err := m.score(row)
	if err != nil {
		return 0, err
	}
	return 1.0 / (1.0 + math.Exp(-z)), nil
}

// classifierArtifact is the on-disk classification bundle: the model plus
// an optional decision threshold chosen during training.
type classifierArtifact struct {
	Threshold *float64      `json:"threshold,omitempty"`
	Model     LogisticModel `json:"model"`
}

// loadRegressor reads the regression artifact from disk.
func loadRegressor(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read regression artifact: %w", err)
	}

	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse regression artifact %s: %w", path, err)
	}
	if err := m.validate(kindLinear); err != nil {
		return nil, fmt.Errorf("invalid regression artifact %s: %w", path, err)
	}

	return &m, nil
}

// loadClassifier reads the classification bundle from disk and returns the
// model plus the bundled threshold (nil when the artifact carries none).
func loadClassifier(path string) (*LogisticModel, *float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read classification artifact: %w", err)
	}

	var a classifierArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, nil, fmt.Errorf("failed to parse classification artifact %s: %w", path, err)
	}
	if err := a.Model.validate(kindLogistic); err != nil {
		return nil, nil, fmt.Errorf("invalid classification artifact %s: %w", path, err)
	}
	if a.Threshold != nil && (*a.Threshold < 0 || *a.Threshold > 1) {
		return nil, nil, fmt.Errorf("invalid classification artifact %s: threshold %.3f out of [0,1]", path, *a.Threshold)
	}

	return &a.Model, a.Threshold, nil
}
