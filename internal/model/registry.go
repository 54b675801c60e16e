package model

import (
	"fmt"
	"sync"

	"github.com/Zoran-Janjic/truemeter-api/internal/domain"
)

// State is the registry lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// Registry holds the loaded model artifacts and the fraud decision
// threshold. It is constructed empty, loaded once at startup and logically
// immutable afterwards: post-load reads need no synchronization beyond the
// RWMutex guarding the load transition itself.
type Registry struct {
	mu  sync.RWMutex
	cfg domain.ModelsConfig

	regressor  domain.Predictor
	classifier domain.Predictor
	threshold  float64
	state      State
	loadErr    error
}

// NewRegistry creates an unloaded registry. The threshold defaults to the
// configured value until a classification artifact overrides it.
func NewRegistry(cfg domain.ModelsConfig) *Registry {
	threshold := cfg.DefaultThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.5
	}
	return &Registry{
		cfg:       cfg,
		threshold: threshold,
		state:     StateUninitialized,
	}
}

// Load reads both artifacts from disk. On any read or parse failure the
// registry stays not ready and the descriptive error is returned; the
// caller decides whether to keep running degraded or abort. Load never
// leaves the registry half-loaded: both artifacts become visible together.
func (r *Registry) Load() error {
	regressor, err := loadRegressor(r.cfg.RegressorPath)
	if err != nil {
		return r.fail(fmt.Errorf("regression model: %w", err))
	}

	classifier, bundled, err := loadClassifier(r.cfg.ClassifierPath)
	if err != nil {
		return r.fail(fmt.Errorf("classification model: %w", err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.regressor = regressor
	r.classifier = classifier
	if bundled != nil {
		r.threshold = *bundled
	}
	r.state = StateReady
	r.loadErr = nil

	return nil
}

func (r *Registry) fail(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateFailed
	r.loadErr = err
	return err
}

// IsReady reports whether both artifacts are held.
func (r *Registry) IsReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.regressor != nil && r.classifier != nil
}

// State returns the registry lifecycle state.
func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Threshold returns the fraud decision threshold: the configured default
// until a loaded classification artifact overrides it.
func (r *Registry) Threshold() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.threshold
}

// Regressor returns the expected-mileage predictor, or nil before a
// successful load.
func (r *Registry) Regressor() domain.Predictor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.regressor
}

// Classifier returns the fraud-probability predictor, or nil before a
// successful load.
func (r *Registry) Classifier() domain.Predictor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.classifier
}
