package domain

import "errors"

// Sentinel errors shared across the scoring pipeline and the API boundary.
var (
	// ErrNotReady means the model registry does not hold both artifacts.
	// Surfaced as 503; never retried internally.
	ErrNotReady = errors.New("models are not loaded")

	// ErrInvalidInput marks malformed or out-of-range car fields.
	// Rejected at the boundary before the pipeline runs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInference marks a feature/schema mismatch between a built feature
	// row and a model artifact. Deterministic, so not retryable.
	ErrInference = errors.New("inference failed")
)
