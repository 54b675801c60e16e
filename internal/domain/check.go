package domain

import (
	"time"
)

// MileageEstimate is the output of the expected-mileage regression for one
// car: the kilometer value plus the raw log-space prediction it was derived
// from. The log-space value is carried through so the feature builder can
// compute log_diff without re-running the model.
type MileageEstimate struct {
	ExpectedKm   int     `json:"expectedKm"`
	PredictedLog float64 `json:"predictedLog"`
}

// FraudFeatures is the fixed feature tuple consumed by the fraud classifier.
type FraudFeatures struct {
	SmartRatio   float64 `json:"smartRatio"`   // reported / max(1, expected)
	Age          int     `json:"age"`          // derived vehicle age, >= 1
	MarketKmDiff int     `json:"marketKmDiff"` // reported - expected
	LogDiff      float64 `json:"logDiff"`      // log1p(reported) - predicted log
}

// FraudCheckResult is the terminal output of one scoring operation.
// Immutable once produced; field names match the public API contract.
type FraudCheckResult struct {
	FraudScore   int      `json:"fraud_score"`
	IsSuspicious bool     `json:"is_suspicious"`
	ExpectedKm   int      `json:"expected_km"`
	Reasons      []string `json:"reasons"`
}

// CheckRecord is a persisted fraud check: the input snapshot plus the
// result, as stored in the repository and returned by GET /api/checks/{id}.
type CheckRecord struct {
	ID          string           `json:"id"`
	Fingerprint string           `json:"fingerprint"`
	Car         CarRecord        `json:"car"`
	Result      FraudCheckResult `json:"result"`
	CreatedAt   time.Time        `json:"createdAt"`
}
