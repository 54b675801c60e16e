package scoring

import (
	"context"
	"time"

	"github.com/Zoran-Janjic/truemeter-api/internal/domain"
	"github.com/Zoran-Janjic/truemeter-api/internal/model"
)

// CheckOutcome is the full output of one fraud check: the client-facing
// result plus the intermediate values custom anomaly rules evaluate over.
type CheckOutcome struct {
	Result      domain.FraudCheckResult
	Estimate    domain.MileageEstimate
	Features    domain.FraudFeatures
	Probability float64
	Age         int
}

// Service runs the fraud check pipeline end to end. A check either
// completes fully or fails with an error; no partial results are produced.
type Service struct {
	registry *model.Registry
	now      func() time.Time // injectable clock for deterministic tests
}

// NewService creates a scoring service backed by the model registry.
func NewService(registry *model.Registry) *Service {
	return &Service{
		registry: registry,
		now:      time.Now,
	}
}

// Check validates and normalizes the car record, then runs estimation,
// feature derivation, classification and explanation as one unit. Returns
// domain.ErrNotReady without touching the pipeline when the model registry
// never finished loading.
func (s *Service) Check(ctx context.Context, car *domain.CarRecord) (*CheckOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.registry.IsReady() {
		return nil, domain.ErrNotReady
	}

	car.Normalize()
	if err := car.Validate(); err != nil {
		return nil, err
	}

	age := car.Age(s.now())

	estimator := NewEstimator(s.registry.Regressor())
	estimate, err := estimator.Estimate(car, age)
	if err != nil {
		return nil, err
	}

	features := BuildFeatures(car, age, estimate)

	scorer := NewScorer(s.registry.Classifier(), s.registry.Threshold())
	verdict, err := scorer.Score(features)
	if err != nil {
		return nil, err
	}

	return &CheckOutcome{
		Result: domain.FraudCheckResult{
			FraudScore:   verdict.Score,
			IsSuspicious: verdict.Suspicious,
			ExpectedKm:   estimate.ExpectedKm,
			Reasons:      Reasons(features, estimate, verdict.Suspicious),
		},
		Estimate:    estimate,
		Features:    features,
		Probability: verdict.Probability,
		Age:         age,
	}, nil
}
