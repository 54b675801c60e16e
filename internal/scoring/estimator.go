package scoring

import (
	"fmt"
	"math"

	"github.com/Zoran-Janjic/truemeter-api/internal/domain"
)

// Estimator predicts the market-expected mileage for a car. The regression
// artifact works in log space; the estimate is inverted with expm1 and
// floored at zero, since raw predictions can go negative for cars far
// outside the training distribution.
type Estimator struct {
	regressor domain.Predictor
}

// NewEstimator wraps a regression predictor.
func NewEstimator(regressor domain.Predictor) *Estimator {
	return &Estimator{regressor: regressor}
}

// Estimate returns the expected mileage for the car at the given age.
func (e *Estimator) Estimate(car *domain.CarRecord, age int) (domain.MileageEstimate, error) {
	predictedLog, err := e.regressor.Predict(regressionRow(car, age))
	if err != nil {
		return domain.MileageEstimate{}, fmt.Errorf("mileage estimation: %w", err)
	}

	expected := int(math.Expm1(predictedLog))
	if expected < 0 {
		expected = 0
	}

	return domain.MileageEstimate{
		ExpectedKm:   expected,
		PredictedLog: predictedLog,
	}, nil
}
