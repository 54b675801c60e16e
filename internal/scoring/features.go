// Package scoring implements the fraud check pipeline: expected-mileage
// estimation, feature derivation, fraud classification and explanation
// generation, composed into one all-or-nothing operation per request.
package scoring

import (
	"math"

	"github.com/Zoran-Janjic/truemeter-api/internal/domain"
)

// regressionRow builds the feature row the regression artifact expects.
// Feature names and types must match the artifact schema exactly.
func regressionRow(car *domain.CarRecord, age int) domain.FeatureRow {
	return domain.FeatureRow{
		domain.FeatYear:       float64(car.Year),
		domain.FeatPrice:      float64(car.Price),
		domain.FeatHorsepower: float64(car.Horsepower),
		domain.FeatMake:       car.Make,
		domain.FeatModel:      car.Model,
		domain.FeatFuelType:   car.FuelType,
		domain.FeatGearbox:    car.Gearbox,
		domain.FeatOfferType:  car.OfferType,
		domain.FeatAge:        float64(age),
		domain.FeatAgeSquared: float64(age * age),
	}
}

// BuildFeatures derives the fraud feature tuple from a car record, its
// derived age and the mileage estimate. Pure and deterministic: no error
// conditions over finite inputs.
//
// The ratio denominator is floored at 1 so a zero expected mileage cannot
// divide by zero.
func BuildFeatures(car *domain.CarRecord, age int, est domain.MileageEstimate) domain.FraudFeatures {
	denom := est.ExpectedKm
	if denom < 1 {
		denom = 1
	}

	return domain.FraudFeatures{
		SmartRatio:   float64(car.ReportedKm) / float64(denom),
		Age:          age,
		MarketKmDiff: car.ReportedKm - est.ExpectedKm,
		LogDiff:      math.Log1p(float64(car.ReportedKm)) - est.PredictedLog,
	}
}

// classificationRow builds the feature row the classification artifact
// expects.
func classificationRow(f domain.FraudFeatures) domain.FeatureRow {
	return domain.FeatureRow{
		domain.FeatSmartRatio:   f.SmartRatio,
		domain.FeatAge:          float64(f.Age),
		domain.FeatMarketKmDiff: float64(f.MarketKmDiff),
		domain.FeatLogDiff:      f.LogDiff,
	}
}
