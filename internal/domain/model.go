package domain

// FeatureRow is a fixed-schema feature row passed to a model artifact.
// Numeric features carry float64 values, categorical features carry strings.
type FeatureRow map[string]any

// Predictor is the narrow capability interface every model artifact is used
// through: it accepts a feature row matching the artifact's schema and
// returns a single numeric prediction. The pipeline assumes nothing else
// about an artifact's internals.
//
// A regression artifact returns a log-space mileage prediction; a
// classification artifact returns a fraud probability in [0, 1].
type Predictor interface {
	Predict(row FeatureRow) (float64, error)
}

// Feature names of the regression row, in schema order.
const (
	FeatYear       = "year"
	FeatPrice      = "price"
	FeatHorsepower = "horsepower"
	FeatMake       = "make"
	FeatModel      = "model"
	FeatFuelType   = "fuelType"
	FeatGearbox    = "gearbox"
	FeatOfferType  = "offerType"
	FeatAge        = "age"
	FeatAgeSquared = "age_squared"
)

// Feature names of the classification row.
const (
	FeatSmartRatio   = "smart_ratio"
	FeatMarketKmDiff = "market_km_diff"
	FeatLogDiff      = "log_diff"
)
