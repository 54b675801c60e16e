package scoring

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Zoran-Janjic/truemeter-api/internal/domain"
)

// Explanation rule constants.
const (
	// SuspiciousRatioThreshold flags reported mileage below this fraction
	// of the expected value.
	SuspiciousRatioThreshold = 0.70

	// MarketDiffThreshold flags a shortfall of more than 30000 km against
	// comparable market listings.
	MarketDiffThreshold = -30000
)

// ReasonComplexAnomaly is emitted when the classifier flags a car but no
// single explanation rule fires.
const ReasonComplexAnomaly = "Model detected a complex anomaly (combination of price, age and vehicle specification)."

// kmPrinter renders mileage figures with thousands separators.
var kmPrinter = message.NewPrinter(language.English)

// Reasons applies the explanation rules in fixed order and returns the
// human-readable findings. The slice is never nil so an unflagged result
// serializes as an empty array.
func Reasons(features domain.FraudFeatures, est domain.MileageEstimate, suspicious bool) []string {
	reasons := make([]string, 0, 2)

	if features.SmartRatio < SuspiciousRatioThreshold {
		pct := int(math.Round(features.SmartRatio * 100))
		reasons = append(reasons, kmPrinter.Sprintf(
			"Reported mileage is only %d%% of the expected value for this vehicle (%d km).",
			pct, est.ExpectedKm))
	}

	if features.MarketKmDiff < MarketDiffThreshold {
		reasons = append(reasons, kmPrinter.Sprintf(
			"Mileage is %d km below comparable listings on the market.",
			-features.MarketKmDiff))
	}

	if suspicious && len(reasons) == 0 {
		reasons = append(reasons, ReasonComplexAnomaly)
	}

	return reasons
}
