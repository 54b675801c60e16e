package scoring

import (
	"fmt"
	"math"

	"github.com/Zoran-Janjic/truemeter-api/internal/domain"
)

// Verdict is the raw classifier output for one check: the fraud probability,
// its 0-100 score projection and the threshold decision.
type Verdict struct {
	Probability float64
	Score       int
	Suspicious  bool
}

// Scorer turns derived fraud features into a verdict using the
// classification artifact and a fixed decision threshold.
type Scorer struct {
	classifier domain.Predictor
	threshold  float64
}

// NewScorer wraps a classification predictor with its decision threshold.
func NewScorer(classifier domain.Predictor, threshold float64) *Scorer {
	return &Scorer{classifier: classifier, threshold: threshold}
}

// Score classifies the feature tuple. The probability is clamped to [0, 1]
// before projection so the score always lands in [0, 100]. A probability
// exactly at the threshold counts as suspicious.
func (s *Scorer) Score(features domain.FraudFeatures) (Verdict, error) {
	prob, err := s.classifier.Predict(classificationRow(features))
	if err != nil {
		return Verdict{}, fmt.Errorf("fraud classification: %w", err)
	}

	if prob < 0 {
		prob = 0
	}
	if prob > 1 {
		prob = 1
	}

	return Verdict{
		Probability: prob,
		Score:       int(math.Round(prob * 100)),
		Suspicious:  prob >= s.threshold,
	}, nil
}
