package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Zoran-Janjic/truemeter-api/internal/domain"
	"github.com/Zoran-Janjic/truemeter-api/internal/model"
)

// writeArtifacts produces a deterministic model pair: the regressor always
// predicts 150000 expected km, the classifier's probability depends only on
// the smart ratio.
func writeArtifacts(t *testing.T) domain.ModelsConfig {
	t.Helper()
	dir := t.TempDir()

	regressor := map[string]any{
		"kind":         "linear",
		"intercept":    math.Log(150001.5),
		"coefficients": map[string]float64{"age": 0},
		"features":     []string{"age"},
	}
	classifier := map[string]any{
		"threshold": 0.5,
		"model": map[string]any{
			"kind":         "logistic",
			"intercept":    5.0,
			"coefficients": map[string]float64{"smart_ratio": -10},
			"features":     []string{"smart_ratio"},
		},
	}

	cfg := domain.ModelsConfig{
		RegressorPath:    filepath.Join(dir, "regressor.json"),
		ClassifierPath:   filepath.Join(dir, "classifier.json"),
		DefaultThreshold: 0.5,
	}
	for path, artifact := range map[string]any{
		cfg.RegressorPath:  regressor,
		cfg.ClassifierPath: classifier,
	} {
		data, err := json.Marshal(artifact)
		if err != nil {
			t.Fatalf("failed to marshal artifact: %v", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("failed to write artifact: %v", err)
		}
	}

	return cfg
}

func loadedService(t *testing.T) *Service {
	t.Helper()
	registry := model.NewRegistry(writeArtifacts(t))
	if err := registry.Load(); err != nil {
		t.Fatalf("failed to load models: %v", err)
	}
	return NewService(registry)
}

func TestCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("flags understated mileage with ordered reasons", func(t *testing.T) {
		svc := loadedService(t)
		car := testCar()
		car.ReportedKm = 40000

		outcome, err := svc.Check(ctx, car)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}

		if !outcome.Result.IsSuspicious {
			t.Error("expected suspicious verdict")
		}
		if outcome.Result.ExpectedKm != 150000 {
			t.Errorf("expected km = %d, want 150000", outcome.Result.ExpectedKm)
		}
		if outcome.Result.FraudScore < 50 || outcome.Result.FraudScore > 100 {
			t.Errorf("fraud score = %d, want a high score", outcome.Result.FraudScore)
		}
		if len(outcome.Result.Reasons) != 2 {
			t.Fatalf("expected 2 reasons, got %v", outcome.Result.Reasons)
		}
	})

	t.Run("clean car yields empty reasons", func(t *testing.T) {
		svc := loadedService(t)
		car := testCar()
		car.ReportedKm = 150000

		outcome, err := svc.Check(ctx, car)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}

		if outcome.Result.IsSuspicious {
			t.Error("expected clean verdict")
		}
		if outcome.Result.Reasons == nil || len(outcome.Result.Reasons) != 0 {
			t.Errorf("expected empty reasons slice, got %v", outcome.Result.Reasons)
		}
	})

	t.Run("score is the rounded probability percentage", func(t *testing.T) {
		svc := loadedService(t)
		car := testCar()
		car.ReportedKm = 40000

		outcome, err := svc.Check(ctx, car)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}

		want := int(math.Round(outcome.Probability * 100))
		if outcome.Result.FraudScore != want {
			t.Errorf("fraud score = %d, want %d", outcome.Result.FraudScore, want)
		}
	})

	t.Run("unloaded registry fails fast", func(t *testing.T) {
		registry := model.NewRegistry(domain.ModelsConfig{
			RegressorPath:  "/nonexistent/regressor.json",
			ClassifierPath: "/nonexistent/classifier.json",
		})
		_ = registry.Load()
		svc := NewService(registry)

		if _, err := svc.Check(ctx, testCar()); !errors.Is(err, domain.ErrNotReady) {
			t.Errorf("expected ErrNotReady, got %v", err)
		}
	})

	t.Run("rejects invalid input before the pipeline", func(t *testing.T) {
		svc := loadedService(t)
		car := testCar()
		car.Year = 1850

		if _, err := svc.Check(ctx, car); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("defaults the offer type", func(t *testing.T) {
		svc := loadedService(t)
		car := testCar()
		car.OfferType = ""

		if _, err := svc.Check(ctx, car); err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if car.OfferType != domain.DefaultOfferType {
			t.Errorf("offer type = %q, want %q", car.OfferType, domain.DefaultOfferType)
		}
	})
}
