package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Zoran-Janjic/truemeter-api/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func sampleCheck(id string, createdAt time.Time) *domain.CheckRecord {
	car := domain.CarRecord{
		Make:       "Volkswagen",
		Model:      "Golf",
		Year:       2019,
		ReportedKm: 92000,
		FuelType:   "Diesel",
		Gearbox:    "Manual",
		Horsepower: 115,
		Price:      15500,
		OfferType:  "Used",
	}
	return &domain.CheckRecord{
		ID:          id,
		Fingerprint: car.Fingerprint(),
		Car:         car,
		Result: domain.FraudCheckResult{
			FraudScore:   87,
			IsSuspicious: true,
			ExpectedKm:   145000,
			Reasons:      []string{"Reported mileage is only 63% of the expected value for this vehicle (145,000 km)."},
		},
		CreatedAt: createdAt,
	}
}

func TestCheckPersistence(t *testing.T) {
	ctx := context.Background()

	t.Run("save and get round trip", func(t *testing.T) {
		repo := newTestRepo(t)
		check := sampleCheck("check-1", time.Now().UTC())

		if err := repo.SaveCheck(ctx, check); err != nil {
			t.Fatalf("SaveCheck failed: %v", err)
		}

		got, err := repo.GetCheck(ctx, "check-1")
		if err != nil {
			t.Fatalf("GetCheck failed: %v", err)
		}
		if got.Car != check.Car {
			t.Errorf("car = %+v, want %+v", got.Car, check.Car)
		}
		if got.Fingerprint != check.Fingerprint {
			t.Errorf("fingerprint mismatch")
		}
		if got.Result.FraudScore != 87 || !got.Result.IsSuspicious || got.Result.ExpectedKm != 145000 {
			t.Errorf("result = %+v", got.Result)
		}
		if len(got.Result.Reasons) != 1 || got.Result.Reasons[0] != check.Result.Reasons[0] {
			t.Errorf("reasons = %v", got.Result.Reasons)
		}
	})

	t.Run("empty reasons stay an empty slice", func(t *testing.T) {
		repo := newTestRepo(t)
		check := sampleCheck("check-2", time.Now().UTC())
		check.Result.IsSuspicious = false
		check.Result.Reasons = []string{}

		if err := repo.SaveCheck(ctx, check); err != nil {
			t.Fatalf("SaveCheck failed: %v", err)
		}

		got, err := repo.GetCheck(ctx, "check-2")
		if err != nil {
			t.Fatalf("GetCheck failed: %v", err)
		}
		if got.Result.Reasons == nil || len(got.Result.Reasons) != 0 {
			t.Errorf("reasons = %v, want empty slice", got.Result.Reasons)
		}
		if got.Result.IsSuspicious {
			t.Error("expected clean result")
		}
	})

	t.Run("unknown check is not found", func(t *testing.T) {
		repo := newTestRepo(t)

		if _, err := repo.GetCheck(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("missing ID is invalid input", func(t *testing.T) {
		repo := newTestRepo(t)
		check := sampleCheck("", time.Now().UTC())

		if err := repo.SaveCheck(ctx, check); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestCountChecksByFingerprint(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	now := time.Now().UTC()
	first := sampleCheck("check-1", now.Add(-2*time.Hour))
	second := sampleCheck("check-2", now.Add(-10*time.Minute))
	third := sampleCheck("check-3", now)

	for _, check := range []*domain.CheckRecord{first, second, third} {
		if err := repo.SaveCheck(ctx, check); err != nil {
			t.Fatalf("SaveCheck failed: %v", err)
		}
	}

	count, err := repo.CountChecksByFingerprint(ctx, first.Fingerprint, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountChecksByFingerprint failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2 within the window", count)
	}

	count, err = repo.CountChecksByFingerprint(ctx, "other-fingerprint", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountChecksByFingerprint failed: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 for unknown fingerprint", count)
	}
}

func TestRuleConfigPersistence(t *testing.T) {
	ctx := context.Background()

	lower := 1.0
	rule := &domain.RuleConfig{
		ID:          "repeat-checks",
		Name:        "Repeated checks",
		Description: "Same vehicle checked many times",
		Version:     "1.0",
		Expression:  "recheck_count >= 3",
		Bands: []domain.RuleBand{
			{LowerLimit: &lower, SubRuleRef: domain.RuleOutcomeFlag, Reason: "same vehicle checked repeatedly"},
		},
		Enabled: true,
	}

	t.Run("save and get round trip", func(t *testing.T) {
		repo := newTestRepo(t)

		if err := repo.SaveRuleConfig(ctx, rule); err != nil {
			t.Fatalf("SaveRuleConfig failed: %v", err)
		}

		got, err := repo.GetRuleConfig(ctx, "repeat-checks")
		if err != nil {
			t.Fatalf("GetRuleConfig failed: %v", err)
		}
		if got.Expression != rule.Expression || got.Name != rule.Name {
			t.Errorf("rule = %+v", got)
		}
		if len(got.Bands) != 1 || got.Bands[0].SubRuleRef != domain.RuleOutcomeFlag {
			t.Errorf("bands = %+v", got.Bands)
		}
	})

	t.Run("upsert replaces the same version", func(t *testing.T) {
		repo := newTestRepo(t)

		if err := repo.SaveRuleConfig(ctx, rule); err != nil {
			t.Fatalf("SaveRuleConfig failed: %v", err)
		}

		updated := *rule
		updated.Expression = "recheck_count >= 5"
		if err := repo.SaveRuleConfig(ctx, &updated); err != nil {
			t.Fatalf("SaveRuleConfig upsert failed: %v", err)
		}

		got, err := repo.GetRuleConfig(ctx, "repeat-checks")
		if err != nil {
			t.Fatalf("GetRuleConfig failed: %v", err)
		}
		if got.Expression != "recheck_count >= 5" {
			t.Errorf("expression = %q, want the updated one", got.Expression)
		}

		configs, err := repo.ListRuleConfigs(ctx)
		if err != nil {
			t.Fatalf("ListRuleConfigs failed: %v", err)
		}
		if len(configs) != 1 {
			t.Errorf("expected 1 config after upsert, got %d", len(configs))
		}
	})

	t.Run("list excludes disabled rules", func(t *testing.T) {
		repo := newTestRepo(t)

		if err := repo.SaveRuleConfig(ctx, rule); err != nil {
			t.Fatalf("SaveRuleConfig failed: %v", err)
		}

		disabled := *rule
		disabled.ID = "disabled-rule"
		disabled.Enabled = false
		if err := repo.SaveRuleConfig(ctx, &disabled); err != nil {
			t.Fatalf("SaveRuleConfig failed: %v", err)
		}

		configs, err := repo.ListRuleConfigs(ctx)
		if err != nil {
			t.Fatalf("ListRuleConfigs failed: %v", err)
		}
		if len(configs) != 1 || configs[0].ID != "repeat-checks" {
			t.Errorf("configs = %+v, want only the enabled rule", configs)
		}

		if _, err := repo.GetRuleConfig(ctx, "disabled-rule"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for disabled rule, got %v", err)
		}
	})
}
