package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Zoran-Janjic/truemeter-api/internal/domain"
)

const testRegressorJSON = `{"kind":"linear","intercept":11.5,"coefficients":{"age":0.1},"features":["age"]}`

func writeTestArtifacts(t *testing.T, classifierJSON string) domain.ModelsConfig {
	t.Helper()
	dir := t.TempDir()

	cfg := domain.ModelsConfig{
		RegressorPath:    filepath.Join(dir, "regressor.json"),
		ClassifierPath:   filepath.Join(dir, "classifier.json"),
		DefaultThreshold: 0.5,
	}
	if err := os.WriteFile(cfg.RegressorPath, []byte(testRegressorJSON), 0o644); err != nil {
		t.Fatalf("failed to write regressor: %v", err)
	}
	if err := os.WriteFile(cfg.ClassifierPath, []byte(classifierJSON), 0o644); err != nil {
		t.Fatalf("failed to write classifier: %v", err)
	}
	return cfg
}

func TestRegistryLoad(t *testing.T) {
	t.Run("loads both artifacts", func(t *testing.T) {
		cfg := writeTestArtifacts(t, `{"model":{"kind":"logistic","intercept":0,"coefficients":{"smart_ratio":1},"features":["smart_ratio"]}}`)
		r := NewRegistry(cfg)

		if r.State() != StateUninitialized || r.IsReady() {
			t.Fatal("new registry must start uninitialized and not ready")
		}
		if err := r.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if !r.IsReady() || r.State() != StateReady {
			t.Error("registry must be ready after a successful load")
		}
		if r.Regressor() == nil || r.Classifier() == nil {
			t.Error("loaded registry must expose both predictors")
		}
	})

	t.Run("bundled threshold overrides the default", func(t *testing.T) {
		cfg := writeTestArtifacts(t, `{"threshold":0.35,"model":{"kind":"logistic","intercept":0,"coefficients":{"smart_ratio":1},"features":["smart_ratio"]}}`)
		r := NewRegistry(cfg)

		if err := r.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if r.Threshold() != 0.35 {
			t.Errorf("threshold = %f, want 0.35", r.Threshold())
		}
	})

	t.Run("default threshold survives an unbundled artifact", func(t *testing.T) {
		cfg := writeTestArtifacts(t, `{"model":{"kind":"logistic","intercept":0,"coefficients":{"smart_ratio":1},"features":["smart_ratio"]}}`)
		r := NewRegistry(cfg)

		if err := r.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if r.Threshold() != 0.5 {
			t.Errorf("threshold = %f, want 0.5", r.Threshold())
		}
	})

	t.Run("missing artifact leaves the registry degraded", func(t *testing.T) {
		r := NewRegistry(domain.ModelsConfig{
			RegressorPath:    "/nonexistent/regressor.json",
			ClassifierPath:   "/nonexistent/classifier.json",
			DefaultThreshold: 0.5,
		})

		if err := r.Load(); err == nil {
			t.Fatal("expected load error")
		}
		if r.IsReady() || r.State() != StateFailed {
			t.Error("failed load must leave the registry not ready")
		}
		if r.Regressor() != nil || r.Classifier() != nil {
			t.Error("failed load must not expose predictors")
		}
	})

	t.Run("invalid configured threshold falls back to 0.5", func(t *testing.T) {
		r := NewRegistry(domain.ModelsConfig{DefaultThreshold: 7})
		if r.Threshold() != 0.5 {
			t.Errorf("threshold = %f, want fallback 0.5", r.Threshold())
		}
	})
}
