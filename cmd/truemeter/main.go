// TrueMeter - Odometer fraud detection for used car listings.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zoran-Janjic/truemeter-api/internal/api"
	"github.com/Zoran-Janjic/truemeter-api/internal/bus"
	"github.com/Zoran-Janjic/truemeter-api/internal/cache"
	"github.com/Zoran-Janjic/truemeter-api/internal/domain"
	"github.com/Zoran-Janjic/truemeter-api/internal/model"
	"github.com/Zoran-Janjic/truemeter-api/internal/repository"
	"github.com/Zoran-Janjic/truemeter-api/internal/rules"
	"github.com/Zoran-Janjic/truemeter-api/internal/scoring"
	"github.com/Zoran-Janjic/truemeter-api/internal/velocity"
	"github.com/Zoran-Janjic/truemeter-api/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("TRUEMETER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting truemeter",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration from environment
	cfg := domain.FromEnv()

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Model Registry. A failed load leaves the service in a
	// degraded state where checks return 503 but health stays up, so the
	// artifacts can be dropped in and the process restarted without crash
	// loops in orchestrators.
	registry := model.NewRegistry(cfg.Models)
	if err := registry.Load(); err != nil {
		slog.Warn("model artifacts not loaded, starting degraded",
			"regressor", cfg.Models.RegressorPath,
			"classifier", cfg.Models.ClassifierPath,
			"error", err,
		)
	} else {
		slog.Info("model registry initialized",
			"threshold", registry.Threshold(),
		)
	}

	// Initialize Scoring Service
	scorer := scoring.NewService(registry)

	// Initialize Velocity Service
	velocitySvc := velocity.NewService(repo, cacheImpl)
	slog.Info("velocity service initialized")

	// Initialize Rule Engine with recheck getter
	engine, err := rules.NewEngine(velocitySvc.GetRecheckGetter(), 100)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}

	// Load rules from database (no hardcoded defaults - configure via API)
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.AsyncWorker {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, scorer, engine, velocitySvc)

		if err := asyncWorker.Start(worker.Config{ResultTTL: cfg.Cache.ResultTTL}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started")
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, registry, scorer, engine, velocitySvc, cfg.Cache.ResultTTL, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("truemeter is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"models_loaded", registry.IsReady(),
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("truemeter shutdown complete")
}

// loadRulesFromDatabase loads anomaly rules from the database into the engine.
// All rules must be configured via POST /rules API - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║              🚗 TRUEMETER                 ║")
	fmt.Println("  ║     Odometer Fraud Detection Engine       ║")
	fmt.Println("  ║       Every kilometer accounted for.      ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/check         - Run a fraud check on a car listing")
	fmt.Println("    POST /api/check/async   - Queue a fraud check")
	fmt.Println("    GET  /api/checks/{id}   - Get check by ID")
	fmt.Println("    GET  /rules             - List all anomaly rules")
	fmt.Println("    POST /rules             - Create a new anomaly rule")
	fmt.Println("    POST /rules/reload      - Hot-reload rules from database")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println()
}
