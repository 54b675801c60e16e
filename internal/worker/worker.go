// Package worker provides async fraud check processing from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Zoran-Janjic/truemeter-api/internal/domain"
	"github.com/Zoran-Janjic/truemeter-api/internal/rules"
	"github.com/Zoran-Janjic/truemeter-api/internal/scoring"
	"github.com/Zoran-Janjic/truemeter-api/internal/velocity"
)

// Worker consumes check requests from the EventBus, runs them through the
// scoring pipeline and publishes the outcome.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	cache    domain.Cache
	scorer   *scoring.Service
	engine   *rules.Engine
	velocity *velocity.Service

	resultTTL time.Duration

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// ResultTTL is how long completed results stay in the cache.
	ResultTTL time.Duration
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, scorer *scoring.Service, engine *rules.Engine, velocitySvc *velocity.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		cache:    cache,
		scorer:   scorer,
		engine:   engine,
		velocity: velocitySvc,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the check request topic.
func (w *Worker) Start(cfg Config) error {
	w.resultTTL = cfg.ResultTTL
	if w.resultTTL == 0 {
		w.resultTTL = time.Hour
	}

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicCheckRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("async check worker started",
		"topic", domain.TopicCheckRequested,
	)

	return nil
}

// CheckRequestMessage is the message payload for an async fraud check.
type CheckRequestMessage struct {
	CheckID       string           `json:"checkId"`
	Car           domain.CarRecord `json:"car"`
	RecheckWindow int              `json:"recheckWindow,omitempty"` // seconds
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processCheck(ctx, msg)
}

// processCheck runs one queued car record through the full pipeline.
func (w *Worker) processCheck(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req CheckRequestMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse check request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	checkID := req.CheckID
	if checkID == "" {
		checkID = uuid.New().String()
	}

	slog.Debug("processing check request",
		"check_id", checkID,
		"make", req.Car.Make,
		"model", req.Car.Model,
	)

	outcome, err := w.scorer.Check(ctx, &req.Car)
	if err != nil {
		slog.Error("check failed",
			"check_id", checkID,
			"error", err,
		)
		return err
	}

	fingerprint := req.Car.Fingerprint()

	// Custom anomaly rules append their reasons after the built-in ones
	if w.engine != nil && w.engine.RulesCount() > 0 {
		window := req.RecheckWindow
		if window == 0 {
			window = 3600
		}
		ruleResults, err := w.engine.EvaluateAll(ctx, &rules.EvaluateInput{
			CheckID:       checkID,
			Car:           &req.Car,
			Features:      outcome.Features,
			ExpectedKm:    outcome.Estimate.ExpectedKm,
			Probability:   outcome.Probability,
			FraudScore:    outcome.Result.FraudScore,
			Suspicious:    outcome.Result.IsSuspicious,
			RecheckWindow: window,
		})
		if err != nil {
			slog.Error("rule evaluation failed",
				"check_id", checkID,
				"error", err,
			)
		} else {
			outcome.Result.Reasons = append(outcome.Result.Reasons, rules.FlagReasons(ruleResults)...)
		}
	}

	if w.velocity != nil {
		if _, err := w.velocity.Record(ctx, fingerprint, time.Hour); err != nil {
			slog.Warn("failed to record recheck counter",
				"check_id", checkID,
				"error", err,
			)
		}
	}

	if w.cache != nil {
		if err := w.cache.SetResult(ctx, fingerprint, &outcome.Result, w.resultTTL); err != nil {
			slog.Warn("failed to cache result",
				"check_id", checkID,
				"error", err,
			)
		}
	}

	record := &domain.CheckRecord{
		ID:          checkID,
		Fingerprint: fingerprint,
		Car:         req.Car,
		Result:      outcome.Result,
		CreatedAt:   time.Now().UTC(),
	}

	if w.repo != nil {
		if err := w.repo.SaveCheck(ctx, record); err != nil {
			slog.Error("failed to save check",
				"check_id", checkID,
				"error", err,
			)
		}
	}

	resultPayload, _ := json.Marshal(record)
	if err := w.bus.Publish(ctx, domain.TopicCheckCompleted, resultPayload); err != nil {
		slog.Error("failed to publish completed check",
			"check_id", checkID,
			"error", err,
		)
	}

	if outcome.Result.IsSuspicious {
		if err := w.bus.Publish(ctx, domain.TopicCheckFlagged, resultPayload); err != nil {
			slog.Error("failed to publish flagged check",
				"check_id", checkID,
				"error", err,
			)
		}
	}

	slog.Info("check processed",
		"check_id", checkID,
		"fraud_score", outcome.Result.FraudScore,
		"is_suspicious", outcome.Result.IsSuspicious,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
