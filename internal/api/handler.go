package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Zoran-Janjic/truemeter-api/internal/domain"
	"github.com/Zoran-Janjic/truemeter-api/internal/model"
	"github.com/Zoran-Janjic/truemeter-api/internal/rules"
	"github.com/Zoran-Janjic/truemeter-api/internal/scoring"
	"github.com/Zoran-Janjic/truemeter-api/internal/velocity"
	"github.com/Zoran-Janjic/truemeter-api/internal/worker"
)

// defaultRecheckWindow is the lookback for the recheck_count rule variable.
const defaultRecheckWindow = 3600 // seconds

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	registry *model.Registry
	scorer   *scoring.Service
	engine   *rules.Engine
	velocity *velocity.Service

	resultTTL time.Duration
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, registry *model.Registry, scorer *scoring.Service, engine *rules.Engine, velocitySvc *velocity.Service, resultTTL time.Duration, version string) *Handler {
	if resultTTL == 0 {
		resultTTL = time.Hour
	}
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		registry:  registry,
		scorer:    scorer,
		engine:    engine,
		velocity:  velocitySvc,
		resultTTL: resultTTL,
		version:   version,
	}
}

// CheckResponse is the response for POST /api/check.
type CheckResponse struct {
	CheckID      string   `json:"check_id"`
	FraudScore   int      `json:"fraud_score"`
	IsSuspicious bool     `json:"is_suspicious"`
	ExpectedKm   int      `json:"expected_km"`
	Reasons      []string `json:"reasons"`
}

// Check handles POST /api/check: the synchronous fraud check.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var car domain.CarRecord
	if err := json.NewDecoder(r.Body).Decode(&car); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	car.Normalize()
	fingerprint := car.Fingerprint()

	// Readiness gates everything, including results cached before a restart
	if h.registry == nil || !h.registry.IsReady() {
		h.writeCheckError(w, domain.ErrNotReady)
		return
	}

	// Identical requests are served from the result cache
	if h.cache != nil {
		if cached, err := h.cache.GetResult(ctx, fingerprint); err == nil && cached != nil {
			writeJSON(w, http.StatusOK, CheckResponse{
				CheckID:      "",
				FraudScore:   cached.FraudScore,
				IsSuspicious: cached.IsSuspicious,
				ExpectedKm:   cached.ExpectedKm,
				Reasons:      cached.Reasons,
			})
			return
		}
	}

	outcome, err := h.scorer.Check(ctx, &car)
	if err != nil {
		h.writeCheckError(w, err)
		return
	}

	checkID := uuid.New().String()

	// Custom anomaly rules append their reasons after the built-in ones
	if h.engine != nil && h.engine.RulesCount() > 0 {
		ruleResults, err := h.engine.EvaluateAll(ctx, &rules.EvaluateInput{
			CheckID:       checkID,
			Car:           &car,
			Features:      outcome.Features,
			ExpectedKm:    outcome.Estimate.ExpectedKm,
			Probability:   outcome.Probability,
			FraudScore:    outcome.Result.FraudScore,
			Suspicious:    outcome.Result.IsSuspicious,
			RecheckWindow: defaultRecheckWindow,
		})
		if err != nil {
			slog.Error("rule evaluation failed", "check_id", checkID, "error", err)
		} else {
			outcome.Result.Reasons = append(outcome.Result.Reasons, rules.FlagReasons(ruleResults)...)
		}
	}

	if h.velocity != nil {
		if _, err := h.velocity.Record(ctx, fingerprint, time.Hour); err != nil {
			slog.Warn("failed to record recheck counter", "check_id", checkID, "error", err)
		}
	}

	if h.cache != nil {
		if err := h.cache.SetResult(ctx, fingerprint, &outcome.Result, h.resultTTL); err != nil {
			slog.Warn("failed to cache result", "check_id", checkID, "error", err)
		}
	}

	record := &domain.CheckRecord{
		ID:          checkID,
		Fingerprint: fingerprint,
		Car:         car,
		Result:      outcome.Result,
		CreatedAt:   time.Now().UTC(),
	}

	if h.repo != nil {
		if err := h.repo.SaveCheck(ctx, record); err != nil {
			slog.Error("failed to save check", "check_id", checkID, "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(record)
		if err := h.bus.Publish(ctx, domain.TopicCheckCompleted, payload); err != nil {
			slog.Error("failed to publish completed check", "check_id", checkID, "error", err)
		}
		if outcome.Result.IsSuspicious {
			if err := h.bus.Publish(ctx, domain.TopicCheckFlagged, payload); err != nil {
				slog.Error("failed to publish flagged check", "check_id", checkID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, CheckResponse{
		CheckID:      checkID,
		FraudScore:   outcome.Result.FraudScore,
		IsSuspicious: outcome.Result.IsSuspicious,
		ExpectedKm:   outcome.Result.ExpectedKm,
		Reasons:      outcome.Result.Reasons,
	})
}

// writeCheckError maps pipeline errors to HTTP statuses.
func (h *Handler) writeCheckError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotReady):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "models are not loaded, service is starting or degraded",
		})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, domain.ErrInference):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
		})
	default:
		slog.Error("check failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

// CheckAsync handles POST /api/check/async: queues a check on the event bus.
func (h *Handler) CheckAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	var car domain.CarRecord
	if err := json.NewDecoder(r.Body).Decode(&car); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Reject invalid payloads before they enter the queue
	car.Normalize()
	if err := car.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	checkID := uuid.New().String()

	payload, _ := json.Marshal(worker.CheckRequestMessage{
		CheckID:       checkID,
		Car:           car,
		RecheckWindow: defaultRecheckWindow,
	})
	if err := h.bus.Publish(ctx, domain.TopicCheckRequested, payload); err != nil {
		slog.Error("failed to queue check", "check_id", checkID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to queue check",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"check_id": checkID,
		"status":   "queued",
	})
}

// GetCheck retrieves a persisted check by ID.
func (h *Handler) GetCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checkID := chi.URLParam(r, "id")

	if checkID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "check id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	check, err := h.repo.GetCheck(ctx, checkID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "check not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, check)
}

// HealthResponse is the payload of GET /health and GET /.
type HealthResponse struct {
	Status       string `json:"status"`
	ModelsLoaded bool   `json:"models_loaded"`
	Service      string `json:"service"`
	Creator      string `json:"creator"`
	Website      string `json:"website"`
	Dataset      string `json:"dataset"`
	Version      string `json:"version"`
}

// Health returns service status. The service reports "initializing" while
// the model artifacts are missing; it never refuses the health check.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	modelsLoaded := h.registry != nil && h.registry.IsReady()

	status := "healthy"
	if !modelsLoaded {
		status = "initializing"
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       status,
		ModelsLoaded: modelsLoaded,
		Service:      domain.ServiceName,
		Creator:      domain.CreatorName,
		Website:      domain.CreatorWebsite,
		Dataset:      domain.DatasetSource,
		Version:      h.version,
	})
}

// Ready returns whether the server can score checks: models loaded and the
// backing stores reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.registry == nil || !h.registry.IsReady() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
			"error": "models are not loaded",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
				"error": "repository unavailable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns all loaded rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Expression  string            `json:"expression"`
	Bands       []domain.RuleBand `json:"bands"`
	Enabled     bool              `json:"enabled"`
}

// CreateRule creates a new rule and saves it to the database.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.engine.LoadRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, ruleConfig); err != nil {
			slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
