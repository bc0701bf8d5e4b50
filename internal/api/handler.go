package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opencase-legal/kestrel/internal/assessor"
	"github.com/opencase-legal/kestrel/internal/domain"
	"github.com/opencase-legal/kestrel/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *rules.Engine
	assessor *assessor.Assessor
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, a *assessor.Assessor, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		engine:   engine,
		assessor: a,
		version:  version,
	}
}

// AssessRequest is the optional request body for POST /cases/{id}/assess.
type AssessRequest struct {
	Trigger string `json:"trigger,omitempty"`
}

// AssessCase handles POST /cases/{id}/assess: runs a fresh assessment
// regardless of cache state.
func (h *Handler) AssessCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	firmID := GetFirmID(ctx)
	caseID := chi.URLParam(r, "id")

	if caseID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "case id is required",
		})
		return
	}

	trigger := "manual"
	if r.Body != nil && r.ContentLength != 0 {
		var req AssessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
		if req.Trigger != "" {
			trigger = req.Trigger
		}
	}

	h.runAssessment(w, r, firmID, caseID, trigger)
}

// GetAssessment handles GET /cases/{id}/assessment. Serves the cached
// result while it is fresh; a stale or missing result, or refresh=true,
// triggers a new run.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	firmID := GetFirmID(ctx)
	caseID := chi.URLParam(r, "id")

	if caseID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "case id is required",
		})
		return
	}

	if r.URL.Query().Get("refresh") != "true" {
		existing, err := h.assessor.Latest(ctx, firmID, caseID)
		if err != nil {
			if errors.Is(err, domain.ErrCaseNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{
					"error": "case not found",
				})
				return
			}
			slog.Error("failed to read stored assessment", "case_id", caseID, "error", err)
		}
		if existing != nil && existing.Fresh(time.Now().UTC()) {
			writeJSON(w, http.StatusOK, existing)
			return
		}
	}

	h.runAssessment(w, r, firmID, caseID, "read_refresh")
}

// runAssessment executes an assessment and writes the HTTP response.
// A missing case is a 404; any other failure degrades to a placeholder
// result with a 200 so clients keep a renderable payload.
func (h *Handler) runAssessment(w http.ResponseWriter, r *http.Request, firmID, caseID, trigger string) {
	result, err := h.assessor.AssessRisk(r.Context(), firmID, caseID, trigger)
	if err != nil {
		if errors.Is(err, domain.ErrCaseNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "case not found",
			})
			return
		}

		slog.Error("assessment failed, returning degraded result",
			"case_id", caseID,
			"firm_id", firmID,
			"error", err,
		)
		writeJSON(w, http.StatusOK, domain.DegradedResult(caseID, firmID, trigger, time.Now().UTC()))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetHistory handles GET /cases/{id}/history.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	firmID := GetFirmID(ctx)
	caseID := chi.URLParam(r, "id")

	if caseID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "case id is required",
		})
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	records, err := h.repo.ListAssessmentHistory(ctx, firmID, caseID, limit)
	if err != nil {
		slog.Error("failed to list assessment history", "case_id", caseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load history",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"caseId":  caseID,
		"history": records,
		"count":   len(records),
	})
}

// RuleInfo is the listing projection of a built-in rule.
type RuleInfo struct {
	ID             string          `json:"id"`
	Severity       domain.Severity `json:"severity"`
	Category       string          `json:"category"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Recommendation string          `json:"recommendation"`
}

// ListRules returns the built-in catalog plus the firm's custom rule count.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	firmID := GetFirmID(ctx)

	catalog := h.engine.Catalog()

	byVisa := make(map[string][]RuleInfo)
	for _, visa := range catalog.VisaTypes() {
		for _, rule := range catalog.RulesFor(visa) {
			byVisa[string(visa)] = append(byVisa[string(visa)], RuleInfo{
				ID:             rule.ID(),
				Severity:       rule.Severity(),
				Category:       rule.Category(),
				Title:          rule.Title(),
				Description:    rule.Description(),
				Recommendation: rule.Recommendation(),
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rulesByVisaType": byVisa,
		"builtinCount":    catalog.Count(),
		"customCount":     h.engine.CustomRuleCount(firmID),
	})
}

// CreateRuleRequest is the request body for creating a custom rule.
type CreateRuleRequest struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	Category       string            `json:"category,omitempty"`
	Severity       domain.Severity   `json:"severity"`
	Recommendation string            `json:"recommendation,omitempty"`
	Expression     string            `json:"expression"`
	VisaTypes      []domain.VisaType `json:"visaTypes,omitempty"`
	Enabled        bool              `json:"enabled"`
}

// CreateRule validates and persists a firm-defined CEL rule.
// Call POST /rules/reload afterwards to hot-load it into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	firmID := GetFirmID(ctx)

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Title == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, title, and expression are required",
		})
		return
	}

	cfg := &domain.CustomRuleConfig{
		ID:             req.ID,
		FirmID:         firmID,
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Severity:       req.Severity,
		Recommendation: req.Recommendation,
		Expression:     req.Expression,
		VisaTypes:      req.VisaTypes,
		Enabled:        req.Enabled,
	}

	// Validate CEL expression by compiling it
	if err := h.engine.ValidateCustomRule(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveCustomRule(ctx, firmID, cfg); err != nil {
		slog.Error("failed to save custom rule", "id", cfg.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("custom rule created", "id", cfg.ID, "firm_id", firmID)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    cfg,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads the firm's custom rules from the database into
// the engine. Enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	firmID := GetFirmID(ctx)

	configs, err := h.repo.ListCustomRules(ctx, firmID)
	if err != nil {
		slog.Error("failed to list custom rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.LoadCustomRules(firmID, configs); err != nil {
		slog.Error("failed to reload custom rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("custom rules reloaded from database", "firm_id", firmID, "count", len(configs))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(configs),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
