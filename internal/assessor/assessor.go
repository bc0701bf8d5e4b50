// Package assessor orchestrates a risk assessment run: context build,
// rule evaluation, scoring, and best-effort persistence.
package assessor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opencase-legal/kestrel/internal/casedata"
	"github.com/opencase-legal/kestrel/internal/domain"
	"github.com/opencase-legal/kestrel/internal/rules"
	"github.com/opencase-legal/kestrel/internal/scoring"
)

// Run phases, in order. A failure in phaseBuildingContext aborts before
// any rule executes; failures in phasePersisting are non-fatal.
const (
	phaseBuildingContext = "building_context"
	phaseEvaluatingRules = "evaluating_rules"
	phaseScoring         = "scoring"
	phasePersisting      = "persisting"
	phaseDone            = "done"
)

// HistorySink receives audit rows without blocking the caller. The
// worker package provides the durable implementation.
type HistorySink interface {
	// Enqueue accepts a history row for background insertion. Returns
	// false if the row was dropped (queue full or sink stopped).
	Enqueue(rec *domain.AssessmentHistory) bool
}

// Assessor is the single entry point for computing and persisting a
// risk assessment.
type Assessor struct {
	builder *casedata.Builder
	engine  *rules.Engine
	policy  *scoring.Policy
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	history HistorySink

	now func() time.Time
}

// New creates an assessor. cache, bus, and history may be nil; the
// corresponding write paths are then skipped. repo is required.
func New(repo domain.Repository, engine *rules.Engine, policy *scoring.Policy, cache domain.Cache, bus domain.EventBus, history HistorySink) *Assessor {
	return &Assessor{
		builder: casedata.NewBuilder(repo),
		engine:  engine,
		policy:  policy,
		repo:    repo,
		cache:   cache,
		bus:     bus,
		history: history,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// AssessRisk runs a full assessment for a case. The only error it
// returns with an unusable result is a context-build failure —
// domain.ErrCaseNotFound for a missing case, or the underlying read
// error otherwise. Persistence failures are logged and swallowed: the
// computed result is still returned.
//
// Repeated runs over unchanged case data produce an identical score,
// level, and triggered set; only the id, timestamp, and history row
// differ.
func (a *Assessor) AssessRisk(ctx context.Context, firmID, caseID, triggerEvent string) (*domain.AssessmentResult, error) {
	start := a.now()

	slog.Debug("assessment phase", "phase", phaseBuildingContext, "case_id", caseID)
	ac, err := a.builder.Build(ctx, firmID, caseID)
	if err != nil {
		return nil, err
	}

	slog.Debug("assessment phase", "phase", phaseEvaluatingRules, "case_id", caseID)
	outcome := a.engine.Evaluate(ctx, ac)

	slog.Debug("assessment phase", "phase", phaseScoring, "case_id", caseID)
	summary := a.policy.Score(outcome.Triggered, ac)

	result := &domain.AssessmentResult{
		ID:              uuid.New().String(),
		CaseID:          ac.CaseID,
		FirmID:          ac.FirmID,
		VisaType:        ac.VisaType,
		Score:           summary.Score,
		RiskLevel:       summary.RiskLevel,
		Probability:     summary.Probability,
		TriggeredRules:  outcome.Triggered,
		SafeRuleIDs:     outcome.SafeRuleIDs,
		PriorityActions: summary.PriorityActions,
		DataConfidence:  summary.DataConfidence,
		TriggerEvent:    triggerEvent,
		AssessedAt:      a.now(),
		FormulaVersion:  domain.FormulaVersion,
	}

	slog.Debug("assessment phase", "phase", phasePersisting, "case_id", caseID)
	a.persist(ctx, result)

	slog.Info("assessment complete",
		"phase", phaseDone,
		"case_id", caseID,
		"firm_id", firmID,
		"score", result.Score,
		"risk_level", result.RiskLevel,
		"triggered", len(result.TriggeredRules),
		"failed_rules", len(outcome.FailedRuleIDs),
		"trigger", triggerEvent,
		"duration_ms", a.now().Sub(start).Milliseconds(),
	)

	return result, nil
}

// persist writes the result through to the case record and the cache,
// queues the audit row, and publishes events. Every step is
// best-effort: a write-path failure must never block the read path.
func (a *Assessor) persist(ctx context.Context, result *domain.AssessmentResult) {
	if err := a.repo.UpdateCaseAssessment(ctx, result.FirmID, result.CaseID, result); err != nil {
		slog.Error("failed to write assessment to case record",
			"case_id", result.CaseID,
			"error", err,
		)
	}

	if a.cache != nil {
		if err := a.cache.SetAssessment(ctx, result.FirmID, result.CaseID, result, domain.FreshnessWindow); err != nil {
			slog.Error("failed to cache assessment",
				"case_id", result.CaseID,
				"error", err,
			)
		}
	}

	if a.history != nil {
		if !a.history.Enqueue(domain.HistoryFromResult(result)) {
			slog.Warn("assessment history row dropped",
				"case_id", result.CaseID,
				"assessment_id", result.ID,
			)
		}
	}

	a.publish(ctx, result)
}

// publish emits the completed event, plus a high-risk event when the
// level warrants attorney attention.
func (a *Assessor) publish(ctx context.Context, result *domain.AssessmentResult) {
	if a.bus == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		slog.Error("failed to marshal assessment event", "error", err)
		return
	}

	if err := a.bus.Publish(ctx, result.FirmID, domain.TopicAssessmentCompleted, payload); err != nil {
		slog.Error("failed to publish assessment event",
			"case_id", result.CaseID,
			"error", err,
		)
	}

	if result.RiskLevel == domain.RiskHigh || result.RiskLevel == domain.RiskCritical {
		if err := a.bus.Publish(ctx, result.FirmID, domain.TopicHighRisk, payload); err != nil {
			slog.Error("failed to publish high-risk event",
				"case_id", result.CaseID,
				"error", err,
			)
		}
	}
}

// Latest returns the most recently persisted assessment for a case, or
// nil when none exists. It checks the cache first and falls back to
// the serialized copy on the case record. The caller applies the
// freshness policy.
func (a *Assessor) Latest(ctx context.Context, firmID, caseID string) (*domain.AssessmentResult, error) {
	if a.cache != nil {
		cached, err := a.cache.GetAssessment(ctx, firmID, caseID)
		if err != nil {
			slog.Warn("assessment cache read failed", "case_id", caseID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	c, err := a.repo.GetCase(ctx, firmID, caseID)
	if err != nil {
		return nil, err
	}
	if len(c.LastAssessment) == 0 {
		return nil, nil
	}

	var result domain.AssessmentResult
	if err := json.Unmarshal(c.LastAssessment, &result); err != nil {
		slog.Warn("stored assessment unreadable, ignoring", "case_id", caseID, "error", err)
		return nil, nil
	}
	return &result, nil
}
