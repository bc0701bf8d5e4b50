package rules

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opencase-legal/kestrel/internal/domain"
)

func testContext(visa domain.VisaType) *domain.AnalysisContext {
	return &domain.AnalysisContext{
		CaseID:           "case-1",
		FirmID:           "firm-1",
		VisaType:         visa,
		Status:           domain.CaseStatusPreparing,
		AsOf:             time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		UploadedDocTypes: map[string]bool{},
		RequiredDocTypes: map[string]bool{},
		ExtractedFields:  map[string]domain.FieldMap{},
		Forms:            map[string]domain.FieldMap{},
	}
}

// stubRule is a minimal rule whose evaluation is injectable, used to
// exercise the engine's failure isolation.
type stubRule struct {
	id       string
	severity domain.Severity
	eval     func(ctx *domain.AnalysisContext) (domain.RuleResult, error)
}

func (r *stubRule) ID() string                { return r.id }
func (r *stubRule) Severity() domain.Severity { return r.severity }
func (r *stubRule) Category() string          { return "test" }
func (r *stubRule) Title() string             { return r.id }
func (r *stubRule) Description() string       { return r.id }
func (r *stubRule) Recommendation() string    { return "fix " + r.id }
func (r *stubRule) Evaluate(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
	return r.eval(ctx)
}

func triggered() func(*domain.AnalysisContext) (domain.RuleResult, error) {
	return func(*domain.AnalysisContext) (domain.RuleResult, error) {
		return domain.RuleResult{Triggered: true, Confidence: 1.0}, nil
	}
}

func TestEvaluateBareCase(t *testing.T) {
	engine, err := NewEngine(DefaultCatalog(), 10)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	outcome := engine.Evaluate(context.Background(), testContext(domain.VisaH1B))

	if len(outcome.Triggered) == 0 {
		t.Fatal("expected triggered rules for a bare case")
	}
	if len(outcome.FailedRuleIDs) != 0 {
		t.Errorf("unexpected failed rules: %v", outcome.FailedRuleIDs)
	}

	found := false
	for _, tr := range outcome.Triggered {
		if tr.RuleID == "common-no-documents" {
			found = true
			if tr.Severity != domain.SeverityCritical {
				t.Errorf("common-no-documents severity = %s, want critical", tr.Severity)
			}
		}
	}
	if !found {
		t.Error("common-no-documents did not trigger on a case with no uploads")
	}
}

func TestEvaluateSeverityOrdering(t *testing.T) {
	engine, err := NewEngine(DefaultCatalog(), 10)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	outcome := engine.Evaluate(context.Background(), testContext(domain.VisaI130))

	for i := 1; i < len(outcome.Triggered); i++ {
		prev, cur := outcome.Triggered[i-1], outcome.Triggered[i]
		if prev.Severity.Rank() > cur.Severity.Rank() {
			t.Fatalf("triggered[%d]=%s (%s) ordered after triggered[%d]=%s (%s)",
				i-1, prev.RuleID, prev.Severity, i, cur.RuleID, cur.Severity)
		}
		if prev.Severity.Rank() == cur.Severity.Rank() && prev.RuleID >= cur.RuleID {
			t.Fatalf("tie between %s and %s not broken by rule id", prev.RuleID, cur.RuleID)
		}
	}
}

func TestEvaluateDeterminism(t *testing.T) {
	engine, err := NewEngine(DefaultCatalog(), 3)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	ctx := testContext(domain.VisaH1B)
	ctx.UploadedDocTypes["passport"] = true
	ctx.RequiredDocTypes["passport"] = true
	ctx.RequiredDocTypes["lca"] = false

	first := engine.Evaluate(context.Background(), ctx)
	for i := 0; i < 20; i++ {
		again := engine.Evaluate(context.Background(), ctx)
		if len(again.Triggered) != len(first.Triggered) {
			t.Fatalf("run %d: %d triggered, first run had %d", i, len(again.Triggered), len(first.Triggered))
		}
		for j := range again.Triggered {
			if again.Triggered[j].RuleID != first.Triggered[j].RuleID {
				t.Fatalf("run %d: triggered[%d]=%s, first run had %s",
					i, j, again.Triggered[j].RuleID, first.Triggered[j].RuleID)
			}
		}
		if fmt.Sprint(again.SafeRuleIDs) != fmt.Sprint(first.SafeRuleIDs) {
			t.Fatalf("run %d: safe set %v differs from %v", i, again.SafeRuleIDs, first.SafeRuleIDs)
		}
	}
}

func TestFailureIsolation(t *testing.T) {
	catalog := NewCatalog()
	catalog.RegisterCommon(
		&stubRule{id: "rule-errors", severity: domain.SeverityHigh, eval: func(*domain.AnalysisContext) (domain.RuleResult, error) {
			return domain.RuleResult{}, fmt.Errorf("backing data unavailable")
		}},
		&stubRule{id: "rule-panics", severity: domain.SeverityHigh, eval: func(*domain.AnalysisContext) (domain.RuleResult, error) {
			panic("nil map write")
		}},
		&stubRule{id: "rule-fires", severity: domain.SeverityCritical, eval: triggered()},
		&stubRule{id: "rule-clean", severity: domain.SeverityLow, eval: func(*domain.AnalysisContext) (domain.RuleResult, error) {
			return domain.RuleResult{Triggered: false, Confidence: 1.0}, nil
		}},
	)

	engine, err := NewEngine(catalog, 4)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	outcome := engine.Evaluate(context.Background(), testContext(domain.VisaH1B))

	if len(outcome.FailedRuleIDs) != 2 {
		t.Fatalf("FailedRuleIDs = %v, want the erroring and panicking rules", outcome.FailedRuleIDs)
	}
	if outcome.FailedRuleIDs[0] != "rule-errors" || outcome.FailedRuleIDs[1] != "rule-panics" {
		t.Errorf("FailedRuleIDs = %v, want [rule-errors rule-panics]", outcome.FailedRuleIDs)
	}
	if len(outcome.Triggered) != 1 || outcome.Triggered[0].RuleID != "rule-fires" {
		t.Errorf("Triggered = %v, want only rule-fires", outcome.Triggered)
	}
	if len(outcome.SafeRuleIDs) != 1 || outcome.SafeRuleIDs[0] != "rule-clean" {
		t.Errorf("SafeRuleIDs = %v, want only rule-clean", outcome.SafeRuleIDs)
	}
}

func TestConfidenceClamping(t *testing.T) {
	catalog := NewCatalog()
	catalog.RegisterCommon(
		&stubRule{id: "over", severity: domain.SeverityHigh, eval: func(*domain.AnalysisContext) (domain.RuleResult, error) {
			return domain.RuleResult{Triggered: true, Confidence: 3.5}, nil
		}},
		&stubRule{id: "under", severity: domain.SeverityHigh, eval: func(*domain.AnalysisContext) (domain.RuleResult, error) {
			return domain.RuleResult{Triggered: true, Confidence: -1}, nil
		}},
	)

	engine, err := NewEngine(catalog, 2)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	outcome := engine.Evaluate(context.Background(), testContext(domain.VisaH1B))
	for _, tr := range outcome.Triggered {
		if tr.Confidence < 0 || tr.Confidence > 1 {
			t.Errorf("rule %s confidence %v outside [0,1]", tr.RuleID, tr.Confidence)
		}
	}
}

func TestCustomRules(t *testing.T) {
	engine, err := NewEngine(NewCatalog(), 10)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	t.Run("ValidExpression", func(t *testing.T) {
		cfg := &domain.CustomRuleConfig{
			ID:         "firm-no-docs",
			FirmID:     "firm-1",
			Title:      "No documents",
			Severity:   domain.SeverityHigh,
			Expression: "uploaded_doc_count == 0",
			Enabled:    true,
		}
		if err := engine.ValidateCustomRule(cfg); err != nil {
			t.Fatalf("ValidateCustomRule failed: %v", err)
		}
		if err := engine.LoadCustomRules("firm-1", []*domain.CustomRuleConfig{cfg}); err != nil {
			t.Fatalf("LoadCustomRules failed: %v", err)
		}
		if got := engine.CustomRuleCount("firm-1"); got != 1 {
			t.Errorf("CustomRuleCount = %d, want 1", got)
		}

		outcome := engine.Evaluate(context.Background(), testContext(domain.VisaH1B))
		if len(outcome.Triggered) != 1 || outcome.Triggered[0].RuleID != "firm-no-docs" {
			t.Fatalf("Triggered = %v, want firm-no-docs", outcome.Triggered)
		}
		if outcome.Triggered[0].Evidence.Kind != domain.EvidenceExpression {
			t.Errorf("evidence kind = %s, want expression", outcome.Triggered[0].Evidence.Kind)
		}
	})

	t.Run("InvalidExpression", func(t *testing.T) {
		cfg := &domain.CustomRuleConfig{
			ID:         "broken",
			Severity:   domain.SeverityLow,
			Expression: "this is not valid CEL !!!",
		}
		if err := engine.ValidateCustomRule(cfg); err == nil {
			t.Error("expected error for invalid CEL expression")
		}
	})

	t.Run("NonBoolExpression", func(t *testing.T) {
		cfg := &domain.CustomRuleConfig{
			ID:         "non-bool",
			Severity:   domain.SeverityLow,
			Expression: "uploaded_doc_count + 1",
		}
		if err := engine.ValidateCustomRule(cfg); err == nil {
			t.Error("expected error for non-bool expression")
		}
	})

	t.Run("DisabledRuleSkipped", func(t *testing.T) {
		cfg := &domain.CustomRuleConfig{
			ID:         "disabled",
			Severity:   domain.SeverityLow,
			Expression: "true",
			Enabled:    false,
		}
		if err := engine.LoadCustomRules("firm-2", []*domain.CustomRuleConfig{cfg}); err != nil {
			t.Fatalf("LoadCustomRules failed: %v", err)
		}
		if got := engine.CustomRuleCount("firm-2"); got != 0 {
			t.Errorf("CustomRuleCount = %d, want 0 for disabled rule", got)
		}
	})

	t.Run("ReloadReplaces", func(t *testing.T) {
		if err := engine.LoadCustomRules("firm-1", nil); err != nil {
			t.Fatalf("LoadCustomRules failed: %v", err)
		}
		if got := engine.CustomRuleCount("firm-1"); got != 0 {
			t.Errorf("CustomRuleCount = %d after reload with empty set, want 0", got)
		}
	})
}

func TestCustomRuleVisaFilter(t *testing.T) {
	engine, err := NewEngine(NewCatalog(), 10)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	cfg := &domain.CustomRuleConfig{
		ID:         "h1b-only",
		Severity:   domain.SeverityMedium,
		Expression: "true",
		VisaTypes:  []domain.VisaType{domain.VisaH1B},
		Enabled:    true,
	}
	if err := engine.LoadCustomRules("firm-1", []*domain.CustomRuleConfig{cfg}); err != nil {
		t.Fatalf("LoadCustomRules failed: %v", err)
	}

	h1b := engine.Evaluate(context.Background(), testContext(domain.VisaH1B))
	if len(h1b.Triggered) != 1 {
		t.Errorf("H-1B context: %d triggered, want 1", len(h1b.Triggered))
	}

	i130 := engine.Evaluate(context.Background(), testContext(domain.VisaI130))
	if len(i130.Triggered) != 0 {
		t.Errorf("I-130 context: %d triggered, want 0 (rule scoped to H-1B)", len(i130.Triggered))
	}
}

func TestCustomRuleDeadlineVariable(t *testing.T) {
	engine, err := NewEngine(NewCatalog(), 10)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	cfg := &domain.CustomRuleConfig{
		ID:         "deadline-soon",
		Severity:   domain.SeverityHigh,
		Expression: "days_to_deadline >= 0 && days_to_deadline < 10",
		Enabled:    true,
	}
	if err := engine.LoadCustomRules("firm-1", []*domain.CustomRuleConfig{cfg}); err != nil {
		t.Fatalf("LoadCustomRules failed: %v", err)
	}

	// No deadline projects as -1, so the rule stays quiet.
	quiet := engine.Evaluate(context.Background(), testContext(domain.VisaH1B))
	if len(quiet.Triggered) != 0 {
		t.Errorf("no deadline: %d triggered, want 0", len(quiet.Triggered))
	}

	ctx := testContext(domain.VisaH1B)
	deadline := ctx.AsOf.AddDate(0, 0, 5)
	ctx.Deadline = &deadline
	fired := engine.Evaluate(context.Background(), ctx)
	if len(fired.Triggered) != 1 {
		t.Errorf("deadline in 5 days: %d triggered, want 1", len(fired.Triggered))
	}
}
