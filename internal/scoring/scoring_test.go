package scoring

import (
	"testing"
	"time"

	"github.com/opencase-legal/kestrel/internal/domain"
)

func emptyContext() *domain.AnalysisContext {
	return &domain.AnalysisContext{
		CaseID:           "case-1",
		FirmID:           "firm-1",
		VisaType:         domain.VisaH1B,
		AsOf:             time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		UploadedDocTypes: map[string]bool{},
		RequiredDocTypes: map[string]bool{},
		ExtractedFields:  map[string]domain.FieldMap{},
		Forms:            map[string]domain.FieldMap{},
	}
}

func tr(severity domain.Severity, confidence float64) domain.TriggeredRule {
	return domain.TriggeredRule{
		RuleID:         "r-" + string(severity),
		Severity:       severity,
		Confidence:     confidence,
		Recommendation: "fix " + string(severity),
	}
}

func TestScorePenaltyMath(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name      string
		triggered []domain.TriggeredRule
		score     int
		level     domain.RiskLevel
		prob      float64
	}{
		{
			name:  "NothingTriggered",
			score: 100, level: domain.RiskLow, prob: 0,
		},
		{
			name:      "SingleMedium",
			triggered: []domain.TriggeredRule{tr(domain.SeverityMedium, 1.0)},
			score:     88, level: domain.RiskLow, prob: 0.12,
		},
		{
			name:      "CriticalPlusScaledHigh",
			triggered: []domain.TriggeredRule{tr(domain.SeverityCritical, 1.0), tr(domain.SeverityHigh, 0.5)},
			score:     60, level: domain.RiskHigh, prob: 0.4,
		},
		{
			name: "ConfidenceScalesPenalty",
			triggered: []domain.TriggeredRule{
				tr(domain.SeverityCritical, 0.5), // 15
				tr(domain.SeverityLow, 0.6),      // 3
			},
			score: 82, level: domain.RiskMedium, prob: 0.18,
		},
		{
			name: "ClampedAtZero",
			triggered: []domain.TriggeredRule{
				tr(domain.SeverityCritical, 1.0),
				tr(domain.SeverityCritical, 1.0),
				tr(domain.SeverityCritical, 1.0),
				tr(domain.SeverityCritical, 1.0),
			},
			score: 0, level: domain.RiskCritical, prob: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := p.Score(tc.triggered, emptyContext())
			if s.Score != tc.score {
				t.Errorf("Score = %d, want %d", s.Score, tc.score)
			}
			if s.RiskLevel != tc.level {
				t.Errorf("RiskLevel = %s, want %s", s.RiskLevel, tc.level)
			}
			if s.Probability != tc.prob {
				t.Errorf("Probability = %v, want %v", s.Probability, tc.prob)
			}
		})
	}
}

func TestRiskLevelBoundaries(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		score int
		want  domain.RiskLevel
	}{
		{100, domain.RiskLow},
		{85, domain.RiskLow},
		{84, domain.RiskMedium},
		{65, domain.RiskMedium},
		{64, domain.RiskHigh},
		{40, domain.RiskHigh},
		{39, domain.RiskCritical},
		{0, domain.RiskCritical},
	}

	for _, tc := range tests {
		if got := p.RiskLevel(tc.score); got != tc.want {
			t.Errorf("RiskLevel(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestPriorityActions(t *testing.T) {
	p := DefaultPolicy()

	// Seven triggered rules, pre-sorted by the engine. Only the first
	// five recommendations survive.
	var triggered []domain.TriggeredRule
	for i := 0; i < 7; i++ {
		r := tr(domain.SeverityLow, 0.1)
		r.Recommendation = string(rune('a' + i))
		triggered = append(triggered, r)
	}

	s := p.Score(triggered, emptyContext())
	if len(s.PriorityActions) != 5 {
		t.Fatalf("PriorityActions = %d entries, want 5", len(s.PriorityActions))
	}
	for i, want := range []string{"a", "b", "c", "d", "e"} {
		if s.PriorityActions[i] != want {
			t.Errorf("PriorityActions[%d] = %q, want %q", i, s.PriorityActions[i], want)
		}
	}

	s = p.Score(triggered[:2], emptyContext())
	if len(s.PriorityActions) != 2 {
		t.Errorf("PriorityActions = %d entries, want 2 when only 2 rules fired", len(s.PriorityActions))
	}
}

func TestDataConfidence(t *testing.T) {
	if got := DataConfidence(emptyContext()); got != 0 {
		t.Errorf("DataConfidence(empty) = %v, want 0", got)
	}

	ctx := emptyContext()
	ctx.UploadedDocTypes["passport"] = true
	ctx.RequiredDocTypes["passport"] = true
	ctx.Forms["I-129"] = domain.FieldMap{"job_title": "Engineer"}
	if got := DataConfidence(ctx); got != 0.5 {
		t.Errorf("DataConfidence(3 of 6 probes) = %v, want 0.5", got)
	}

	ctx.Employer = &domain.EmployerSummary{}
	ctx.Beneficiary = &domain.BeneficiarySummary{}
	ctx.Financial = &domain.FinancialSummary{}
	if got := DataConfidence(ctx); got != 1 {
		t.Errorf("DataConfidence(full) = %v, want 1", got)
	}
}

func TestCompletenessProbesStable(t *testing.T) {
	probes := CompletenessProbes()
	want := []string{
		"document_types", "checklist", "forms",
		"employer_profile", "beneficiary_profile", "financial_profile",
	}
	if len(probes) != len(want) {
		t.Fatalf("probe count = %d, want %d", len(probes), len(want))
	}
	for i, p := range probes {
		if p.Name != want[i] {
			t.Errorf("probe[%d] = %s, want %s", i, p.Name, want[i])
		}
	}
}

func TestNewPolicyValidation(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		if _, err := NewPolicy(domain.DefaultScoringConfig()); err != nil {
			t.Fatalf("default config rejected: %v", err)
		}
	})

	t.Run("NonMonotonicPenalties", func(t *testing.T) {
		cfg := domain.DefaultScoringConfig()
		cfg.PenaltyHigh = cfg.PenaltyCritical + 1
		if _, err := NewPolicy(cfg); err == nil {
			t.Error("expected error for high > critical penalty")
		}
	})

	t.Run("ZeroLowPenalty", func(t *testing.T) {
		cfg := domain.DefaultScoringConfig()
		cfg.PenaltyLow = 0
		if _, err := NewPolicy(cfg); err == nil {
			t.Error("expected error for a zero low penalty")
		}
	})

	t.Run("DisorderedThresholds", func(t *testing.T) {
		cfg := domain.DefaultScoringConfig()
		cfg.ThresholdMedium = cfg.ThresholdLow + 10
		if _, err := NewPolicy(cfg); err == nil {
			t.Error("expected error for medium > low threshold")
		}
	})

	t.Run("MaxActionsDefaulted", func(t *testing.T) {
		cfg := domain.DefaultScoringConfig()
		cfg.MaxPriorityActions = 0
		p, err := NewPolicy(cfg)
		if err != nil {
			t.Fatalf("NewPolicy failed: %v", err)
		}
		if p.maxActions != 5 {
			t.Errorf("maxActions = %d, want defaulted 5", p.maxActions)
		}
	})
}
