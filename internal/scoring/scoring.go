// Package scoring turns triggered rules into a score, a risk level, a
// probability estimate, and a data-confidence metric. Everything here
// is pure: same inputs, same outputs, no I/O and no clock.
package scoring

import (
	"fmt"
	"math"

	"github.com/opencase-legal/kestrel/internal/domain"
)

// Policy holds the scoring constants. Defaults correspond to
// domain.FormulaVersion; changing any of them in production requires a
// version bump so historical rows stay interpretable.
type Policy struct {
	penalties  map[domain.Severity]float64
	tLow       int
	tMedium    int
	tHigh      int
	maxActions int
}

// NewPolicy builds a policy from config, validating monotonicity of the
// penalty table and ordering of the thresholds.
func NewPolicy(cfg domain.ScoringConfig) (*Policy, error) {
	if !(cfg.PenaltyCritical > cfg.PenaltyHigh &&
		cfg.PenaltyHigh > cfg.PenaltyMedium &&
		cfg.PenaltyMedium > cfg.PenaltyLow &&
		cfg.PenaltyLow > 0) {
		return nil, fmt.Errorf("severity penalties must be monotonic: critical > high > medium > low > 0")
	}
	if !(cfg.ThresholdLow > cfg.ThresholdMedium && cfg.ThresholdMedium > cfg.ThresholdHigh && cfg.ThresholdHigh > 0) {
		return nil, fmt.Errorf("risk thresholds must satisfy low > medium > high > 0")
	}
	maxActions := cfg.MaxPriorityActions
	if maxActions <= 0 {
		maxActions = 5
	}
	return &Policy{
		penalties: map[domain.Severity]float64{
			domain.SeverityCritical: cfg.PenaltyCritical,
			domain.SeverityHigh:     cfg.PenaltyHigh,
			domain.SeverityMedium:   cfg.PenaltyMedium,
			domain.SeverityLow:      cfg.PenaltyLow,
		},
		tLow:       cfg.ThresholdLow,
		tMedium:    cfg.ThresholdMedium,
		tHigh:      cfg.ThresholdHigh,
		maxActions: maxActions,
	}, nil
}

// DefaultPolicy returns the policy behind domain.FormulaVersion.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(domain.DefaultScoringConfig())
	if err != nil {
		// Default constants are fixed; this cannot happen.
		panic(err)
	}
	return p
}

// Summary is the pure output of one scoring pass.
type Summary struct {
	Score           int
	RiskLevel       domain.RiskLevel
	Probability     float64
	DataConfidence  float64
	PriorityActions []string
}

// Score computes the summary for a set of triggered rules and the
// context they ran against. TriggeredRules must already be sorted by
// severity (the engine guarantees it); priority actions follow that
// order.
func (p *Policy) Score(triggered []domain.TriggeredRule, ac *domain.AnalysisContext) Summary {
	score := 100.0
	for _, tr := range triggered {
		score -= p.penalties[tr.Severity] * tr.Confidence
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	rounded := int(math.Round(score))

	actions := make([]string, 0, p.maxActions)
	for _, tr := range triggered {
		if len(actions) == p.maxActions {
			break
		}
		actions = append(actions, tr.Recommendation)
	}

	return Summary{
		Score:           rounded,
		RiskLevel:       p.RiskLevel(rounded),
		Probability:     round3(1 - float64(rounded)/100),
		DataConfidence:  DataConfidence(ac),
		PriorityActions: actions,
	}
}

// RiskLevel maps a score to its level via the fixed inclusive lower
// bounds.
func (p *Policy) RiskLevel(score int) domain.RiskLevel {
	switch {
	case score >= p.tLow:
		return domain.RiskLow
	case score >= p.tMedium:
		return domain.RiskMedium
	case score >= p.tHigh:
		return domain.RiskHigh
	default:
		return domain.RiskCritical
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
