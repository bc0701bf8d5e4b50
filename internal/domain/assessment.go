package domain

import (
	"errors"
	"time"
)

// FormulaVersion identifies the scoring formula that produced a result.
// Bump whenever the penalty table, the risk thresholds, or the
// probability formula change, so historical rows stay interpretable.
const FormulaVersion = "kestrel-rules-1.0"

// FreshnessWindow is how long a cached assessment counts as fresh.
// Enforced by the API layer, not by the assessor itself.
const FreshnessWindow = time.Hour

// ErrCaseNotFound is returned when a case id resolves to no live case
// row. It is the only assessment failure the caller must distinguish.
var ErrCaseNotFound = errors.New("case not found")

// RiskLevel is derived from the score via fixed thresholds.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"

	// RiskIncomplete marks a degraded result produced when an
	// assessment could not complete; never derived from a score.
	RiskIncomplete RiskLevel = "incomplete"
)

// AssessmentResult is the immutable output of one assessment run,
// regenerated wholesale every time.
type AssessmentResult struct {
	ID       string   `json:"id"`
	CaseID   string   `json:"caseId"`
	FirmID   string   `json:"firmId"`
	VisaType VisaType `json:"visaType"`

	// Score in [0,100]; 100 means no risk signals.
	Score     int       `json:"score"`
	RiskLevel RiskLevel `json:"riskLevel"`

	// Estimated probability of an RFE, 0..1 at 3 decimals.
	Probability float64 `json:"probability"`

	// Rules that fired, ordered critical first.
	TriggeredRules []TriggeredRule `json:"triggeredRules"`

	// Rules that evaluated clean. Together with the triggered ids this
	// covers the full catalog for the visa type, minus failed rules.
	SafeRuleIDs []string `json:"safeRuleIds"`

	// Up to 5 recommendation texts from the highest-severity rules.
	PriorityActions []string `json:"priorityActions"`

	// Fraction of completeness probes populated, 0..1 at 3 decimals.
	DataConfidence float64 `json:"dataConfidence"`

	// Degraded is set by the calling layer when an assessment failed
	// unexpectedly and a placeholder is returned instead of an error.
	Degraded bool `json:"degraded,omitempty"`

	TriggerEvent   string    `json:"triggerEvent"`
	AssessedAt     time.Time `json:"assessedAt"`
	FormulaVersion string    `json:"formulaVersion"`
}

// DegradedResult builds the placeholder result the API returns when an
// assessment fails for any reason other than a missing case. UIs render
// it instead of crashing on a hard error.
func DegradedResult(caseID, firmID, trigger string, now time.Time) *AssessmentResult {
	return &AssessmentResult{
		CaseID:         caseID,
		FirmID:         firmID,
		Score:          0,
		RiskLevel:      RiskIncomplete,
		Probability:    0,
		Degraded:       true,
		TriggerEvent:   trigger,
		AssessedAt:     now,
		FormulaVersion: FormulaVersion,
	}
}

// AssessmentHistory is one append-only audit row per run. Rows are
// never mutated or deleted by this subsystem.
type AssessmentHistory struct {
	ID       string   `json:"id"`
	CaseID   string   `json:"caseId"`
	FirmID   string   `json:"firmId"`
	VisaType VisaType `json:"visaType"`

	Score       int       `json:"score"`
	RiskLevel   RiskLevel `json:"riskLevel"`
	Probability float64   `json:"probability"`

	TriggeredRules  []TriggeredRule `json:"triggeredRules"`
	SafeRuleIDs     []string        `json:"safeRuleIds"`
	PriorityActions []string        `json:"priorityActions"`
	DataConfidence  float64         `json:"dataConfidence"`

	TriggerEvent   string    `json:"triggerEvent"`
	FormulaVersion string    `json:"formulaVersion"`
	AssessedAt     time.Time `json:"assessedAt"`
}

// HistoryFromResult projects a result into its audit row.
func HistoryFromResult(r *AssessmentResult) *AssessmentHistory {
	return &AssessmentHistory{
		ID:              r.ID,
		CaseID:          r.CaseID,
		FirmID:          r.FirmID,
		VisaType:        r.VisaType,
		Score:           r.Score,
		RiskLevel:       r.RiskLevel,
		Probability:     r.Probability,
		TriggeredRules:  r.TriggeredRules,
		SafeRuleIDs:     r.SafeRuleIDs,
		PriorityActions: r.PriorityActions,
		DataConfidence:  r.DataConfidence,
		TriggerEvent:    r.TriggerEvent,
		FormulaVersion:  r.FormulaVersion,
		AssessedAt:      r.AssessedAt,
	}
}

// Fresh reports whether the result is still inside the freshness window
// relative to now.
func (r *AssessmentResult) Fresh(now time.Time) bool {
	return now.Sub(r.AssessedAt) < FreshnessWindow
}
