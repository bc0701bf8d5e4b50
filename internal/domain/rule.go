package domain

// Severity classifies how much a triggered rule penalizes the score.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities for output sorting: critical first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// Rule is one named, deterministic risk predicate over case context.
// Evaluate must be pure: no I/O, no wall clock, no randomness. Identical
// context always yields an identical result. Failures surface as a
// returned error (or a panic, which the engine recovers); either way the
// engine isolates the rule and the run continues.
type Rule interface {
	ID() string
	Severity() Severity
	Category() string
	Title() string
	Description() string
	Recommendation() string
	Evaluate(ctx *AnalysisContext) (RuleResult, error)
}

// RuleResult is the output of a single rule evaluation.
type RuleResult struct {
	Triggered bool `json:"triggered"`

	// Evidence explains what the rule saw. Kind tags the payload shape.
	Evidence Evidence `json:"evidence,omitempty"`

	// Confidence in the finding, 0..1. Scales the severity penalty.
	Confidence float64 `json:"confidence"`
}

// Evidence kinds used by the built-in catalog.
const (
	EvidenceMissingDocuments = "missing_documents"
	EvidenceFieldGaps        = "field_gaps"
	EvidenceCount            = "count"
	EvidenceDeadline         = "deadline"
	EvidenceExpression       = "expression"
)

// Evidence is the structured, rule-specific payload attached to a
// result. Only the fields relevant to Kind are populated.
type Evidence struct {
	Kind string `json:"kind,omitempty"`

	MissingDocuments []string `json:"missingDocuments,omitempty"`
	Fields           []string `json:"fields,omitempty"`
	Count            *int     `json:"count,omitempty"`
	Threshold        *int     `json:"threshold,omitempty"`
	DaysRemaining    *int     `json:"daysRemaining,omitempty"`
	Note             string   `json:"note,omitempty"`
}

// TriggeredRule combines rule metadata with its evaluation result for
// output. Ordered by severity (critical first) in AssessmentResult.
type TriggeredRule struct {
	RuleID         string   `json:"ruleId"`
	Severity       Severity `json:"severity"`
	Category       string   `json:"category"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
	Evidence       Evidence `json:"evidence,omitempty"`
	Confidence     float64  `json:"confidence"`
}

// CustomRuleConfig is a firm-defined rule expressed as a CEL predicate
// over the analysis context. Stored in the database and compiled into
// the engine at load time.
type CustomRuleConfig struct {
	ID             string   `json:"id"`
	FirmID         string   `json:"firmId"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	Severity       Severity `json:"severity"`
	Recommendation string   `json:"recommendation"`

	// CEL expression returning bool; true means triggered.
	Expression string `json:"expression"`

	// Visa types the rule applies to. Empty means all.
	VisaTypes []VisaType `json:"visaTypes,omitempty"`

	Enabled bool `json:"enabled"`
}
