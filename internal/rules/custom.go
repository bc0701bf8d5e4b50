package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opencase-legal/kestrel/internal/domain"
)

// celEnv wraps the CEL environment custom rules compile against.
type celEnv struct {
	env *cel.Env
}

// newCELEnv creates the CEL environment with the analysis context
// projection custom rules can reference.
func newCELEnv() (*celEnv, error) {
	env, err := cel.NewEnv(
		cel.Variable("visa_type", cel.StringType),
		cel.Variable("case_status", cel.StringType),
		cel.Variable("doc_types", cel.ListType(cel.StringType)),
		cel.Variable("uploaded_doc_count", cel.IntType),
		cel.Variable("required_doc_count", cel.IntType),
		cel.Variable("missing_doc_count", cel.IntType),
		cel.Variable("form_count", cel.IntType),
		cel.Variable("bona_fide_count", cel.IntType),
		// -1 when no deadline is set
		cel.Variable("days_to_deadline", cel.IntType),
		cel.Variable("has_employer", cel.BoolType),
		cel.Variable("has_beneficiary", cel.BoolType),
		cel.Variable("has_financial", cel.BoolType),
	)
	if err != nil {
		return nil, err
	}
	return &celEnv{env: env}, nil
}

// CustomRule is a compiled firm-defined rule. It satisfies domain.Rule
// so the engine treats it exactly like a built-in rule.
type CustomRule struct {
	cfg     *domain.CustomRuleConfig
	program cel.Program
}

func compileCustomRule(env *celEnv, cfg *domain.CustomRuleConfig) (*CustomRule, error) {
	if cfg.Expression == "" {
		return nil, fmt.Errorf("rule %s: expression is required", cfg.ID)
	}

	ast, issues := env.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := env.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CustomRule{cfg: cfg, program: program}, nil
}

func (r *CustomRule) ID() string                { return r.cfg.ID }
func (r *CustomRule) Severity() domain.Severity { return r.cfg.Severity }
func (r *CustomRule) Category() string          { return r.cfg.Category }
func (r *CustomRule) Title() string             { return r.cfg.Title }
func (r *CustomRule) Description() string       { return r.cfg.Description }
func (r *CustomRule) Recommendation() string    { return r.cfg.Recommendation }

// AppliesTo reports whether the rule covers the visa type. An empty
// VisaTypes list means the rule applies to every case.
func (r *CustomRule) AppliesTo(visa domain.VisaType) bool {
	if len(r.cfg.VisaTypes) == 0 {
		return true
	}
	for _, v := range r.cfg.VisaTypes {
		if v == visa {
			return true
		}
	}
	return false
}

// Evaluate runs the compiled CEL program against the context projection.
func (r *CustomRule) Evaluate(ac *domain.AnalysisContext) (domain.RuleResult, error) {
	out, _, err := r.program.Eval(activation(ac))
	if err != nil {
		return domain.RuleResult{}, fmt.Errorf("evaluation error: %w", err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return domain.RuleResult{}, fmt.Errorf("expression returned non-bool value")
	}

	if !bool(b) {
		return domain.RuleResult{Triggered: false, Confidence: 1.0}, nil
	}
	return domain.RuleResult{
		Triggered: true,
		Evidence: domain.Evidence{
			Kind: domain.EvidenceExpression,
			Note: r.cfg.Expression,
		},
		Confidence: 1.0,
	}, nil
}

// activation projects the analysis context into the CEL variable map.
func activation(ac *domain.AnalysisContext) map[string]any {
	docTypes := make([]string, 0, len(ac.UploadedDocTypes))
	for d := range ac.UploadedDocTypes {
		docTypes = append(docTypes, d)
	}

	days := -1
	if d, ok := ac.DaysToDeadline(); ok {
		days = d
	}

	return map[string]any{
		"visa_type":          string(ac.VisaType),
		"case_status":        ac.Status,
		"doc_types":          docTypes,
		"uploaded_doc_count": len(ac.UploadedDocTypes),
		"required_doc_count": len(ac.RequiredDocTypes),
		"missing_doc_count":  len(ac.MissingRequiredDocs()),
		"form_count":         len(ac.Forms),
		"bona_fide_count":    ac.BonaFideEvidenceCount,
		"days_to_deadline":   days,
		"has_employer":       ac.Employer != nil,
		"has_beneficiary":    ac.Beneficiary != nil,
		"has_financial":      ac.Financial != nil,
	}
}
