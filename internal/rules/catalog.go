// Package rules provides the rule catalog and the evaluation engine.
package rules

import (
	"github.com/opencase-legal/kestrel/internal/domain"
)

// Catalog is the registry from visa type to its rule set. Registration
// order has no effect on output; the engine re-derives ordering by
// severity after evaluation.
type Catalog struct {
	common []domain.Rule
	byVisa map[domain.VisaType][]domain.Rule
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		byVisa: make(map[domain.VisaType][]domain.Rule),
	}
}

// DefaultCatalog returns the built-in catalog: the common rule set plus
// the visa-specific sets.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	c.RegisterCommon(CommonRules()...)
	c.Register(domain.VisaH1B, H1BRules()...)
	c.Register(domain.VisaI130, I130Rules()...)
	return c
}

// RegisterCommon adds rules that apply to every visa type.
func (c *Catalog) RegisterCommon(rules ...domain.Rule) {
	c.common = append(c.common, rules...)
}

// Register adds rules for a specific visa type.
func (c *Catalog) Register(visa domain.VisaType, rules ...domain.Rule) {
	c.byVisa[visa] = append(c.byVisa[visa], rules...)
}

// RulesFor returns the full rule set applicable to a visa type: the
// common set followed by the visa-specific set. Unknown visa types get
// the common set only.
func (c *Catalog) RulesFor(visa domain.VisaType) []domain.Rule {
	out := make([]domain.Rule, 0, len(c.common)+len(c.byVisa[visa]))
	out = append(out, c.common...)
	out = append(out, c.byVisa[visa]...)
	return out
}

// Count returns the total number of registered rules.
func (c *Catalog) Count() int {
	n := len(c.common)
	for _, rs := range c.byVisa {
		n += len(rs)
	}
	return n
}

// VisaTypes returns the visa types with a dedicated rule set.
func (c *Catalog) VisaTypes() []domain.VisaType {
	types := make([]domain.VisaType, 0, len(c.byVisa))
	for v := range c.byVisa {
		types = append(types, v)
	}
	return types
}

// ruleDef implements domain.Rule around a pure evaluation function.
// The built-in catalog is expressed as ruleDef literals.
type ruleDef struct {
	id             string
	severity       domain.Severity
	category       string
	title          string
	description    string
	recommendation string
	eval           func(ctx *domain.AnalysisContext) (domain.RuleResult, error)
}

func (r *ruleDef) ID() string                { return r.id }
func (r *ruleDef) Severity() domain.Severity { return r.severity }
func (r *ruleDef) Category() string          { return r.category }
func (r *ruleDef) Title() string             { return r.title }
func (r *ruleDef) Description() string       { return r.description }
func (r *ruleDef) Recommendation() string    { return r.recommendation }

func (r *ruleDef) Evaluate(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
	return r.eval(ctx)
}

// clean is the result of a rule that found nothing.
func clean() (domain.RuleResult, error) {
	return domain.RuleResult{Triggered: false, Confidence: 1.0}, nil
}

// uncertain is a non-triggered result where the rule could not actually
// verify its condition (input absent), with reduced confidence.
func uncertain(confidence float64) (domain.RuleResult, error) {
	return domain.RuleResult{Triggered: false, Confidence: confidence}, nil
}

func intptr(v int) *int { return &v }
