package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/opencase-legal/kestrel/internal/domain"
)

// Engine evaluates every rule applicable to a context, isolating
// per-rule failures. A defective rule never aborts an assessment: its
// id is logged and excluded from both the triggered and safe sets.
type Engine struct {
	mu         sync.RWMutex
	catalog    *Catalog
	custom     map[string][]*CustomRule // firmID -> compiled custom rules
	celEnv     *celEnv
	maxWorkers int
}

// Outcome partitions one evaluation pass over the applicable rules.
type Outcome struct {
	// Triggered rules, ordered by severity (critical first), ties
	// broken by rule id so output is deterministic.
	Triggered []domain.TriggeredRule

	// Rule ids that evaluated and did not trigger, sorted.
	SafeRuleIDs []string

	// Rule ids whose evaluation failed, sorted. Excluded from both
	// sets above.
	FailedRuleIDs []string
}

// NewEngine creates an engine over the given catalog.
func NewEngine(catalog *Catalog, maxWorkers int) (*Engine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := newCELEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		catalog:    catalog,
		custom:     make(map[string][]*CustomRule),
		celEnv:     env,
		maxWorkers: maxWorkers,
	}, nil
}

// ValidateCustomRule compiles a custom rule config without loading it.
func (e *Engine) ValidateCustomRule(cfg *domain.CustomRuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	_, err := compileCustomRule(e.celEnv, cfg)
	return err
}

// LoadCustomRules compiles and loads a firm's custom rules, replacing
// any previously loaded set for that firm. Enables hot-reloading from
// the database.
func (e *Engine) LoadCustomRules(firmID string, configs []*domain.CustomRuleConfig) error {
	compiled := make([]*CustomRule, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		cr, err := compileCustomRule(e.celEnv, cfg)
		if err != nil {
			return err
		}
		compiled = append(compiled, cr)
	}

	e.mu.Lock()
	e.custom[firmID] = compiled
	e.mu.Unlock()

	return nil
}

// CustomRuleCount returns the number of compiled custom rules for a firm.
func (e *Engine) CustomRuleCount(firmID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.custom[firmID])
}

// Catalog returns the built-in catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// rulesFor assembles the applicable rule set: built-in catalog rules
// for the visa type plus the firm's custom rules matching it.
func (e *Engine) rulesFor(firmID string, visa domain.VisaType) []domain.Rule {
	applicable := e.catalog.RulesFor(visa)

	e.mu.RLock()
	for _, cr := range e.custom[firmID] {
		if cr.AppliesTo(visa) {
			applicable = append(applicable, cr)
		}
	}
	e.mu.RUnlock()

	return applicable
}

// Evaluate runs every applicable rule against the context in parallel.
// Evaluation order is unspecified; only the final triggered ordering is
// deterministic. The context argument is accepted for a future phase
// with model-backed rules; phase-1 rules never block.
func (e *Engine) Evaluate(ctx context.Context, ac *domain.AnalysisContext) *Outcome {
	applicable := e.rulesFor(ac.FirmID, ac.VisaType)
	if len(applicable) == 0 {
		return &Outcome{}
	}

	type evaluated struct {
		rule   domain.Rule
		result domain.RuleResult
		err    error
	}

	results := make([]evaluated, len(applicable))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range applicable {
		wg.Add(1)
		go func(idx int, r domain.Rule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			res, err := safeEvaluate(r, ac)
			results[idx] = evaluated{rule: r, result: res, err: err}
		}(i, rule)
	}

	wg.Wait()

	out := &Outcome{}
	for _, ev := range results {
		if ev.err != nil {
			slog.Error("rule evaluation failed",
				"rule_id", ev.rule.ID(),
				"case_id", ac.CaseID,
				"error", ev.err,
			)
			out.FailedRuleIDs = append(out.FailedRuleIDs, ev.rule.ID())
			continue
		}
		if ev.result.Triggered {
			out.Triggered = append(out.Triggered, domain.TriggeredRule{
				RuleID:         ev.rule.ID(),
				Severity:       ev.rule.Severity(),
				Category:       ev.rule.Category(),
				Title:          ev.rule.Title(),
				Description:    ev.rule.Description(),
				Recommendation: ev.rule.Recommendation(),
				Evidence:       ev.result.Evidence,
				Confidence:     clampConfidence(ev.result.Confidence),
			})
		} else {
			out.SafeRuleIDs = append(out.SafeRuleIDs, ev.rule.ID())
		}
	}

	sort.Slice(out.Triggered, func(i, j int) bool {
		ri, rj := out.Triggered[i].Severity.Rank(), out.Triggered[j].Severity.Rank()
		if ri != rj {
			return ri < rj
		}
		return out.Triggered[i].RuleID < out.Triggered[j].RuleID
	})
	sort.Strings(out.SafeRuleIDs)
	sort.Strings(out.FailedRuleIDs)

	return out
}

// safeEvaluate runs one rule, converting a panic into an error so a
// defective rule cannot take down the run.
func safeEvaluate(r domain.Rule, ac *domain.AnalysisContext) (res domain.RuleResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("rule panicked: %v", p)
		}
	}()
	return r.Evaluate(ac)
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
