package rules

import (
	"sort"

	"github.com/opencase-legal/kestrel/internal/domain"
)

// Rule categories used by the built-in catalog.
const (
	CategoryDocumentation = "documentation"
	CategoryTimeline      = "timeline"
	CategoryForms         = "forms"
	CategoryEmployer      = "employer"
	CategoryBeneficiary   = "beneficiary"
	CategoryFinancial     = "financial"
	CategoryRelationship  = "relationship_evidence"
)

// deadlineWarningDays is how far out a filing deadline starts to matter
// when the case still has document gaps.
const deadlineWarningDays = 30

// deadlineUrgentDays flags the deadline regardless of document state.
const deadlineUrgentDays = 14

// CommonRules returns the rules applied to every visa type.
func CommonRules() []domain.Rule {
	return []domain.Rule{
		&ruleDef{
			id:             "common-no-documents",
			severity:       domain.SeverityCritical,
			category:       CategoryDocumentation,
			title:          "No documents uploaded",
			description:    "The case has no uploaded documents at all. Petitions filed without supporting documentation almost always draw an evidence request.",
			recommendation: "Upload the core supporting documents for this petition before filing.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				if len(ctx.UploadedDocTypes) > 0 {
					return clean()
				}
				return domain.RuleResult{
					Triggered: true,
					Evidence: domain.Evidence{
						Kind:  domain.EvidenceCount,
						Count: intptr(0),
						Note:  "no uploaded documents on record",
					},
					Confidence: 1.0,
				}, nil
			},
		},
		&ruleDef{
			id:             "common-missing-required-documents",
			severity:       domain.SeverityHigh,
			category:       CategoryDocumentation,
			title:          "Required documents missing",
			description:    "One or more document types on the case checklist have no matching upload.",
			recommendation: "Collect and upload every document type the checklist requires.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				if len(ctx.RequiredDocTypes) == 0 {
					// Checklist unknown; cannot verify either way.
					return uncertain(0.4)
				}
				missing := ctx.MissingRequiredDocs()
				if len(missing) == 0 {
					return clean()
				}
				sort.Strings(missing)
				return domain.RuleResult{
					Triggered: true,
					Evidence: domain.Evidence{
						Kind:             domain.EvidenceMissingDocuments,
						MissingDocuments: missing,
					},
					Confidence: 1.0,
				}, nil
			},
		},
		&ruleDef{
			id:             "common-checklist-incomplete",
			severity:       domain.SeverityMedium,
			category:       CategoryDocumentation,
			title:          "Checklist items open",
			description:    "Checklist items remain unchecked by the preparing attorney.",
			recommendation: "Work through the open checklist items and mark them complete.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				if len(ctx.RequiredDocTypes) == 0 {
					return uncertain(0.4)
				}
				var open []string
				for docType, completed := range ctx.RequiredDocTypes {
					if !completed {
						open = append(open, docType)
					}
				}
				if len(open) == 0 {
					return clean()
				}
				sort.Strings(open)
				return domain.RuleResult{
					Triggered: true,
					Evidence: domain.Evidence{
						Kind:   domain.EvidenceFieldGaps,
						Fields: open,
						Count:  intptr(len(open)),
					},
					Confidence: 1.0,
				}, nil
			},
		},
		&ruleDef{
			id:             "common-deadline-pressure",
			severity:       domain.SeverityHigh,
			category:       CategoryTimeline,
			title:          "Filing deadline approaching with gaps",
			description:    "The filing deadline is near while the case still has documentation gaps, or is imminent outright.",
			recommendation: "Prioritize closing the documentation gaps, or prepare a deadline extension request.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				days, ok := ctx.DaysToDeadline()
				if !ok {
					return uncertain(0.5)
				}
				gaps := len(ctx.MissingRequiredDocs()) > 0 || len(ctx.UploadedDocTypes) == 0
				if days < 0 || days <= deadlineUrgentDays || (days <= deadlineWarningDays && gaps) {
					return domain.RuleResult{
						Triggered: true,
						Evidence: domain.Evidence{
							Kind:          domain.EvidenceDeadline,
							DaysRemaining: intptr(days),
						},
						Confidence: 1.0,
					}, nil
				}
				return clean()
			},
		},
		&ruleDef{
			id:             "common-forms-missing",
			severity:       domain.SeverityHigh,
			category:       CategoryForms,
			title:          "No form data present",
			description:    "No government forms have been filled for the case.",
			recommendation: "Complete the petition forms required for this visa category.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				if len(ctx.Forms) > 0 {
					return clean()
				}
				return domain.RuleResult{
					Triggered: true,
					Evidence: domain.Evidence{
						Kind: domain.EvidenceCount,
						Note: "no form submissions on record",
					},
					Confidence: 1.0,
				}, nil
			},
		},
	}
}
