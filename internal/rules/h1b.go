package rules

import (
	"sort"

	"github.com/opencase-legal/kestrel/internal/domain"
)

// Document and form types the H-1B rule set looks for.
const (
	DocLCA                   = "lca"
	DocEmployerSupportLetter = "employer_support_letter"
	DocDegreeCertificate     = "degree_certificate"
	FormI129                 = "I-129"
)

// H1BRules returns the H-1B specialty occupation rule set.
func H1BRules() []domain.Rule {
	return []domain.Rule{
		&ruleDef{
			id:             "h1b-lca-missing",
			severity:       domain.SeverityCritical,
			category:       CategoryDocumentation,
			title:          "Certified LCA missing",
			description:    "No certified Labor Condition Application is on file. An H-1B petition cannot be approved without one.",
			recommendation: "Obtain the certified LCA from the DOL and upload it to the case.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				if ctx.HasDocument(DocLCA) {
					return clean()
				}
				return domain.RuleResult{
					Triggered: true,
					Evidence: domain.Evidence{
						Kind:             domain.EvidenceMissingDocuments,
						MissingDocuments: []string{DocLCA},
					},
					Confidence: 1.0,
				}, nil
			},
		},
		&ruleDef{
			id:             "h1b-support-letter-missing",
			severity:       domain.SeverityMedium,
			category:       CategoryEmployer,
			title:          "Employer support letter missing",
			description:    "No employer support letter describing the role and its requirements has been uploaded.",
			recommendation: "Draft and upload an employer support letter detailing the position and its degree requirement.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				if ctx.HasDocument(DocEmployerSupportLetter) {
					return clean()
				}
				return domain.RuleResult{
					Triggered: true,
					Evidence: domain.Evidence{
						Kind:             domain.EvidenceMissingDocuments,
						MissingDocuments: []string{DocEmployerSupportLetter},
					},
					Confidence: 1.0,
				}, nil
			},
		},
		&ruleDef{
			id:             "h1b-specialty-occupation-gaps",
			severity:       domain.SeverityHigh,
			category:       CategoryForms,
			title:          "Specialty occupation evidence incomplete",
			description:    "The I-129 lacks the fields adjudicators use to judge whether the role is a specialty occupation.",
			recommendation: "Complete the job title, duty description, and degree requirement sections of the I-129.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				required := []string{"job_title", "job_duties", "degree_requirement"}
				form, ok := ctx.Forms[FormI129]
				if !ok {
					return domain.RuleResult{
						Triggered: true,
						Evidence: domain.Evidence{
							Kind:   domain.EvidenceFieldGaps,
							Fields: required,
							Note:   "I-129 not started",
						},
						Confidence: 0.7,
					}, nil
				}
				var gaps []string
				for _, f := range required {
					if _, present := form.Get(f); !present {
						gaps = append(gaps, f)
					}
				}
				if len(gaps) == 0 {
					return clean()
				}
				sort.Strings(gaps)
				return domain.RuleResult{
					Triggered: true,
					Evidence: domain.Evidence{
						Kind:   domain.EvidenceFieldGaps,
						Fields: gaps,
					},
					Confidence: 1.0,
				}, nil
			},
		},
		&ruleDef{
			id:             "h1b-beneficiary-degree-missing",
			severity:       domain.SeverityHigh,
			category:       CategoryBeneficiary,
			title:          "Beneficiary degree evidence missing",
			description:    "Neither a degree certificate upload nor beneficiary degree data is present.",
			recommendation: "Upload the beneficiary's degree certificate and transcripts, with an evaluation if the degree is foreign.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				if ctx.HasDocument(DocDegreeCertificate) {
					return clean()
				}
				if ctx.Beneficiary != nil && ctx.Beneficiary.DegreeLevel != nil {
					// Degree known but certificate not uploaded.
					return domain.RuleResult{
						Triggered: true,
						Evidence: domain.Evidence{
							Kind:             domain.EvidenceMissingDocuments,
							MissingDocuments: []string{DocDegreeCertificate},
						},
						Confidence: 0.8,
					}, nil
				}
				return domain.RuleResult{
					Triggered: true,
					Evidence: domain.Evidence{
						Kind:             domain.EvidenceMissingDocuments,
						MissingDocuments: []string{DocDegreeCertificate},
						Note:             "no degree information at all",
					},
					Confidence: 1.0,
				}, nil
			},
		},
		&ruleDef{
			id:             "h1b-employer-profile-incomplete",
			severity:       domain.SeverityMedium,
			category:       CategoryEmployer,
			title:          "Employer profile incomplete",
			description:    "Core employer identifiers are missing from the case record.",
			recommendation: "Fill in the employer's legal name, FEIN, and employee count.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				emp := ctx.Employer
				if emp == nil {
					return domain.RuleResult{
						Triggered: true,
						Evidence: domain.Evidence{
							Kind: domain.EvidenceFieldGaps,
							Note: "no employer data on record",
						},
						Confidence: 0.9,
					}, nil
				}
				var gaps []string
				if emp.Name == nil {
					gaps = append(gaps, "name")
				}
				if emp.FEIN == nil {
					gaps = append(gaps, "fein")
				}
				if emp.EmployeeCount == nil {
					gaps = append(gaps, "employee_count")
				}
				if len(gaps) == 0 {
					return clean()
				}
				return domain.RuleResult{
					Triggered: true,
					Evidence: domain.Evidence{
						Kind:   domain.EvidenceFieldGaps,
						Fields: gaps,
					},
					Confidence: 1.0,
				}, nil
			},
		},
		&ruleDef{
			id:             "h1b-employer-financials-missing",
			severity:       domain.SeverityHigh,
			category:       CategoryFinancial,
			title:          "Employer financials missing",
			description:    "No employer financial data demonstrating ability to pay the offered wage.",
			recommendation: "Provide recent tax returns or audited financials showing revenue and net income.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				fin := ctx.Financial
				if fin == nil {
					return domain.RuleResult{
						Triggered: true,
						Evidence: domain.Evidence{
							Kind: domain.EvidenceFieldGaps,
							Note: "no financial data on record",
						},
						Confidence: 0.9,
					}, nil
				}
				var gaps []string
				if fin.AnnualRevenue == nil {
					gaps = append(gaps, "annual_revenue")
				}
				if fin.NetIncome == nil {
					gaps = append(gaps, "net_income")
				}
				if len(gaps) == 0 {
					return clean()
				}
				return domain.RuleResult{
					Triggered: true,
					Evidence: domain.Evidence{
						Kind:   domain.EvidenceFieldGaps,
						Fields: gaps,
					},
					Confidence: 1.0,
				}, nil
			},
		},
		&ruleDef{
			id:             "h1b-wage-below-prevailing",
			severity:       domain.SeverityCritical,
			category:       CategoryFinancial,
			title:          "Offered wage below prevailing wage",
			description:    "The offered wage is below the prevailing wage for the occupation and area of employment.",
			recommendation: "Raise the offered wage to at least the prevailing wage, or re-run the prevailing wage determination.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				fin := ctx.Financial
				if fin == nil || fin.OfferedWage == nil || fin.PrevailingWage == nil {
					return uncertain(0.5)
				}
				if *fin.OfferedWage >= *fin.PrevailingWage {
					return clean()
				}
				return domain.RuleResult{
					Triggered: true,
					Evidence: domain.Evidence{
						Kind:   domain.EvidenceFieldGaps,
						Fields: []string{"offered_wage"},
						Note:   "offered wage below prevailing wage",
					},
					Confidence: 1.0,
				}, nil
			},
		},
		&ruleDef{
			id:             "h1b-status-maintenance",
			severity:       domain.SeverityMedium,
			category:       CategoryBeneficiary,
			title:          "Beneficiary status unverified or expired",
			description:    "The beneficiary's current immigration status is unknown or has lapsed relative to the snapshot date.",
			recommendation: "Verify the beneficiary's current status and most recent I-94, and document any gap.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				ben := ctx.Beneficiary
				if ben == nil || ben.CurrentStatus == nil {
					return domain.RuleResult{
						Triggered: true,
						Evidence: domain.Evidence{
							Kind:   domain.EvidenceFieldGaps,
							Fields: []string{"current_status"},
						},
						Confidence: 0.6,
					}, nil
				}
				if ben.StatusExpiry != nil && ben.StatusExpiry.Before(ctx.AsOf) {
					return domain.RuleResult{
						Triggered: true,
						Evidence: domain.Evidence{
							Kind: domain.EvidenceFieldGaps,
							Note: "status expired before assessment date",
						},
						Confidence: 1.0,
					}, nil
				}
				return clean()
			},
		},
	}
}
