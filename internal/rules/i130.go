package rules

import (
	"sort"

	"github.com/opencase-legal/kestrel/internal/domain"
)

// Document and form types the I-130 rule set looks for.
const (
	DocJointBankStatement = "joint_bank_statement"
	DocJointTaxReturn     = "joint_tax_return"
	DocJointLease         = "joint_lease"
	DocSharedUtilityBill  = "shared_utility_bill"
	DocRelationshipPhotos = "relationship_photos"
	FormI130              = "I-130"
)

// bonaFideEvidenceTarget is the minimum count of bona fide evidence
// documents before the relationship record stops looking thin.
const bonaFideEvidenceTarget = 3

// I130Rules returns the family-based petition rule set.
func I130Rules() []domain.Rule {
	return []domain.Rule{
		&ruleDef{
			id:             "i130-no-bona-fide-evidence",
			severity:       domain.SeverityCritical,
			category:       CategoryRelationship,
			title:          "No bona fide relationship evidence",
			description:    "No uploaded document is flagged as bona fide relationship evidence. Marriage-based petitions without it are routinely questioned.",
			recommendation: "Gather joint financial records, photos, correspondence, and affidavits establishing the relationship.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				if ctx.BonaFideEvidenceCount > 0 {
					return clean()
				}
				return domain.RuleResult{
					Triggered: true,
					Evidence: domain.Evidence{
						Kind:      domain.EvidenceCount,
						Count:     intptr(0),
						Threshold: intptr(bonaFideEvidenceTarget),
					},
					Confidence: 1.0,
				}, nil
			},
		},
		&ruleDef{
			id:             "i130-bona-fide-evidence-thin",
			severity:       domain.SeverityHigh,
			category:       CategoryRelationship,
			title:          "Bona fide evidence thin",
			description:    "Some bona fide relationship evidence exists but less than adjudicators typically expect.",
			recommendation: "Add further independent categories of relationship evidence beyond what is already on file.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				n := ctx.BonaFideEvidenceCount
				if n == 0 || n >= bonaFideEvidenceTarget {
					return clean()
				}
				return domain.RuleResult{
					Triggered: true,
					Evidence: domain.Evidence{
						Kind:      domain.EvidenceCount,
						Count:     intptr(n),
						Threshold: intptr(bonaFideEvidenceTarget),
					},
					Confidence: 1.0,
				}, nil
			},
		},
		&ruleDef{
			id:             "i130-joint-financials-missing",
			severity:       domain.SeverityMedium,
			category:       CategoryFinancial,
			title:          "Joint financial records missing",
			description:    "No joint bank statements, joint tax returns, or joint lease are on file.",
			recommendation: "Upload at least one category of commingled financial evidence.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				for _, d := range []string{DocJointBankStatement, DocJointTaxReturn, DocJointLease} {
					if ctx.HasDocument(d) {
						return clean()
					}
				}
				return domain.RuleResult{
					Triggered: true,
					Evidence: domain.Evidence{
						Kind:             domain.EvidenceMissingDocuments,
						MissingDocuments: []string{DocJointBankStatement, DocJointTaxReturn, DocJointLease},
						Note:             "any one category suffices",
					},
					Confidence: 1.0,
				}, nil
			},
		},
		&ruleDef{
			id:             "i130-petition-form-incomplete",
			severity:       domain.SeverityHigh,
			category:       CategoryForms,
			title:          "I-130 petition incomplete",
			description:    "Key I-130 fields are empty or the form has not been started.",
			recommendation: "Complete the petitioner citizenship, beneficiary address, and marriage date sections of the I-130.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				required := []string{"petitioner_citizenship", "beneficiary_address", "marriage_date"}
				form, ok := ctx.Forms[FormI130]
				if !ok {
					return domain.RuleResult{
						Triggered: true,
						Evidence: domain.Evidence{
							Kind:   domain.EvidenceFieldGaps,
							Fields: required,
							Note:   "I-130 not started",
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
			id:             "i130-petitioner-status-evidence",
			severity:       domain.SeverityHigh,
			category:       CategoryDocumentation,
			title:          "Petitioner status evidence missing",
			description:    "No document proving the petitioner's citizenship or permanent residence is on file.",
			recommendation: "Upload the petitioner's birth certificate, naturalization certificate, passport, or green card.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				accepted := []string{"us_birth_certificate", "naturalization_certificate", "us_passport", "green_card"}
				for _, d := range accepted {
					if ctx.HasDocument(d) {
						return clean()
					}
				}
				return domain.RuleResult{
					Triggered: true,
					Evidence: domain.Evidence{
						Kind:             domain.EvidenceMissingDocuments,
						MissingDocuments: accepted,
						Note:             "any one document suffices",
					},
					Confidence: 1.0,
				}, nil
			},
		},
		&ruleDef{
			id:             "i130-cohabitation-evidence",
			severity:       domain.SeverityLow,
			category:       CategoryRelationship,
			title:          "Cohabitation evidence missing",
			description:    "Nothing on file places the couple at a shared residence.",
			recommendation: "Add a joint lease, shared utility bills, or photos establishing cohabitation.",
			eval: func(ctx *domain.AnalysisContext) (domain.RuleResult, error) {
				for _, d := range []string{DocJointLease, DocSharedUtilityBill, DocRelationshipPhotos} {
					if ctx.HasDocument(d) {
						return clean()
					}
				}
				return domain.RuleResult{
					Triggered: true,
					Evidence: domain.Evidence{
						Kind:             domain.EvidenceMissingDocuments,
						MissingDocuments: []string{DocJointLease, DocSharedUtilityBill, DocRelationshipPhotos},
						Note:             "any one document suffices",
					},
					Confidence: 1.0,
				}, nil
			},
		},
	}
}
