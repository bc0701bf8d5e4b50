package domain

import "time"

// AnalysisContext is the immutable snapshot a single assessment runs
// against. It is built once per run by the context builder and never
// mutated afterwards; rules receive it read-only.
//
// Optionality is deliberate: a field the source data did not provide
// stays nil so the data-confidence probes can detect the gap. Empty
// collections mean "queried, nothing there"; nil means "unknown".
type AnalysisContext struct {
	CaseID   string
	FirmID   string
	VisaType VisaType
	Status   string
	Deadline *time.Time

	// AsOf is the snapshot instant, fixed by the builder. Rules that
	// need "now" use AsOf so they stay deterministic for a context.
	AsOf time.Time

	// Document types uploaded to the case.
	UploadedDocTypes map[string]bool

	// Document types the checklist requires, with completion state.
	RequiredDocTypes map[string]bool

	// Extracted fields per uploaded document type.
	ExtractedFields map[string]FieldMap

	// Form fields per form type, and the form types present.
	Forms     map[string]FieldMap
	FormTypes []string

	// Number of uploaded documents flagged as bona fide relationship
	// evidence (marriage-based petitions).
	BonaFideEvidenceCount int

	Employer    *EmployerSummary
	Beneficiary *BeneficiarySummary
	Financial   *FinancialSummary
}

// EmployerSummary is the projection of petitioner/employer data the
// rules need. Nil pointer fields mean the source never provided them.
type EmployerSummary struct {
	Name          *string
	FEIN          *string
	EmployeeCount *int
	YearFounded   *int
}

// BeneficiarySummary is the projection of beneficiary data.
type BeneficiarySummary struct {
	CurrentStatus  *string
	StatusExpiry   *time.Time
	DegreeLevel    *string
	DegreeField    *string
	YearsInCountry *int
}

// FinancialSummary is the projection of employer financial data.
type FinancialSummary struct {
	AnnualRevenue  *float64
	NetIncome      *float64
	OfferedWage    *float64
	PrevailingWage *float64
}

// HasDocument reports whether a document of the given type was uploaded.
func (c *AnalysisContext) HasDocument(docType string) bool {
	return c.UploadedDocTypes[docType]
}

// HasForm reports whether a form of the given type is present.
func (c *AnalysisContext) HasForm(formType string) bool {
	_, ok := c.Forms[formType]
	return ok
}

// MissingRequiredDocs returns required document types with no matching
// upload, sorted order not guaranteed.
func (c *AnalysisContext) MissingRequiredDocs() []string {
	var missing []string
	for docType := range c.RequiredDocTypes {
		if !c.UploadedDocTypes[docType] {
			missing = append(missing, docType)
		}
	}
	return missing
}

// DaysToDeadline returns days until the filing deadline relative to the
// snapshot instant, and whether a deadline is set at all.
func (c *AnalysisContext) DaysToDeadline() (int, bool) {
	if c.Deadline == nil {
		return 0, false
	}
	return int(c.Deadline.Sub(c.AsOf).Hours() / 24), true
}
