package casedata

import (
	"strconv"
	"time"

	"github.com/opencase-legal/kestrel/internal/domain"
)

// Field sources for the derived summaries. Employer and beneficiary
// data comes from form fields; financial figures come from fields
// extracted out of uploaded documents.
const (
	docTaxReturn = "tax_return"
	docLCA       = "lca"
)

// formsWithEmployerData lists the forms the employer projection scans,
// in priority order.
var formsWithEmployerData = []string{"I-129", "employer_profile"}

// formsWithBeneficiaryData lists the forms the beneficiary projection
// scans, in priority order.
var formsWithBeneficiaryData = []string{"I-129", "I-130", "beneficiary_profile"}

// projectEmployer derives the employer summary from form fields.
// Returns nil when no employer field is present anywhere — absence must
// stay visible to the confidence probes.
func projectEmployer(ac *domain.AnalysisContext) *domain.EmployerSummary {
	s := &domain.EmployerSummary{}
	found := false
	for _, formType := range formsWithEmployerData {
		form, ok := ac.Forms[formType]
		if !ok {
			continue
		}
		if v, ok := form.Get("employer_name"); ok && s.Name == nil {
			s.Name, found = &v, true
		}
		if v, ok := form.Get("employer_fein"); ok && s.FEIN == nil {
			s.FEIN, found = &v, true
		}
		if n, ok := intField(form, "employer_employee_count"); ok && s.EmployeeCount == nil {
			s.EmployeeCount, found = n, true
		}
		if n, ok := intField(form, "employer_year_founded"); ok && s.YearFounded == nil {
			s.YearFounded, found = n, true
		}
	}
	if !found {
		return nil
	}
	return s
}

// projectBeneficiary derives the beneficiary summary from form fields.
func projectBeneficiary(ac *domain.AnalysisContext) *domain.BeneficiarySummary {
	s := &domain.BeneficiarySummary{}
	found := false
	for _, formType := range formsWithBeneficiaryData {
		form, ok := ac.Forms[formType]
		if !ok {
			continue
		}
		if v, ok := form.Get("beneficiary_current_status"); ok && s.CurrentStatus == nil {
			s.CurrentStatus, found = &v, true
		}
		if t, ok := dateField(form, "beneficiary_status_expiry"); ok && s.StatusExpiry == nil {
			s.StatusExpiry, found = t, true
		}
		if v, ok := form.Get("beneficiary_degree_level"); ok && s.DegreeLevel == nil {
			s.DegreeLevel, found = &v, true
		}
		if v, ok := form.Get("beneficiary_degree_field"); ok && s.DegreeField == nil {
			s.DegreeField, found = &v, true
		}
		if n, ok := intField(form, "beneficiary_years_in_country"); ok && s.YearsInCountry == nil {
			s.YearsInCountry, found = n, true
		}
	}
	if !found {
		return nil
	}
	return s
}

// projectFinancial derives the financial summary from extracted
// document fields: revenue and income from the tax return, wages from
// the LCA.
func projectFinancial(ac *domain.AnalysisContext) *domain.FinancialSummary {
	s := &domain.FinancialSummary{}
	found := false
	if tax, ok := ac.ExtractedFields[docTaxReturn]; ok {
		if f, ok := floatField(tax, "annual_revenue"); ok {
			s.AnnualRevenue, found = f, true
		}
		if f, ok := floatField(tax, "net_income"); ok {
			s.NetIncome, found = f, true
		}
	}
	if lca, ok := ac.ExtractedFields[docLCA]; ok {
		if f, ok := floatField(lca, "offered_wage"); ok {
			s.OfferedWage, found = f, true
		}
		if f, ok := floatField(lca, "prevailing_wage"); ok {
			s.PrevailingWage, found = f, true
		}
	}
	if !found {
		return nil
	}
	return s
}

func intField(m domain.FieldMap, name string) (*int, bool) {
	v, ok := m.Get(name)
	if !ok {
		return nil, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, false
	}
	return &n, true
}

func floatField(m domain.FieldMap, name string) (*float64, bool) {
	v, ok := m.Get(name)
	if !ok {
		return nil, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, false
	}
	return &f, true
}

func dateField(m domain.FieldMap, name string) (*time.Time, bool) {
	v, ok := m.Get(name)
	if !ok {
		return nil, false
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, false
	}
	return &t, true
}
