package scoring

import (
	"github.com/opencase-legal/kestrel/internal/domain"
)

// Probe is one named completeness check over the analysis context. The
// probe set is fixed and enumerable so the data-confidence metric and
// its tests cannot drift apart.
type Probe struct {
	Name  string
	Check func(ac *domain.AnalysisContext) bool
}

// CompletenessProbes returns the fixed probe set, in a stable order.
func CompletenessProbes() []Probe {
	return []Probe{
		{
			Name:  "document_types",
			Check: func(ac *domain.AnalysisContext) bool { return len(ac.UploadedDocTypes) > 0 },
		},
		{
			Name:  "checklist",
			Check: func(ac *domain.AnalysisContext) bool { return len(ac.RequiredDocTypes) > 0 },
		},
		{
			Name:  "forms",
			Check: func(ac *domain.AnalysisContext) bool { return len(ac.Forms) > 0 },
		},
		{
			Name:  "employer_profile",
			Check: func(ac *domain.AnalysisContext) bool { return ac.Employer != nil },
		},
		{
			Name:  "beneficiary_profile",
			Check: func(ac *domain.AnalysisContext) bool { return ac.Beneficiary != nil },
		},
		{
			Name:  "financial_profile",
			Check: func(ac *domain.AnalysisContext) bool { return ac.Financial != nil },
		},
	}
}

// DataConfidence is the fraction of completeness probes populated for
// the context, rounded to 3 decimals. 0 when everything is absent, 1
// when everything is present.
func DataConfidence(ac *domain.AnalysisContext) float64 {
	probes := CompletenessProbes()
	populated := 0
	for _, p := range probes {
		if p.Check(ac) {
			populated++
		}
	}
	return round3(float64(populated) / float64(len(probes)))
}
