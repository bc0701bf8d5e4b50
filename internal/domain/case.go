package domain

import (
	"time"
)

// VisaType is the immigration benefit category sought by a case.
// It determines which rule set the engine applies.
type VisaType string

const (
	VisaH1B  VisaType = "H-1B"
	VisaI130 VisaType = "I-130"
	VisaO1   VisaType = "O-1"
	VisaL1   VisaType = "L-1"
)

// Case statuses as tracked by the case management layer.
const (
	CaseStatusIntake    = "intake"
	CaseStatusPreparing = "preparing"
	CaseStatusReview    = "review"
	CaseStatusFiled     = "filed"
	CaseStatusRFE       = "rfe_received"
	CaseStatusClosed    = "closed"
)

// Case is the persisted case record.
type Case struct {
	ID       string   `json:"id"`
	FirmID   string   `json:"firmId"`
	VisaType VisaType `json:"visaType"`
	Status   string   `json:"status"`

	// Filing deadline, if one has been set.
	Deadline *time.Time `json:"deadline,omitempty"`

	// Cached assessment fields, written through on every run.
	RiskScore      *int       `json:"riskScore,omitempty"`
	RiskLevel      string     `json:"riskLevel,omitempty"`
	LastAssessment []byte     `json:"-"` // serialized AssessmentResult
	AssessedAt     *time.Time `json:"assessedAt,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"-"` // soft delete marker
}

// Document is an uploaded case document with fields already extracted
// by the upstream pipeline. Kestrel never reads document content.
type Document struct {
	ID       string   `json:"id"`
	CaseID   string   `json:"caseId"`
	DocType  string   `json:"docType"`
	BonaFide bool     `json:"bonaFide"` // counts as bona fide relationship evidence
	Fields   FieldMap `json:"fields,omitempty"`

	UploadedAt time.Time `json:"uploadedAt"`
}

// ChecklistItem is one required document type on the case checklist.
type ChecklistItem struct {
	CaseID    string `json:"caseId"`
	DocType   string `json:"docType"`
	Completed bool   `json:"completed"`
}

// FormSubmission is a government form filled for the case.
type FormSubmission struct {
	CaseID   string   `json:"caseId"`
	FormType string   `json:"formType"` // e.g. "I-129", "I-130", "G-28"
	Fields   FieldMap `json:"fields,omitempty"`
}

// FieldMap holds extracted or entered field values keyed by field name.
// Absent fields are simply not present; values are never defaulted.
type FieldMap map[string]string

// Get returns the value and whether the field is present and non-empty.
func (m FieldMap) Get(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
