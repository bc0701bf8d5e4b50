// Package casedata builds the immutable analysis snapshot a risk
// assessment runs against.
package casedata

import (
	"context"
	"sync"
	"time"

	"github.com/opencase-legal/kestrel/internal/domain"
)

// Builder reads case, document, checklist, and form data and projects
// them into an AnalysisContext. Reads are independent and issued in
// parallel; the builder itself is read-only.
type Builder struct {
	repo domain.Repository

	// now is swappable in tests; the snapshot instant fixed here keeps
	// rule evaluation deterministic for the built context.
	now func() time.Time
}

// NewBuilder creates a context builder over the repository.
func NewBuilder(repo domain.Repository) *Builder {
	return &Builder{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Build produces the analysis context for a case, or
// domain.ErrCaseNotFound when the case row is missing or soft-deleted.
// Missing optional data (no documents, no checklist, no forms) is not
// an error: the corresponding context fields stay empty so the
// data-confidence probes can see the gaps.
func (b *Builder) Build(ctx context.Context, firmID, caseID string) (*domain.AnalysisContext, error) {
	var (
		c         *domain.Case
		documents []*domain.Document
		checklist []*domain.ChecklistItem
		forms     []*domain.FormSubmission

		caseErr, docErr, chkErr, formErr error
	)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		c, caseErr = b.repo.GetCase(ctx, firmID, caseID)
	}()
	go func() {
		defer wg.Done()
		documents, docErr = b.repo.GetDocuments(ctx, firmID, caseID)
	}()
	go func() {
		defer wg.Done()
		checklist, chkErr = b.repo.GetChecklist(ctx, firmID, caseID)
	}()
	go func() {
		defer wg.Done()
		forms, formErr = b.repo.GetForms(ctx, firmID, caseID)
	}()
	wg.Wait()

	// The case read decides whether the run happens at all.
	if caseErr != nil {
		return nil, caseErr
	}
	for _, err := range []error{docErr, chkErr, formErr} {
		if err != nil {
			return nil, err
		}
	}

	ac := &domain.AnalysisContext{
		CaseID:           c.ID,
		FirmID:           c.FirmID,
		VisaType:         c.VisaType,
		Status:           c.Status,
		Deadline:         c.Deadline,
		AsOf:             b.now(),
		UploadedDocTypes: make(map[string]bool),
		RequiredDocTypes: make(map[string]bool),
		ExtractedFields:  make(map[string]domain.FieldMap),
		Forms:            make(map[string]domain.FieldMap),
	}

	for _, d := range documents {
		ac.UploadedDocTypes[d.DocType] = true
		if len(d.Fields) > 0 {
			ac.ExtractedFields[d.DocType] = d.Fields
		}
		if d.BonaFide {
			ac.BonaFideEvidenceCount++
		}
	}

	for _, item := range checklist {
		ac.RequiredDocTypes[item.DocType] = item.Completed
	}

	for _, f := range forms {
		ac.Forms[f.FormType] = f.Fields
		ac.FormTypes = append(ac.FormTypes, f.FormType)
	}

	ac.Employer = projectEmployer(ac)
	ac.Beneficiary = projectBeneficiary(ac)
	ac.Financial = projectFinancial(ac)

	return ac, nil
}
