package worker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opencase-legal/kestrel/internal/domain"
	"github.com/opencase-legal/kestrel/internal/repository"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	f, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: f.Name(),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func historyRow(id string) *domain.AssessmentHistory {
	return &domain.AssessmentHistory{
		ID:             id,
		CaseID:         "case-1",
		FirmID:         "firm-a",
		VisaType:       domain.VisaH1B,
		Score:          50,
		RiskLevel:      domain.RiskHigh,
		Probability:    0.5,
		TriggerEvent:   "manual",
		FormulaVersion: domain.FormulaVersion,
		AssessedAt:     time.Now().UTC().Truncate(time.Second),
	}
}

func TestHistoryWriterFlushesOnStop(t *testing.T) {
	repo := newTestRepo(t)

	w := NewHistoryWriter(repo, 16)
	w.Start()

	for _, id := range []string{"a", "b", "c"} {
		if !w.Enqueue(historyRow(id)) {
			t.Fatalf("Enqueue(%s) dropped with a near-empty buffer", id)
		}
	}
	w.Stop()

	records, err := repo.ListAssessmentHistory(context.Background(), "firm-a", "case-1", 10)
	if err != nil {
		t.Fatalf("ListAssessmentHistory failed: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("got %d rows after Stop, want all 3 flushed", len(records))
	}

	// Stop is idempotent.
	w.Stop()
}

func TestHistoryWriterDropsWhenFull(t *testing.T) {
	repo := newTestRepo(t)

	// Not started, so nothing drains: the buffer fills immediately.
	w := NewHistoryWriter(repo, 1)

	if !w.Enqueue(historyRow("a")) {
		t.Fatal("first Enqueue should fit the buffer")
	}
	if w.Enqueue(historyRow("b")) {
		t.Error("second Enqueue should be dropped, not block")
	}

	w.Start()
	w.Stop()

	records, err := repo.ListAssessmentHistory(context.Background(), "firm-a", "case-1", 10)
	if err != nil {
		t.Fatalf("ListAssessmentHistory failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != "a" {
		t.Errorf("got %d rows, want only the accepted one", len(records))
	}
}

func TestHistoryWriterNilRow(t *testing.T) {
	w := NewHistoryWriter(newTestRepo(t), 16)
	if w.Enqueue(nil) {
		t.Error("nil row must be rejected")
	}
}
