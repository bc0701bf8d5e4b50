// Package worker provides async processing: the assessment history
// writer and the case-change consumer.
package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/opencase-legal/kestrel/internal/domain"
)

// HistoryWriter drains assessment audit rows to the repository on a
// background goroutine. Enqueue never blocks: when the buffer is full
// the row is dropped, which is acceptable for the audit trail but must
// be logged by the caller.
type HistoryWriter struct {
	repo domain.Repository
	ch   chan *domain.AssessmentHistory

	stopOnce sync.Once
	done     chan struct{}
}

// NewHistoryWriter creates a history writer with the given buffer size.
func NewHistoryWriter(repo domain.Repository, bufferSize int) *HistoryWriter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &HistoryWriter{
		repo: repo,
		ch:   make(chan *domain.AssessmentHistory, bufferSize),
		done: make(chan struct{}),
	}
}

// Start launches the drain goroutine.
func (w *HistoryWriter) Start() {
	go w.drain()
	slog.Info("history writer started", "buffer", cap(w.ch))
}

func (w *HistoryWriter) drain() {
	defer close(w.done)
	for rec := range w.ch {
		// Insertion uses its own context: a cancelled request must not
		// lose a row already accepted.
		if err := w.repo.InsertAssessmentHistory(context.Background(), rec.FirmID, rec); err != nil {
			slog.Error("failed to insert assessment history",
				"case_id", rec.CaseID,
				"assessment_id", rec.ID,
				"error", err,
			)
		}
	}
}

// Enqueue queues one audit row. Returns false when the row was dropped.
func (w *HistoryWriter) Enqueue(rec *domain.AssessmentHistory) bool {
	if rec == nil {
		return false
	}
	select {
	case w.ch <- rec:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for buffered rows to flush.
func (w *HistoryWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.ch)
		<-w.done
		slog.Info("history writer stopped")
	})
}
