package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opencase-legal/kestrel/internal/assessor"
	"github.com/opencase-legal/kestrel/internal/domain"
)

// Worker re-assesses cases in response to case-changed events from the
// EventBus.
type Worker struct {
	bus      domain.EventBus
	assessor *assessor.Assessor

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// FirmIDs is the list of firms to process (empty = global for dev)
	FirmIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, a *assessor.Assessor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		assessor: a,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing case-changed events for the given firms.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.FirmIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, firmID := range cfg.FirmIDs {
		if err := w.startFirmWorker(firmID); err != nil {
			slog.Error("failed to start worker for firm",
				"firm_id", firmID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"firm_count", len(cfg.FirmIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all firms (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" firm ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicCaseChanged, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startFirmWorker starts a worker for a specific firm.
func (w *Worker) startFirmWorker(firmID string) error {
	sub, err := w.bus.Subscribe(w.ctx, firmID, domain.TopicCaseChanged, func(ctx context.Context, msg *domain.Message) error {
		return w.processCaseChange(ctx, firmID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("firm worker started",
		"firm_id", firmID,
		"topic", domain.TopicCaseChanged,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processCaseChange(ctx, msg.FirmID, msg)
}

// processCaseChange re-runs the assessment for the changed case.
func (w *Worker) processCaseChange(ctx context.Context, firmID string, msg *domain.Message) error {
	start := time.Now()

	var event domain.CaseChangedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to parse case-changed event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use event firm if provided
	if event.FirmID != "" {
		firmID = event.FirmID
	}

	trigger := event.Reason
	if trigger == "" {
		trigger = "case_changed"
	}

	slog.Debug("re-assessing case",
		"case_id", event.CaseID,
		"firm_id", firmID,
		"reason", trigger,
	)

	result, err := w.assessor.AssessRisk(ctx, firmID, event.CaseID, trigger)
	if err != nil {
		// A case deleted between the event and the run is not a failure.
		if errors.Is(err, domain.ErrCaseNotFound) {
			slog.Warn("case vanished before re-assessment",
				"case_id", event.CaseID,
				"firm_id", firmID,
			)
			return nil
		}
		slog.Error("re-assessment failed",
			"case_id", event.CaseID,
			"firm_id", firmID,
			"error", err,
		)
		return err
	}

	slog.Info("case re-assessed",
		"case_id", event.CaseID,
		"firm_id", firmID,
		"score", result.Score,
		"risk_level", result.RiskLevel,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
