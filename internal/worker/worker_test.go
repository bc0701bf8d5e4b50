package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/opencase-legal/kestrel/internal/assessor"
	"github.com/opencase-legal/kestrel/internal/bus"
	"github.com/opencase-legal/kestrel/internal/domain"
	"github.com/opencase-legal/kestrel/internal/rules"
	"github.com/opencase-legal/kestrel/internal/scoring"
)

func TestWorkerReassessesOnCaseChange(t *testing.T) {
	repo := newTestRepo(t)
	channelBus := bus.NewChannelBus(10)
	defer channelBus.Close()
	ctx := context.Background()

	now := time.Now().UTC()
	if err := repo.SaveCase(ctx, "firm-a", &domain.Case{
		ID: "case-1", FirmID: "firm-a",
		VisaType: domain.VisaH1B, Status: domain.CaseStatusPreparing,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("SaveCase failed: %v", err)
	}

	engine, err := rules.NewEngine(rules.DefaultCatalog(), 10)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	a := assessor.New(repo, engine, scoring.DefaultPolicy(), nil, nil, nil)

	w := NewWorker(channelBus, a)
	if err := w.Start(Config{FirmIDs: []string{"firm-a"}}); err != nil {
		t.Fatalf("worker Start failed: %v", err)
	}
	defer w.Stop()

	stats := w.GetStats()
	if stats.SubscriptionCount != 1 {
		t.Fatalf("SubscriptionCount = %d, want 1", stats.SubscriptionCount)
	}
	if stats.Topics[0] != domain.TopicCaseChanged {
		t.Errorf("subscribed topic = %s, want %s", stats.Topics[0], domain.TopicCaseChanged)
	}

	payload, _ := json.Marshal(domain.CaseChangedEvent{
		CaseID: "case-1",
		FirmID: "firm-a",
		Reason: "document_uploaded",
	})
	if err := channelBus.Publish(ctx, "firm-a", domain.TopicCaseChanged, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// The handler runs asynchronously; poll the case record for the
	// write-through assessment.
	deadline := time.Now().Add(5 * time.Second)
	for {
		c, err := repo.GetCase(ctx, "firm-a", "case-1")
		if err != nil {
			t.Fatalf("GetCase failed: %v", err)
		}
		if c.RiskScore != nil {
			if *c.RiskScore != 0 {
				t.Errorf("risk score = %d, want 0 for a bare H-1B case", *c.RiskScore)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("case never re-assessed after the change event")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWorkerGlobalSubscription(t *testing.T) {
	channelBus := bus.NewChannelBus(10)
	defer channelBus.Close()

	engine, err := rules.NewEngine(rules.DefaultCatalog(), 10)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	a := assessor.New(newTestRepo(t), engine, scoring.DefaultPolicy(), nil, nil, nil)

	w := NewWorker(channelBus, a)
	if err := w.Start(Config{}); err != nil {
		t.Fatalf("worker Start failed: %v", err)
	}
	if got := w.GetStats().SubscriptionCount; got != 1 {
		t.Errorf("SubscriptionCount = %d, want 1 global subscription", got)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("worker Stop failed: %v", err)
	}
	if got := w.GetStats().SubscriptionCount; got != 0 {
		t.Errorf("SubscriptionCount = %d after Stop, want 0", got)
	}
}

func TestProcessCaseChangeMalformedPayload(t *testing.T) {
	engine, err := rules.NewEngine(rules.DefaultCatalog(), 10)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	a := assessor.New(newTestRepo(t), engine, scoring.DefaultPolicy(), nil, nil, nil)
	w := NewWorker(bus.NewChannelBus(1), a)

	msg := &domain.Message{ID: "m1", Payload: []byte("not json")}
	if err := w.processCaseChange(context.Background(), "firm-a", msg); err == nil {
		t.Error("expected error for a malformed payload")
	}
}

func TestProcessCaseChangeVanishedCase(t *testing.T) {
	engine, err := rules.NewEngine(rules.DefaultCatalog(), 10)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	a := assessor.New(newTestRepo(t), engine, scoring.DefaultPolicy(), nil, nil, nil)
	w := NewWorker(bus.NewChannelBus(1), a)

	payload, _ := json.Marshal(domain.CaseChangedEvent{CaseID: "gone", FirmID: "firm-a"})
	msg := &domain.Message{ID: "m1", Payload: payload}

	// A case deleted between event and run is tolerated, not retried.
	if err := w.processCaseChange(context.Background(), "firm-a", msg); err != nil {
		t.Errorf("err = %v, want nil for a vanished case", err)
	}
}
