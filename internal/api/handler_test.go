package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/opencase-legal/kestrel/internal/assessor"
	"github.com/opencase-legal/kestrel/internal/bus"
	"github.com/opencase-legal/kestrel/internal/cache"
	"github.com/opencase-legal/kestrel/internal/domain"
	"github.com/opencase-legal/kestrel/internal/repository"
	"github.com/opencase-legal/kestrel/internal/rules"
	"github.com/opencase-legal/kestrel/internal/scoring"
)

type testEnv struct {
	server *Server
	repo   domain.Repository
}

func newTestEnv(t *testing.T) *testEnv {
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

	lru := cache.NewLRUCache(1000)
	t.Cleanup(func() { lru.Close() })

	channelBus := bus.NewChannelBus(100)
	t.Cleanup(func() { channelBus.Close() })

	engine, err := rules.NewEngine(rules.DefaultCatalog(), 10)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	a := assessor.New(repo, engine, scoring.DefaultPolicy(), lru, channelBus, nil)
	srv := NewServer(domain.ServerConfig{Host: "127.0.0.1", Port: 0}, repo, lru, channelBus, engine, a, "test")

	return &testEnv{server: srv, repo: repo}
}

func (e *testEnv) do(t *testing.T, method, path, firmID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if firmID != "" {
		req.Header.Set(FirmIDHeader, firmID)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedCase(t *testing.T, firmID, caseID string, visa domain.VisaType) {
	t.Helper()
	now := time.Now().UTC()
	if err := e.repo.SaveCase(context.Background(), firmID, &domain.Case{
		ID: caseID, FirmID: firmID, VisaType: visa,
		Status: domain.CaseStatusPreparing, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("SaveCase failed: %v", err)
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestFirmHeaderRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/rules", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d without X-Firm-ID, want 400", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %q, want test", body["version"])
	}

	rec = env.do(t, http.MethodGet, "/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", rec.Code)
	}
}

func TestAssessCase(t *testing.T) {
	env := newTestEnv(t)
	env.seedCase(t, "firm-a", "case-1", domain.VisaH1B)

	rec := env.do(t, http.MethodPost, "/cases/case-1/assess", "firm-a", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body)
	}

	var result domain.AssessmentResult
	decode(t, rec, &result)
	if result.CaseID != "case-1" || result.FirmID != "firm-a" {
		t.Errorf("identity = %s/%s, want case-1/firm-a", result.CaseID, result.FirmID)
	}
	if result.RiskLevel != domain.RiskCritical {
		t.Errorf("risk level = %s, want critical for a bare case", result.RiskLevel)
	}
	if result.TriggerEvent != "manual" {
		t.Errorf("trigger = %q, want manual default", result.TriggerEvent)
	}

	t.Run("CustomTrigger", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/cases/case-1/assess", "firm-a",
			AssessRequest{Trigger: "deadline_approaching"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var result domain.AssessmentResult
		decode(t, rec, &result)
		if result.TriggerEvent != "deadline_approaching" {
			t.Errorf("trigger = %q, want deadline_approaching", result.TriggerEvent)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/cases/no-such-case/assess", "firm-a", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("WrongFirm", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/cases/case-1/assess", "firm-b", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404 across firms", rec.Code)
		}
	})
}

func TestGetAssessmentServesCachedResult(t *testing.T) {
	env := newTestEnv(t)
	env.seedCase(t, "firm-a", "case-1", domain.VisaI130)

	rec := env.do(t, http.MethodPost, "/cases/case-1/assess", "firm-a", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("assess status = %d, want 200", rec.Code)
	}
	var first domain.AssessmentResult
	decode(t, rec, &first)

	// A fresh result is served as-is, not recomputed.
	rec = env.do(t, http.MethodGet, "/cases/case-1/assessment", "firm-a", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	var second domain.AssessmentResult
	decode(t, rec, &second)
	if second.ID != first.ID {
		t.Errorf("served assessment %s, want cached %s", second.ID, first.ID)
	}

	t.Run("RefreshForcesRerun", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/cases/case-1/assessment?refresh=true", "firm-a", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var refreshed domain.AssessmentResult
		decode(t, rec, &refreshed)
		if refreshed.ID == first.ID {
			t.Error("refresh=true should produce a new run")
		}
		if refreshed.Score != first.Score {
			t.Errorf("score changed on unchanged data: %d vs %d", refreshed.Score, first.Score)
		}
	})

	t.Run("UnassessedCaseRunsFresh", func(t *testing.T) {
		env.seedCase(t, "firm-a", "case-2", domain.VisaH1B)
		rec := env.do(t, http.MethodGet, "/cases/case-2/assessment", "firm-a", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var result domain.AssessmentResult
		decode(t, rec, &result)
		if result.TriggerEvent != "read_refresh" {
			t.Errorf("trigger = %q, want read_refresh", result.TriggerEvent)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/cases/no-such-case/assessment", "firm-a", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestGetHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := env.repo.InsertAssessmentHistory(ctx, "firm-a", &domain.AssessmentHistory{
			ID:             fmt.Sprintf("h%d", i),
			CaseID:         "case-1",
			FirmID:         "firm-a",
			VisaType:       domain.VisaH1B,
			Score:          50,
			RiskLevel:      domain.RiskHigh,
			FormulaVersion: domain.FormulaVersion,
			AssessedAt:     time.Now().UTC().Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("InsertAssessmentHistory failed: %v", err)
		}
	}

	rec := env.do(t, http.MethodGet, "/cases/case-1/history", "firm-a", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		CaseID  string                      `json:"caseId"`
		History []*domain.AssessmentHistory `json:"history"`
		Count   int                         `json:"count"`
	}
	decode(t, rec, &body)
	if body.Count != 3 || len(body.History) != 3 {
		t.Errorf("count = %d / %d entries, want 3", body.Count, len(body.History))
	}
	if body.History[0].ID != "h2" {
		t.Errorf("first entry = %s, want the newest run h2", body.History[0].ID)
	}

	t.Run("Limit", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/cases/case-1/history?limit=1", "firm-a", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		decode(t, rec, &body)
		if body.Count != 1 {
			t.Errorf("count = %d with limit=1", body.Count)
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("List", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/rules", "firm-a", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var body struct {
			RulesByVisaType map[string][]RuleInfo `json:"rulesByVisaType"`
			BuiltinCount    int                   `json:"builtinCount"`
			CustomCount     int                   `json:"customCount"`
		}
		decode(t, rec, &body)
		if body.BuiltinCount != 19 {
			t.Errorf("builtinCount = %d, want 19", body.BuiltinCount)
		}
		if body.CustomCount != 0 {
			t.Errorf("customCount = %d, want 0", body.CustomCount)
		}
		if len(body.RulesByVisaType["H-1B"]) != 13 {
			t.Errorf("H-1B listing has %d rules, want 13", len(body.RulesByVisaType["H-1B"]))
		}
	})

	t.Run("CreateInvalidExpression", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/rules", "firm-a", CreateRuleRequest{
			ID:         "broken",
			Title:      "Broken",
			Severity:   domain.SeverityLow,
			Expression: "this is not valid CEL !!!",
			Enabled:    true,
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400 for an uncompilable expression", rec.Code)
		}
	})

	t.Run("CreateMissingFields", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/rules", "firm-a", CreateRuleRequest{ID: "incomplete"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("CreateAndReload", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/rules", "firm-a", CreateRuleRequest{
			ID:         "firm-deadline-guard",
			Title:      "Deadline guard",
			Severity:   domain.SeverityHigh,
			Expression: "days_to_deadline >= 0 && days_to_deadline < 10",
			Enabled:    true,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201 (body: %s)", rec.Code, rec.Body)
		}

		rec = env.do(t, http.MethodPost, "/rules/reload", "firm-a", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("reload status = %d, want 200", rec.Code)
		}
		var reload struct {
			Count int `json:"count"`
		}
		decode(t, rec, &reload)
		if reload.Count != 1 {
			t.Errorf("reloaded count = %d, want 1", reload.Count)
		}

		rec = env.do(t, http.MethodGet, "/rules", "firm-a", nil)
		var listing struct {
			CustomCount int `json:"customCount"`
		}
		decode(t, rec, &listing)
		if listing.CustomCount != 1 {
			t.Errorf("customCount = %d after reload, want 1", listing.CustomCount)
		}
	})
}
