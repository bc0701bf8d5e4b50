package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opencase-legal/kestrel/internal/domain"
)

func TestLRUCacheBasic(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "firm-a", "key1", []byte("value1"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := c.Get(ctx, "firm-a", "key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "value1" {
		t.Errorf("got %q, want value1", got)
	}

	t.Run("Miss", func(t *testing.T) {
		got, err := c.Get(ctx, "firm-a", "absent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != nil {
			t.Errorf("got %q for an absent key, want nil", got)
		}
	})

	t.Run("FirmIsolation", func(t *testing.T) {
		got, err := c.Get(ctx, "firm-b", "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != nil {
			t.Error("firm-b read firm-a's key")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := c.Delete(ctx, "firm-a", "key1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		got, _ := c.Get(ctx, "firm-a", "key1")
		if got != nil {
			t.Error("key survived delete")
		}
	})

	t.Run("EmptyFirmID", func(t *testing.T) {
		if _, err := c.Get(ctx, "", "key1"); err == nil {
			t.Error("expected error for empty firm id")
		}
		if err := c.Set(ctx, "", "key1", []byte("v"), time.Minute); err == nil {
			t.Error("expected error for empty firm id")
		}
	})
}

func TestLRUCacheExpiry(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "firm-a", "transient", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	got, err := c.Get(ctx, "firm-a", "transient")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Error("expired entry still readable")
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache(3)
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("key%d", i)
		if err := c.Set(ctx, "firm-a", key, []byte(key), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	size, capacity := c.Stats()
	if size != 3 || capacity != 3 {
		t.Errorf("Stats = (%d, %d), want (3, 3)", size, capacity)
	}

	// Oldest entries evicted, newest retained.
	if got, _ := c.Get(ctx, "firm-a", "key0"); got != nil {
		t.Error("key0 should have been evicted")
	}
	if got, _ := c.Get(ctx, "firm-a", "key4"); got == nil {
		t.Error("key4 should still be cached")
	}
}

func TestLRUCacheAssessmentRoundTrip(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	result := &domain.AssessmentResult{
		ID:             "assessment-1",
		CaseID:         "case-1",
		FirmID:         "firm-a",
		VisaType:       domain.VisaH1B,
		Score:          55,
		RiskLevel:      domain.RiskHigh,
		Probability:    0.45,
		SafeRuleIDs:    []string{"common-no-documents"},
		AssessedAt:     time.Now().UTC().Truncate(time.Second),
		FormulaVersion: domain.FormulaVersion,
	}

	if err := c.SetAssessment(ctx, "firm-a", "case-1", result, time.Minute); err != nil {
		t.Fatalf("SetAssessment failed: %v", err)
	}

	got, err := c.GetAssessment(ctx, "firm-a", "case-1")
	if err != nil {
		t.Fatalf("GetAssessment failed: %v", err)
	}
	if got == nil {
		t.Fatal("assessment not cached")
	}
	if got.ID != result.ID || got.Score != result.Score || got.RiskLevel != result.RiskLevel {
		t.Errorf("cached assessment = %+v, want %+v", got, result)
	}

	t.Run("Miss", func(t *testing.T) {
		got, err := c.GetAssessment(ctx, "firm-a", "other-case")
		if err != nil {
			t.Fatalf("GetAssessment failed: %v", err)
		}
		if got != nil {
			t.Error("expected nil on a miss")
		}
	})
}
