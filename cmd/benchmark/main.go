// Benchmark tool for measuring Kestrel assessment latency.
//
// Usage:
//   go run cmd/benchmark/main.go -cases 1000 -workers 10
//
// This tool:
//   1. Seeds synthetic cases (varying visa types and completeness) into
//      a throwaway SQLite database
//   2. Runs a full assessment for every case through the in-process
//      pipeline (context build -> rules -> scoring -> persistence)
//   3. Reports the latency distribution and risk level breakdown
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opencase-legal/kestrel/internal/assessor"
	"github.com/opencase-legal/kestrel/internal/bus"
	"github.com/opencase-legal/kestrel/internal/cache"
	"github.com/opencase-legal/kestrel/internal/domain"
	"github.com/opencase-legal/kestrel/internal/repository"
	"github.com/opencase-legal/kestrel/internal/rules"
	"github.com/opencase-legal/kestrel/internal/scoring"
	"github.com/opencase-legal/kestrel/internal/worker"
)

const benchFirmID = "benchmark-firm"

var visaTypes = []domain.VisaType{domain.VisaH1B, domain.VisaI130, domain.VisaO1, domain.VisaL1}

func main() {
	caseCount := flag.Int("cases", 1000, "Number of synthetic cases to seed")
	workers := flag.Int("workers", 10, "Number of concurrent assessment workers")
	verbose := flag.Bool("verbose", false, "Print each assessment result")
	flag.Parse()

	// Keep benchmark output readable
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            KESTREL BENCHMARK - Assessment Latency             ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCases:   %d\n", *caseCount)
	fmt.Printf("Workers: %d\n\n", *workers)

	dir, err := os.MkdirTemp("", "kestrel-bench-*")
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(dir, "bench.db"),
	})
	if err != nil {
		fmt.Printf("ERROR: failed to open repository: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()

	cacheImpl := cache.NewLRUCache(10000)
	defer cacheImpl.Close()

	busImpl := bus.NewChannelBus(1000)
	defer busImpl.Close()

	engine, err := rules.NewEngine(rules.DefaultCatalog(), 100)
	if err != nil {
		fmt.Printf("ERROR: failed to build engine: %v\n", err)
		os.Exit(1)
	}

	historyWriter := worker.NewHistoryWriter(repo, 1024)
	historyWriter.Start()
	defer historyWriter.Stop()

	a := assessor.New(repo, engine, scoring.DefaultPolicy(), cacheImpl, busImpl, historyWriter)

	ctx := context.Background()

	fmt.Printf("Seeding %d cases...\n", *caseCount)
	caseIDs, err := seedCases(ctx, repo, *caseCount)
	if err != nil {
		fmt.Printf("ERROR: seeding failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Seeded %d cases\n\n", len(caseIDs))

	fmt.Printf("Running assessments with %d workers...\n", *workers)
	start := time.Now()
	latencies, levels, errCount := run(ctx, a, caseIDs, *workers, *verbose)
	duration := time.Since(start)

	printResults(latencies, levels, errCount, duration)
}

// seedCases writes synthetic cases with varying completeness: roughly a
// third fully prepared, a third partially prepared, a third bare.
func seedCases(ctx context.Context, repo domain.Repository, count int) ([]string, error) {
	now := time.Now().UTC()
	ids := make([]string, 0, count)

	for i := 0; i < count; i++ {
		visa := visaTypes[i%len(visaTypes)]
		deadline := now.AddDate(0, 0, 20+(i%120))

		c := &domain.Case{
			ID:        uuid.New().String(),
			FirmID:    benchFirmID,
			VisaType:  visa,
			Status:    domain.CaseStatusPreparing,
			Deadline:  &deadline,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.SaveCase(ctx, benchFirmID, c); err != nil {
			return nil, err
		}

		switch i % 3 {
		case 0:
			if err := seedComplete(ctx, repo, c, now); err != nil {
				return nil, err
			}
		case 1:
			if err := seedPartial(ctx, repo, c, now); err != nil {
				return nil, err
			}
			// case 2: bare intake, nothing uploaded yet
		}

		ids = append(ids, c.ID)
	}

	return ids, nil
}

func seedComplete(ctx context.Context, repo domain.Repository, c *domain.Case, now time.Time) error {
	docs := []string{"passport", "employer_support_letter", "degree_certificate"}
	if c.VisaType == domain.VisaH1B {
		docs = append(docs, "lca")
	}
	if c.VisaType == domain.VisaI130 {
		docs = append(docs, "joint_bank_statement", "joint_tax_return", "joint_lease", "relationship_photos")
	}

	for _, dt := range docs {
		d := &domain.Document{
			ID:         uuid.New().String(),
			CaseID:     c.ID,
			DocType:    dt,
			BonaFide:   c.VisaType == domain.VisaI130 && dt != "passport",
			UploadedAt: now,
		}
		if dt == "lca" {
			d.Fields = domain.FieldMap{"offered_wage": "135000", "prevailing_wage": "120000"}
		}
		if err := repo.SaveDocument(ctx, benchFirmID, d); err != nil {
			return err
		}
		if err := repo.SaveChecklistItem(ctx, benchFirmID, &domain.ChecklistItem{
			CaseID: c.ID, DocType: dt, Completed: true,
		}); err != nil {
			return err
		}
	}

	form := &domain.FormSubmission{
		CaseID:   c.ID,
		FormType: "I-129",
		Fields: domain.FieldMap{
			"job_title":                  "Software Engineer",
			"job_duties":                 "design and build systems",
			"degree_requirement":         "bachelor",
			"employer_name":              "Acme Corp",
			"employer_fein":              "12-3456789",
			"employer_employee_count":    "250",
			"beneficiary_current_status": "F-1",
			"beneficiary_degree_level":   "master",
			"beneficiary_degree_field":   "computer science",
			"petitioner_citizenship":     "US",
			"beneficiary_address":        "123 Main St",
			"marriage_date":              "2022-06-01",
		},
	}
	if c.VisaType == domain.VisaI130 {
		form.FormType = "I-130"
	}
	return repo.SaveForm(ctx, benchFirmID, form)
}

func seedPartial(ctx context.Context, repo domain.Repository, c *domain.Case, now time.Time) error {
	if err := repo.SaveDocument(ctx, benchFirmID, &domain.Document{
		ID:         uuid.New().String(),
		CaseID:     c.ID,
		DocType:    "passport",
		UploadedAt: now,
	}); err != nil {
		return err
	}
	for _, dt := range []string{"passport", "employer_support_letter", "degree_certificate"} {
		if err := repo.SaveChecklistItem(ctx, benchFirmID, &domain.ChecklistItem{
			CaseID: c.ID, DocType: dt, Completed: dt == "passport",
		}); err != nil {
			return err
		}
	}
	return nil
}

func run(ctx context.Context, a *assessor.Assessor, caseIDs []string, numWorkers int, verbose bool) ([]time.Duration, map[domain.RiskLevel]int64, int64) {
	work := make(chan string, 100)
	latencies := make([]time.Duration, 0, len(caseIDs))
	levels := make(map[domain.RiskLevel]int64)
	var errCount int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for caseID := range work {
				start := time.Now()
				result, err := a.AssessRisk(ctx, benchFirmID, caseID, "benchmark")
				elapsed := time.Since(start)

				if err != nil {
					atomic.AddInt64(&errCount, 1)
					continue
				}

				mu.Lock()
				latencies = append(latencies, elapsed)
				levels[result.RiskLevel]++
				mu.Unlock()

				if verbose {
					fmt.Printf("  %s | %-8s | score %3d | %-8s | %v\n",
						caseID[:8], result.VisaType, result.Score, result.RiskLevel, elapsed.Round(time.Microsecond))
				}
			}
		}()
	}

	for _, id := range caseIDs {
		work <- id
	}
	close(work)
	wg.Wait()

	return latencies, levels, errCount
}

func printResults(latencies []time.Duration, levels map[domain.RiskLevel]int64, errCount int64, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 ASSESSMENTS\n")
	fmt.Printf("   Completed:  %d\n", len(latencies))
	fmt.Printf("   Errors:     %d\n", errCount)

	fmt.Printf("\n🎯 RISK LEVELS\n")
	for _, level := range []domain.RiskLevel{domain.RiskLow, domain.RiskMedium, domain.RiskHigh, domain.RiskCritical} {
		fmt.Printf("   %-8s %6d\n", level, levels[level])
	}

	if len(latencies) == 0 {
		fmt.Println()
		return
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	percentile := func(p float64) time.Duration {
		idx := int(p * float64(len(latencies)-1))
		return latencies[idx]
	}

	var total time.Duration
	for _, l := range latencies {
		total += l
	}

	fmt.Printf("\n⏱️  LATENCY\n")
	fmt.Printf("   Avg:  %v\n", (total / time.Duration(len(latencies))).Round(time.Microsecond))
	fmt.Printf("   p50:  %v\n", percentile(0.50).Round(time.Microsecond))
	fmt.Printf("   p90:  %v\n", percentile(0.90).Round(time.Microsecond))
	fmt.Printf("   p99:  %v\n", percentile(0.99).Round(time.Microsecond))
	fmt.Printf("   Max:  %v\n", latencies[len(latencies)-1].Round(time.Microsecond))

	fmt.Printf("\n   Total Duration: %v\n", duration.Round(time.Millisecond))
	fmt.Printf("   Throughput:     %.2f assessments/sec\n\n", float64(len(latencies))/duration.Seconds())
}
