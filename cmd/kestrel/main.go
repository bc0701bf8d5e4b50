// Kestrel - RFE risk assessment that deploys in 60 seconds.
// Copyright (c) 2025 opencase.legal
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opencase-legal/kestrel/internal/api"
	"github.com/opencase-legal/kestrel/internal/assessor"
	"github.com/opencase-legal/kestrel/internal/bus"
	"github.com/opencase-legal/kestrel/internal/cache"
	"github.com/opencase-legal/kestrel/internal/domain"
	"github.com/opencase-legal/kestrel/internal/repository"
	"github.com/opencase-legal/kestrel/internal/rules"
	"github.com/opencase-legal/kestrel/internal/scoring"
	"github.com/opencase-legal/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Rule Engine over the built-in catalog
	catalog := rules.DefaultCatalog()
	engine, err := rules.NewEngine(catalog, 100)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized",
		"builtin_rules", catalog.Count(),
		"visa_types", len(catalog.VisaTypes()),
	)

	// Initialize Scoring Policy
	policy, err := scoring.NewPolicy(cfg.Scoring)
	if err != nil {
		slog.Error("invalid scoring configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("scoring policy initialized", "formula_version", domain.FormulaVersion)

	// Initialize History Writer
	historyWriter := worker.NewHistoryWriter(repo, 256)
	historyWriter.Start()

	// Initialize Assessor
	assessorImpl := assessor.New(repo, engine, policy, cacheImpl, busImpl, historyWriter)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, assessorImpl)

		// Get firm IDs to process (from environment or default)
		firmIDs := []string{}
		if envFirms := os.Getenv("KESTREL_FIRMS"); envFirms != "" {
			firmIDs = strings.Split(envFirms, ",")
		}

		workerCfg := worker.Config{
			FirmIDs: firmIDs,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "firm_count", len(firmIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, assessorImpl, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Flush buffered history rows last
	historyWriter.Stop()

	slog.Info("kestrel shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 KESTREL                  ║")
	fmt.Println("  ║       RFE Risk Assessment Engine          ║")
	fmt.Println("  ║       Eyes on every petition.             ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /cases/{id}/assess     - Run a fresh assessment")
	fmt.Println("    GET  /cases/{id}/assessment - Get assessment (cached if fresh)")
	fmt.Println("    GET  /cases/{id}/history    - Assessment audit trail")
	fmt.Println("    GET  /rules                 - List built-in rules")
	fmt.Println("    POST /rules                 - Create a custom rule")
	fmt.Println("    POST /rules/reload          - Hot-reload custom rules")
	fmt.Println("    GET  /health                - Health check")
	fmt.Println()
}
