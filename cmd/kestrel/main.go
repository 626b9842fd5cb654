// Kestrel - Transaction risk decisions that deploy in 60 seconds.
// Copyright (c) 2025 opensource.finance
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

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/customer"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/expr"
	"github.com/opensource-finance/kestrel/internal/identity"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/triage"
	"github.com/opensource-finance/kestrel/internal/watch"
	"github.com/opensource-finance/kestrel/internal/worker"
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

	// Initialize the CEL evaluator shared by rules and watches
	eval, err := expr.New()
	if err != nil {
		slog.Error("failed to initialize expression evaluator", "error", err)
		os.Exit(1)
	}

	// Scoring components
	scorer := rules.NewScorer(eval, cfg.Pipeline.MaxRuleWorkers)
	catalog := rules.NewCatalog(repo, cacheImpl, time.Duration(cfg.Pipeline.RuleCacheTTLSecs)*time.Second)
	classifier := decision.NewClassifier(repo)
	slog.Info("rule scorer initialized", "max_workers", cfg.Pipeline.MaxRuleWorkers)

	// Watch engine with HTTP notification delivery
	notifier := watch.NewHTTPNotifier()
	watches := watch.NewEngine(repo, eval, notifier)

	// Evaluation pipeline
	p := pipeline.New(pipeline.Config{
		Repository:    repo,
		Bus:           busImpl,
		Catalog:       catalog,
		Scorer:        scorer,
		Aggregator:    metrics.NewAggregator(repo),
		Classifier:    classifier,
		Triage:        triage.New(repo),
		Updater:       customer.NewUpdater(repo),
		Matcher:       identity.NewMatcher(),
		LookupTimeout: time.Duration(cfg.Pipeline.LookupTimeoutMs) * time.Millisecond,
	})
	slog.Info("evaluation pipeline initialized")

	// Async watch worker
	asyncWorker := worker.NewWorker(busImpl, repo, watches)

	tenantIDs := []string{}
	if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
		tenantIDs = strings.Split(envTenants, ",")
	}
	if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
		slog.Error("failed to start watch worker", "error", err)
	} else {
		slog.Info("watch worker started", "tenant_count", len(tenantIDs))
	}

	// Initialize Server
	handler := api.NewHandler(repo, cacheImpl, p, classifier, scorer, catalog, watches, Version)
	srv := api.NewServer(cfg.Server, handler)

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
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop watch worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("               KESTREL")
	fmt.Println("       Transaction Risk Decision Engine")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /events                    - Ingest and evaluate an event")
	fmt.Println("    GET  /events/{id}               - Get event by ID")
	fmt.Println("    GET  /decisions                 - List recent decisions")
	fmt.Println("    POST /decisions/{id}/override   - Manually override a decision")
	fmt.Println("    GET  /rules                     - List active rules")
	fmt.Println("    POST /rules                     - Create a rule")
	fmt.Println("    POST /rules/seed                - Install the built-in rule set")
	fmt.Println("    GET  /thresholds                - Get score cut-offs")
	fmt.Println("    PUT  /thresholds                - Set score cut-offs")
	fmt.Println("    POST /customers                 - Register a customer")
	fmt.Println("    POST /watches                   - Create an alert watch")
	fmt.Println("    GET  /cases                     - List investigation cases")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println()
}
