// Package main runs a shopping load simulation: a persona population
// driven through the downstream shop API in lockstep cycles, with
// adaptive rate/concurrency control and durable checkpoints.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"cartstorm/internal/agent"
	"cartstorm/internal/breaker"
	"cartstorm/internal/checkpoint"
	"cartstorm/internal/concurrency"
	"cartstorm/internal/config"
	"cartstorm/internal/observability"
	"cartstorm/internal/orchestrator"
	"cartstorm/internal/ratelimit"
	"cartstorm/internal/shopapi"
	"cartstorm/internal/simclock"
	"cartstorm/internal/statusfeed"
	"cartstorm/internal/storage"
	chstore "cartstorm/internal/storage/clickhouse"
	"cartstorm/internal/storage/memory"
	pgstore "cartstorm/internal/storage/postgres"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	configPath := flag.String("config", "", "YAML config file (defaults apply when omitted)")
	runID := flag.String("run-id", "", "Run identifier (empty generates a UUID)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (empty disables cycle archiving)")
	personasFile := flag.String("personas", "", "Persona population JSON file (memory mode)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	useStub := flag.Bool("use-stub", false, "Use the in-process shop API stub instead of HTTP")
	resume := flag.Bool("resume", false, "Resume from the latest checkpoint if present")
	listenAddr := flag.String("listen-addr", "", "Control/metrics HTTP address (overrides config)")
	flag.Parse()

	logger := log.New(os.Stdout, "[simulate] ", log.LstdFlags)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Flag overrides on top of the file.
	if *runID != "" {
		cfg.Run.RunID = *runID
	}
	if *postgresDSN != "" {
		cfg.Storage.PostgresDSN = *postgresDSN
	}
	if *clickhouseDSN != "" {
		cfg.Storage.ClickHouseDSN = *clickhouseDSN
	}
	if *personasFile != "" {
		cfg.Storage.PersonasFile = *personasFile
	}
	if *useMemory {
		cfg.Storage.UseMemory = true
	}
	if *useStub {
		cfg.API.UseStub = true
	}
	if *resume {
		cfg.Checkpoint.Resume = true
	}
	if *listenAddr != "" {
		cfg.Control.ListenAddr = *listenAddr
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid config: %v", err)
	}
	if cfg.Run.RunID == "" {
		cfg.Run.RunID = uuid.NewString()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create stores
	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// The breaker threshold is sized against the full population.
	agents, err := stores.personas.LoadAll(ctx)
	if err != nil {
		logger.Fatalf("Failed to load personas: %v", err)
	}
	logger.Printf("Loaded %d personas", len(agents))

	orch, feed, err := buildOrchestrator(cfg, stores, len(agents), logger)
	if err != nil {
		logger.Fatalf("Failed to build orchestrator: %v", err)
	}
	defer feed.Close()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, requesting graceful stop...", sig)
		orch.Stop()

		// Wait for second signal for immediate shutdown
		sig = <-sigCh
		logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
		os.Exit(1)
	}()

	// Start the control/metrics HTTP server
	if cfg.Control.ListenAddr != "" {
		go startControlServer(cfg.Control.ListenAddr, orch, feed, logger)
	}

	summary, err := orch.Run(ctx)
	if err != nil {
		logger.Fatalf("Run failed: %v", err)
	}

	logger.Printf("Run %s finished: %d cycles, %d dispatched, %d succeeded, %d abandoned, %d failed, %d skipped",
		summary.RunID, summary.Stats.CyclesCompleted, summary.Stats.AgentsDispatched,
		summary.Stats.Successes, summary.Stats.Abandoned, summary.Stats.Failures, summary.Stats.Skips)
	if summary.BreakerOpen {
		logger.Printf("Run ended with the circuit breaker OPEN; inspect downstream health before the next run")
	}
}

// loadConfig reads the config file, or defaults when no file is given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadFromFile(path)
}

// allStores holds the storage implementations behind the run.
type allStores struct {
	personas storage.PersonaStore
	cleaner  storage.SessionCleaner
	archive  storage.CycleStatsStore // nil disables cycle archiving
}

// createStores creates the configured stores and a cleanup func.
func createStores(ctx context.Context, cfg *config.Config) (*allStores, func(), error) {
	if cfg.Storage.UseMemory {
		personas, err := memory.NewPersonaStoreFromFile(cfg.Storage.PersonasFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load personas file: %w", err)
		}
		stores := &allStores{
			personas: personas,
			cleaner:  memory.NewSessionCleaner(),
			archive:  memory.NewCycleStatsStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	stores := &allStores{
		personas: pgstore.NewPersonaStore(pool),
		cleaner:  pgstore.NewSessionCleaner(pool),
	}
	cleanup := func() { pool.Close() }

	// ClickHouse is optional; without it cycles are not archived.
	if cfg.Storage.ClickHouseDSN != "" {
		chConn, err := chstore.NewConn(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		if err := chConn.Migrate(ctx); err != nil {
			chConn.Close()
			pool.Close()
			return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		stores.archive = chstore.NewCycleStatsStore(chConn)
		cleanup = func() {
			chConn.Close()
			pool.Close()
		}
	}

	return stores, cleanup, nil
}

// buildOrchestrator wires the control loops, workflow and stores.
func buildOrchestrator(cfg *config.Config, stores *allStores, population int, logger *log.Logger) (*orchestrator.Orchestrator, *statusfeed.Hub, error) {
	clock, err := simclock.New(cfg.Run.TimeScale, cfg.SimulatedStartTime())
	if err != nil {
		return nil, nil, fmt.Errorf("create clock: %w", err)
	}

	var limiterOpts []ratelimit.Option
	if cfg.RateLimit.MinRateFraction > 0 {
		limiterOpts = append(limiterOpts, ratelimit.WithRateBounds(
			cfg.RateLimit.RefillRate*cfg.RateLimit.MinRateFraction,
			cfg.RateLimit.RefillRate,
		))
	}
	limiter := ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate, limiterOpts...)

	controller := concurrency.New(concurrency.Config{
		Base:    cfg.Concurrency.Base,
		Floor:   cfg.Concurrency.Floor,
		Ceiling: cfg.Concurrency.Ceiling,
		Step:    cfg.Concurrency.Step,
	})

	brk := breaker.New(population, cfg.Breaker.ThresholdPercent, breaker.WithOnOpen(func(s breaker.Snapshot) {
		logger.Printf("Circuit breaker OPEN: %d failures this cycle (threshold %d)", s.FailuresThisCycle, s.Threshold)
	}))

	var api shopapi.Client
	if cfg.API.UseStub {
		api = shopapi.NewStub()
	} else {
		api = shopapi.NewHTTPClient(cfg.API.BaseURL, shopapi.WithTimeout(cfg.API.Timeout.Duration()))
	}

	workflow := agent.New(agent.Options{
		API:        api,
		Limiter:    limiter,
		Policy:     &agent.SeededPolicy{Seed: cfg.Run.Seed},
		RunID:      cfg.Run.RunID,
		MaxRetries: cfg.API.MaxRetries,
		RetryDelay: cfg.API.RetryDelay.Duration(),
		Logger:     logger,
	})

	var checkpoints *checkpoint.Store
	if cfg.Checkpoint.Dir != "" {
		checkpoints, err = checkpoint.NewStore(cfg.Checkpoint.Dir, cfg.Checkpoint.Interval, cfg.Checkpoint.Keep, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create checkpoint store: %w", err)
		}
	}

	metrics := observability.NewMetrics("cartstorm")
	feed := statusfeed.NewHub(nil, logger)

	orch, err := orchestrator.New(orchestrator.Options{
		RunID:             cfg.Run.RunID,
		Clock:             clock,
		Limiter:           limiter,
		Controller:        controller,
		Breaker:           brk,
		Workflow:          workflow,
		Checkpoints:       checkpoints,
		Personas:          stores.personas,
		Cleaner:           stores.cleaner,
		Archive:           stores.archive,
		Metrics:           metrics,
		Feed:              feed,
		TotalCycles:       cfg.Run.TotalCycles,
		CycleInterval:     cfg.Run.CycleInterval.Duration(),
		WarmupFractions:   cfg.Run.WarmupFractions,
		SkipAfterFailures: cfg.Run.SkipAfterFailures,
		DrainTimeout:      cfg.Run.DrainTimeout.Duration(),
		Resume:            cfg.Checkpoint.Resume,
		Logger:            logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return orch, feed, nil
}

// startControlServer serves health, metrics, status, the live status
// feed and the operator control endpoints.
func startControlServer(addr string, orch *orchestrator.Orchestrator, feed *statusfeed.Hub, logger *log.Logger) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orch.Status())
	})

	// Live status feed (WebSocket)
	mux.Handle("/ws", feed)

	// Operator controls
	mux.HandleFunc("/pause", controlHandler(orch.Pause))
	mux.HandleFunc("/resume", controlHandler(orch.Resume))
	mux.HandleFunc("/checkpoint", controlHandler(orch.CheckpointNow))
	mux.HandleFunc("/reset-breaker", controlHandler(func() error {
		orch.ResetBreaker()
		return nil
	}))
	mux.HandleFunc("/stop", controlHandler(func() error {
		orch.Stop()
		return nil
	}))

	logger.Printf("Control server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("Control server error: %v", err)
	}
}

// controlHandler wraps an operator action into a POST-only handler.
func controlHandler(action func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := action(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
