// Package main generates a post-run report from the latest checkpoint,
// optionally enriched with the cycle history archived in ClickHouse.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"cartstorm/internal/checkpoint"
	"cartstorm/internal/domain"
	"cartstorm/internal/reporting"
	chstore "cartstorm/internal/storage/clickhouse"
)

func main() {
	// Parse flags
	checkpointDir := flag.String("checkpoint-dir", "checkpoints", "Checkpoint directory of the run to report on")
	outputDir := flag.String("output-dir", "output", "Output directory for generated files")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (empty skips cycle history)")
	flag.Parse()

	logger := log.New(os.Stdout, "[report] ", log.LstdFlags)
	ctx := context.Background()

	// Load the run state
	store, err := checkpoint.NewStore(*checkpointDir, 0, 1, logger)
	if err != nil {
		logger.Fatalf("Failed to open checkpoint dir: %v", err)
	}
	cp, err := store.LoadLatest()
	if err != nil {
		logger.Fatalf("Failed to load checkpoint: %v", err)
	}
	logger.Printf("Reporting on run %s at cycle %d", cp.RunID, cp.CycleIndex)

	// Pull the archived cycle history when ClickHouse is available
	var cycles []*domain.CycleStatsRow
	if *clickhouseDSN != "" {
		cycles, err = loadCycleHistory(ctx, *clickhouseDSN, cp.RunID)
		if err != nil {
			logger.Fatalf("Failed to load cycle history: %v", err)
		}
		logger.Printf("Loaded %d archived cycles", len(cycles))
	}

	report := reporting.NewGenerator().Generate(&reporting.Input{
		Checkpoint: cp,
		Cycles:     cycles,
	})

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		logger.Fatalf("Failed to create output dir: %v", err)
	}

	summaryPath := filepath.Join(*outputDir, "SUMMARY.md")
	if err := os.WriteFile(summaryPath, []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
		logger.Fatalf("Failed to write summary: %v", err)
	}

	outcomesPath := filepath.Join(*outputDir, "outcomes.csv")
	if err := os.WriteFile(outcomesPath, []byte(reporting.RenderOutcomesCSV(report)), 0o644); err != nil {
		logger.Fatalf("Failed to write outcomes CSV: %v", err)
	}

	cyclesPath := filepath.Join(*outputDir, "cycles.csv")
	if err := os.WriteFile(cyclesPath, []byte(reporting.RenderCSV(report.Cycles)), 0o644); err != nil {
		logger.Fatalf("Failed to write cycle CSV: %v", err)
	}

	fmt.Println("Report generated successfully:")
	fmt.Printf("  - %s\n", summaryPath)
	fmt.Printf("  - %s\n", outcomesPath)
	fmt.Printf("  - %s\n", cyclesPath)
}

// loadCycleHistory reads the run's archived cycle rows.
func loadCycleHistory(ctx context.Context, dsn, runID string) ([]*domain.CycleStatsRow, error) {
	conn, err := chstore.NewConn(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	defer conn.Close()

	return chstore.NewCycleStatsStore(conn).SelectByRun(ctx, runID)
}
