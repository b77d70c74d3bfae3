package reporting

import (
	"strings"
	"testing"
	"time"

	"cartstorm/internal/domain"
)

func testInput() *Input {
	stats := domain.NewAggregateStats()
	stats.CyclesCompleted = 3
	stats.AgentsDispatched = 100
	stats.Successes = 80
	stats.Abandoned = 10
	stats.Failures = 10
	stats.Skips = 200
	stats.BreakerTrips = 1
	stats.FailuresByKind[domain.ErrorKindTimeout] = 4
	stats.FailuresByKind[domain.ErrorKindRateLimited] = 6

	return &Input{
		Checkpoint: &domain.Checkpoint{
			RunID:              "run-test",
			CycleIndex:         3,
			SimulatedAtMs:      1700000900000,
			RealElapsedSeconds: 90.0,
			Stats:              stats,
		},
		Cycles: []*domain.CycleStatsRow{
			{RunID: "run-test", CycleIndex: 2, Dispatched: 35, Successes: 30, LimiterRate: 25.0, Budget: 20},
			{RunID: "run-test", CycleIndex: 1, Dispatched: 30, Successes: 28, LimiterRate: 50.0, Budget: 40},
			{RunID: "run-test", CycleIndex: 3, Dispatched: 35, Successes: 22, LimiterRate: 27.5, Budget: 22},
		},
		BreakerOpen: true,
		FinalRate:   27.5,
		FinalBudget: 22,
	}
}

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestGenerateSummary(t *testing.T) {
	g := NewGenerator().WithClock(fixedClock)
	report := g.Generate(testInput())

	if report.RunID != "run-test" {
		t.Errorf("expected run-test, got %s", report.RunID)
	}
	if !report.GeneratedAt.Equal(fixedClock()) {
		t.Errorf("expected injected clock time, got %v", report.GeneratedAt)
	}

	s := report.RunSummary
	if s.CyclesCompleted != 3 {
		t.Errorf("expected 3 cycles, got %d", s.CyclesCompleted)
	}
	if s.SuccessRate != 0.8 {
		t.Errorf("expected success rate 0.8, got %f", s.SuccessRate)
	}
	if !s.BreakerOpen {
		t.Error("expected breaker open in summary")
	}
	if s.FinalLimiterRate != 27.5 || s.FinalBudget != 22 {
		t.Errorf("unexpected final controls: rate=%f budget=%d", s.FinalLimiterRate, s.FinalBudget)
	}
}

func TestGenerateCyclesSorted(t *testing.T) {
	g := NewGenerator().WithClock(fixedClock)
	report := g.Generate(testInput())

	if len(report.Cycles) != 3 {
		t.Fatalf("expected 3 cycle rows, got %d", len(report.Cycles))
	}
	for i, want := range []int64{1, 2, 3} {
		if report.Cycles[i].CycleIndex != want {
			t.Errorf("position %d: expected cycle %d, got %d", i, want, report.Cycles[i].CycleIndex)
		}
	}
}

func TestGenerateFailuresSorted(t *testing.T) {
	g := NewGenerator().WithClock(fixedClock)
	report := g.Generate(testInput())

	if len(report.Failures) != 2 {
		t.Fatalf("expected 2 failure rows, got %d", len(report.Failures))
	}
	// Sorted by kind: RATE_LIMITED before TIMEOUT.
	if report.Failures[0].Kind != "RATE_LIMITED" || report.Failures[0].Count != 6 {
		t.Errorf("unexpected first failure row: %+v", report.Failures[0])
	}
	if report.Failures[1].Kind != "TIMEOUT" || report.Failures[1].Count != 4 {
		t.Errorf("unexpected second failure row: %+v", report.Failures[1])
	}
}

func TestGenerateEmptyRun(t *testing.T) {
	g := NewGenerator().WithClock(fixedClock)
	report := g.Generate(&Input{
		Checkpoint: &domain.Checkpoint{RunID: "run-empty"},
	})

	if report.RunSummary.SuccessRate != 0 {
		t.Errorf("expected 0 success rate, got %f", report.RunSummary.SuccessRate)
	}
	if len(report.Failures) != 0 {
		t.Errorf("expected no failure rows, got %d", len(report.Failures))
	}
}

func TestRenderMarkdown(t *testing.T) {
	g := NewGenerator().WithClock(fixedClock)
	report := g.Generate(testInput())

	md := RenderMarkdown(report)

	for _, want := range []string{
		"# Run Report",
		"Run: run-test",
		"| Agents Dispatched | 100 |",
		"| Success Rate | 0.8000 |",
		"**Circuit breaker was OPEN at run end.**",
		"| RATE_LIMITED | 6 |",
		"## Cycle History",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderCSV(t *testing.T) {
	g := NewGenerator().WithClock(fixedClock)
	report := g.Generate(testInput())

	csv := RenderCSV(report.Cycles)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "cycle_index,simulated_at_ms,") {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "1,") {
		t.Errorf("expected first row to be cycle 1, got %s", lines[1])
	}
}

func TestRenderOutcomesCSV(t *testing.T) {
	g := NewGenerator().WithClock(fixedClock)
	report := g.Generate(testInput())

	csv := RenderOutcomesCSV(report)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	// Header + 4 terminal states + 2 failure kinds.
	if len(lines) != 7 {
		t.Fatalf("expected 7 lines, got %d: %q", len(lines), csv)
	}
	if lines[0] != "kind,value,count,share" {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(csv, "failure,RATE_LIMITED,6,0.600000") {
		t.Errorf("missing rate-limited failure row in %q", csv)
	}
}
