package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders the report as a Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Run Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run: %s\n\n", r.RunID))

	// Run Summary
	sb.WriteString("## Run Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Cycles Completed | %d |\n", r.RunSummary.CyclesCompleted))
	sb.WriteString(fmt.Sprintf("| Agents Dispatched | %d |\n", r.RunSummary.AgentsDispatched))
	sb.WriteString(fmt.Sprintf("| Successes | %d |\n", r.RunSummary.Successes))
	sb.WriteString(fmt.Sprintf("| Abandoned | %d |\n", r.RunSummary.Abandoned))
	sb.WriteString(fmt.Sprintf("| Failures | %d |\n", r.RunSummary.Failures))
	sb.WriteString(fmt.Sprintf("| Skips | %d |\n", r.RunSummary.Skips))
	sb.WriteString(fmt.Sprintf("| Success Rate | %.4f |\n", r.RunSummary.SuccessRate))
	sb.WriteString(fmt.Sprintf("| Breaker Trips | %d |\n", r.RunSummary.BreakerTrips))
	sb.WriteString(fmt.Sprintf("| Simulated End (ms) | %d |\n", r.RunSummary.SimulatedEnd))
	sb.WriteString(fmt.Sprintf("| Real Elapsed (s) | %.1f |\n", r.RunSummary.RealElapsedSeconds))
	sb.WriteString(fmt.Sprintf("| Final Limiter Rate | %.2f |\n", r.RunSummary.FinalLimiterRate))
	sb.WriteString(fmt.Sprintf("| Final Budget | %d |\n", r.RunSummary.FinalBudget))
	if r.RunSummary.BreakerOpen {
		sb.WriteString("\n**Circuit breaker was OPEN at run end.**\n")
	}
	sb.WriteString("\n")

	// Outcomes
	sb.WriteString("## Outcomes\n\n")
	if len(r.Outcomes) > 0 {
		sb.WriteString("| Terminal | Count | Share |\n")
		sb.WriteString("|----------|-------|-------|\n")
		for _, o := range r.Outcomes {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.4f |\n", o.Terminal, o.Count, o.Share))
		}
	} else {
		sb.WriteString("No outcomes recorded.\n")
	}
	sb.WriteString("\n")

	// Failures
	sb.WriteString("## Failures by Kind\n\n")
	if len(r.Failures) > 0 {
		sb.WriteString("| Kind | Count |\n")
		sb.WriteString("|------|-------|\n")
		for _, f := range r.Failures {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", f.Kind, f.Count))
		}
	} else {
		sb.WriteString("No failures recorded.\n")
	}
	sb.WriteString("\n")

	// Cycle History
	sb.WriteString("## Cycle History\n\n")
	if len(r.Cycles) > 0 {
		sb.WriteString("| Cycle | SimTime (ms) | Dispatched | Skipped | Success | Abandoned | Failed | 429s | Rate | Budget |\n")
		sb.WriteString("|-------|--------------|------------|---------|---------|-----------|--------|------|------|--------|\n")
		for _, c := range r.Cycles {
			sb.WriteString(fmt.Sprintf("| %d | %d | %d | %d | %d | %d | %d | %d | %.2f | %d |\n",
				c.CycleIndex, c.SimulatedAtMs,
				c.Dispatched, c.Skipped, c.Successes, c.Abandoned, c.Failures,
				c.RateLimited, c.LimiterRate, c.Budget))
		}
	} else {
		sb.WriteString("No cycle history available.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
