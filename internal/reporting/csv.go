package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the per-cycle history as a CSV string.
func RenderCSV(cycles []CycleRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("cycle_index,simulated_at_ms,dispatched,skipped,successes,abandoned,failures,")
	sb.WriteString("rate_limited,limiter_rate,budget\n")

	// Rows
	for _, c := range cycles {
		sb.WriteString(fmt.Sprintf("%d,%d,%d,%d,%d,%d,%d,%d,%.6f,%d\n",
			c.CycleIndex,
			c.SimulatedAtMs,
			c.Dispatched,
			c.Skipped,
			c.Successes,
			c.Abandoned,
			c.Failures,
			c.RateLimited,
			c.LimiterRate,
			c.Budget,
		))
	}

	return sb.String()
}

// RenderOutcomesCSV renders the terminal-outcome and failure-kind
// breakdown as a CSV string.
func RenderOutcomesCSV(r *Report) string {
	var sb strings.Builder

	sb.WriteString("kind,value,count,share\n")
	for _, o := range r.Outcomes {
		sb.WriteString(fmt.Sprintf("outcome,%s,%d,%.6f\n", o.Terminal, o.Count, o.Share))
	}
	for _, f := range r.Failures {
		share := 0.0
		if r.RunSummary.Failures > 0 {
			share = float64(f.Count) / float64(r.RunSummary.Failures)
		}
		sb.WriteString(fmt.Sprintf("failure,%s,%d,%.6f\n", f.Kind, f.Count, share))
	}

	return sb.String()
}
