// Package output renders human-readable phase summaries.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/rampline/rampline/internal/stats"
)

// PrintReport writes a per-request breakdown for one completed phase.
func PrintReport(w io.Writer, phase string, summaries []stats.RequestSummary) {
	fmt.Fprintf(w, "\n--- Phase %q Results ---\n", phase)
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No requests dispatched.")
		return
	}

	var total, failures, overBudget int64
	for _, s := range summaries {
		total += s.Total
		failures += s.Failures
		overBudget += s.OverBudget
	}
	fmt.Fprintf(w, "Total Requests:    %d\n", total)
	fmt.Fprintf(w, "Failed:            %d\n", failures)
	fmt.Fprintf(w, "Over Budget:       %d\n", overBudget)

	fmt.Fprintln(w, "\nRequest Breakdown:")
	for _, s := range summaries {
		share := 0.0
		if total > 0 {
			share = (float64(s.Total) / float64(total)) * 100
		}
		fmt.Fprintf(
			w,
			"  - %s: total=%d (%.1f%%), failures=%d, over_budget=%d, budget=%s\n",
			s.Request,
			s.Total,
			share,
			s.Failures,
			s.OverBudget,
			s.Budget,
		)
		fmt.Fprintf(w, "    Latency: min=%s max=%s mean=%s p50=%s p90=%s p99=%s\n",
			s.MinLatency, s.MaxLatency, s.MeanLatency,
			s.P50Latency, s.P90Latency, s.P99Latency)
		if len(s.Outcomes) > 0 {
			fmt.Fprintln(w, "    Outcomes:")
			codes := make([]int, 0, len(s.Outcomes))
			for code := range s.Outcomes {
				codes = append(codes, code)
			}
			sort.Ints(codes)
			for _, code := range codes {
				fmt.Fprintf(w, "      %d: %d\n", code, s.Outcomes[code])
			}
		}
	}
}

// PrintJSONReport writes the phase summaries as indented JSON.
func PrintJSONReport(w io.Writer, phase string, summaries []stats.RequestSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Phase    string                 `json:"phase"`
		Requests []stats.RequestSummary `json:"requests"`
	}{Phase: phase, Requests: summaries})
}
