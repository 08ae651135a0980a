package trace

import (
	"fmt"
	"io"
	"sort"
)

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDispatches int
	Dropped         int
	UniqueNodes     int
	HookCounts      map[string]int // hook name → dispatches
	KindCounts      map[string]int // callback family → dispatches
	NodeCounts      map[string]int // node name → dispatches
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		HookCounts: make(map[string]int),
		KindCounts: make(map[string]int),
		NodeCounts: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalDispatches = len(st.Dispatches)
	summary.Dropped = st.Dropped
	for _, d := range st.Dispatches {
		summary.HookCounts[d.Hook]++
		summary.KindCounts[d.Kind]++
		summary.NodeCounts[d.Node]++
	}
	summary.UniqueNodes = len(summary.NodeCounts)

	return summary
}

// Print writes the summary with hooks sorted by name.
func (s *TraceSummary) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Hook Trace Summary ===")
	fmt.Fprintf(w, "Dispatches           : %d (%d dropped)\n", s.TotalDispatches, s.Dropped)
	fmt.Fprintf(w, "Nodes                : %d\n", s.UniqueNodes)
	hooks := make([]string, 0, len(s.HookCounts))
	for h := range s.HookCounts {
		hooks = append(hooks, h)
	}
	sort.Strings(hooks)
	for _, h := range hooks {
		fmt.Fprintf(w, "  %-36s %d\n", h, s.HookCounts[h])
	}
}
