package trace

import (
	"bytes"
	"strings"
	"testing"
)

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelAll})

	// WHEN summarized
	summary := Summarize(st)

	// THEN all counts are zero
	if summary.TotalDispatches != 0 || summary.UniqueNodes != 0 {
		t.Errorf("expected zero summary, got %+v", summary)
	}
	if len(summary.HookCounts) != 0 {
		t.Error("expected empty hook counts")
	}
}

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	summary := Summarize(nil)
	if summary.TotalDispatches != 0 || summary.NodeCounts == nil {
		t.Errorf("expected initialized zero summary, got %+v", summary)
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with dispatches over two nodes
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelAll})
	st.RecordDispatch("lifecycle", "on_allocate", "a")
	st.RecordDispatch("lifecycle", "on_allocate", "b")
	st.RecordDispatch("timestep", "on_timestep_complete", "a")

	// WHEN summarized
	summary := Summarize(st)

	// THEN counts match
	if summary.TotalDispatches != 3 {
		t.Errorf("expected 3 dispatches, got %d", summary.TotalDispatches)
	}
	if summary.HookCounts["on_allocate"] != 2 {
		t.Errorf("expected 2 on_allocate, got %d", summary.HookCounts["on_allocate"])
	}
	if summary.KindCounts["timestep"] != 1 {
		t.Errorf("expected 1 timestep dispatch, got %d", summary.KindCounts["timestep"])
	}
	if summary.UniqueNodes != 2 {
		t.Errorf("expected 2 unique nodes, got %d", summary.UniqueNodes)
	}
}

func TestTraceSummary_Print_SortsHooks(t *testing.T) {
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelAll})
	st.RecordDispatch("lifecycle", "post_finalize", "a")
	st.RecordDispatch("lifecycle", "on_allocate", "a")

	var buf bytes.Buffer
	Summarize(st).Print(&buf)
	out := buf.String()

	if !strings.Contains(out, "Dispatches           : 2") {
		t.Errorf("missing dispatch total in:\n%s", out)
	}
	if strings.Index(out, "on_allocate") > strings.Index(out, "post_finalize") {
		t.Errorf("hooks not sorted in:\n%s", out)
	}
}
