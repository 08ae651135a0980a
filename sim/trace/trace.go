package trace

import "fmt"

// TraceLevel controls the verbosity of dispatch tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelHooks captures every dispatch except the per-timestep families.
	TraceLevelHooks TraceLevel = "hooks"
	// TraceLevelAll captures every dispatch, including one record per node per timestep.
	TraceLevelAll TraceLevel = "all"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:  true,
	TraceLevelHooks: true,
	TraceLevelAll:   true,
	"":              true, // empty defaults to none
}

// perTimestepKinds are the callback families fired inside the timestep loop.
var perTimestepKinds = map[string]bool{
	"timestep":     true,
	"buffer_full":  true,
	"process_data": true,
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
	// MaxRecords caps the number of records kept; 0 means unlimited.
	// Dispatches past the cap are counted in Dropped.
	MaxRecords int
}

// SimulationTrace collects dispatch records during a simulation's lifecycle.
type SimulationTrace struct {
	Config     TraceConfig
	Dispatches []DispatchRecord
	Dropped    int
	seq        int
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:     config,
		Dispatches: make([]DispatchRecord, 0),
	}
}

// Wants reports whether a dispatch of the given kind is recorded at the
// configured level.
func (st *SimulationTrace) Wants(kind string) bool {
	switch st.Config.Level {
	case TraceLevelAll:
		return true
	case TraceLevelHooks:
		return !perTimestepKinds[kind]
	default:
		return false
	}
}

// RecordDispatch appends a dispatch record if the level wants it, assigning
// its sequence number.
func (st *SimulationTrace) RecordDispatch(kind, hook, node string) {
	if !st.Wants(kind) {
		return
	}
	if st.Config.MaxRecords > 0 && len(st.Dispatches) >= st.Config.MaxRecords {
		st.Dropped++
		return
	}
	st.Dispatches = append(st.Dispatches, DispatchRecord{Seq: st.seq, Kind: kind, Hook: hook, Node: node})
	st.seq++
}

// Sequence renders the trace as "hook@node" strings, in order.
func (st *SimulationTrace) Sequence() []string {
	out := make([]string, len(st.Dispatches))
	for i, d := range st.Dispatches {
		out[i] = fmt.Sprintf("%s@%s", d.Hook, d.Node)
	}
	return out
}

// Reset discards every record, keeping the configuration.
func (st *SimulationTrace) Reset() {
	st.Dispatches = st.Dispatches[:0]
	st.Dropped = 0
	st.seq = 0
}
