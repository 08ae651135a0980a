// Package trace provides hook dispatch recording for inspecting how a
// simulation tree was driven. This package has no dependencies on sim/; it
// stores pure data types.
package trace

// DispatchRecord captures one callback invocation.
type DispatchRecord struct {
	Seq  int    // position in the trace, from 0
	Kind string // callback family: lifecycle, codegen, run, timestep, buffer_full, process_data, memory
	Hook string // full stage name, e.g. "pre_finalize" or "in_model_cl_code"
	Node string // unique name of the node whose callback ran
}
