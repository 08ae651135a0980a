// Package sim provides the core engine that builds and runs timestep-driven
// device simulations from a tree of specification nodes.
//
// # Reading Guide
//
// Start with these files to understand the engine:
//   - node.go: tree links, unique naming and upward attribute lookup
//   - hooks.go: hook names and the depth-first dispatch protocol
//   - simulation.go: the root node and its lifecycle (finalize → allocate → generate → run → release)
//   - run.go: the division/timestep loop and the even/odd kernel pair
//
// Then, for code generation and memory:
//   - codegen.go: the Generator, its Dialect and identifier substitution
//   - partition.go: slicing idx_realization into one guarded region per model
//   - memory.go: MemoryNode buffer requests and memory summaries
//   - probe.go, probe_host.go: windowed recording and host-side consumers
//
// # Architecture
//
// The sim package defines the engine and the base node types; payloads and
// surrounding concerns live in sub-packages:
//   - sim/device/: device and compiler boundary, in-memory Host device, RecordingCompiler
//   - sim/spiking/: spiking neuron models, synapses, inputs, spike propagation and probes
//   - sim/netconf/: YAML and HCL network descriptions and the node kind registry
//   - sim/hostinit/: host-side array initializers drawn from distributions
//   - sim/trace/: hook dispatch trace recording
//
// Sub-packages register their node kinds via init() functions that call
// netconf.Register.
//
// # Hook Protocol
//
// A node registers callbacks per hook name at construction. Triggering a hook
// walks the subtree of the triggering node in pre-order, child insertion
// order. Staged hooks run three complete walks, so every pre_ callback has
// finished before the first on_ (or in_, for code generation) callback runs.
package sim
