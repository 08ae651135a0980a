package sim

import (
	"fmt"

	"github.com/clegans/clegans/sim/device"
)

// HookName identifies a dispatch point. Staged hooks are built from a base
// name with Pre/On/Post (lifecycle) or Pre/In/Post (code generation).
type HookName string

// Pre names the stage run before every other stage of base.
func Pre(base HookName) HookName { return "pre_" + base }

// On names the main stage of a lifecycle hook.
func On(base HookName) HookName { return "on_" + base }

// In names the main stage of a code generation hook.
func In(base HookName) HookName { return "in_" + base }

// Post names the stage run after every other stage of base.
func Post(base HookName) HookName { return "post_" + base }

// Staged lifecycle hook bases.
const (
	HookFinalize        HookName = "finalize"
	HookAllocate        HookName = "allocate"
	HookRelease         HookName = "release"
	HookPrepareStepEven HookName = "prepare_step_fn_even"
	HookPrepareStepOdd  HookName = "prepare_step_fn_odd"
)

// Runtime hooks.
const (
	HookPrepareRun       HookName = "prepare_run"
	HookInitializeMemory HookName = "on_initialize_memory"
	HookTimestepComplete HookName = "on_timestep_complete"
	HookDivisionComplete HookName = "on_division_complete"
	HookRunComplete      HookName = "on_run_complete"
	HookBufferFull       HookName = "on_buffer_full"
	HookProcessData      HookName = "on_process_data"
	HookMemoryReport     HookName = "on_memory_report"
)

// Staged code generation hook bases.
const (
	HookStepKernel             HookName = "step_kernel"
	HookStepKernelBody         HookName = "step_kernel_body"
	HookThreadIdxCalculations  HookName = "thread_idx_calculations"
	HookMainLoop               HookName = "main_loop"
	HookLoopBody               HookName = "loop_body"
	HookElementIdxCalculations HookName = "element_idx_calculations"
	HookModelIdxCalculations   HookName = "model_idx_calculations"
	HookModelCode              HookName = "model_cl_code"
)

type (
	LifecycleFunc   func() error
	CGFunc          func(g *Generator) error
	RunFunc         func(ri *RunInfo) error
	TimestepFunc    func(ti *TimestepInfo) error
	BufferFullFunc  func(ti *TimestepInfo, timestepsElapsed int) error
	ProcessDataFunc func(data *device.HostArray, source Node) error
	MemoryFunc      func(r *MemoryReport) error
)

// HookKind names the callback signature family a hook belongs to.
type HookKind string

const (
	HookKindLifecycle   HookKind = "lifecycle"
	HookKindCodegen     HookKind = "codegen"
	HookKindRun         HookKind = "run"
	HookKindTimestep    HookKind = "timestep"
	HookKindBufferFull  HookKind = "buffer_full"
	HookKindProcessData HookKind = "process_data"
	HookKindMemory      HookKind = "memory"
)

// HookObserver is told about every callback invocation, before it runs.
type HookObserver func(kind HookKind, hook HookName, n Node)

// hookTable holds the callbacks a node registered, per hook name. Callbacks
// for the same hook on the same node run in registration order, so a type
// embedding another node type extends rather than replaces its behavior.
type hookTable struct {
	lifecycle   map[HookName][]LifecycleFunc
	cg          map[HookName][]CGFunc
	run         map[HookName][]RunFunc
	timestep    map[HookName][]TimestepFunc
	bufferFull  map[HookName][]BufferFullFunc
	processData map[HookName][]ProcessDataFunc
	memory      map[HookName][]MemoryFunc
}

func add[F any](m *map[HookName][]F, h HookName, fn F) {
	if *m == nil {
		*m = make(map[HookName][]F)
	}
	(*m)[h] = append((*m)[h], fn)
}

func (b *NodeBase) OnLifecycle(h HookName, fn LifecycleFunc) { add(&b.hooks.lifecycle, h, fn) }
func (b *NodeBase) OnCG(h HookName, fn CGFunc)               { add(&b.hooks.cg, h, fn) }
func (b *NodeBase) OnRun(h HookName, fn RunFunc)             { add(&b.hooks.run, h, fn) }
func (b *NodeBase) OnTimestep(h HookName, fn TimestepFunc)   { add(&b.hooks.timestep, h, fn) }
func (b *NodeBase) OnBufferFull(fn BufferFullFunc)           { add(&b.hooks.bufferFull, HookBufferFull, fn) }
func (b *NodeBase) OnProcessData(fn ProcessDataFunc)         { add(&b.hooks.processData, HookProcessData, fn) }
func (b *NodeBase) OnMemoryReport(fn MemoryFunc)             { add(&b.hooks.memory, HookMemoryReport, fn) }

// HasHook reports whether the node registered any callback for h.
func (b *NodeBase) HasHook(h HookName) bool {
	t := &b.hooks
	return len(t.lifecycle[h])+len(t.cg[h])+len(t.run[h])+len(t.timestep[h])+
		len(t.bufferFull[h])+len(t.processData[h])+len(t.memory[h]) > 0
}

// SetHookObserver installs an observer for every hook dispatched anywhere in
// the tree n belongs to. Nil removes it.
func SetHookObserver(n Node, obs HookObserver) {
	n.Base().tree.observer = obs
}

// dispatch walks the subtree rooted at n in pre-order and invokes the
// callbacks selected by slot. The first error stops the walk.
func dispatch[F any](n Node, kind HookKind, h HookName, slot func(*hookTable) map[HookName][]F, call func(Node, F) error) error {
	obs := n.Base().tree.observer
	return Walk(n, func(cur Node) error {
		b := cur.Base()
		for _, fn := range slot(&b.hooks)[h] {
			if obs != nil {
				obs(kind, h, cur)
			}
			if err := call(cur, fn); err != nil {
				return fmt.Errorf("%s on %s: %w", h, b.name, err)
			}
		}
		return nil
	})
}

// TriggerHook runs lifecycle callbacks named h on n's subtree.
func TriggerHook(n Node, h HookName) error {
	return dispatch(n, HookKindLifecycle, h, func(t *hookTable) map[HookName][]LifecycleFunc { return t.lifecycle },
		func(_ Node, fn LifecycleFunc) error { return fn() })
}

// TriggerStagedHook runs pre_h, on_h and post_h as three complete traversals.
func TriggerStagedHook(n Node, h HookName) error {
	for _, stage := range []HookName{Pre(h), On(h), Post(h)} {
		if err := TriggerHook(n, stage); err != nil {
			return err
		}
	}
	return nil
}

// TriggerCGHook runs code generation callbacks named h on n's subtree. Each
// callback emits with its own node as the substitution origin.
func TriggerCGHook(n Node, h HookName, g *Generator) error {
	if g.PrintHooks {
		g.Comment(fmt.Sprintf("___%s___", h))
	}
	return dispatch(n, HookKindCodegen, h, func(t *hookTable) map[HookName][]CGFunc { return t.cg },
		func(cur Node, fn CGFunc) error {
			return g.within(cur, fn)
		})
}

// TriggerStagedCGHook runs pre_h, in_h and post_h as three complete
// traversals.
func TriggerStagedCGHook(n Node, h HookName, g *Generator) error {
	for _, stage := range []HookName{Pre(h), In(h), Post(h)} {
		if err := TriggerCGHook(n, stage, g); err != nil {
			return err
		}
	}
	return nil
}

// TriggerRunHook runs run callbacks named h on n's subtree.
func TriggerRunHook(n Node, h HookName, ri *RunInfo) error {
	return dispatch(n, HookKindRun, h, func(t *hookTable) map[HookName][]RunFunc { return t.run },
		func(_ Node, fn RunFunc) error { return fn(ri) })
}

// TriggerTimestepHook runs per-division callbacks named h on n's subtree.
func TriggerTimestepHook(n Node, h HookName, ti *TimestepInfo) error {
	return dispatch(n, HookKindTimestep, h, func(t *hookTable) map[HookName][]TimestepFunc { return t.timestep },
		func(_ Node, fn TimestepFunc) error { return fn(ti) })
}

// TriggerBufferFull notifies n's subtree that a probe buffer filled.
func TriggerBufferFull(n Node, ti *TimestepInfo, timestepsElapsed int) error {
	return dispatch(n, HookKindBufferFull, HookBufferFull, func(t *hookTable) map[HookName][]BufferFullFunc { return t.bufferFull },
		func(_ Node, fn BufferFullFunc) error { return fn(ti, timestepsElapsed) })
}

// TriggerProcessData hands host data copied from source to n's subtree.
func TriggerProcessData(n Node, data *device.HostArray, source Node) error {
	return dispatch(n, HookKindProcessData, HookProcessData, func(t *hookTable) map[HookName][]ProcessDataFunc { return t.processData },
		func(_ Node, fn ProcessDataFunc) error { return fn(data, source) })
}

// TriggerMemoryReport lets n's subtree add rows to a memory report.
func TriggerMemoryReport(n Node, r *MemoryReport) error {
	return dispatch(n, HookKindMemory, HookMemoryReport, func(t *hookTable) map[HookName][]MemoryFunc { return t.memory },
		func(_ Node, fn MemoryFunc) error { return fn(r) })
}
