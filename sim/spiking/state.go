package spiking

import (
	"fmt"

	"github.com/clegans/clegans/sim"
	"github.com/clegans/clegans/sim/device"
	"github.com/clegans/clegans/sim/hostinit"
)

// State is one per-element state variable of the model it belongs to. It
// owns a device buffer of count * n_realizations_per_division_max elements,
// read into a local variable named after the state at read_state and
// written back by its updaters.
//
// In generated code the state substitutes as that local variable.
type State struct {
	sim.NodeBase
	DType device.DType
	// Calculations, if set, is emitted into CalculationsHook.
	Calculations     string
	CalculationsHook sim.HookName
	// SpikeUpdater and NoSpikeUpdater are the expressions written back to
	// the buffer on the spike and no-spike branches. Empty means no update.
	// When both are equal, the update is emitted once, unconditionally.
	SpikeUpdater   string
	NoSpikeUpdater string

	allocation *sim.MemoryNode
}

// NewState creates a float state under parent. Its buffer is sized at
// finalize, from the enclosing model.
func NewState(parent sim.Node, basename string) *State {
	if parent == nil {
		panic("State: parent must not be nil")
	}
	st := &State{DType: device.Float32, CalculationsHook: sim.In(HookStateCalculations)}
	st.Init(st, parent, basename)
	st.allocation = sim.NewAllocation(st, "buffer", nil, st.DType)

	st.Set("allocation", st.allocation)
	st.Set("reader", "allocation[idx_state]")
	st.SetFunc("spike_updater", func() any { return st.SpikeUpdater })
	st.SetFunc("no_spike_updater", func() any { return st.NoSpikeUpdater })

	st.OnLifecycle(sim.Pre(sim.HookFinalize), st.prepare)
	st.OnCG(sim.In(HookReadState), func(g *sim.Generator) error {
		return g.Emit("name = reader")
	})
	return st
}

// CGExpression substitutes the state as its local variable.
func (st *State) CGExpression() string { return st.Name() }

// Allocation returns the memory node holding the state.
func (st *State) Allocation() *sim.MemoryNode { return st.allocation }

// IndependentUpdate reports whether both branches write the same value.
func (st *State) IndependentUpdate() bool { return st.SpikeUpdater == st.NoSpikeUpdater }

func (st *State) prepare() error {
	m, ok := sim.ModelOf(st)
	if !ok {
		return fmt.Errorf("state %s is not inside a model: %w", st.Name(), sim.ErrInvariant)
	}
	s, ok := sim.Ancestor[*sim.Simulation](st)
	if !ok {
		return fmt.Errorf("state %s is not part of a simulation: %w", st.Name(), sim.ErrInvariant)
	}
	st.allocation.Shape = device.Shape{m.Count * s.NRealizationsPerDivisionMax}
	st.allocation.DType = st.DType

	if st.Calculations != "" {
		code := st.Calculations
		st.OnCG(st.CalculationsHook, func(g *sim.Generator) error { return g.Emit(code) })
	}
	if st.IndependentUpdate() {
		if st.SpikeUpdater != "" {
			st.OnCG(sim.In(HookIndependentStateUpdates), store("spike_updater"))
		}
		return nil
	}
	if st.SpikeUpdater != "" {
		st.OnCG(sim.In(HookSpikeStateUpdates), store("spike_updater"))
	}
	if st.NoSpikeUpdater != "" {
		st.OnCG(sim.In(HookNoSpikeStateUpdates), store("no_spike_updater"))
	}
	return nil
}

func store(updater string) sim.CGFunc {
	return func(g *sim.Generator) error {
		return g.Emit("allocation[idx_state] = " + updater)
	}
}

// InitializeFromHost fills its parent state's buffer with host-produced
// values at the start of every division. Values are drawn from the random
// stream named after the state, so the same seed reproduces them.
type InitializeFromHost struct {
	sim.NodeBase
	Producer hostinit.Producer

	state *State
}

// NewInitializeFromHost attaches an initializer to state.
func NewInitializeFromHost(state *State, producer hostinit.Producer) *InitializeFromHost {
	if state == nil {
		panic("InitializeFromHost: state must not be nil")
	}
	if producer == nil {
		panic("InitializeFromHost: producer must not be nil")
	}
	in := &InitializeFromHost{Producer: producer, state: state}
	in.Init(in, state, "InitializeFromHost")
	in.OnTimestep(sim.HookInitializeMemory, in.initialize)
	return in
}

// initialize produces one value per element of the division's realizations.
// A short final division leaves the tail of the buffer zeroed.
func (in *InitializeFromHost) initialize(ti *sim.TimestepInfo) error {
	s, ok := sim.Ancestor[*sim.Simulation](in)
	if !ok {
		return fmt.Errorf("%s is not part of a simulation: %w", in.Name(), sim.ErrInvariant)
	}
	m, ok := sim.ModelOf(in)
	if !ok {
		return fmt.Errorf("%s is not inside a model: %w", in.Name(), sim.ErrInvariant)
	}
	b, err := in.state.Allocation().Buffer()
	if err != nil {
		return err
	}
	count := ti.NRealizations * m.Count
	values := in.Producer(device.Shape{count}, b.DType(), s.RNG().Source(in.state.Name()))
	full := device.NewHostArray(b.Shape(), b.DType())
	if err := device.CopyBlock(full, []int{0}, values, []int{count}); err != nil {
		return fmt.Errorf("%s: %w", in.Name(), err)
	}
	return s.Device().CopyToDevice(b, full)
}
