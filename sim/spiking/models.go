package spiking

import (
	"github.com/clegans/clegans/sim"
	"github.com/clegans/clegans/sim/hostinit"
)

// SpikingModel is the base of all spiking neuron models. Embedding types set
// spike_condition, the expression deciding whether an element spiked this
// timestep.
type SpikingModel struct {
	sim.Model
}

// NewSpikingModel creates a SpikingModel whose spike_condition is left to the
// caller.
func NewSpikingModel(parent sim.Node, basename string, count int) *SpikingModel {
	m := &SpikingModel{}
	m.InitSpikingModel(m, parent, basename, count)
	return m
}

// InitSpikingModel initializes an embedded SpikingModel.
func (m *SpikingModel) InitSpikingModel(self sim.Node, parent sim.Node, basename string, count int) {
	m.InitModel(self, parent, basename, count)
	m.Declare("spike_condition")

	m.OnCG(sim.In(sim.HookModelCode), m.modelCode)
	m.OnCG(sim.In(HookCalculateInputs), func(g *sim.Generator) error {
		return g.Emit("input_current = 0")
	})
	m.OnCG(sim.In(HookSpikeProcessing), m.spikeProcessing)
	m.OnCG(sim.In(HookSpikeGenerated), func(g *sim.Generator) error {
		if err := sim.TriggerStagedCGHook(m.Self(), HookSpikeStateUpdates, g); err != nil {
			return err
		}
		return sim.TriggerStagedCGHook(m.Self(), HookSpikePropagation, g)
	})
	m.OnCG(sim.In(HookNoSpikeGenerated), func(g *sim.Generator) error {
		return sim.TriggerStagedCGHook(m.Self(), HookNoSpikeStateUpdates, g)
	})
}

func (m *SpikingModel) modelCode(g *sim.Generator) error {
	if err := g.Emit("idx_state = idx_model + (realization_num - realization_start)*count"); err != nil {
		return err
	}
	for _, h := range modelCodeOrder {
		if err := sim.TriggerStagedCGHook(m.Self(), h, g); err != nil {
			return err
		}
	}
	return nil
}

func (m *SpikingModel) spikeProcessing(g *sim.Generator) error {
	if err := g.Block("if spike_condition:", func(g *sim.Generator) error {
		return sim.TriggerStagedCGHook(m.Self(), HookSpikeGenerated, g)
	}); err != nil {
		return err
	}
	return g.Block(g.Dialect.Else, func(g *sim.Generator) error {
		return sim.TriggerStagedCGHook(m.Self(), HookNoSpikeGenerated, g)
	})
}

// GenericIF is an integrate-and-fire model with an absolute refractory
// period. Embedding types give the leak its form; tau, v_reset, v_thresh
// and abs_refractory_period are set by the user.
type GenericIF struct {
	SpikingModel
	// V is the membrane voltage.
	V *State
	// AbsRefractoryTRelease is the time each element leaves its refractory
	// period. It starts at zero.
	AbsRefractoryTRelease *State
}

// NewGenericIF creates a GenericIF with an unset leak.
func NewGenericIF(parent sim.Node, basename string, count int) *GenericIF {
	m := &GenericIF{}
	m.InitGenericIF(m, parent, basename, count)
	return m
}

// InitGenericIF initializes an embedded GenericIF.
func (m *GenericIF) InitGenericIF(self sim.Node, parent sim.Node, basename string, count int) {
	m.InitSpikingModel(self, parent, basename, count)
	for _, a := range []string{"tau", "v_reset", "v_thresh", "abs_refractory_period", "leak"} {
		m.Declare(a)
	}
	m.Set("v_update_eqn", "v + DT/tau*(leak + input_current)")
	m.Set("spike_condition", "v_new >= v_thresh")
	m.Set("abs_refractory_condition", "t < abs_refractory_t_release")

	m.V = NewState(self, "v")
	m.V.Calculations = "v_new = v_update_eqn if not abs_refractory_condition else v_reset"
	m.V.SpikeUpdater = "v_reset"
	m.V.NoSpikeUpdater = "v_new"
	m.Set("v", m.V)

	m.AbsRefractoryTRelease = NewState(self, "abs_refractory_t_release")
	m.AbsRefractoryTRelease.SpikeUpdater = "t + abs_refractory_period"
	NewInitializeFromHost(m.AbsRefractoryTRelease, hostinit.Zeros)
	m.Set("abs_refractory_t_release", m.AbsRefractoryTRelease)
}

// ReducedLIF is the reduced leaky integrate-and-fire model, with leak -v.
type ReducedLIF struct {
	GenericIF
}

// NewReducedLIF creates a ReducedLIF.
func NewReducedLIF(parent sim.Node, basename string, count int) *ReducedLIF {
	m := &ReducedLIF{}
	m.InitGenericIF(m, parent, basename, count)
	m.Set("leak", "-v")
	return m
}
