package spiking

import (
	"fmt"
	"math/rand/v2"

	"github.com/clegans/clegans/sim"
	"github.com/clegans/clegans/sim/device"
	"github.com/clegans/clegans/sim/hostinit"
)

// Current adds its current expression to the model's input_current.
type Current struct {
	sim.NodeBase
}

// NewCurrent creates a Current whose current attribute is left to the
// caller.
func NewCurrent(parent sim.Node, basename string) *Current {
	c := &Current{}
	c.InitCurrent(c, parent, basename)
	return c
}

// InitCurrent initializes an embedded Current.
func (c *Current) InitCurrent(self sim.Node, parent sim.Node, basename string) {
	if parent == nil {
		panic("Current: parent must not be nil")
	}
	c.Init(self, parent, basename)
	c.Declare("current")
	c.OnCG(sim.In(HookCalculateInputs), func(g *sim.Generator) error {
		return g.Emit("input_current += current")
	})
}

// GenericSynapse is a conductance-based current g*(reversal - v). Embedding
// types provide g and spike_target, the state spikes are added to.
type GenericSynapse struct {
	Current
}

// NewGenericSynapse creates a GenericSynapse whose g, reversal and
// spike_target are left to the caller.
func NewGenericSynapse(parent sim.Node, basename string) *GenericSynapse {
	s := &GenericSynapse{}
	s.InitGenericSynapse(s, parent, basename)
	return s
}

// InitGenericSynapse initializes an embedded GenericSynapse.
func (s *GenericSynapse) InitGenericSynapse(self sim.Node, parent sim.Node, basename string) {
	s.InitCurrent(self, parent, basename)
	s.Set("current", "g*(reversal - v)")
	s.Declare("reversal")
	s.Declare("spike_target")
}

// ExponentialSynapse produces exponentially decaying conductances with time
// constant tau.
type ExponentialSynapse struct {
	GenericSynapse
	// G is the conductance and the target of incoming spikes.
	G *State
}

// NewExponentialSynapse creates an ExponentialSynapse under a model.
func NewExponentialSynapse(parent sim.Node, basename string) *ExponentialSynapse {
	s := &ExponentialSynapse{}
	s.InitGenericSynapse(s, parent, basename)
	s.Declare("tau")
	s.Set("g_updater", "g - DT/tau*g")

	s.G = NewState(s, "g")
	s.G.SpikeUpdater = "g_updater"
	s.G.NoSpikeUpdater = "g_updater"
	s.Set("g", s.G)
	s.Set("spike_target", s.G)
	return s
}

// LocalPoisson injects spikes from a homogeneous Poisson process of Rate Hz
// into its parent synapse's spike_target. Each element keeps the time of its
// next spike as state; high rates may deliver several spikes in one
// timestep.
type LocalPoisson struct {
	sim.NodeBase
	Rate float64
	// NextSpike holds each element's next spike time in ms.
	NextSpike *State
}

// NewLocalPoisson creates a LocalPoisson under a synapse.
func NewLocalPoisson(parent sim.Node, basename string, rate float64) *LocalPoisson {
	if parent == nil {
		panic("LocalPoisson: parent must not be nil")
	}
	p := &LocalPoisson{Rate: rate}
	p.Init(p, parent, basename)
	p.SetFunc("rate", func() any { return p.Rate })
	p.SetFunc("rate_mHz", func() any { return p.RateMHz() })
	p.SetFunc("reciprocal_rate_mHz", func() any { return 1 / p.RateMHz() })
	p.Set("weight", 1)

	p.NextSpike = NewState(p, "next_spike")
	p.Set("next_spike", p.NextSpike)
	p.Set("next_spike_alloc", p.NextSpike.Allocation())
	NewInitializeFromHost(p.NextSpike, func(shape device.Shape, dtype device.DType, src rand.Source) *device.HostArray {
		return hostinit.Exponential(p.RateMHz())(shape, dtype, src)
	})

	p.OnLifecycle(sim.On(sim.HookFinalize), func() error {
		if p.Rate <= 0 {
			return fmt.Errorf("%s: rate must be > 0, got %v: %w", p.Name(), p.Rate, sim.ErrInvariant)
		}
		return nil
	})
	p.OnCG(sim.In(HookCalculateInputs), p.calculateInputs)
	return p
}

// RateMHz returns the rate in spikes per ms.
func (p *LocalPoisson) RateMHz() float64 { return p.Rate / 1000 }

func (p *LocalPoisson) calculateInputs(g *sim.Generator) error {
	return g.Emit(`
		if t >= next_spike:
			spike_target += weight
			isi = randexp()*reciprocal_rate_mHz
			while isi < DT:
				spike_target += weight
				isi += randexp()*reciprocal_rate_mHz
			next_spike_alloc[idx_state] = next_spike + isi
	`)
}
