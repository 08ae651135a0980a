package spiking

import (
	"fmt"

	"github.com/clegans/clegans/sim"
	"github.com/clegans/clegans/sim/hostinit"
	"github.com/clegans/clegans/sim/netconf"
)

func init() {
	netconf.Register("spiking_model", func(_ *netconf.Builder, parent sim.Node, spec netconf.NodeSpec) (sim.Node, error) {
		if err := spec.CheckParams(); err != nil {
			return nil, err
		}
		return NewSpikingModel(parent, spec.Basename("SpikingModel"), spec.Count), nil
	})
	netconf.Register("generic_if", func(_ *netconf.Builder, parent sim.Node, spec netconf.NodeSpec) (sim.Node, error) {
		if err := spec.CheckParams(); err != nil {
			return nil, err
		}
		return NewGenericIF(parent, spec.Basename("GenericIF"), spec.Count), nil
	})
	netconf.Register("reduced_lif", func(_ *netconf.Builder, parent sim.Node, spec netconf.NodeSpec) (sim.Node, error) {
		if err := spec.CheckParams(); err != nil {
			return nil, err
		}
		return NewReducedLIF(parent, spec.Basename("LIF"), spec.Count), nil
	})
	netconf.Register("current", func(_ *netconf.Builder, parent sim.Node, spec netconf.NodeSpec) (sim.Node, error) {
		if err := spec.CheckParams(); err != nil {
			return nil, err
		}
		return NewCurrent(parent, spec.Basename("Current")), nil
	})
	netconf.Register("generic_synapse", func(_ *netconf.Builder, parent sim.Node, spec netconf.NodeSpec) (sim.Node, error) {
		if err := spec.CheckParams(); err != nil {
			return nil, err
		}
		return NewGenericSynapse(parent, spec.Basename("GenericSynapse")), nil
	})
	netconf.Register("exponential_synapse", func(_ *netconf.Builder, parent sim.Node, spec netconf.NodeSpec) (sim.Node, error) {
		if err := spec.CheckParams(); err != nil {
			return nil, err
		}
		return NewExponentialSynapse(parent, spec.Basename("ExponentialSynapse")), nil
	})
	netconf.Register("local_poisson", buildLocalPoisson)
	netconf.Register("atomic_sender", buildAtomicSender)
	netconf.Register("atomic_receiver", buildAtomicReceiver)
	netconf.Register("neighbor_data", buildNeighborData)
	netconf.Register("initialize_from_host", buildInitializeFromHost)
	netconf.Register("spike_raster_probe", func(_ *netconf.Builder, parent sim.Node, spec netconf.NodeSpec) (sim.Node, error) {
		if err := spec.CheckParams(append([]string{"buffer_timepoints"}, netconf.WindowParams...)...); err != nil {
			return nil, err
		}
		p := NewSpikeRasterProbe(parent, spec.Basename("SpikeRasterProbe"))
		return p, netconf.ApplyBuffer(&p.PerElementProbe, spec)
	})
	netconf.Register("spike_list_probe", func(_ *netconf.Builder, parent sim.Node, spec netconf.NodeSpec) (sim.Node, error) {
		if err := spec.CheckParams(append([]string{"buffer_timepoints"}, netconf.WindowParams...)...); err != nil {
			return nil, err
		}
		p := NewSpikeListProbe(parent, spec.Basename("SpikeListProbe"))
		return p, netconf.ApplyBuffer(&p.PerElementProbe, spec)
	})
	netconf.Register("spike_scatter_probe", buildSpikeScatterProbe)
	netconf.Register("binned_spike_count_probe", buildBinnedSpikeCountProbe)
}

func buildLocalPoisson(_ *netconf.Builder, parent sim.Node, spec netconf.NodeSpec) (sim.Node, error) {
	if err := spec.CheckParams("rate"); err != nil {
		return nil, err
	}
	rate, err := spec.Float("rate", 1)
	if err != nil {
		return nil, err
	}
	return NewLocalPoisson(parent, spec.Basename("LocalPoisson"), rate), nil
}

func buildAtomicSender(_ *netconf.Builder, parent sim.Node, spec netconf.NodeSpec) (sim.Node, error) {
	if err := spec.CheckParams("target_calculation"); err != nil {
		return nil, err
	}
	target, err := spec.String("target_calculation", "")
	if err != nil {
		return nil, err
	}
	return NewAtomicSender(parent, spec.Basename("AtomicSender"), nil, target), nil
}

func buildAtomicReceiver(_ *netconf.Builder, parent sim.Node, spec netconf.NodeSpec) (sim.Node, error) {
	if err := spec.CheckParams("weight"); err != nil {
		return nil, err
	}
	weight, err := spec.Float("weight", 1)
	if err != nil {
		return nil, err
	}
	return NewAtomicReceiver(parent, spec.Basename("AtomicReceiver"), weight), nil
}

// buildNeighborData takes either explicit neighbor lists or n and p for
// random connectivity drawn from the stream named after the node.
func buildNeighborData(b *netconf.Builder, parent sim.Node, spec netconf.NodeSpec) (sim.Node, error) {
	if err := spec.CheckParams("neighbors", "n", "p"); err != nil {
		return nil, err
	}
	basename := spec.Basename("neighbor_data")
	if spec.Has("neighbors") {
		lists, err := spec.IntLists("neighbors")
		if err != nil {
			return nil, err
		}
		return NewNeighborData(parent, basename, lists), nil
	}
	n, err := spec.Int("n", 0)
	if err != nil {
		return nil, err
	}
	p, err := spec.Float("p", 0)
	if err != nil {
		return nil, err
	}
	if n <= 0 || p < 0 || p > 1 {
		return nil, fmt.Errorf("random connectivity needs n > 0 and p in [0, 1], got n=%d p=%v", n, p)
	}
	lists := RandomAdjacency(n, p, b.Sim.RNG().Source("connectivity:"+basename))
	return NewNeighborData(parent, basename, lists), nil
}

// buildInitializeFromHost attaches to the state named by the state param,
// looked up from parent.
func buildInitializeFromHost(_ *netconf.Builder, parent sim.Node, spec netconf.NodeSpec) (sim.Node, error) {
	if err := spec.CheckParams("state"); err != nil {
		return nil, err
	}
	name, err := spec.String("state", "")
	if err != nil {
		return nil, err
	}
	state, ok := parent.(*State)
	if name != "" {
		v, err := sim.LookupValue(parent, name)
		if err != nil {
			return nil, err
		}
		if state, ok = v.(*State); !ok {
			return nil, fmt.Errorf("%s is %T, not a state", name, v)
		}
	}
	if !ok {
		return nil, fmt.Errorf("parent %s is not a state and no state param is given", parent.Base().Name())
	}
	if spec.Distribution == nil {
		return nil, fmt.Errorf("a distribution is required")
	}
	producer, err := hostinit.FromSpec(*spec.Distribution)
	if err != nil {
		return nil, err
	}
	return NewInitializeFromHost(state, producer), nil
}

func buildSpikeScatterProbe(_ *netconf.Builder, parent sim.Node, spec netconf.NodeSpec) (sim.Node, error) {
	if err := spec.CheckParams(append([]string{"max_spikes"}, netconf.WindowParams...)...); err != nil {
		return nil, err
	}
	p := NewSpikeScatterProbe(parent, spec.Basename("SpikeScatterProbe"))
	var err error
	if p.MaxSpikes, err = spec.Int("max_spikes", 0); err != nil {
		return nil, err
	}
	return p, netconf.ApplyWindow(&p.ConstrainedProbe, spec)
}

func buildBinnedSpikeCountProbe(_ *netconf.Builder, parent sim.Node, spec netconf.NodeSpec) (sim.Node, error) {
	if err := spec.CheckParams(append([]string{"bin_size", "shift_size", "buffer_timepoints"}, netconf.WindowParams...)...); err != nil {
		return nil, err
	}
	bin, err := spec.Int("bin_size", 1)
	if err != nil {
		return nil, err
	}
	shift, err := spec.Int("shift_size", 1)
	if err != nil {
		return nil, err
	}
	p := NewBinnedSpikeCountProbe(parent, spec.Basename("BinnedSpikeCountProbe"), bin, shift)
	return p, netconf.ApplyBuffer(&p.PerElementProbe, spec)
}
