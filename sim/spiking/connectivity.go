package spiking

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/clegans/clegans/sim"
	"github.com/clegans/clegans/sim/device"
)

const atomicsPragma = `exec "#pragma OPENCL EXTENSION cl_khr_global_int32_base_atomics : enable"`

// AtomicSender propagates each spike of its model to the element's
// neighbors by atomically incrementing the target receive buffer.
//
// neighbor_data is a packed neighbor table (see PackNeighbors) and
// target_calculation an expression selecting the receive buffer for the
// spiking element, for example "ge if idx_model < 3200 else gi" with ge
// and gi bound to receiver out buffers.
type AtomicSender struct {
	sim.NodeBase
}

// NewAtomicSender creates a sender under a model. A nil neighborData or
// empty targetCalculation leaves the attribute to be set later.
func NewAtomicSender(parent sim.Node, basename string, neighborData *sim.MemoryNode, targetCalculation string) *AtomicSender {
	if parent == nil {
		panic("AtomicSender: parent must not be nil")
	}
	a := &AtomicSender{}
	a.Init(a, parent, basename)
	if neighborData != nil {
		a.Set("neighbor_data", neighborData)
	} else {
		a.Declare("neighbor_data")
	}
	if targetCalculation != "" {
		a.Set("target_calculation", targetCalculation)
	} else {
		a.Declare("target_calculation")
	}
	a.Set("neighbors_calculation", sim.CodeFunc(func(g *sim.Generator) error {
		return g.Emit(`
			neighbors_offset = neighbor_data[idx_realization]
			neighbor_size = neighbor_data[neighbors_offset]
			neighbors = neighbor_data + neighbors_offset + 1
		`)
	}))
	a.Set("i_stride", 1)
	a.Set("int_weight", 1)

	a.OnCG(sim.Pre(sim.HookStepKernelBody), func(g *sim.Generator) error {
		g.Line(atomicsPragma)
		return nil
	})
	a.OnCG(sim.In(HookSpikePropagation), a.propagate)
	a.OnCG(sim.In(HookSpikeSend), func(g *sim.Generator) error {
		return g.Emit("atom_add(target + realization_first_idx_div + neighbors[i], int_weight)")
	})
	return a
}

func (a *AtomicSender) propagate(g *sim.Generator) error {
	if err := g.Emit(`
		target = target_calculation
		neighbors_calculation
	`); err != nil {
		return err
	}
	return g.Block("for i in (0, neighbor_size, i_stride):", func(g *sim.Generator) error {
		return sim.TriggerStagedCGHook(a.Self(), HookSpikeSend, g)
	})
}

// AtomicReceiver collects spikes sent to its parent synapse into a pair of
// integer buffers. Kernels read the in buffer and senders write the out
// buffer; the odd kernel is bound with the two swapped, so spikes sent in
// one timestep are read in the next. Each received spike adds Weight to the
// synapse's spike_target as it is read.
type AtomicReceiver struct {
	sim.NodeBase
	Weight float64

	in, out *sim.MemoryNode
}

// NewAtomicReceiver creates a receiver under a synapse exposing
// spike_target.
func NewAtomicReceiver(synapse sim.Node, basename string, weight float64) *AtomicReceiver {
	if synapse == nil {
		panic("AtomicReceiver: synapse must not be nil")
	}
	r := &AtomicReceiver{Weight: weight}
	r.Init(r, synapse, basename)
	r.in = sim.NewAllocation(r, "in", nil, device.Int32)
	r.out = sim.NewAllocation(r, "out", nil, device.Int32)

	r.SetFunc("weight", func() any { return r.Weight })
	r.Set("alloc_in", r.in)
	r.Set("alloc_out", r.out)
	r.Set("reader", "alloc_in[idx_state]")

	r.OnLifecycle(sim.Pre(sim.HookFinalize), r.prepare)
	r.OnLifecycle(sim.On(sim.HookPrepareStepOdd), r.swap)
	r.OnTimestep(sim.HookInitializeMemory, r.clear)
	r.OnCG(sim.In(HookReadIncomingSpikes), func(g *sim.Generator) error {
		return g.Emit(`
			name = reader
			reader = 0
		`)
	})
	return r
}

// AllocIn returns the buffer read by even kernels.
func (r *AtomicReceiver) AllocIn() *sim.MemoryNode { return r.in }

// AllocOut returns the buffer written by even kernels.
func (r *AtomicReceiver) AllocOut() *sim.MemoryNode { return r.out }

// prepare sizes the buffers and folds the received spikes into the target
// state's reader.
func (r *AtomicReceiver) prepare() error {
	m, ok := sim.ModelOf(r)
	if !ok {
		return fmt.Errorf("receiver %s is not inside a model: %w", r.Name(), sim.ErrInvariant)
	}
	s, ok := sim.Ancestor[*sim.Simulation](r)
	if !ok {
		return fmt.Errorf("receiver %s is not part of a simulation: %w", r.Name(), sim.ErrInvariant)
	}
	shape := device.Shape{m.Count * s.NRealizationsPerDivisionMax}
	r.in.Shape = shape
	r.out.Shape = append(device.Shape(nil), shape...)

	v, err := sim.LookupValue(r.Parent(), "spike_target")
	if err != nil {
		return fmt.Errorf("receiver %s: %w", r.Name(), err)
	}
	target, ok := v.(*State)
	if !ok {
		return fmt.Errorf("receiver %s: spike_target is %T, not a state: %w", r.Name(), v, sim.ErrInvariant)
	}
	a, ok := target.Get("reader")
	if !ok || !a.Set {
		return fmt.Errorf("receiver %s: state %s has no reader: %w", r.Name(), target.Name(), sim.ErrUnresolved)
	}
	reader, ok := a.Value.(string)
	if !ok || reader == "" {
		return fmt.Errorf("receiver %s: reader of state %s is %T, not an expression: %w",
			r.Name(), target.Name(), a.Value, sim.ErrUnresolved)
	}
	target.Set("reader", fmt.Sprintf("(%s) + (%s*%s)", reader, strconv.FormatFloat(r.Weight, 'g', -1, 64), r.Name()))
	return nil
}

func (r *AtomicReceiver) swap() error {
	s, ok := sim.Ancestor[*sim.Simulation](r)
	if !ok {
		return fmt.Errorf("receiver %s is not part of a simulation: %w", r.Name(), sim.ErrInvariant)
	}
	in, err := r.in.Buffer()
	if err != nil {
		return err
	}
	out, err := r.out.Buffer()
	if err != nil {
		return err
	}
	s.Constants[r.in.Name()] = out
	s.Constants[r.out.Name()] = in
	return nil
}

func (r *AtomicReceiver) clear(_ *sim.TimestepInfo) error {
	s, ok := sim.Ancestor[*sim.Simulation](r)
	if !ok {
		return fmt.Errorf("receiver %s is not part of a simulation: %w", r.Name(), sim.ErrInvariant)
	}
	for _, m := range []*sim.MemoryNode{r.in, r.out} {
		b, err := m.Buffer()
		if err != nil {
			return err
		}
		if err := device.Zero(s.Device(), b); err != nil {
			return fmt.Errorf("clearing %s: %w", m.Name(), err)
		}
	}
	return nil
}

// PackNeighbors flattens per-element neighbor lists into the table
// AtomicSender reads: the first len(lists) entries are offsets, and at each
// offset sits the list length followed by the neighbor indices.
func PackNeighbors(lists [][]int) []int64 {
	size := len(lists)
	for _, l := range lists {
		size += 1 + len(l)
	}
	packed := make([]int64, len(lists), size)
	for i, l := range lists {
		packed[i] = int64(len(packed))
		packed = append(packed, int64(len(l)))
		for _, n := range l {
			packed = append(packed, int64(n))
		}
	}
	return packed
}

// RandomAdjacency connects each ordered pair of distinct elements
// independently with probability p.
func RandomAdjacency(n int, p float64, src rand.Source) [][]int {
	edge := distuv.Bernoulli{P: p, Src: src}
	lists := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && edge.Rand() == 1 {
				lists[i] = append(lists[i], j)
			}
		}
	}
	return lists
}

// NewNeighborData declares a constant array holding the packed lists.
func NewNeighborData(parent sim.Node, basename string, lists [][]int) *sim.MemoryNode {
	return sim.NewConstantArray(parent, basename, device.HostArrayFromInts(device.Int32, PackNeighbors(lists)))
}
