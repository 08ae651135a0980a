package spiking

import (
	"fmt"

	"github.com/clegans/clegans/sim"
	"github.com/clegans/clegans/sim/device"
)

// SpikeRasterProbe records 1 for each element that spiked and 0 for each
// that did not, at every timestep in its window.
type SpikeRasterProbe struct {
	sim.PerElementProbe
}

// NewSpikeRasterProbe creates a raster probe under a spiking model.
func NewSpikeRasterProbe(parent sim.Node, basename string) *SpikeRasterProbe {
	p := &SpikeRasterProbe{}
	p.DType = device.Int32
	p.InitPerElementProbe(p, parent, basename)
	p.OnCG(sim.Pre(HookSpikeGenerated), p.record("1"))
	p.OnCG(sim.Pre(HookNoSpikeGenerated), p.record("0"))
	return p
}

func (p *SpikeRasterProbe) record(value string) sim.CGFunc {
	return func(g *sim.Generator) error {
		if err := p.Constrain(g); err != nil {
			return err
		}
		if err := g.Emit("allocation[buffer_idx_expression] = " + value); err != nil {
			return err
		}
		p.Unconstrain(g)
		return nil
	}
}

// SpikeListProbe records, per timepoint and realization, the indices of the
// elements that spiked. The device buffer holds the indices densely from
// the start of each row and a count buffer holds the row lengths.
type SpikeListProbe struct {
	sim.PerElementProbe

	counts *sim.MemoryNode
	// spikes[t][r] lists the elements that spiked, after the last flush.
	spikes [][][]int64
}

// NewSpikeListProbe creates a spike list probe under a spiking model.
func NewSpikeListProbe(parent sim.Node, basename string) *SpikeListProbe {
	p := &SpikeListProbe{}
	p.DType = device.Uint32
	p.InitPerElementProbe(p, parent, basename)
	p.Set("idx_expr", "n_spikes")
	p.SetFunc("count_allocation", func() any {
		if p.counts == nil {
			return nil
		}
		return p.counts
	})

	p.OnLifecycle(sim.On(sim.HookFinalize), func() error {
		p.counts = sim.NewAllocation(p, "count", device.Shape{p.BufferTimepoints, p.NRealizations()}, device.Uint32)
		return nil
	})
	p.OnTimestep(sim.HookInitializeMemory, p.clear)
	p.OnCG(sim.Pre(HookSpikeGenerated), p.record)
	p.OnProcessData(p.processData)
	return p
}

func (p *SpikeListProbe) record(g *sim.Generator) error {
	if err := p.Constrain(g); err != nil {
		return err
	}
	if err := g.Emit(`
		n_spikes = atom_inc(count_allocation + (realization_num - realization_start)*buffer_timepoints + timestep_expr)
		allocation[buffer_idx_expression] = idx
	`); err != nil {
		return err
	}
	p.Unconstrain(g)
	return nil
}

func (p *SpikeListProbe) clear(_ *sim.TimestepInfo) error {
	return zeroMemory(p, p.counts)
}

// processData reads the counts back and trims each row of data to its
// count.
func (p *SpikeListProbe) processData(data *device.HostArray, _ sim.Node) error {
	s, ok := sim.Ancestor[*sim.Simulation](p)
	if !ok {
		return fmt.Errorf("probe %s is not part of a simulation: %w", p.Name(), sim.ErrInvariant)
	}
	b, err := p.counts.Buffer()
	if err != nil {
		return err
	}
	counts := device.NewHostArray(b.Shape(), b.DType())
	if err := s.Device().CopyToHost(counts, b); err != nil {
		return fmt.Errorf("probe %s: copying counts: %w", p.Name(), err)
	}
	if !data.Shape().Equal(p.Shape()) {
		return fmt.Errorf("probe %s: data %v does not match buffer %v: %w",
			p.Name(), data.Shape(), p.Shape(), device.ErrShapeMismatch)
	}

	nT, nR, nE := p.BufferTimepoints, p.NRealizations(), p.NElms()
	spikes := make([][][]int64, nT)
	for t := 0; t < nT; t++ {
		spikes[t] = make([][]int64, nR)
		for r := 0; r < nR; r++ {
			n := int(counts.Int(counts.Index(t, r)))
			if n > nE {
				n = nE
			}
			row := make([]int64, n)
			for e := 0; e < n; e++ {
				row[e] = data.Int(data.Index(t, r, e))
			}
			spikes[t][r] = row
		}
	}
	p.spikes = spikes
	return nil
}

// Spikes returns spikes[timepoint][realization] from the last flush.
func (p *SpikeListProbe) Spikes() [][][]int64 { return p.spikes }

// SpikeScatterProbe appends (time, index) pairs for every spike in its window
// to a pair of flat buffers, ready for a raster plot.
type SpikeScatterProbe struct {
	sim.ConstrainedProbe
	// MaxSpikes bounds the number of spikes stored. Zero means one per
	// element, realization and timestep in the window.
	MaxSpikes int

	count, times, indices *sim.MemoryNode
}

// NewSpikeScatterProbe creates a scatter probe under a spiking model.
func NewSpikeScatterProbe(parent sim.Node, basename string) *SpikeScatterProbe {
	p := &SpikeScatterProbe{}
	p.InitConstrainedProbe(p, parent, basename)
	p.Set("time_expr", "timestep - t_start")
	p.Set("spike_index", "idx - idx_start")
	p.SetFunc("max_spikes", func() any { return p.MaxSpikes })
	for attr, m := range map[string]**sim.MemoryNode{
		"count_allocation":         &p.count,
		"spike_times_allocation":   &p.times,
		"spike_indices_allocation": &p.indices,
	} {
		p.SetFunc(attr, func() any {
			if *m == nil {
				return nil
			}
			return *m
		})
	}

	p.OnLifecycle(sim.On(sim.HookFinalize), p.allocate)
	p.OnTimestep(sim.HookInitializeMemory, func(_ *sim.TimestepInfo) error {
		return zeroMemory(p, p.count)
	})
	p.OnCG(sim.Pre(HookSpikeGenerated), p.record)
	return p
}

func (p *SpikeScatterProbe) allocate() error {
	if p.MaxSpikes < 0 {
		return fmt.Errorf("probe %s: max_spikes must be >= 0, got %d: %w", p.Name(), p.MaxSpikes, sim.ErrInvariant)
	}
	if p.MaxSpikes == 0 {
		p.MaxSpikes = p.TotalNTimesteps() * p.NElms() * p.NRealizations()
	}
	p.count = sim.NewAllocation(p, "count", device.Shape{1}, device.Uint32)
	p.times = sim.NewAllocation(p, "spike_times", device.Shape{p.MaxSpikes}, device.Uint32)
	p.indices = sim.NewAllocation(p, "spike_indices", device.Shape{p.MaxSpikes}, device.Uint32)
	return nil
}

func (p *SpikeScatterProbe) record(g *sim.Generator) error {
	if err := p.Constrain(g); err != nil {
		return err
	}
	if err := g.Emit(`
		n_spikes = atom_inc(count_allocation)
		spike_times_allocation[n_spikes] = time_expr
		spike_indices_allocation[n_spikes] = spike_index
	`); err != nil {
		return err
	}
	p.Unconstrain(g)
	return nil
}

// Data reads back the spikes stored in the current division: times relative
// to t_start and indices relative to idx_start.
func (p *SpikeScatterProbe) Data() (times, indices []int64, err error) {
	s, ok := sim.Ancestor[*sim.Simulation](p)
	if !ok {
		return nil, nil, fmt.Errorf("probe %s is not part of a simulation: %w", p.Name(), sim.ErrInvariant)
	}
	read := func(m *sim.MemoryNode) (*device.HostArray, error) {
		if m == nil {
			return nil, fmt.Errorf("probe %s: %w", p.Name(), sim.ErrNotAllocated)
		}
		b, err := m.Buffer()
		if err != nil {
			return nil, err
		}
		h := device.NewHostArray(b.Shape(), b.DType())
		if err := s.Device().CopyToHost(h, b); err != nil {
			return nil, fmt.Errorf("probe %s: copying %s: %w", p.Name(), m.Name(), err)
		}
		return h, nil
	}
	c, err := read(p.count)
	if err != nil {
		return nil, nil, err
	}
	n := int(c.Int(0))
	if n > p.MaxSpikes {
		n = p.MaxSpikes
	}
	t, err := read(p.times)
	if err != nil {
		return nil, nil, err
	}
	i, err := read(p.indices)
	if err != nil {
		return nil, nil, err
	}
	return t.Ints()[:n], i.Ints()[:n], nil
}

// BinnedSpikeCountProbe counts spikes per element in bins of BinSize
// timesteps starting every ShiftSize timesteps. Bins overlap when BinSize
// exceeds ShiftSize. The buffer holds every bin of the window, so it fills
// once, after the last bin closes.
type BinnedSpikeCountProbe struct {
	sim.PerElementProbe
	BinSize   int
	ShiftSize int
}

// NewBinnedSpikeCountProbe creates a binned counter under a spiking model.
func NewBinnedSpikeCountProbe(parent sim.Node, basename string, binSize, shiftSize int) *BinnedSpikeCountProbe {
	p := &BinnedSpikeCountProbe{BinSize: binSize, ShiftSize: shiftSize}
	p.DType = device.Uint32
	p.InitPerElementProbe(p, parent, basename)
	p.SetFunc("bin_size", func() any { return p.BinSize })
	p.SetFunc("shift_size", func() any { return p.ShiftSize })
	p.SetFunc("total_n_timesteps", func() any { return p.Timepoints() })
	p.Set("timestep_expr", "bin")

	p.OnLifecycle(sim.On(sim.HookFinalize), p.check)
	p.OnTimestep(sim.HookInitializeMemory, func(_ *sim.TimestepInfo) error {
		return zeroMemory(p, p.Allocation())
	})
	p.OnCG(sim.Pre(HookSpikeGenerated), p.record)
	return p
}

// Timepoints is the number of bins in the window.
func (p *BinnedSpikeCountProbe) Timepoints() int {
	if p.ShiftSize <= 0 {
		return 0
	}
	return (p.TRange.Stop - p.TRange.Start) / p.ShiftSize
}

// TimepointsElapsed returns the number of bins started once timestep has
// run, if timestep closes a shift, and 0 otherwise.
func (p *BinnedSpikeCountProbe) TimepointsElapsed(timestep int) int {
	if p.ShiftSize <= 0 || timestep < p.TRange.Start || timestep >= p.TRange.Stop {
		return 0
	}
	done := timestep - p.TRange.Start + 1
	if done%p.ShiftSize != 0 {
		return 0
	}
	return done / p.ShiftSize
}

// check runs after the buffer has been inferred.
func (p *BinnedSpikeCountProbe) check() error {
	switch {
	case p.ShiftSize <= 0 || p.BinSize <= 0:
		return fmt.Errorf("probe %s: bin_size %d and shift_size %d must be > 0: %w",
			p.Name(), p.BinSize, p.ShiftSize, sim.ErrInvariant)
	case p.BinSize < p.ShiftSize || p.BinSize%p.ShiftSize != 0:
		return fmt.Errorf("probe %s: bin_size %d must be a multiple of shift_size %d: %w",
			p.Name(), p.BinSize, p.ShiftSize, sim.ErrInvariant)
	case p.TRange.Step != 1:
		return fmt.Errorf("probe %s: t_step must be 1, got %d: %w", p.Name(), p.TRange.Step, sim.ErrInvariant)
	case (p.TRange.Stop-p.TRange.Start)%p.ShiftSize != 0:
		return fmt.Errorf("probe %s: window of %d timesteps is not a whole number of shifts of %d: %w",
			p.Name(), p.TRange.Stop-p.TRange.Start, p.ShiftSize, sim.ErrInvariant)
	case p.BufferTimepoints != p.Timepoints():
		return fmt.Errorf("probe %s: buffer_timepoints %d must hold all %d bins: %w",
			p.Name(), p.BufferTimepoints, p.Timepoints(), sim.ErrInvariant)
	}
	return nil
}

// record increments the bin the spike falls in and every earlier bin still
// open, one nested guard per extra bin.
func (p *BinnedSpikeCountProbe) record(g *sim.Generator) error {
	if err := p.Constrain(g); err != nil {
		return err
	}
	if err := g.Emit(`
		bin = (timestep - t_start)/shift_size
		atom_inc(allocation + buffer_idx_expression)
	`); err != nil {
		return err
	}
	extra := p.BinSize/p.ShiftSize - 1
	for i := 0; i < extra; i++ {
		if err := g.Emit(`
			bin -= 1
			if bin >= 0:
				atom_inc(allocation + buffer_idx_expression)
		`); err != nil {
			return err
		}
		g.Tab()
	}
	for i := 0; i < extra; i++ {
		g.Untab()
	}
	p.Unconstrain(g)
	return nil
}

func zeroMemory(n sim.Node, m *sim.MemoryNode) error {
	if m == nil {
		return fmt.Errorf("%s: %w", n.Base().Name(), sim.ErrNotAllocated)
	}
	s, ok := sim.Ancestor[*sim.Simulation](n)
	if !ok {
		return fmt.Errorf("%s is not part of a simulation: %w", n.Base().Name(), sim.ErrInvariant)
	}
	b, err := m.Buffer()
	if err != nil {
		return err
	}
	if err := device.Zero(s.Device(), b); err != nil {
		return fmt.Errorf("clearing %s: %w", m.Name(), err)
	}
	return nil
}
