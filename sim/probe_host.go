package sim

import (
	"fmt"

	"github.com/clegans/clegans/sim/device"
)

// ProcessOnHost copies its parent probe's buffer to the host each time the
// buffer fills and fires on_process_data on the probe's subtree with the
// copy.
type ProcessOnHost struct {
	NodeBase
	probe BufferedProbe
	data  *device.HostArray
}

// NewProcessOnHost attaches a ProcessOnHost to probe.
func NewProcessOnHost(probe BufferedProbe, basename string) *ProcessOnHost {
	if probe == nil {
		panic("ProcessOnHost: probe must not be nil")
	}
	h := &ProcessOnHost{probe: probe}
	h.Init(h, probe, basename)
	h.OnLifecycle(Post(HookAllocate), func() error {
		pe := h.probe.PerElement()
		h.data = device.NewHostArray(pe.Shape(), pe.DType)
		return nil
	})
	h.OnBufferFull(h.bufferFull)
	return h
}

// Data returns the most recent copy, or nil before the first one.
func (h *ProcessOnHost) Data() *device.HostArray { return h.data }

func (h *ProcessOnHost) bufferFull(_ *TimestepInfo, _ int) error {
	pe := h.probe.PerElement()
	if err := copyProbeBuffer(h, pe, h.data); err != nil {
		return err
	}
	return TriggerProcessData(h.probe, h.data, h)
}

// AccumulateOnHost copies every buffer flush of its parent probe into one
// host array covering the whole run, shaped (timepoints, n_realizations,
// n_elms).
type AccumulateOnHost struct {
	NodeBase
	probe   BufferedProbe
	staging *device.HostArray
	data    *device.HostArray
}

// NewAccumulateOnHost attaches an AccumulateOnHost to probe.
func NewAccumulateOnHost(probe BufferedProbe, basename string) *AccumulateOnHost {
	if probe == nil {
		panic("AccumulateOnHost: probe must not be nil")
	}
	h := &AccumulateOnHost{probe: probe}
	h.Init(h, probe, basename)
	h.OnLifecycle(On(HookAllocate), func() error {
		pe := h.probe.PerElement()
		s, ok := Ancestor[*Simulation](h)
		if !ok {
			return invariantf("%s is not part of a simulation", h.Name())
		}
		h.staging = device.NewHostArray(pe.Shape(), pe.DType)
		h.data = device.NewHostArray(device.Shape{h.probe.Timepoints(), s.NRealizations, pe.NElms()}, pe.DType)
		return nil
	})
	h.OnBufferFull(h.bufferFull)
	return h
}

// Data returns the whole-run array.
func (h *AccumulateOnHost) Data() *device.HostArray { return h.data }

func (h *AccumulateOnHost) bufferFull(ti *TimestepInfo, timestepsElapsed int) error {
	pe := h.probe.PerElement()
	if err := copyProbeBuffer(h, pe, h.staging); err != nil {
		return err
	}
	origin := []int{timestepsElapsed - pe.BufferTimepoints, ti.RealizationStart, 0}
	extent := []int{pe.BufferTimepoints, ti.NRealizations, pe.NElms()}
	if err := device.CopyBlock(h.data, origin, h.staging, extent); err != nil {
		return fmt.Errorf("%s: accumulating at %v: %w", h.Name(), origin, err)
	}
	return TriggerProcessData(h.probe, h.data, h)
}

func copyProbeBuffer(n Node, pe *PerElementProbe, dst *device.HostArray) error {
	if dst == nil {
		return fmt.Errorf("%s: host array not allocated: %w", n.Base().Name(), ErrNotAllocated)
	}
	s, ok := Ancestor[*Simulation](n)
	if !ok {
		return invariantf("%s is not part of a simulation", n.Base().Name())
	}
	b, err := pe.Allocation().Buffer()
	if err != nil {
		return err
	}
	if err := s.Device().CopyToHost(dst, b); err != nil {
		return fmt.Errorf("%s: copying %s to host: %w", n.Base().Name(), pe.Name(), err)
	}
	return nil
}

// Listener runs a callback on every on_process_data it sees.
type Listener struct {
	NodeBase
}

// NewListener creates a Listener under parent invoking fn.
func NewListener(parent Node, basename string, fn ProcessDataFunc) *Listener {
	l := &Listener{}
	l.Init(l, parent, basename)
	l.OnProcessData(fn)
	return l
}
