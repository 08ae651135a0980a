package spiking

import (
	"testing"

	"github.com/clegans/clegans/sim"
	"github.com/clegans/clegans/sim/device"
)

func testConfig() sim.Config {
	return sim.Config{
		DT:                          0.1,
		NTimesteps:                  10,
		NRealizations:               1,
		NRealizationsPerDivisionMax: 1,
		Seed:                        7,
	}
}

func newTestSim(t *testing.T, cfg sim.Config) (*sim.Simulation, *device.Host, *device.RecordingCompiler) {
	t.Helper()
	dev := device.NewHost(0)
	rc := device.NewRecordingCompiler()
	return sim.NewSimulation(cfg, dev, rc), dev, rc
}

// newLIF adds a ReducedLIF of count elements with the usual parameters:
// tau 20, v_reset 0, v_thresh 10 and a refractory period of 5.
func newLIF(s *sim.Simulation, count int) *ReducedLIF {
	lif := NewReducedLIF(s, "LIF", count)
	lif.Set("tau", 20.0)
	lif.Set("v_reset", 0.0)
	lif.Set("v_thresh", 10.0)
	lif.Set("abs_refractory_period", 5.0)
	return lif
}

// newSynapse adds an exponential synapse with tau 5 and the given reversal.
func newSynapse(m sim.Node, basename string, reversal float64) *ExponentialSynapse {
	syn := NewExponentialSynapse(m, basename)
	syn.Set("tau", 5.0)
	syn.Set("reversal", reversal)
	return syn
}

// contents returns the host view of a realized memory node.
func contents(t *testing.T, dev *device.Host, m *sim.MemoryNode) *device.HostArray {
	t.Helper()
	b, err := m.Buffer()
	if err != nil {
		t.Fatalf("buffer of %s: %v", m.Name(), err)
	}
	h, err := dev.Contents(b)
	if err != nil {
		t.Fatalf("contents of %s: %v", m.Name(), err)
	}
	return h
}
