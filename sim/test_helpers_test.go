package sim

import (
	"testing"

	"github.com/clegans/clegans/sim/device"
)

// testConfig is a small configuration that finalizes cleanly.
func testConfig() Config {
	return Config{
		DT:                          0.1,
		NTimesteps:                  10,
		NRealizations:               1,
		NRealizationsPerDivisionMax: 1,
		Seed:                        42,
	}
}

// newTestSim creates a Simulation on a fresh host device with a recording
// compiler.
func newTestSim(t *testing.T, cfg Config) (*Simulation, *device.Host, *device.RecordingCompiler) {
	t.Helper()
	dev := device.NewHost(0)
	rc := device.NewRecordingCompiler()
	return NewSimulation(cfg, dev, rc), dev, rc
}

// addModels adds one model per count, each emitting a marker line into its
// model code hook.
func addModels(s *Simulation, counts ...int) []*Model {
	models := make([]*Model, 0, len(counts))
	for _, c := range counts {
		m := NewModel(s, "M", c)
		NewStandaloneCode(m, "code", In(HookModelCode), "state = name")
		models = append(models, m)
	}
	return models
}

// recorder is a node that appends a label to a shared log from every hook
// it is registered for.
type recorder struct {
	NodeBase
	log *[]string
}

func newRecorder(parent Node, basename string, log *[]string) *recorder {
	r := &recorder{log: log}
	r.Init(r, parent, basename)
	return r
}

func (r *recorder) lifecycle(h HookName) {
	r.OnLifecycle(h, func() error {
		*r.log = append(*r.log, string(h)+"@"+r.Name())
		return nil
	})
}
