package sim

import (
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/clegans/clegans/sim/device"
)

// Simulation is the root of a simulation tree. It owns the global
// configuration, the constants mapping consumed by compiled kernels, and the
// lifecycle: Finalize, Allocate, Generate, Run, Release.
//
// Thread-safety: NOT thread-safe. All calls must come from one goroutine.
type Simulation struct {
	NodeBase
	Config

	// Dialect is the kernel language generated source is written in.
	Dialect Dialect
	// Constants maps generated-code identifiers to device buffers and other
	// runtime values. It is mutated only while allocating and by the
	// prepare_step_fn hooks.
	Constants map[string]any

	dev      device.Device
	compiler device.Compiler
	rng      *PartitionedRNG
	metrics  *RunMetrics

	finalized bool
	allocated bool
	generated bool
	code      string

	// kernels[0] runs on even timesteps, kernels[1] on odd ones.
	kernels [2]device.Kernel
}

// NewSimulation creates a root node bound to dev and compiler.
func NewSimulation(cfg Config, dev device.Device, compiler device.Compiler) *Simulation {
	if dev == nil {
		panic("NewSimulation: device must not be nil")
	}
	if compiler == nil {
		panic("NewSimulation: compiler must not be nil")
	}
	s := &Simulation{
		Config:    cfg,
		Dialect:   Cloquence,
		Constants: make(map[string]any),
		dev:       dev,
		compiler:  compiler,
		rng:       NewPartitionedRNG(NewSimulationKey(cfg.Seed)),
		metrics:   NewRunMetrics(),
	}
	s.Init(s, nil, "Simulation")

	s.SetFunc("DT", func() any { return s.DT })
	s.Set("t", "DT*timestep")
	s.SetFunc("n_timesteps", func() any { return s.NTimesteps })
	s.SetFunc("n_realizations", func() any { return s.NRealizations })
	s.SetFunc("n_realizations_per_division_max", func() any { return s.NRealizationsPerDivisionMax })
	s.SetFunc("n_elms_per_realization", func() any { return s.NElmsPerRealization() })
	s.SetFunc("count", func() any { return s.NElmsPerRealization() })
	s.SetFunc("n_elms_per_sim", func() any { return s.NElmsPerSim() })
	s.SetFunc("n_elms_per_division_max", func() any { return s.NElmsPerDivisionMax() })
	s.SetFunc("n_divisions", func() any { return s.NDivisions() })

	s.OnLifecycle(Post(HookFinalize), s.checkInvariants)
	s.OnLifecycle(On(HookRelease), s.releaseConstants)

	s.OnCG(In(HookStepKernel), s.stepKernel)
	s.OnCG(In(HookStepKernelBody), func(g *Generator) error {
		if err := TriggerStagedCGHook(s, HookThreadIdxCalculations, g); err != nil {
			return err
		}
		return TriggerStagedCGHook(s, HookMainLoop, g)
	})
	s.OnCG(In(HookThreadIdxCalculations), func(g *Generator) error {
		return g.Emit(`
			gid = get_global_id(0)
			gsize = get_global_size(0)
		`)
	})
	s.OnCG(In(HookMainLoop), s.mainLoop)
	s.OnCG(In(HookLoopBody), s.loopBody)
	s.OnCG(In(HookElementIdxCalculations), func(g *Generator) error {
		return g.Emit(`
			realization_num = idx_sim / n_elms_per_realization
			realization_first_idx_sim = realization_num * n_elms_per_realization
			realization_first_idx_div = (realization_num - realization_start)*n_elms_per_realization
			idx_realization = idx_sim - realization_first_idx_sim
			idx_division = idx_sim - first_idx_sim
		`)
	})
	return s
}

// Device returns the device buffers are allocated on.
func (s *Simulation) Device() device.Device { return s.dev }

// RNG returns the host-side random number source, partitioned per node.
func (s *Simulation) RNG() *PartitionedRNG { return s.rng }

// Metrics returns the run metrics collected so far.
func (s *Simulation) Metrics() *RunMetrics { return s.metrics }

func (s *Simulation) Finalized() bool { return s.finalized }
func (s *Simulation) Allocated() bool { return s.allocated }
func (s *Simulation) Generated() bool { return s.generated }

// Code returns the most recently generated source.
func (s *Simulation) Code() string { return s.code }

// Models returns the direct children that are models, in insertion order.
func (s *Simulation) Models() []ModelNode {
	var models []ModelNode
	for _, c := range s.Children() {
		if m, ok := c.(ModelNode); ok {
			models = append(models, m)
		}
	}
	return models
}

// ModelOffsets returns the first element index of each model.
func (s *Simulation) ModelOffsets() []int {
	models := s.Models()
	offsets := make([]int, len(models))
	offset := 0
	for i, m := range models {
		offsets[i] = offset
		offset += m.ModelBase().Count
	}
	return offsets
}

// NElmsPerRealization is the sum of model counts.
func (s *Simulation) NElmsPerRealization() int {
	n := 0
	for _, m := range s.Models() {
		n += m.ModelBase().Count
	}
	return n
}

func (s *Simulation) NElmsPerSim() int {
	return s.NElmsPerRealization() * s.NRealizations
}

func (s *Simulation) NElmsPerDivisionMax() int {
	return s.NElmsPerRealization() * s.NRealizationsPerDivisionMax
}

// NDivisions is ceil(NRealizations / NRealizationsPerDivisionMax).
func (s *Simulation) NDivisions() int {
	if s.NRealizationsPerDivisionMax <= 0 {
		return 0
	}
	return (s.NRealizations + s.NRealizationsPerDivisionMax - 1) / s.NRealizationsPerDivisionMax
}

// DivisionRealizations returns the first realization of division d and how
// many realizations it holds. The final division may be short.
func (s *Simulation) DivisionRealizations(d int) (start, n int) {
	start = d * s.NRealizationsPerDivisionMax
	n = s.NRealizationsPerDivisionMax
	if start+n > s.NRealizations {
		n = s.NRealizations - start
	}
	return start, n
}

// IdxRanges returns the index spaces available to all generated code.
func (s *Simulation) IdxRanges() map[string]IndexRange {
	return map[string]IndexRange{
		"idx_sim":         {0, s.NElmsPerSim()},
		"idx_realization": {0, s.NElmsPerRealization()},
		"idx_division":    {0, s.NElmsPerDivisionMax()},
	}
}

// Finalize freezes the specification. The staged finalize hook runs on the
// first call only.
func (s *Simulation) Finalize() error {
	if s.finalized {
		return nil
	}
	if err := TriggerStagedHook(s, HookFinalize); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	s.finalized = true
	logrus.Infof("finalized %s: %d models, %d elements per realization, %d divisions",
		s.Name(), len(s.Models()), s.NElmsPerRealization(), s.NDivisions())
	return nil
}

func (s *Simulation) checkInvariants() error {
	if s.NRealizations <= 0 {
		return invariantf("n_realizations must be > 0, got %d", s.NRealizations)
	}
	if s.NRealizationsPerDivisionMax <= 0 {
		return invariantf("n_realizations_per_division_max must be > 0, got %d", s.NRealizationsPerDivisionMax)
	}
	if s.NRealizationsPerDivisionMax > s.NRealizations {
		return invariantf("n_realizations_per_division_max %d exceeds n_realizations %d",
			s.NRealizationsPerDivisionMax, s.NRealizations)
	}
	if s.NTimesteps < 0 {
		return invariantf("n_timesteps must be >= 0, got %d", s.NTimesteps)
	}
	return nil
}

// Allocate realizes every memory node in the tree, finalizing first if
// needed. Subsequent calls are no-ops until Release. A failed allocation
// leaves the simulation allocated with some buffers realized; Release it
// before retrying.
func (s *Simulation) Allocate() error {
	if err := s.Finalize(); err != nil {
		return err
	}
	if s.allocated {
		return nil
	}
	s.allocated = true
	if err := TriggerStagedHook(s, HookAllocate); err != nil {
		return fmt.Errorf("allocate: %w", err)
	}
	logrus.Infof("allocated %s on %s: %d constants", s.Name(), s.dev.Name(), len(s.Constants))
	return nil
}

// Release frees every device buffer in the constants mapping and resets the
// memory nodes, after which Allocate may be called again.
func (s *Simulation) Release() error {
	if !s.allocated {
		return fmt.Errorf("release %s: %w", s.Name(), ErrNotAllocated)
	}
	if err := TriggerStagedHook(s, HookRelease); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	s.allocated = false
	s.kernels = [2]device.Kernel{}
	logrus.Infof("released %s", s.Name())
	return nil
}

// releaseConstants releases each distinct buffer once, in name order, and
// removes buffer bindings from the constants mapping.
func (s *Simulation) releaseConstants() error {
	names := make([]string, 0, len(s.Constants))
	for name := range s.Constants {
		names = append(names, name)
	}
	sort.Strings(names)
	released := make(map[device.Buffer]bool)
	for _, name := range names {
		b, ok := s.Constants[name].(device.Buffer)
		if !ok {
			continue
		}
		delete(s.Constants, name)
		if released[b] {
			continue
		}
		released[b] = true
		if err := s.dev.Release(b); err != nil {
			return fmt.Errorf("releasing %s: %w", name, err)
		}
	}
	return nil
}

// Generate builds the kernel source from scratch, finalizing first if
// needed. It never allocates. Kernels compiled from earlier source are
// dropped, so the next run compiles the new source.
func (s *Simulation) Generate() (string, error) {
	if err := s.Finalize(); err != nil {
		return "", err
	}
	g := NewGenerator(s.Dialect)
	g.PrintHooks = s.PrintHooks
	if err := TriggerStagedCGHook(s, HookStepKernel, g); err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	s.code = g.Code()
	s.generated = true
	s.kernels = [2]device.Kernel{}
	logrus.Debugf("generated %d bytes of %s source", len(s.code), s.Dialect.Name)
	return s.code, nil
}

func (s *Simulation) stepKernel(g *Generator) error {
	if err := g.Block("def step_fn(timestep, realization_start):", func(g *Generator) error {
		return TriggerStagedCGHook(s, HookStepKernelBody, g)
	}); err != nil {
		return err
	}
	return nil
}

func (s *Simulation) mainLoop(g *Generator) error {
	if err := g.Emit(`
		first_idx_sim = realization_start * n_elms_per_realization
		last_idx_sim = min(first_idx_sim + n_elms_per_division_max, n_elms_per_sim)
	`); err != nil {
		return err
	}
	return g.Block("for idx_sim in (first_idx_sim + gid, last_idx_sim, gsize):", func(g *Generator) error {
		return TriggerStagedCGHook(s, HookLoopBody, g)
	})
}

func (s *Simulation) loopBody(g *Generator) error {
	if err := TriggerStagedCGHook(s, HookElementIdxCalculations, g); err != nil {
		return err
	}
	p := NewPartitioner(g, "idx_realization", 0, s.NElmsPerRealization())
	offsets := s.ModelOffsets()
	for i, m := range s.Models() {
		start := offsets[i]
		if err := p.Next(start, start+m.ModelBase().Count, m.ModelBase().GenerateStepKernel); err != nil {
			return err
		}
	}
	return p.Close()
}

// MemoryReport collects one entry per realized memory node.
func (s *Simulation) MemoryReport() (*MemoryReport, error) {
	if !s.allocated {
		return nil, fmt.Errorf("memory report for %s: %w", s.Name(), ErrNotAllocated)
	}
	r := &MemoryReport{}
	if err := TriggerMemoryReport(s, r); err != nil {
		return nil, err
	}
	return r, nil
}

// MemorySummary writes a plain text summary of allocated memory to w.
func (s *Simulation) MemorySummary(w io.Writer) error {
	r, err := s.MemoryReport()
	if err != nil {
		return err
	}
	r.Print(w, s.dev.Name())
	return nil
}
