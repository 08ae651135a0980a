package sim

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/clegans/clegans/sim/device"
)

// RunInfo describes one call to Run.
type RunInfo struct {
	NTimesteps int
}

// TimestepInfo describes the division being run. One value is created per
// division and its Timestep updated in place.
type TimestepInfo struct {
	RunInfo          *RunInfo
	DivisionNum      int
	RealizationStart int
	NRealizations    int
	Timestep         int
}

const (
	parityEven = 0
	parityOdd  = 1
)

var parityNames = [2]string{"even", "odd"}

func tracer() trace.Tracer {
	return otel.Tracer("github.com/clegans/clegans/sim")
}

// Run executes every division for NTimesteps timesteps. See RunContext.
func (s *Simulation) Run() error {
	return s.RunContext(context.Background())
}

// RunContext executes every division for NTimesteps timesteps, allocating
// and compiling first if needed. Even timesteps launch the even kernel and
// odd timesteps the odd one. ctx parents the trace spans of the run; a run
// cannot be cancelled once started.
func (s *Simulation) RunContext(ctx context.Context) error {
	ctx, span := tracer().Start(ctx, "Simulation.Run", trace.WithAttributes(
		attribute.String("simulation", s.Name()),
		attribute.Int("n_timesteps", s.NTimesteps),
		attribute.Int("n_divisions", s.NDivisions()),
	))
	defer span.End()

	if err := s.run(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		return err
	}
	span.SetStatus(codes.Ok, "run complete")
	return nil
}

func (s *Simulation) run(ctx context.Context) error {
	if err := s.Allocate(); err != nil {
		return err
	}
	even, err := s.kernel(parityEven)
	if err != nil {
		return err
	}
	odd, err := s.kernel(parityOdd)
	if err != nil {
		return err
	}
	kernels := [2]device.Kernel{even, odd}

	ri := &RunInfo{NTimesteps: s.NTimesteps}
	logrus.Infof("running %s: %d timesteps x %d divisions", s.Name(), ri.NTimesteps, s.NDivisions())
	if err := TriggerRunHook(s, HookPrepareRun, ri); err != nil {
		return err
	}

	for d := 0; d < s.NDivisions(); d++ {
		if err := s.runDivision(ctx, ri, d, kernels); err != nil {
			return err
		}
	}

	if err := s.dev.BlockUntilIdle(); err != nil {
		return fmt.Errorf("waiting for %s: %w", s.dev.Name(), err)
	}
	if err := TriggerRunHook(s, HookRunComplete, ri); err != nil {
		return err
	}
	logrus.Infof("run of %s complete", s.Name())
	return nil
}

func (s *Simulation) runDivision(ctx context.Context, ri *RunInfo, d int, kernels [2]device.Kernel) error {
	start, n := s.DivisionRealizations(d)
	_, span := tracer().Start(ctx, "Simulation.Division", trace.WithAttributes(
		attribute.Int("division", d),
		attribute.Int("realization_start", start),
		attribute.Int("n_realizations", n),
	))
	defer span.End()

	ti := &TimestepInfo{RunInfo: ri, DivisionNum: d, RealizationStart: start, NRealizations: n}
	logrus.Debugf("[division %d] realizations %d..%d", d, start, start+n)
	if err := TriggerTimestepHook(s, HookInitializeMemory, ti); err != nil {
		span.RecordError(err)
		return err
	}

	for ts := 0; ts < ri.NTimesteps; ts++ {
		ti.Timestep = ts
		parity := ts % 2
		began := time.Now()
		if err := kernels[parity].Launch(int32(ts), int32(start)); err != nil {
			err = fmt.Errorf("launching %s kernel at timestep %d of division %d: %w", parityNames[parity], ts, d, err)
			span.RecordError(err)
			return err
		}
		s.metrics.observeLaunch(parityNames[parity], time.Since(began))
		logrus.Tracef("[division %d] [timestep %07d] %s kernel", d, ts, parityNames[parity])
		if err := TriggerTimestepHook(s, HookTimestepComplete, ti); err != nil {
			span.RecordError(err)
			return err
		}
	}

	if err := TriggerTimestepHook(s, HookDivisionComplete, ti); err != nil {
		span.RecordError(err)
		return err
	}
	s.metrics.divisions.Inc()
	return nil
}

// kernel compiles the kernel for parity on first use. The prepare_step_fn
// hook for that parity runs just before compiling, and the compiled kernel
// binds a snapshot of the constants as they are at that moment.
func (s *Simulation) kernel(parity int) (device.Kernel, error) {
	if k := s.kernels[parity]; k != nil {
		return k, nil
	}
	if !s.generated {
		if _, err := s.Generate(); err != nil {
			return nil, err
		}
	}
	hook := HookPrepareStepEven
	if parity == parityOdd {
		hook = HookPrepareStepOdd
	}
	if err := TriggerStagedHook(s, hook); err != nil {
		return nil, err
	}
	k, err := s.compiler.Compile(s.code, maps.Clone(s.Constants))
	if err != nil {
		return nil, fmt.Errorf("compiling %s kernel: %w", parityNames[parity], err)
	}
	s.kernels[parity] = k
	logrus.Debugf("compiled %s kernel against %d constants", parityNames[parity], len(s.Constants))
	return k, nil
}
