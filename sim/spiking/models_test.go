package spiking

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clegans/clegans/sim"
	"github.com/clegans/clegans/sim/device"
	"github.com/clegans/clegans/sim/hostinit"
	"github.com/clegans/clegans/sim/internal/testutil"
)

func TestReducedLIF_GeneratesModelCodeInOrder(t *testing.T) {
	// GIVEN a LIF population with one exponential synapse
	s, _, _ := newTestSim(t, testConfig())
	lif := newLIF(s, 4)
	newSynapse(lif, "ge", 60.0)

	// WHEN generated
	src, err := s.Generate()
	require.NoError(t, err)

	// THEN the model code reads state, integrates and branches on the spike condition
	testutil.AssertLinesInOrder(t, src,
		"idx_state = idx_model + (realization_num - realization_start)*4",
		"LIF_v = LIF_v_buffer[idx_state]",
		"LIF_abs_refractory_t_release = LIF_abs_refractory_t_release_buffer[idx_state]",
		"LIF_ge_g = LIF_ge_g_buffer[idx_state]",
		"input_current = 0",
		"input_current += LIF_ge_g*(60.0 - LIF_v)",
		"v_new = LIF_v + 0.1/20.0*(-LIF_v + input_current) if not 0.1*timestep < LIF_abs_refractory_t_release else 0.0",
		"LIF_ge_g_buffer[idx_state] = LIF_ge_g - 0.1/5.0*LIF_ge_g",
		"if v_new >= 10.0:",
		"LIF_v_buffer[idx_state] = 0.0",
		"LIF_abs_refractory_t_release_buffer[idx_state] = 0.1*timestep + 5.0",
		"else:",
		"LIF_v_buffer[idx_state] = v_new",
	)

	// AND the spike branch is nested one level below its condition
	unit := s.Dialect.IndentUnit
	cond := testutil.Indent(src, "if v_new >= 10.0:", unit)
	assert.Equal(t, cond+1, testutil.Indent(src, "LIF_v_buffer[idx_state] = 0.0", unit))
	assert.Equal(t, cond+1, testutil.Indent(src, "LIF_v_buffer[idx_state] = v_new", unit))
}

func TestState_BuffersSizedPerDivision(t *testing.T) {
	// GIVEN 3 realizations with at most 2 resident
	cfg := testConfig()
	cfg.NRealizations = 3
	cfg.NRealizationsPerDivisionMax = 2
	s, _, _ := newTestSim(t, cfg)
	lif := newLIF(s, 5)

	// WHEN finalized
	require.NoError(t, s.Finalize())

	// THEN each state holds count * n_realizations_per_division_max elements
	assert.Equal(t, device.Shape{10}, lif.V.Allocation().Shape)
	assert.Equal(t, device.Float32, lif.V.Allocation().DType)
	assert.Equal(t, device.Shape{10}, lif.AbsRefractoryTRelease.Allocation().Shape)
}

func TestState_OutsideModelFailsFinalize(t *testing.T) {
	s, _, _ := newTestSim(t, testConfig())
	NewState(s, "loose")

	err := s.Finalize()

	assert.True(t, errors.Is(err, sim.ErrInvariant), "got %v", err)
}

func TestInitializeFromHost_FillsDivisionRealizations(t *testing.T) {
	// GIVEN a state initialized to a constant, 2 resident realizations
	cfg := testConfig()
	cfg.NRealizations = 3
	cfg.NRealizationsPerDivisionMax = 2
	s, dev, _ := newTestSim(t, cfg)
	lif := newLIF(s, 3)
	NewInitializeFromHost(lif.V, hostinit.Constant(7))
	require.NoError(t, s.Allocate())

	// WHEN the short last division, holding one realization, is initialized
	require.NoError(t, sim.TriggerTimestepHook(s, sim.HookInitializeMemory,
		&sim.TimestepInfo{DivisionNum: 1, RealizationStart: 2, NRealizations: 1}))

	// THEN the first realization's elements are set and the tail is zero
	assert.Equal(t, []float64{7, 7, 7, 0, 0, 0}, contents(t, dev, lif.V.Allocation()).Floats())
	// AND the refractory release time starts at zero
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0}, contents(t, dev, lif.AbsRefractoryTRelease.Allocation()).Floats())
}

func TestInitializeFromHost_SameSeedSameValues(t *testing.T) {
	draw := func() []float64 {
		s, dev, _ := newTestSim(t, testConfig())
		lif := newLIF(s, 16)
		NewInitializeFromHost(lif.V, hostinit.Uniform(-5, 5))
		require.NoError(t, s.Allocate())
		require.NoError(t, sim.TriggerTimestepHook(s, sim.HookInitializeMemory, &sim.TimestepInfo{NRealizations: 1}))
		return contents(t, dev, lif.V.Allocation()).Floats()
	}

	first, second := draw(), draw()

	assert.Equal(t, first, second)
	for _, v := range first {
		assert.True(t, v >= -5 && v < 5, "value %v outside [-5, 5)", v)
	}
}

func TestLocalPoisson_GeneratesPoissonInput(t *testing.T) {
	// GIVEN a 100 Hz Poisson source feeding a synapse
	s, _, _ := newTestSim(t, testConfig())
	lif := newLIF(s, 4)
	ge := newSynapse(lif, "ge", 60.0)
	p := NewLocalPoisson(ge, "LocalPoisson", 100)

	// WHEN generated
	src, err := s.Generate()
	require.NoError(t, err)

	// THEN the source adds to the synapse conductance and draws the next spike time
	assert.Equal(t, 0.1, p.RateMHz())
	testutil.AssertLinesInOrder(t, src,
		"LIF_ge_LocalPoisson_next_spike = LIF_ge_LocalPoisson_next_spike_buffer[idx_state]",
		"if 0.1*timestep >= LIF_ge_LocalPoisson_next_spike:",
		"LIF_ge_g += 1",
		"isi = randexp()*10.0",
		"while isi < 0.1:",
		"LIF_ge_g += 1",
		"isi += randexp()*10.0",
		"LIF_ge_LocalPoisson_next_spike_buffer[idx_state] = LIF_ge_LocalPoisson_next_spike + isi",
	)
	unit := s.Dialect.IndentUnit
	outer := testutil.Indent(src, "if 0.1*timestep >= LIF_ge_LocalPoisson_next_spike:", unit)
	assert.Equal(t, outer+2, testutil.Indent(src, "isi += randexp()*10.0", unit))
}

func TestLocalPoisson_InitialSpikeTimesHaveMeanISI(t *testing.T) {
	// GIVEN a 100 Hz source over many elements
	s, dev, _ := newTestSim(t, testConfig())
	lif := newLIF(s, 4000)
	ge := newSynapse(lif, "ge", 60.0)
	p := NewLocalPoisson(ge, "LocalPoisson", 100)
	require.NoError(t, s.Allocate())

	// WHEN memory is initialized
	require.NoError(t, sim.TriggerTimestepHook(s, sim.HookInitializeMemory, &sim.TimestepInfo{NRealizations: 1}))

	// THEN the first spike times average one inter-spike interval of 10 ms
	values := contents(t, dev, p.NextSpike.Allocation()).Floats()
	sum := 0.0
	for _, v := range values {
		require.GreaterOrEqual(t, v, 0.0)
		sum += v
	}
	testutil.AssertFloat64Equal(t, "mean next spike", 10, sum/float64(len(values)), 0.1)
}

func TestLocalPoisson_RejectsNonPositiveRate(t *testing.T) {
	s, _, _ := newTestSim(t, testConfig())
	lif := newLIF(s, 4)
	ge := newSynapse(lif, "ge", 60.0)
	NewLocalPoisson(ge, "LocalPoisson", 0)

	err := s.Finalize()

	assert.True(t, errors.Is(err, sim.ErrInvariant), "got %v", err)
}

func TestSpikingModel_RequiresSpikeCondition(t *testing.T) {
	// GIVEN a bare spiking model with no spike condition
	s, _, _ := newTestSim(t, testConfig())
	NewSpikingModel(s, "M", 2)

	// WHEN generated
	_, err := s.Generate()

	// THEN the unset attribute is reported
	assert.True(t, errors.Is(err, sim.ErrUnresolved), "got %v", err)
}
