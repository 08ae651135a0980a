package netconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clegans/clegans/sim"
	"github.com/clegans/clegans/sim/device"
)

func TestNodeSpec_CheckParams(t *testing.T) {
	spec := NodeSpec{Kind: "k", Params: map[string]any{"rate": 1, "zeta": 2, "alpha": 3}}

	err := spec.CheckParams("rate")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "[alpha zeta]", "unknown params are listed sorted")
	assert.NoError(t, spec.CheckParams("alpha", "rate", "zeta"))
}

func TestNodeSpec_Numbers(t *testing.T) {
	spec := NodeSpec{Params: map[string]any{
		"i":     3,
		"whole": 4.0,
		"frac":  4.5,
		"s":     "x",
	}}

	tests := []struct {
		name    string
		get     func() (any, error)
		want    any
		wantErr bool
	}{
		{name: "int", get: func() (any, error) { return spec.Int("i", 0) }, want: 3},
		{name: "whole float as int", get: func() (any, error) { return spec.Int("whole", 0) }, want: 4},
		{name: "fractional float as int", get: func() (any, error) { return spec.Int("frac", 0) }, wantErr: true},
		{name: "absent int", get: func() (any, error) { return spec.Int("none", 7) }, want: 7},
		{name: "int as float", get: func() (any, error) { return spec.Float("i", 0) }, want: 3.0},
		{name: "string as float", get: func() (any, error) { return spec.Float("s", 0) }, wantErr: true},
		{name: "string", get: func() (any, error) { return spec.String("s", "") }, want: "x"},
		{name: "number as string", get: func() (any, error) { return spec.String("i", "") }, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.get()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNodeSpec_DType(t *testing.T) {
	spec := NodeSpec{Params: map[string]any{"dtype": "uint", "bad": "half"}}

	dt, err := spec.DType("dtype", device.Float32)
	require.NoError(t, err)
	assert.Equal(t, device.Uint32, dt)

	dt, err = spec.DType("missing", device.Float64)
	require.NoError(t, err)
	assert.Equal(t, device.Float64, dt)

	_, err = spec.DType("bad", device.Float32)
	assert.Error(t, err)
}

func TestNodeSpec_Lists(t *testing.T) {
	spec := NodeSpec{Params: map[string]any{
		"values": []any{1, 2.5},
		"lists":  []any{[]any{1, 2.0}, []any{}},
		"flat":   []any{1, 2},
		"broken": []any{"a"},
		"scalar": 4,
	}}

	values, err := spec.Floats("values")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5}, values)

	lists, err := spec.IntLists("lists")
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}, nil}, lists)

	_, err = spec.IntLists("flat")
	assert.Error(t, err)
	_, err = spec.Floats("broken")
	assert.Error(t, err)
	_, err = spec.Floats("scalar")
	assert.Error(t, err)
	_, err = spec.Floats("missing")
	assert.Error(t, err)
}

func TestApplyWindow(t *testing.T) {
	// GIVEN window params with an open stop
	s := sim.NewSimulation(sim.DefaultConfig(), device.NewHost(0), device.NewRecordingCompiler())
	m := sim.NewModel(s, "M", 4)
	p := sim.NewPerElementProbe(m, "probe", device.Float32)
	spec := NodeSpec{Params: map[string]any{
		"t_start":           10.0,
		"t_stop":            -1,
		"t_step":            5,
		"idx_start":         1,
		"buffer_timepoints": 2,
	}}

	// WHEN applied
	require.NoError(t, ApplyBuffer(p, spec))

	// THEN the params land on the probe and absent ones keep their defaults
	assert.Equal(t, sim.Range{Start: 10, Stop: sim.Open, Step: 5}, p.TRange)
	assert.Equal(t, sim.Range{Start: 1, Stop: sim.Open, Step: 1}, p.IdxRange)
	assert.Equal(t, "idx_model", p.Idx)
	assert.Equal(t, 2, p.BufferTimepoints)
}

func TestApplyWindow_RejectsNonInteger(t *testing.T) {
	s := sim.NewSimulation(sim.DefaultConfig(), device.NewHost(0), device.NewRecordingCompiler())
	p := sim.NewPerElementProbe(sim.NewModel(s, "M", 4), "probe", device.Float32)

	err := ApplyWindow(&p.ConstrainedProbe, NodeSpec{Params: map[string]any{"t_step": 1.5}})

	assert.Error(t, err)
}
