package netconf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clegans/clegans/sim"
	"github.com/clegans/clegans/sim/device"
	"github.com/clegans/clegans/sim/internal/testutil"
)

func build(t *testing.T, doc string) (*sim.Simulation, error) {
	t.Helper()
	net, err := DecodeYAML([]byte(doc))
	require.NoError(t, err)
	return Build(net, device.NewHost(0), device.NewRecordingCompiler())
}

func TestBuild_EngineKindsAndReferences(t *testing.T) {
	// GIVEN a model reading a constant array and another node's attribute,
	// both referenced before they are declared
	s, err := build(t, `
simulation: {n_timesteps: 4}
nodes:
  - kind: model
    name: M
    count: 2
    attrs:
      w: "@weights"
      gain: "@params.gain"
      offset_v: 0.5
    children:
      - kind: standalone_code
        params: {hook: in_model_cl_code, code: "x = w[idx_model]*gain + offset_v"}
      - kind: expression_probe
        params: {expression: x, hook: in_model_cl_code, dtype: double, buffer_timepoints: 2}
        children:
          - kind: accumulate_on_host
  - kind: node
    name: params
    attrs: {gain: 2.5}
  - kind: constant_array
    name: weights
    params: {dtype: float, values: [1, 2]}
`)
	require.NoError(t, err)

	// WHEN generated
	src, err := s.Generate()
	require.NoError(t, err)

	// THEN references resolve to the node and to the attribute value
	testutil.AssertLinesInOrder(t, src,
		"x = weights[idx_model]*2.5 + 0.5",
	)
	var probe *sim.ExpressionProbe
	require.NoError(t, sim.Walk(s, func(n sim.Node) error {
		if p, ok := n.(*sim.ExpressionProbe); ok {
			probe = p
		}
		return nil
	}))
	require.NotNil(t, probe)
	assert.Equal(t, device.Float64, probe.DType)
	assert.Equal(t, 2, probe.BufferTimepoints)

	// AND the network runs
	require.NoError(t, s.Run())
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{
			name:    "unknown kind",
			doc:     "nodes:\n  - kind: neuron\n",
			wantErr: ErrUnknownKind,
		},
		{
			name:    "reference to missing node",
			doc:     "nodes:\n  - kind: model\n    count: 1\n    attrs: {w: \"@nowhere\"}\n",
			wantErr: ErrBadReference,
		},
		{
			name: "reference to non-expression node",
			doc: `
nodes:
  - kind: node
    name: plain
  - kind: model
    count: 1
    attrs: {w: "@plain"}
`,
			wantErr: ErrBadReference,
		},
		{
			name: "reference to missing attribute",
			doc: `
nodes:
  - kind: node
    name: plain
  - kind: model
    count: 1
    attrs: {w: "@plain.gain"}
`,
			wantErr: ErrBadReference,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := build(t, tc.doc)
			assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
		})
	}
}

func TestBuild_KindErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown param", doc: "nodes:\n  - kind: model\n    count: 1\n    params: {size: 3}\n"},
		{name: "standalone without hook", doc: "nodes:\n  - kind: standalone_code\n    params: {code: x}\n"},
		{name: "bad dtype", doc: "nodes:\n  - kind: constant_array\n    params: {dtype: half, values: [1]}\n"},
		{name: "host consumer outside probe", doc: "nodes:\n  - kind: model\n    count: 1\n    children:\n      - kind: process_on_host\n"},
		{name: "unsupported attr value", doc: "nodes:\n  - kind: model\n    count: 1\n    attrs: {w: [1, 2]}\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := build(t, tc.doc)
			assert.Error(t, err)
		})
	}
}

func TestRegister_PanicsOnDuplicateOrNil(t *testing.T) {
	noop := func(*Builder, sim.Node, NodeSpec) (sim.Node, error) { return nil, nil }
	assert.Panics(t, func() { Register("model", noop) })
	assert.Panics(t, func() { Register("test_nil_kind", nil) })
}

func TestKinds_SortedEngineKinds(t *testing.T) {
	kinds := Kinds()

	assert.IsNonDecreasing(t, kinds)
	for _, k := range []string{"accumulate_on_host", "constant_array", "expression_probe", "model", "node", "process_on_host", "standalone_code"} {
		assert.Contains(t, kinds, k)
	}
}
