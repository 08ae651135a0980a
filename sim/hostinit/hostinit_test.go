package hostinit

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/clegans/clegans/sim/device"
	"github.com/clegans/clegans/sim/internal/testutil"
)

func newSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

func TestNewSampler_RejectsBadSpecs(t *testing.T) {
	tests := []struct {
		name string
		spec DistSpec
	}{
		{"unknown type", DistSpec{Type: "poisson"}},
		{"constant without value", DistSpec{Type: "constant"}},
		{"uniform without max", DistSpec{Type: "uniform", Params: map[string]float64{"min": 0}}},
		{"uniform reversed", DistSpec{Type: "uniform", Params: map[string]float64{"min": 1, "max": 0}}},
		{"normal negative std_dev", DistSpec{Type: "normal", Params: map[string]float64{"mean": 0, "std_dev": -1}}},
		{"exponential zero rate", DistSpec{Type: "exponential", Params: map[string]float64{"rate": 0}}},
		{"lognormal without sigma", DistSpec{Type: "lognormal", Params: map[string]float64{"mu": 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSampler(tt.spec)
			assert.Error(t, err)
		})
	}
}

func TestFromSpec_SampleMoments(t *testing.T) {
	// GIVEN 20000 draws from each distribution
	tests := []struct {
		name string
		spec DistSpec
		mean float64
	}{
		{"normal", DistSpec{Type: "normal", Params: map[string]float64{"mean": -5, "std_dev": 5}}, -5},
		{"uniform", DistSpec{Type: "uniform", Params: map[string]float64{"min": 2, "max": 4}}, 3},
		{"exponential", DistSpec{Type: "exponential", Params: map[string]float64{"rate": 0.1}}, 10},
		{"constant", DistSpec{Type: "constant", Params: map[string]float64{"value": 4}}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := FromSpec(tt.spec)
			require.NoError(t, err)

			// WHEN produced as doubles
			arr := p(device.Shape{20000}, device.Float64, newSource(1))

			// THEN the sample mean is close to the distribution mean
			testutil.AssertFloat64Equal(t, tt.name+" mean", tt.mean, stat.Mean(arr.Floats(), nil), 0.05)
		})
	}
}

func TestFromSampler_DeterministicPerSource(t *testing.T) {
	p, err := FromSpec(DistSpec{Type: "normal", Params: map[string]float64{"mean": 0, "std_dev": 1}})
	require.NoError(t, err)

	a := p(device.Shape{8}, device.Float32, newSource(3))
	b := p(device.Shape{8}, device.Float32, newSource(3))
	c := p(device.Shape{8}, device.Float32, newSource(4))

	assert.Equal(t, a.Floats(), b.Floats())
	assert.NotEqual(t, a.Floats(), c.Floats())
	assert.Equal(t, device.Float32, a.DType())
}

func TestFromSampler_IntegerDTypeTruncates(t *testing.T) {
	p, err := FromSpec(DistSpec{Type: "constant", Params: map[string]float64{"value": 2.9}})
	require.NoError(t, err)

	arr := p(device.Shape{2, 2}, device.Int32, newSource(1))

	assert.Equal(t, []int64{2, 2, 2, 2}, arr.Ints())
}

func TestZeros(t *testing.T) {
	arr := Zeros(device.Shape{3}, device.Float32, nil)
	assert.Equal(t, []float64{0, 0, 0}, arr.Floats())

	p, err := FromSpec(DistSpec{Type: "zeros"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, p(device.Shape{2}, device.Float64, newSource(1)).Floats())
}

func TestTypes_Sorted(t *testing.T) {
	assert.IsIncreasing(t, Types())
}
