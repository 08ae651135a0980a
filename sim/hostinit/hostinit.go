// Package hostinit produces host-side arrays of initial values drawn from
// named distributions. The arrays are copied to device buffers when state is
// initialized from the host.
package hostinit

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/clegans/clegans/sim/device"
)

// DistSpec parameterizes an initial value distribution.
type DistSpec struct {
	Type   string             `yaml:"type" hcl:"type"`
	Params map[string]float64 `yaml:"params,omitempty" hcl:"params,optional"`
}

// Sampler draws one value per call from src.
type Sampler interface {
	Sample(src rand.Source) float64
}

// ConstantSampler always returns the same value.
type ConstantSampler struct {
	value float64
}

func (s *ConstantSampler) Sample(_ rand.Source) float64 { return s.value }

// UniformSampler draws from [min, max).
type UniformSampler struct {
	min, max float64
}

func (s *UniformSampler) Sample(src rand.Source) float64 {
	return distuv.Uniform{Min: s.min, Max: s.max, Src: src}.Rand()
}

// NormalSampler draws from a Gaussian.
type NormalSampler struct {
	mean, stdDev float64
}

func (s *NormalSampler) Sample(src rand.Source) float64 {
	return distuv.Normal{Mu: s.mean, Sigma: s.stdDev, Src: src}.Rand()
}

// ExponentialSampler draws exponentially distributed values with the given
// rate (mean 1/rate).
type ExponentialSampler struct {
	rate float64
}

func (s *ExponentialSampler) Sample(src rand.Source) float64 {
	return distuv.Exponential{Rate: s.rate, Src: src}.Rand()
}

// LogNormalSampler draws exp(N(mu, sigma)).
type LogNormalSampler struct {
	mu, sigma float64
}

func (s *LogNormalSampler) Sample(src rand.Source) float64 {
	return distuv.LogNormal{Mu: s.mu, Sigma: s.sigma, Src: src}.Rand()
}

// requireParam checks that all required keys exist in a params map.
func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return fmt.Errorf("distribution requires parameter %q", k)
		}
	}
	return nil
}

// NewSampler creates a Sampler from a DistSpec.
func NewSampler(spec DistSpec) (Sampler, error) {
	switch spec.Type {
	case "zeros":
		return &ConstantSampler{}, nil

	case "constant":
		if err := requireParam(spec.Params, "value"); err != nil {
			return nil, err
		}
		return &ConstantSampler{value: spec.Params["value"]}, nil

	case "uniform":
		if err := requireParam(spec.Params, "min", "max"); err != nil {
			return nil, err
		}
		if spec.Params["max"] < spec.Params["min"] {
			return nil, fmt.Errorf("uniform distribution max %v below min %v", spec.Params["max"], spec.Params["min"])
		}
		return &UniformSampler{min: spec.Params["min"], max: spec.Params["max"]}, nil

	case "normal":
		if err := requireParam(spec.Params, "mean", "std_dev"); err != nil {
			return nil, err
		}
		if spec.Params["std_dev"] < 0 {
			return nil, fmt.Errorf("normal distribution std_dev must be >= 0, got %v", spec.Params["std_dev"])
		}
		return &NormalSampler{mean: spec.Params["mean"], stdDev: spec.Params["std_dev"]}, nil

	case "exponential":
		if err := requireParam(spec.Params, "rate"); err != nil {
			return nil, err
		}
		if spec.Params["rate"] <= 0 {
			return nil, fmt.Errorf("exponential distribution rate must be > 0, got %v", spec.Params["rate"])
		}
		return &ExponentialSampler{rate: spec.Params["rate"]}, nil

	case "lognormal":
		if err := requireParam(spec.Params, "mu", "sigma"); err != nil {
			return nil, err
		}
		return &LogNormalSampler{mu: spec.Params["mu"], sigma: spec.Params["sigma"]}, nil

	default:
		return nil, fmt.Errorf("unknown distribution type %q (known: %s)", spec.Type, strings.Join(Types(), ", "))
	}
}

// Types lists the accepted DistSpec types.
func Types() []string {
	types := []string{"constant", "zeros", "uniform", "normal", "exponential", "lognormal"}
	sort.Strings(types)
	return types
}

// Producer fills a fresh host array of the requested shape and dtype.
// Integer dtypes truncate samples toward zero.
type Producer func(shape device.Shape, dtype device.DType, src rand.Source) *device.HostArray

// FromSampler returns a Producer drawing each element from s in flat order.
func FromSampler(s Sampler) Producer {
	return func(shape device.Shape, dtype device.DType, src rand.Source) *device.HostArray {
		arr := device.NewHostArray(shape, dtype)
		for i := 0; i < arr.Len(); i++ {
			v := s.Sample(src)
			if dtype.IsFloat() {
				arr.SetFloat(i, v)
			} else {
				arr.SetInt(i, int64(v))
			}
		}
		return arr
	}
}

// FromSpec builds a Producer for spec.
func FromSpec(spec DistSpec) (Producer, error) {
	s, err := NewSampler(spec)
	if err != nil {
		return nil, err
	}
	return FromSampler(s), nil
}

// Zeros produces zero-filled arrays without drawing.
func Zeros(shape device.Shape, dtype device.DType, _ rand.Source) *device.HostArray {
	return device.NewHostArray(shape, dtype)
}

// Constant produces arrays filled with v.
func Constant(v float64) Producer { return FromSampler(&ConstantSampler{value: v}) }

// Uniform produces values drawn from [min, max).
func Uniform(min, max float64) Producer { return FromSampler(&UniformSampler{min: min, max: max}) }

// Normal produces Gaussian values.
func Normal(mean, stdDev float64) Producer {
	return FromSampler(&NormalSampler{mean: mean, stdDev: stdDev})
}

// Exponential produces exponentially distributed values with mean 1/rate.
func Exponential(rate float64) Producer { return FromSampler(&ExponentialSampler{rate: rate}) }
