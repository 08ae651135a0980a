package netconf

import (
	"fmt"

	"github.com/clegans/clegans/sim"
	"github.com/clegans/clegans/sim/device"
)

// Engine node kinds.
func init() {
	Register("node", func(_ *Builder, parent sim.Node, spec NodeSpec) (sim.Node, error) {
		if err := spec.CheckParams(); err != nil {
			return nil, err
		}
		return sim.NewNode(parent, spec.Basename("Node")), nil
	})
	Register("model", func(_ *Builder, parent sim.Node, spec NodeSpec) (sim.Node, error) {
		if err := spec.CheckParams(); err != nil {
			return nil, err
		}
		return sim.NewModel(parent, spec.Basename("Model"), spec.Count), nil
	})
	Register("standalone_code", buildStandaloneCode)
	Register("constant_array", buildConstantArray)
	Register("expression_probe", buildExpressionProbe)
	Register("process_on_host", func(_ *Builder, parent sim.Node, spec NodeSpec) (sim.Node, error) {
		probe, err := bufferedParent(parent, spec)
		if err != nil {
			return nil, err
		}
		return sim.NewProcessOnHost(probe, spec.Basename("ProcessOnHost")), nil
	})
	Register("accumulate_on_host", func(_ *Builder, parent sim.Node, spec NodeSpec) (sim.Node, error) {
		probe, err := bufferedParent(parent, spec)
		if err != nil {
			return nil, err
		}
		return sim.NewAccumulateOnHost(probe, spec.Basename("AccumulateOnHost")), nil
	})
}

func buildStandaloneCode(_ *Builder, parent sim.Node, spec NodeSpec) (sim.Node, error) {
	if err := spec.CheckParams("hook", "code"); err != nil {
		return nil, err
	}
	hook, err := spec.String("hook", "")
	if err != nil {
		return nil, err
	}
	if hook == "" {
		return nil, fmt.Errorf("param %q is required", "hook")
	}
	code, err := spec.String("code", "")
	if err != nil {
		return nil, err
	}
	return sim.NewStandaloneCode(parent, spec.Basename("StandaloneCode"), sim.HookName(hook), code), nil
}

func buildConstantArray(_ *Builder, parent sim.Node, spec NodeSpec) (sim.Node, error) {
	if err := spec.CheckParams("dtype", "values"); err != nil {
		return nil, err
	}
	dt, err := spec.DType("dtype", device.Float32)
	if err != nil {
		return nil, err
	}
	values, err := spec.Floats("values")
	if err != nil {
		return nil, err
	}
	return sim.NewConstantArray(parent, spec.Basename("ConstantArray"), device.HostArrayFromFloats(dt, values)), nil
}

func buildExpressionProbe(_ *Builder, parent sim.Node, spec NodeSpec) (sim.Node, error) {
	if err := spec.CheckParams(append([]string{"expression", "hook", "dtype", "buffer_timepoints"}, WindowParams...)...); err != nil {
		return nil, err
	}
	expr, err := spec.String("expression", "")
	if err != nil {
		return nil, err
	}
	hook, err := spec.String("hook", "")
	if err != nil {
		return nil, err
	}
	p := sim.NewExpressionProbe(parent, spec.Basename("ExpressionProbe"), expr, sim.HookName(hook))
	if p.DType, err = spec.DType("dtype", p.DType); err != nil {
		return nil, err
	}
	if err := ApplyBuffer(&p.PerElementProbe, spec); err != nil {
		return nil, err
	}
	return p, nil
}

func bufferedParent(parent sim.Node, spec NodeSpec) (sim.BufferedProbe, error) {
	if err := spec.CheckParams(); err != nil {
		return nil, err
	}
	probe, ok := parent.(sim.BufferedProbe)
	if !ok {
		return nil, fmt.Errorf("parent %s is not a buffered probe", parent.Base().Name())
	}
	return probe, nil
}
