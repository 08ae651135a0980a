package netconf

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/clegans/clegans/sim"
	"github.com/clegans/clegans/sim/hostinit"
)

// hclNetwork is the top-level structure of an HCL network file, for
// decoding.
type hclNetwork struct {
	Simulation *hclSimulation `hcl:"simulation,block"`
	Nodes      []*hclNode     `hcl:"node,block"`
}

type hclSimulation struct {
	DT                          *float64 `hcl:"dt,optional"`
	NTimesteps                  *int     `hcl:"n_timesteps,optional"`
	NRealizations               *int     `hcl:"n_realizations,optional"`
	NRealizationsPerDivisionMax *int     `hcl:"n_realizations_per_division_max,optional"`
	Seed                        *int64   `hcl:"seed,optional"`
	PrintHooks                  *bool    `hcl:"print_hooks,optional"`
}

// hclNode is written as
//
//	node "<kind>" "<name>" { count = ..., params = {...}, attrs = {...} }
//
// with nested node blocks for children and an optional distribution block.
type hclNode struct {
	Kind         string             `hcl:"kind,label"`
	Name         string             `hcl:"name,label"`
	Count        *int               `hcl:"count,optional"`
	Params       hcl.Expression     `hcl:"params,optional"`
	Attrs        hcl.Expression     `hcl:"attrs,optional"`
	Distribution *hostinit.DistSpec `hcl:"distribution,block"`
	Children     []*hclNode         `hcl:"node,block"`
}

// DecodeHCL parses an HCL network. filename is used in diagnostics only.
// Numbers in params and attrs decode as float64.
func DecodeHCL(data []byte, filename string) (*Network, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL network %s: %w", filename, diags)
	}
	var parsed hclNetwork
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL network %s: %w", filename, diags)
	}

	net := &Network{Simulation: sim.DefaultConfig()}
	if s := parsed.Simulation; s != nil {
		applyHCLSimulation(&net.Simulation, s)
	}
	for _, n := range parsed.Nodes {
		spec, err := n.toSpec()
		if err != nil {
			return nil, fmt.Errorf("HCL network %s: %w", filename, err)
		}
		net.Nodes = append(net.Nodes, spec)
	}
	return net, nil
}

func applyHCLSimulation(cfg *sim.Config, s *hclSimulation) {
	if s.DT != nil {
		cfg.DT = *s.DT
	}
	if s.NTimesteps != nil {
		cfg.NTimesteps = *s.NTimesteps
	}
	if s.NRealizations != nil {
		cfg.NRealizations = *s.NRealizations
	}
	if s.NRealizationsPerDivisionMax != nil {
		cfg.NRealizationsPerDivisionMax = *s.NRealizationsPerDivisionMax
	}
	if s.Seed != nil {
		cfg.Seed = *s.Seed
	}
	if s.PrintHooks != nil {
		cfg.PrintHooks = *s.PrintHooks
	}
}

func (n *hclNode) toSpec() (NodeSpec, error) {
	spec := NodeSpec{Kind: n.Kind, Name: n.Name, Distribution: n.Distribution}
	if n.Count != nil {
		spec.Count = *n.Count
	}
	var err error
	if spec.Params, err = objectAttr(n.Params); err != nil {
		return spec, fmt.Errorf("node %q %q params: %w", n.Kind, n.Name, err)
	}
	if spec.Attrs, err = objectAttr(n.Attrs); err != nil {
		return spec, fmt.Errorf("node %q %q attrs: %w", n.Kind, n.Name, err)
	}
	for _, c := range n.Children {
		child, err := c.toSpec()
		if err != nil {
			return spec, err
		}
		spec.Children = append(spec.Children, child)
	}
	return spec, nil
}

// objectAttr evaluates an object-valued attribute without variables. An
// absent attribute yields nil.
func objectAttr(expr hcl.Expression) (map[string]any, error) {
	if expr == nil {
		return nil, nil
	}
	v, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	native, err := ctyToNative(v)
	if err != nil {
		return nil, err
	}
	if native == nil {
		return nil, nil
	}
	m, ok := native.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("want an object, got %s", v.Type().FriendlyName())
	}
	return m, nil
}

// ctyToNative recursively converts a cty.Value to its most natural Go
// counterpart: string, float64, bool, []any or map[string]any.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number to float64: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		slice := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			slice = append(slice, native)
		}
		return slice, nil

	case ty.IsObjectType() || ty.IsMapType():
		m := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key.AsString(), err)
			}
			m[key.AsString()] = native
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
