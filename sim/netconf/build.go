package netconf

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clegans/clegans/sim"
	"github.com/clegans/clegans/sim/device"
)

// ErrBadReference is returned for attribute references that name no node or
// no set attribute.
var ErrBadReference = errors.New("bad node reference")

// Builder carries state across one Build call.
type Builder struct {
	// Sim is the root being built.
	Sim *sim.Simulation

	refs  []pendingRef
	nodes int
}

type pendingRef struct {
	node sim.Node
	attr string
	ref  string
}

// Build validates net and constructs its tree on dev and compiler.
func Build(net *Network, dev device.Device, compiler device.Compiler) (*sim.Simulation, error) {
	if err := net.Validate(); err != nil {
		return nil, err
	}
	s := sim.NewSimulation(net.Simulation, dev, compiler)
	b := &Builder{Sim: s}
	for i, spec := range net.Nodes {
		if err := b.Build(s, spec, fmt.Sprintf("nodes[%d]", i)); err != nil {
			return nil, err
		}
	}
	if err := b.resolve(); err != nil {
		return nil, err
	}
	logrus.Infof("built %s from network: %d nodes, %d references", s.Name(), b.nodes, len(b.refs))
	return s, nil
}

// Build constructs spec and its subtree under parent. at locates the spec in
// error messages.
func (b *Builder) Build(parent sim.Node, spec NodeSpec, at string) error {
	fn, ok := lookupKind(spec.Kind)
	if !ok {
		return fmt.Errorf("%s: %q: %w", at, spec.Kind, ErrUnknownKind)
	}
	n, err := fn(b, parent, spec)
	if err != nil {
		return fmt.Errorf("%s (%s): %w", at, spec.Kind, err)
	}
	b.nodes++
	logrus.Debugf("built %s %s", spec.Kind, n.Base().Name())

	keys := make([]string, 0, len(spec.Attrs))
	for k := range spec.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := b.assign(n, k, spec.Attrs[k]); err != nil {
			return fmt.Errorf("%s (%s): attr %q: %w", at, spec.Kind, k, err)
		}
	}
	for i, child := range spec.Children {
		if err := b.Build(n, child, fmt.Sprintf("%s.children[%d]", at, i)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) assign(n sim.Node, attr string, v any) error {
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "@") {
			b.refs = append(b.refs, pendingRef{node: n, attr: attr, ref: val})
			return nil
		}
		n.Base().Set(attr, val)
	case int, float64, bool:
		n.Base().Set(attr, val)
	default:
		return fmt.Errorf("unsupported value of type %T", v)
	}
	return nil
}

// resolve assigns every pending reference, in declaration order.
func (b *Builder) resolve() error {
	byName := map[string]sim.Node{}
	_ = sim.Walk(b.Sim, func(n sim.Node) error {
		byName[n.Base().Name()] = n
		return nil
	})
	for _, r := range b.refs {
		v, err := lookupRef(byName, r.ref)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", r.node.Base().Name(), r.attr, err)
		}
		r.node.Base().Set(r.attr, v)
	}
	return nil
}

func lookupRef(byName map[string]sim.Node, ref string) (any, error) {
	name, attr, hasAttr := strings.Cut(strings.TrimPrefix(ref, "@"), ".")
	target, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("%s: no node named %q: %w", ref, name, ErrBadReference)
	}
	if !hasAttr {
		if _, isExpr := target.(sim.Expr); !isExpr {
			return nil, fmt.Errorf("%s: node %s cannot appear in generated code: %w", ref, name, ErrBadReference)
		}
		return target, nil
	}
	a, ok := target.Base().Get(attr)
	if !ok || !a.Set {
		return nil, fmt.Errorf("%s: node %s has no attribute %q: %w", ref, name, attr, ErrBadReference)
	}
	return a.Value, nil
}
