// Package netconf describes simulation trees in YAML or HCL files and builds
// them. Each node is named by a kind registered with Register; packages that
// provide node types register their kinds from init functions.
//
// Attribute values may reference other nodes as "@name" (the node itself) or
// "@name.attr" (one of its attributes), by unique name. References are
// resolved once the whole tree exists, so a node may refer to nodes declared
// after it.
package netconf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/clegans/clegans/sim"
	"github.com/clegans/clegans/sim/hostinit"
)

// ErrUnknownKind is returned when a node names an unregistered kind.
var ErrUnknownKind = errors.New("unknown node kind")

// Network is a whole network description.
type Network struct {
	Simulation sim.Config `yaml:"simulation"`
	Nodes      []NodeSpec `yaml:"nodes"`
}

// NodeSpec describes one node and its subtree.
type NodeSpec struct {
	Kind string `yaml:"kind"`
	// Name is the basename; empty selects the kind's default.
	Name  string `yaml:"name,omitempty"`
	Count int    `yaml:"count,omitempty"`
	// Params are constructor arguments interpreted by the kind.
	Params map[string]any `yaml:"params,omitempty"`
	// Attrs are assigned to the node after construction.
	Attrs        map[string]any     `yaml:"attrs,omitempty"`
	Distribution *hostinit.DistSpec `yaml:"distribution,omitempty"`
	Children     []NodeSpec         `yaml:"children,omitempty"`
}

// Load reads a network file, choosing the format from its extension.
func Load(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading network: %w", err)
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return DecodeYAML(data)
	case ".hcl":
		return DecodeHCL(data, path)
	default:
		return nil, fmt.Errorf("network %s: unknown format %q; valid: .yaml, .yml, .hcl", path, filepath.Ext(path))
	}
}

// DecodeYAML parses a YAML network. Uses strict parsing: unrecognized keys
// (typos) are rejected. Simulation fields left out keep their defaults.
func DecodeYAML(data []byte) (*Network, error) {
	net := &Network{Simulation: sim.DefaultConfig()}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(net); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing network: empty document")
		}
		return nil, fmt.Errorf("parsing network: %w", err)
	}
	return net, nil
}

// Validate checks the configuration and that every node names a known kind.
func (n *Network) Validate() error {
	if err := n.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	var check func(path string, specs []NodeSpec) error
	check = func(path string, specs []NodeSpec) error {
		for i, s := range specs {
			at := fmt.Sprintf("%s[%d]", path, i)
			if _, ok := lookupKind(s.Kind); !ok {
				return fmt.Errorf("%s: %q: %w; valid: %v", at, s.Kind, ErrUnknownKind, Kinds())
			}
			if s.Count < 0 {
				return fmt.Errorf("%s: count must be >= 0, got %d", at, s.Count)
			}
			if err := check(at+".children", s.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return check("nodes", n.Nodes)
}
