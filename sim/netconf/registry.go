package netconf

import (
	"fmt"
	"sort"
	"sync"

	"github.com/clegans/clegans/sim"
)

// BuildFunc constructs the node spec describes under parent. Children and
// attributes are handled by the builder afterwards.
type BuildFunc func(b *Builder, parent sim.Node, spec NodeSpec) (sim.Node, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]BuildFunc{}
)

// Register makes a node kind available to network files. Registering the
// same kind twice panics.
func Register(kind string, fn BuildFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if fn == nil {
		panic("netconf: Register with nil BuildFunc for " + kind)
	}
	if _, dup := registry[kind]; dup {
		panic(fmt.Sprintf("netconf: kind %q registered twice", kind))
	}
	registry[kind] = fn
}

// Kinds returns the registered kinds, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func lookupKind(kind string) (BuildFunc, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[kind]
	return fn, ok
}
