package sim

import (
	"hash/fnv"
	"math/rand/v2"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation. Two trees
// with the same key and identical structure MUST initialize host-side state
// identically.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated random streams per
// subsystem. Nodes use their unique name as the subsystem, so adding a node
// never perturbs the draws of another.
//
// Derivation formula: masterSeed XOR fnv1a64(subsystemName), expanded into a
// PCG state.
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
type PartitionedRNG struct {
	key     SimulationKey
	sources map[string]*rand.PCG
	rands   map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:     key,
		sources: make(map[string]*rand.PCG),
		rands:   make(map[string]*rand.Rand),
	}
}

// Source returns the random source of the named subsystem. The same name
// always returns the same source, so draws through Source and ForSubsystem
// share one stream.
func (p *PartitionedRNG) Source(name string) rand.Source {
	return p.source(name)
}

func (p *PartitionedRNG) source(name string) *rand.PCG {
	if src, ok := p.sources[name]; ok {
		return src
	}
	derived := uint64(int64(p.key) ^ fnv1a64(name))
	src := rand.NewPCG(derived, derived^0x9e3779b97f4a7c15)
	p.sources[name] = src
	return src
}

// ForSubsystem returns a deterministically-seeded RNG for the named
// subsystem (cached). Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if r, ok := p.rands[name]; ok {
		return r
	}
	r := rand.New(p.source(name))
	p.rands[name] = r
	return r
}

// ForNode returns the RNG of the subsystem named after n.
func (p *PartitionedRNG) ForNode(n Node) *rand.Rand {
	return p.ForSubsystem(n.Base().Name())
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
