package sim

import "fmt"

// IndexRange is a half-open range of index values.
type IndexRange struct {
	Start, End int
}

// Len returns End - Start.
func (r IndexRange) Len() int { return r.End - r.Start }

// IndexRanger is implemented by nodes that expose index spaces to generated
// code.
type IndexRanger interface {
	IdxRanges() map[string]IndexRange
}

// ModelNode is implemented by every type embedding Model.
type ModelNode interface {
	Node
	ModelBase() *Model
}

// Model claims Count consecutive elements of each realization. Models that
// are direct children of the Simulation are assigned offsets in insertion
// order.
type Model struct {
	NodeBase
	Count int
}

// NewModel creates a Model under parent.
func NewModel(parent Node, basename string, count int) *Model {
	m := &Model{}
	m.InitModel(m, parent, basename, count)
	return m
}

// InitModel initializes an embedded Model. Types embedding Model call it from
// their constructor in place of Init.
func (m *Model) InitModel(self Node, parent Node, basename string, count int) {
	if count < 0 {
		panic(fmt.Sprintf("Model: count must be >= 0, got %d", count))
	}
	m.Count = count
	m.Init(self, parent, basename)
	m.SetFunc("count", func() any { return m.Count })
	m.SetFunc("offset", func() any { return m.Offset() })
	m.OnCG(In(HookModelIdxCalculations), func(g *Generator) error {
		return g.Emit("idx_model = idx_realization - offset")
	})
}

func (m *Model) ModelBase() *Model { return m }

// Offset returns the index of the model's first element within a
// realization, or -1 if the model is not a direct child of a Simulation.
func (m *Model) Offset() int {
	s, ok := m.Parent().(*Simulation)
	if !ok {
		return -1
	}
	offset := 0
	for _, other := range s.Models() {
		if other.ModelBase() == m {
			return offset
		}
		offset += other.ModelBase().Count
	}
	return -1
}

// IdxRanges adds idx_model to the simulation's index ranges.
func (m *Model) IdxRanges() map[string]IndexRange {
	ranges := map[string]IndexRange{}
	if s, ok := Ancestor[*Simulation](m); ok {
		ranges = s.IdxRanges()
	}
	ranges["idx_model"] = IndexRange{0, m.Count}
	return ranges
}

// GenerateStepKernel emits the model's share of the loop body.
func (m *Model) GenerateStepKernel(g *Generator) error {
	self := m.Self()
	if err := TriggerStagedCGHook(self, HookModelIdxCalculations, g); err != nil {
		return err
	}
	return TriggerStagedCGHook(self, HookModelCode, g)
}

// ModelOf returns the nearest model on the path from n to the root.
func ModelOf(n Node) (*Model, bool) {
	mn, ok := Ancestor[ModelNode](n)
	if !ok {
		return nil, false
	}
	return mn.ModelBase(), true
}

// NearestIdxRanges returns the index ranges visible from n.
func NearestIdxRanges(n Node) map[string]IndexRange {
	if r, ok := Ancestor[IndexRanger](n); ok {
		return r.IdxRanges()
	}
	return map[string]IndexRange{}
}
