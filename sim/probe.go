package sim

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clegans/clegans/sim/device"
)

// Open marks a Range stop that is filled in at finalize from the enclosing
// extent (n_timesteps for time, the index range maximum for indices).
const Open = -1

// Range is a (start, stop, step) window over timesteps or indices.
type Range struct {
	Start, Stop, Step int
}

// FullRange covers the whole extent with stride 1.
func FullRange() Range { return Range{Start: 0, Stop: Open, Step: 1} }

// Count returns ceil((Stop - Start) / Step), or 0 for an empty window.
func (r Range) Count() int {
	if r.Step <= 0 || r.Stop <= r.Start {
		return 0
	}
	return (r.Stop - r.Start + r.Step - 1) / r.Step
}

// Contains reports whether v falls inside the window and on its stride.
func (r Range) Contains(v int) bool {
	return v >= r.Start && v < r.Stop && (v-r.Start)%r.Step == 0
}

func (r Range) resolve(what string, stop int) (Range, error) {
	if r.Stop == Open {
		r.Stop = stop
	}
	if r.Step == 0 {
		r.Step = 1
	}
	if r.Step < 0 || r.Start < 0 || r.Stop < r.Start {
		return r, invariantf("%s range %v is not a forward window", what, r)
	}
	return r, nil
}

// ConstrainedProbe is the base of probes active only over a window of
// timesteps and indices. The windows are resolved once, at finalize, into the
// guard conditions Constrain emits.
type ConstrainedProbe struct {
	NodeBase
	TRange Range
	// Idx is the index expression the index window applies to.
	Idx      string
	IdxRange Range

	idxMax      int
	nTimesteps  int
	constrained []bool
}

// InitConstrainedProbe initializes an embedded ConstrainedProbe with full
// windows over idx_model.
func (p *ConstrainedProbe) InitConstrainedProbe(self Node, parent Node, basename string) {
	if parent == nil {
		panic("ConstrainedProbe: parent must not be nil")
	}
	p.TRange = FullRange()
	p.Idx = "idx_model"
	p.IdxRange = FullRange()
	p.Init(self, parent, basename)

	p.SetFunc("t_start", func() any { return p.TRange.Start })
	p.SetFunc("t_stop", func() any { return p.TRange.Stop })
	p.SetFunc("t_step", func() any { return p.TRange.Step })
	p.SetFunc("idx", func() any { return p.Idx })
	p.SetFunc("idx_start", func() any { return p.IdxRange.Start })
	p.SetFunc("idx_stop", func() any { return p.IdxRange.Stop })
	p.SetFunc("idx_step", func() any { return p.IdxRange.Step })
	p.SetFunc("total_n_timesteps", func() any { return p.TotalNTimesteps() })
	p.SetFunc("n_elms", func() any { return p.NElms() })
	p.SetFunc("n_realizations", func() any { return p.NRealizations() })

	p.OnLifecycle(On(HookFinalize), p.resolveWindows)
}

func (p *ConstrainedProbe) resolveWindows() error {
	s, ok := Ancestor[*Simulation](p)
	if !ok {
		return invariantf("probe %s is not part of a simulation", p.Name())
	}
	ranges := NearestIdxRanges(p)
	idx, ok := ranges[p.Idx]
	if !ok {
		return invariantf("probe %s: unknown index %q", p.Name(), p.Idx)
	}
	var err error
	if p.TRange, err = p.TRange.resolve("timestep", s.NTimesteps); err != nil {
		return err
	}
	if p.IdxRange, err = p.IdxRange.resolve(p.Idx, idx.End); err != nil {
		return err
	}
	p.idxMax = idx.End
	p.nTimesteps = s.NTimesteps
	return nil
}

// TotalNTimesteps is the number of timesteps the window matches.
func (p *ConstrainedProbe) TotalNTimesteps() int { return p.TRange.Count() }

// NElms is the number of indices the window matches.
func (p *ConstrainedProbe) NElms() int { return p.IdxRange.Count() }

// NRealizations is the number of realizations a probe buffer holds.
func (p *ConstrainedProbe) NRealizations() int {
	if s, ok := Ancestor[*Simulation](p); ok {
		return s.NRealizationsPerDivisionMax
	}
	return 0
}

// Conditions returns the guard conditions for the non-trivial parts of the
// windows, unsubstituted.
func (p *ConstrainedProbe) Conditions() []string {
	var conds []string
	if p.TRange.Start > 0 {
		conds = append(conds, "timestep >= t_start")
	}
	if p.TRange.Stop != p.nTimesteps {
		conds = append(conds, "timestep < t_stop")
	}
	if p.TRange.Step != 1 {
		conds = append(conds, "(timestep - t_start) % t_step == 0")
	}
	if p.IdxRange.Start > 0 {
		conds = append(conds, "idx >= idx_start")
	}
	if p.IdxRange.Stop != p.idxMax {
		conds = append(conds, "idx < idx_stop")
	}
	if p.IdxRange.Step != 1 {
		conds = append(conds, "(idx - idx_start) % idx_step == 0")
	}
	return conds
}

// Constrain opens a conditional block for the probe's guard conditions, if
// there are any. Every Constrain must be paired with Unconstrain.
func (p *ConstrainedProbe) Constrain(g *Generator) error {
	conds := p.Conditions()
	p.constrained = append(p.constrained, len(conds) > 0)
	if len(conds) == 0 {
		return nil
	}
	if err := g.EmitFrom(p.Self(), g.Dialect.Condition(true, strings.Join(conds, g.Dialect.And))); err != nil {
		return err
	}
	g.Tab()
	return nil
}

// Unconstrain closes the block opened by the matching Constrain.
func (p *ConstrainedProbe) Unconstrain(g *Generator) {
	n := len(p.constrained)
	if n == 0 {
		panic(fmt.Sprintf("ConstrainedProbe %s: Unconstrain without Constrain", p.Name()))
	}
	opened := p.constrained[n-1]
	p.constrained = p.constrained[:n-1]
	if opened {
		g.Untab()
	}
}

// BufferedProbe is implemented by every type embedding PerElementProbe.
// Probes that record something other than one timepoint per matching
// timestep override Timepoints and TimepointsElapsed.
type BufferedProbe interface {
	Node
	PerElement() *PerElementProbe
	// Timepoints is the number of timepoints recorded over the whole run.
	Timepoints() int
	// TimepointsElapsed returns how many timepoints are complete once
	// timestep has run, or 0 if none completes at timestep.
	TimepointsElapsed(timestep int) int
}

// PerElementProbe records into a (buffer_timepoints x realizations x
// elements) device buffer and fires on_buffer_full on its subtree each time
// buffer_timepoints matching timesteps have elapsed.
type PerElementProbe struct {
	ConstrainedProbe
	// BufferTimepoints is the buffer depth. Zero means TotalNTimesteps.
	BufferTimepoints int
	DType            device.DType

	allocation *MemoryNode
}

// InitPerElementProbe initializes an embedded PerElementProbe.
func (p *PerElementProbe) InitPerElementProbe(self Node, parent Node, basename string) {
	p.InitConstrainedProbe(self, parent, basename)
	p.SetFunc("buffer_timepoints", func() any { return p.BufferTimepoints })
	p.SetFunc("allocation", func() any {
		if p.allocation == nil {
			return nil
		}
		return p.allocation
	})
	p.Set("buffer_idx_expression", "(timestep_expr*n_realizations + realization_expr)*n_elms + idx_expr")
	p.Set("realization_expr", "realization_num - realization_start")
	p.Set("timestep_expr", "(timestep - t_start)/t_step")
	p.Set("idx_expr", "(idx - idx_start)/idx_step")

	p.OnLifecycle(On(HookFinalize), p.inferBuffer)
	p.OnTimestep(HookTimestepComplete, p.timestepComplete)
}

func (p *PerElementProbe) PerElement() *PerElementProbe { return p }

// NewPerElementProbe creates a probe with no recording code of its own;
// children or other nodes write into its allocation.
func NewPerElementProbe(parent Node, basename string, dtype device.DType) *PerElementProbe {
	p := &PerElementProbe{DType: dtype}
	p.InitPerElementProbe(p, parent, basename)
	return p
}

func (p *PerElementProbe) buffered() BufferedProbe {
	if bp, ok := p.Self().(BufferedProbe); ok {
		return bp
	}
	return p
}

func (p *PerElementProbe) inferBuffer() error {
	total := p.buffered().Timepoints()
	if total <= 0 {
		return invariantf("probe %s: timestep window %v matches no timesteps", p.Name(), p.TRange)
	}
	if p.BufferTimepoints == 0 {
		p.BufferTimepoints = total
	}
	if p.BufferTimepoints < 0 || total%p.BufferTimepoints != 0 {
		return invariantf("probe %s: buffer_timepoints %d must divide %d recorded timesteps",
			p.Name(), p.BufferTimepoints, total)
	}
	if p.BufferTimepoints != total {
		a, _ := p.Get("timestep_expr")
		expr, _ := a.Value.(string)
		p.Set("timestep_expr", fmt.Sprintf("(%s) %% buffer_timepoints", expr))
	}
	p.allocation = NewAllocation(p.Self(), "buffer", p.Shape(), p.DType)
	return nil
}

// Shape is (buffer_timepoints, n_realizations_per_division_max, n_elms).
func (p *PerElementProbe) Shape() device.Shape {
	return device.Shape{p.BufferTimepoints, p.NRealizations(), p.NElms()}
}

// Allocation returns the probe buffer, or nil before finalize.
func (p *PerElementProbe) Allocation() *MemoryNode { return p.allocation }

// TimestepsElapsed returns how many matching timesteps have completed once
// timestep has, or 0 if timestep is outside the window.
func (p *PerElementProbe) TimestepsElapsed(timestep int) int {
	if !p.TRange.Contains(timestep) {
		return 0
	}
	return (timestep-p.TRange.Start)/p.TRange.Step + 1
}

// Timepoints defaults to one timepoint per matching timestep.
func (p *PerElementProbe) Timepoints() int { return p.TotalNTimesteps() }

// TimepointsElapsed defaults to TimestepsElapsed.
func (p *PerElementProbe) TimepointsElapsed(timestep int) int { return p.TimestepsElapsed(timestep) }

func (p *PerElementProbe) timestepComplete(ti *TimestepInfo) error {
	elapsed := p.buffered().TimepointsElapsed(ti.Timestep)
	if elapsed == 0 || elapsed%p.BufferTimepoints != 0 {
		return nil
	}
	logrus.Tracef("[timestep %07d] %s buffer full after %d timepoints", ti.Timestep, p.Name(), elapsed)
	if s, ok := Ancestor[*Simulation](p); ok {
		s.Metrics().BufferFull(p.Name())
	}
	return TriggerBufferFull(p.Self(), ti, elapsed)
}

// ExpressionProbe records the value of Expression for each element in the
// window, during the code generation hook Hook.
type ExpressionProbe struct {
	PerElementProbe
	Expression string
	Hook       HookName
}

// NewExpressionProbe creates a probe recording expression during hook.
func NewExpressionProbe(parent Node, basename string, expression string, hook HookName) *ExpressionProbe {
	p := &ExpressionProbe{Expression: expression, Hook: hook}
	p.DType = device.Float32
	p.InitPerElementProbe(p, parent, basename)
	p.SetFunc("expression", func() any { return p.Expression })
	p.OnLifecycle(On(HookFinalize), func() error {
		if p.Expression == "" {
			return invariantf("expression probe %s has no expression", p.Name())
		}
		if p.Hook == "" {
			return invariantf("expression probe %s has no hook", p.Name())
		}
		p.OnCG(p.Hook, p.insertCode)
		return nil
	})
	return p
}

func (p *ExpressionProbe) insertCode(g *Generator) error {
	if err := p.Constrain(g); err != nil {
		return err
	}
	if err := g.EmitFrom(p, "allocation[buffer_idx_expression] = expression"); err != nil {
		return err
	}
	p.Unconstrain(g)
	return nil
}
