package sim

import (
	"fmt"
)

// Partitioner slices [minStart, maxEnd) of an index variable into regions and
// emits one branch of an if/elif chain per non-empty region. Regions must be
// supplied in order and tile the range exactly.
type Partitioner struct {
	g        *Generator
	variable string
	minStart int
	maxEnd   int
	next     int
	branches int
	closed   bool
}

// NewPartitioner starts a partition of variable over [minStart, maxEnd).
func NewPartitioner(g *Generator, variable string, minStart, maxEnd int) *Partitioner {
	if maxEnd < minStart {
		panic(fmt.Sprintf("NewPartitioner: maxEnd %d < minStart %d", maxEnd, minStart))
	}
	return &Partitioner{g: g, variable: variable, minStart: minStart, maxEnd: maxEnd, next: minStart}
}

// Next emits the region [start, end) guarded by its range condition, with
// code producing the branch body. Empty regions emit nothing.
func (p *Partitioner) Next(start, end int, code func(g *Generator) error) error {
	if p.closed {
		return fmt.Errorf("partition of %s already closed: %w", p.variable, ErrNonContiguous)
	}
	if start != p.next {
		return fmt.Errorf("region [%d, %d) of %s does not start at %d: %w", start, end, p.variable, p.next, ErrNonContiguous)
	}
	if end < start || end > p.maxEnd {
		return fmt.Errorf("region [%d, %d) of %s outside [%d, %d): %w", start, end, p.variable, p.minStart, p.maxEnd, ErrNonContiguous)
	}
	p.next = end
	if start == end {
		return nil
	}
	cond := p.g.Dialect.Range(p.variable, start, end)
	p.g.Line(p.g.Dialect.Condition(p.branches == 0, cond))
	p.branches++
	p.g.Tab()
	defer p.g.Untab()
	before := p.g.Len()
	if err := code(p.g); err != nil {
		return err
	}
	if p.g.Len() == before {
		p.g.Line(p.g.Dialect.Pass)
	}
	return nil
}

// Close checks that the regions covered the whole range.
func (p *Partitioner) Close() error {
	p.closed = true
	if p.next != p.maxEnd {
		return fmt.Errorf("regions of %s stop at %d, range ends at %d: %w", p.variable, p.next, p.maxEnd, ErrNonContiguous)
	}
	return nil
}

// Branches returns the number of branches emitted so far.
func (p *Partitioner) Branches() int { return p.branches }
