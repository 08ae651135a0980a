package sim

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/clegans/clegans/sim/device"
)

// MemoryKind selects how a MemoryNode's buffer is created on the device.
type MemoryKind int

const (
	// KindAllocation is uninitialized device memory.
	KindAllocation MemoryKind = iota
	// KindConstantArray is read-only memory copied from a host array.
	KindConstantArray
	// KindArray is read-write memory copied from a host array.
	KindArray
)

func (k MemoryKind) String() string {
	switch k {
	case KindAllocation:
		return "allocation"
	case KindConstantArray:
		return "constant"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MemoryNode is a declarative buffer request. Its buffer is realized once per
// allocate/release cycle, on first access, and registered in the
// simulation's constants under the node's name.
type MemoryNode struct {
	NodeBase
	Kind    MemoryKind
	Shape   device.Shape
	DType   device.DType
	Initial *device.HostArray

	buffer device.Buffer
}

// NewAllocation declares uninitialized memory of the given shape.
func NewAllocation(parent Node, basename string, shape device.Shape, dtype device.DType) *MemoryNode {
	return newMemoryNode(parent, basename, KindAllocation, shape, dtype, nil)
}

// NewConstantArray declares read-only memory holding a copy of src.
func NewConstantArray(parent Node, basename string, src *device.HostArray) *MemoryNode {
	return newMemoryNode(parent, basename, KindConstantArray, src.Shape(), src.DType(), src)
}

// NewArray declares read-write memory holding a copy of src.
func NewArray(parent Node, basename string, src *device.HostArray) *MemoryNode {
	return newMemoryNode(parent, basename, KindArray, src.Shape(), src.DType(), src)
}

func newMemoryNode(parent Node, basename string, kind MemoryKind, shape device.Shape, dtype device.DType, src *device.HostArray) *MemoryNode {
	if parent == nil {
		panic("MemoryNode: parent must not be nil")
	}
	m := &MemoryNode{Kind: kind, Shape: append(device.Shape(nil), shape...), DType: dtype, Initial: src}
	m.Init(m, parent, basename)
	m.OnLifecycle(On(HookAllocate), func() error {
		_, err := m.Buffer()
		return err
	})
	m.OnLifecycle(On(HookRelease), func() error {
		m.buffer = nil
		return nil
	})
	m.OnMemoryReport(func(r *MemoryReport) error {
		b, err := m.Buffer()
		if err != nil {
			return err
		}
		r.Add(MemoryEntry{Name: m.Name(), Kind: m.Kind, Bytes: b.Size(), Shape: b.Shape(), DType: b.DType()})
		return nil
	})
	return m
}

// CGExpression substitutes the node as the identifier its buffer is bound to.
func (m *MemoryNode) CGExpression() string { return m.Name() }

// Realized reports whether the buffer exists in the current cycle.
func (m *MemoryNode) Realized() bool { return m.buffer != nil }

// Buffer realizes the buffer on first call and returns it.
func (m *MemoryNode) Buffer() (device.Buffer, error) {
	if m.buffer != nil {
		return m.buffer, nil
	}
	s, ok := Ancestor[*Simulation](m)
	if !ok {
		return nil, invariantf("memory node %s is not part of a simulation", m.Name())
	}
	var (
		b   device.Buffer
		err error
	)
	dev := s.Device()
	switch m.Kind {
	case KindAllocation:
		b, err = dev.AllocUninitialized(m.Shape, m.DType)
	case KindConstantArray:
		b, err = dev.AllocConstant(m.Initial)
	case KindArray:
		src := m.Initial
		if src == nil {
			src = device.NewHostArray(m.Shape, m.DType)
		}
		b, err = dev.AllocMutable(src)
	default:
		return nil, fmt.Errorf("memory node %s: unknown kind %v", m.Name(), m.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("realizing %s %v %s on %s: %w", m.Name(), m.Shape, m.DType, dev.Name(), err)
	}
	m.buffer = b
	s.Constants[m.Name()] = b
	logrus.Debugf("realized %s %s %v (%d bytes)", m.Kind, m.Name(), m.Shape, b.Size())
	return b, nil
}

// MemoryEntry describes one realized buffer.
type MemoryEntry struct {
	Name  string
	Kind  MemoryKind
	Bytes int64
	Shape device.Shape
	DType device.DType
}

// MemoryReport collects entries from the memory report hook.
type MemoryReport struct {
	Entries []MemoryEntry
}

func (r *MemoryReport) Add(e MemoryEntry) { r.Entries = append(r.Entries, e) }

// Total returns the sum of all entry sizes in bytes.
func (r *MemoryReport) Total() int64 {
	var total int64
	for _, e := range r.Entries {
		total += e.Bytes
	}
	return total
}

const mib = 1024.0 * 1024.0

// Print writes one line per buffer followed by the total.
func (r *MemoryReport) Print(w io.Writer, deviceName string) {
	fmt.Fprintf(w, "=== Memory summary for simulation running on %s ===\n", deviceName)
	for _, e := range r.Entries {
		fmt.Fprintf(w, "%40s: %7.2f MB [%v x %s]\n", e.Name, float64(e.Bytes)/mib, e.Shape, e.DType)
	}
	fmt.Fprintf(w, "%40s: %7.2f MB\n", "TOTAL", float64(r.Total())/mib)
}
