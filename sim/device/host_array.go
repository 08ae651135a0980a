package device

import (
	"encoding/binary"
	"fmt"
	"math"
)

// HostArray is a dense row-major array in host memory. Elements are stored
// little-endian in the width of their DType so that copies to and from a
// device are plain byte moves.
type HostArray struct {
	shape Shape
	dtype DType
	data  []byte
}

// NewHostArray allocates a zero-filled host array.
func NewHostArray(shape Shape, dtype DType) *HostArray {
	s := append(Shape(nil), shape...)
	return &HostArray{
		shape: s,
		dtype: dtype,
		data:  make([]byte, s.Len()*dtype.Size()),
	}
}

// HostArrayFromFloats builds a one-dimensional array from float values.
func HostArrayFromFloats(dtype DType, values []float64) *HostArray {
	h := NewHostArray(Shape{len(values)}, dtype)
	for i, v := range values {
		h.SetFloat(i, v)
	}
	return h
}

// HostArrayFromInts builds a one-dimensional array from integer values.
func HostArrayFromInts(dtype DType, values []int64) *HostArray {
	h := NewHostArray(Shape{len(values)}, dtype)
	for i, v := range values {
		h.SetInt(i, v)
	}
	return h
}

func (h *HostArray) Shape() Shape  { return h.shape }
func (h *HostArray) DType() DType  { return h.dtype }
func (h *HostArray) Len() int      { return h.shape.Len() }
func (h *HostArray) Bytes() []byte { return h.data }

// Size returns the array size in bytes.
func (h *HostArray) Size() int64 { return int64(len(h.data)) }

// Clone returns a deep copy.
func (h *HostArray) Clone() *HostArray {
	c := NewHostArray(h.shape, h.dtype)
	copy(c.data, h.data)
	return c
}

// Index converts a multi-dimensional index into a flat element offset.
func (h *HostArray) Index(idx ...int) int {
	if len(idx) != len(h.shape) {
		panic(fmt.Sprintf("HostArray: index rank %d does not match shape %v", len(idx), h.shape))
	}
	flat := 0
	for d, i := range idx {
		if i < 0 || i >= h.shape[d] {
			panic(fmt.Sprintf("HostArray: index %v out of range for shape %v", idx, h.shape))
		}
		flat = flat*h.shape[d] + i
	}
	return flat
}

// Float reads element i (flat offset) as a float64.
func (h *HostArray) Float(i int) float64 {
	off := i * h.dtype.Size()
	switch h.dtype {
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(h.data[off:])))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(h.data[off:]))
	default:
		return float64(h.Int(i))
	}
}

// SetFloat writes element i (flat offset), converting to the array's dtype.
func (h *HostArray) SetFloat(i int, v float64) {
	off := i * h.dtype.Size()
	switch h.dtype {
	case Float32:
		binary.LittleEndian.PutUint32(h.data[off:], math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(h.data[off:], math.Float64bits(v))
	default:
		h.SetInt(i, int64(v))
	}
}

// Int reads element i (flat offset) as an int64.
func (h *HostArray) Int(i int) int64 {
	off := i * h.dtype.Size()
	switch h.dtype {
	case Int32:
		return int64(int32(binary.LittleEndian.Uint32(h.data[off:])))
	case Uint32:
		return int64(binary.LittleEndian.Uint32(h.data[off:]))
	case Int64:
		return int64(binary.LittleEndian.Uint64(h.data[off:]))
	default:
		return int64(h.Float(i))
	}
}

// SetInt writes element i (flat offset), converting to the array's dtype.
func (h *HostArray) SetInt(i int, v int64) {
	off := i * h.dtype.Size()
	switch h.dtype {
	case Int32, Uint32:
		binary.LittleEndian.PutUint32(h.data[off:], uint32(v))
	case Int64:
		binary.LittleEndian.PutUint64(h.data[off:], uint64(v))
	default:
		h.SetFloat(i, float64(v))
	}
}

// Floats returns every element as float64 in flat order.
func (h *HostArray) Floats() []float64 {
	out := make([]float64, h.Len())
	for i := range out {
		out[i] = h.Float(i)
	}
	return out
}

// Ints returns every element as int64 in flat order.
func (h *HostArray) Ints() []int64 {
	out := make([]int64, h.Len())
	for i := range out {
		out[i] = h.Int(i)
	}
	return out
}

// CopyBlock copies the leading block of src with the given extent into dst
// starting at origin. Ranks of dst, src, origin and extent must agree and the
// dtypes must match.
func CopyBlock(dst *HostArray, origin []int, src *HostArray, extent []int) error {
	rank := len(dst.shape)
	if dst.dtype != src.dtype || len(src.shape) != rank || len(origin) != rank || len(extent) != rank {
		return fmt.Errorf("copy block %v into %v: %w", src.shape, dst.shape, ErrShapeMismatch)
	}
	for d := 0; d < rank; d++ {
		if extent[d] < 0 || extent[d] > src.shape[d] || origin[d] < 0 || origin[d]+extent[d] > dst.shape[d] {
			return fmt.Errorf("copy block extent %v at %v from %v into %v: %w",
				extent, origin, src.shape, dst.shape, ErrShapeMismatch)
		}
	}
	if rank == 0 {
		copy(dst.data, src.data)
		return nil
	}
	size := dst.dtype.Size()
	srcIdx := make([]int, rank)
	dstIdx := make([]int, rank)
	var walk func(d int)
	walk = func(d int) {
		if d == rank-1 {
			for k := 0; k < rank-1; k++ {
				dstIdx[k] = origin[k] + srcIdx[k]
			}
			srcIdx[d], dstIdx[d] = 0, origin[d]
			s := flatOffset(src.shape, srcIdx) * size
			t := flatOffset(dst.shape, dstIdx) * size
			copy(dst.data[t:t+extent[d]*size], src.data[s:s+extent[d]*size])
			return
		}
		for i := 0; i < extent[d]; i++ {
			srcIdx[d] = i
			walk(d + 1)
		}
	}
	walk(0)
	return nil
}

func flatOffset(shape Shape, idx []int) int {
	flat := 0
	for d, i := range idx {
		flat = flat*shape[d] + i
	}
	return flat
}
