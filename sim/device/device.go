// Package device defines the boundary between the simulation engine and the
// compute device that executes generated kernels.
//
// The engine never talks to a driver directly. It consumes two small
// capability sets:
//   - Device: buffer allocation, host/device copies, release, queue sync
//   - Compiler: turns generated kernel source plus a constants mapping into a
//     reusable Kernel callable with (timestep, realization_start)
//
// Host is an in-memory Device used for dry runs and tests. RecordingCompiler
// produces kernels that only record their launches.
package device

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory is returned when an allocation exceeds the device capacity.
	ErrOutOfMemory = errors.New("device: out of memory")
	// ErrReleased is returned when a released buffer is used.
	ErrReleased = errors.New("device: buffer already released")
	// ErrShapeMismatch is returned when a copy's source and destination disagree.
	ErrShapeMismatch = errors.New("device: shape or dtype mismatch")
	// ErrForeignBuffer is returned when a buffer from another device is passed in.
	ErrForeignBuffer = errors.New("device: buffer not owned by this device")
)

// DType is the element type of a buffer.
type DType int

const (
	Int32 DType = iota
	Uint32
	Int64
	Float32
	Float64
)

var dtypeNames = map[DType]string{
	Int32:   "int",
	Uint32:  "uint",
	Int64:   "long",
	Float32: "float",
	Float64: "double",
}

// String returns the kernel-language name of the type.
func (d DType) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

// Size returns the width of one element in bytes.
func (d DType) Size() int {
	switch d {
	case Int64, Float64:
		return 8
	default:
		return 4
	}
}

// IsFloat reports whether the type holds floating point values.
func (d DType) IsFloat() bool {
	return d == Float32 || d == Float64
}

// ParseDType maps a kernel-language type name to a DType.
func ParseDType(name string) (DType, error) {
	for dt, n := range dtypeNames {
		if n == name {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("unknown dtype %q; valid: int, uint, long, float, double", name)
}

// Shape is the extent of each buffer dimension.
type Shape []int

// Len returns the number of elements described by the shape.
func (s Shape) Len() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether both shapes have identical extents.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	return fmt.Sprint([]int(s))
}

// Buffer is a device-resident allocation. Implementations must be
// comparable; the engine uses buffers as map keys.
type Buffer interface {
	Shape() Shape
	DType() DType
	// Size returns the allocation size in bytes.
	Size() int64
}

// Device is the capability set the engine needs from a compute device.
type Device interface {
	Name() string
	AllocUninitialized(shape Shape, dtype DType) (Buffer, error)
	AllocConstant(src *HostArray) (Buffer, error)
	AllocMutable(src *HostArray) (Buffer, error)
	CopyToHost(dst *HostArray, src Buffer) error
	CopyToDevice(dst Buffer, src *HostArray) error
	Release(b Buffer) error
	BlockUntilIdle() error
}

// Kernel is a compiled step function. It must be reusable across launches.
type Kernel interface {
	Launch(timestep, realizationStart int32) error
}

// Compiler binds kernel source against a constants mapping.
type Compiler interface {
	Compile(source string, constants map[string]any) (Kernel, error)
}

// KernelFunc adapts an ordinary function to the Kernel interface.
type KernelFunc func(timestep, realizationStart int32) error

func (f KernelFunc) Launch(timestep, realizationStart int32) error {
	return f(timestep, realizationStart)
}

// CompilerFunc adapts an ordinary function to the Compiler interface.
type CompilerFunc func(source string, constants map[string]any) (Kernel, error)

func (f CompilerFunc) Compile(source string, constants map[string]any) (Kernel, error) {
	return f(source, constants)
}

// Zero overwrites every element of b with zero.
func Zero(d Device, b Buffer) error {
	return d.CopyToDevice(b, NewHostArray(b.Shape(), b.DType()))
}
