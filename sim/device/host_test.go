package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDType_NamesRoundTrip(t *testing.T) {
	for _, dt := range []DType{Int32, Uint32, Int64, Float32, Float64} {
		got, err := ParseDType(dt.String())
		require.NoError(t, err)
		assert.Equal(t, dt, got)
	}
	_, err := ParseDType("half")
	assert.Error(t, err)
}

func TestHostArray_SetAndGet(t *testing.T) {
	tests := []struct {
		name  string
		dtype DType
		in    float64
		want  float64
	}{
		{"float32 keeps fraction", Float32, 1.5, 1.5},
		{"float64 keeps fraction", Float64, -0.25, -0.25},
		{"int32 truncates", Int32, 2.9, 2},
		{"int32 negative", Int32, -7, -7},
		{"int64", Int64, 1 << 40, 1 << 40},
		{"uint32", Uint32, 42, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHostArray(Shape{3}, tt.dtype)
			h.SetFloat(1, tt.in)
			assert.Equal(t, tt.want, h.Float(1))
			assert.Equal(t, 0.0, h.Float(0))
		})
	}
}

func TestHostArray_Index_RowMajor(t *testing.T) {
	h := NewHostArray(Shape{2, 3, 4}, Int32)
	assert.Equal(t, 0, h.Index(0, 0, 0))
	assert.Equal(t, 4, h.Index(0, 1, 0))
	assert.Equal(t, 12+8+3, h.Index(1, 2, 3))
	assert.Panics(t, func() { h.Index(2, 0, 0) })
	assert.Panics(t, func() { h.Index(0, 0) })
}

func TestCopyBlock_PlacesLeadingBlockAtOrigin(t *testing.T) {
	// GIVEN a 2x2x3 source and a 4x3x3 destination
	src := NewHostArray(Shape{2, 2, 3}, Int32)
	for i := 0; i < src.Len(); i++ {
		src.SetInt(i, int64(i+1))
	}
	dst := NewHostArray(Shape{4, 3, 3}, Int32)

	// WHEN the full source block is copied at (2, 1, 0)
	require.NoError(t, CopyBlock(dst, []int{2, 1, 0}, src, []int{2, 2, 3}))

	// THEN every source element lands at its offset position
	for a := 0; a < 2; a++ {
		for b := 0; b < 2; b++ {
			for c := 0; c < 3; c++ {
				assert.Equal(t, src.Int(src.Index(a, b, c)), dst.Int(dst.Index(2+a, 1+b, c)))
			}
		}
	}
	// AND everything outside the region stays zero
	assert.Equal(t, int64(0), dst.Int(dst.Index(0, 0, 0)))
	assert.Equal(t, int64(0), dst.Int(dst.Index(2, 0, 0)))
}

func TestCopyBlock_PartialExtent(t *testing.T) {
	// GIVEN a source whose second axis is only partly valid
	src := HostArrayFromInts(Int32, []int64{1, 2, 3, 4})
	dst := NewHostArray(Shape{6}, Int32)

	// WHEN only two elements are copied
	require.NoError(t, CopyBlock(dst, []int{3}, src, []int{2}))

	// THEN only the leading two land
	assert.Equal(t, []int64{0, 0, 0, 1, 2, 0}, dst.Ints())
}

func TestCopyBlock_RejectsOutOfRange(t *testing.T) {
	src := NewHostArray(Shape{2, 2}, Float32)
	dst := NewHostArray(Shape{3, 2}, Float32)
	err := CopyBlock(dst, []int{2, 0}, src, []int{2, 2})
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	err = CopyBlock(NewHostArray(Shape{3, 2}, Int32), []int{0, 0}, src, []int{2, 2})
	assert.True(t, errors.Is(err, ErrShapeMismatch), "dtype mismatch must be rejected")
}

func TestHost_TracksLiveAndPeakBytes(t *testing.T) {
	// GIVEN an unlimited host device
	h := NewHost(0)

	// WHEN two buffers are allocated and one released
	a, err := h.AllocUninitialized(Shape{10}, Float32)
	require.NoError(t, err)
	b, err := h.AllocConstant(HostArrayFromFloats(Float64, []float64{1, 2}))
	require.NoError(t, err)
	require.NoError(t, h.Release(a))

	// THEN live bytes reflect only the survivor and peak holds the maximum
	assert.Equal(t, int64(16), h.LiveBytes())
	assert.Equal(t, int64(56), h.PeakBytes())
	assert.Equal(t, 1, h.LiveBuffers())
	assert.Equal(t, 2, h.Allocations())
	assert.False(t, h.Mutable(b))
}

func TestHost_OutOfMemory(t *testing.T) {
	h := NewHost(64)
	_, err := h.AllocUninitialized(Shape{10}, Float32)
	require.NoError(t, err)
	_, err = h.AllocUninitialized(Shape{10}, Float32)
	assert.True(t, errors.Is(err, ErrOutOfMemory))
	assert.Equal(t, int64(40), h.LiveBytes(), "failed allocation must not be counted")
}

func TestHost_ReleasedBufferIsUnusable(t *testing.T) {
	h := NewHost(0)
	b, err := h.AllocMutable(HostArrayFromInts(Int32, []int64{5, 6}))
	require.NoError(t, err)
	require.NoError(t, h.Release(b))

	assert.True(t, errors.Is(h.Release(b), ErrReleased))
	assert.True(t, errors.Is(h.CopyToHost(NewHostArray(Shape{2}, Int32), b), ErrReleased))
}

func TestHost_CopiesRoundTrip(t *testing.T) {
	h := NewHost(0)
	src := HostArrayFromFloats(Float32, []float64{1, 2, 3})
	b, err := h.AllocMutable(src)
	require.NoError(t, err)

	// mutating the source after allocation must not leak into the buffer
	src.SetFloat(0, 99)
	out := NewHostArray(Shape{3}, Float32)
	require.NoError(t, h.CopyToHost(out, b))
	assert.Equal(t, []float64{1, 2, 3}, out.Floats())

	require.NoError(t, Zero(h, b))
	require.NoError(t, h.CopyToHost(out, b))
	assert.Equal(t, []float64{0, 0, 0}, out.Floats())

	err = h.CopyToDevice(b, NewHostArray(Shape{4}, Float32))
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestHost_ForeignBuffer(t *testing.T) {
	h1, h2 := NewHost(0), NewHost(0)
	b, err := h1.AllocUninitialized(Shape{1}, Int32)
	require.NoError(t, err)
	assert.True(t, errors.Is(h2.Release(b), ErrForeignBuffer))
}

func TestRecordingCompiler_RecordsLaunchesPerKernel(t *testing.T) {
	// GIVEN two kernels compiled from one recorder
	rc := NewRecordingCompiler()
	even, err := rc.Compile("src", map[string]any{"a": 1})
	require.NoError(t, err)
	odd, err := rc.Compile("src", map[string]any{"a": 2})
	require.NoError(t, err)

	// WHEN they are launched alternately
	for ts := int32(0); ts < 4; ts++ {
		k := even
		if ts%2 == 1 {
			k = odd
		}
		require.NoError(t, k.Launch(ts, 0))
	}

	// THEN launches are attributed to the right kernel in order
	assert.Equal(t, []int32{0, 2}, rc.LaunchesOf(0))
	assert.Equal(t, []int32{1, 3}, rc.LaunchesOf(1))
	assert.Len(t, rc.Sources, 2)
	assert.Equal(t, 2, rc.Bindings[1]["a"])
}

func TestRecordingCompiler_InjectedFailures(t *testing.T) {
	boom := errors.New("boom")
	rc := &RecordingCompiler{CompileErr: boom}
	_, err := rc.Compile("x", nil)
	assert.ErrorIs(t, err, boom)

	rc = &RecordingCompiler{LaunchErr: func(l Launch) error {
		if l.Timestep == 1 {
			return boom
		}
		return nil
	}}
	k, err := rc.Compile("x", nil)
	require.NoError(t, err)
	require.NoError(t, k.Launch(0, 0))
	assert.ErrorIs(t, k.Launch(1, 0), boom)
	assert.Len(t, rc.Launches, 1)
}
