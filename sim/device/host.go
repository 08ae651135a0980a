package device

import (
	"fmt"
)

// Host is an in-memory Device. Buffers are host arrays; copies are byte
// moves and the queue is always idle. It tracks live and peak bytes so that
// memory summaries and out-of-memory behavior can be exercised without a GPU.
//
// Thread-safety: NOT thread-safe. Must be called from a single goroutine.
type Host struct {
	// MaxBytes caps the live allocation total. Zero means unlimited.
	MaxBytes int64

	live      map[*hostBuffer]struct{}
	liveBytes int64
	peakBytes int64
	allocs    int
}

// NewHost creates a Host device with the given capacity (0 = unlimited).
func NewHost(maxBytes int64) *Host {
	if maxBytes < 0 {
		panic(fmt.Sprintf("Host: MaxBytes must be >= 0, got %d", maxBytes))
	}
	return &Host{MaxBytes: maxBytes, live: make(map[*hostBuffer]struct{})}
}

type hostBuffer struct {
	owner    *Host
	arr      *HostArray
	mutable  bool
	released bool
}

func (b *hostBuffer) Shape() Shape { return b.arr.Shape() }
func (b *hostBuffer) DType() DType { return b.arr.DType() }
func (b *hostBuffer) Size() int64  { return b.arr.Size() }

func (h *Host) Name() string { return "host" }

// LiveBytes returns the bytes held by unreleased buffers.
func (h *Host) LiveBytes() int64 { return h.liveBytes }

// PeakBytes returns the high-water mark of LiveBytes.
func (h *Host) PeakBytes() int64 { return h.peakBytes }

// LiveBuffers returns the number of unreleased buffers.
func (h *Host) LiveBuffers() int { return len(h.live) }

// Allocations returns the number of successful allocations so far.
func (h *Host) Allocations() int { return h.allocs }

func (h *Host) AllocUninitialized(shape Shape, dtype DType) (Buffer, error) {
	return h.alloc(NewHostArray(shape, dtype), true)
}

func (h *Host) AllocConstant(src *HostArray) (Buffer, error) {
	return h.alloc(src.Clone(), false)
}

func (h *Host) AllocMutable(src *HostArray) (Buffer, error) {
	return h.alloc(src.Clone(), true)
}

func (h *Host) alloc(arr *HostArray, mutable bool) (Buffer, error) {
	size := arr.Size()
	if h.MaxBytes > 0 && h.liveBytes+size > h.MaxBytes {
		return nil, fmt.Errorf("allocating %d bytes with %d of %d in use: %w",
			size, h.liveBytes, h.MaxBytes, ErrOutOfMemory)
	}
	b := &hostBuffer{owner: h, arr: arr, mutable: mutable}
	h.live[b] = struct{}{}
	h.liveBytes += size
	if h.liveBytes > h.peakBytes {
		h.peakBytes = h.liveBytes
	}
	h.allocs++
	return b, nil
}

func (h *Host) own(b Buffer) (*hostBuffer, error) {
	hb, ok := b.(*hostBuffer)
	if !ok || hb.owner != h {
		return nil, ErrForeignBuffer
	}
	if hb.released {
		return nil, ErrReleased
	}
	return hb, nil
}

func (h *Host) CopyToHost(dst *HostArray, src Buffer) error {
	hb, err := h.own(src)
	if err != nil {
		return fmt.Errorf("copy to host: %w", err)
	}
	if dst.DType() != hb.DType() || dst.Size() != hb.Size() {
		return fmt.Errorf("copy to host %v/%s from %v/%s: %w",
			dst.Shape(), dst.DType(), hb.Shape(), hb.DType(), ErrShapeMismatch)
	}
	copy(dst.data, hb.arr.data)
	return nil
}

// CopyToDevice overwrites dst. Constant buffers may be written from the host;
// only kernels are barred from writing them.
func (h *Host) CopyToDevice(dst Buffer, src *HostArray) error {
	hb, err := h.own(dst)
	if err != nil {
		return fmt.Errorf("copy to device: %w", err)
	}
	if src.DType() != hb.DType() || src.Size() != hb.Size() {
		return fmt.Errorf("copy to device %v/%s from %v/%s: %w",
			hb.Shape(), hb.DType(), src.Shape(), src.DType(), ErrShapeMismatch)
	}
	copy(hb.arr.data, src.data)
	return nil
}

func (h *Host) Release(b Buffer) error {
	hb, err := h.own(b)
	if err != nil {
		return fmt.Errorf("release: %w", err)
	}
	hb.released = true
	delete(h.live, hb)
	h.liveBytes -= hb.Size()
	return nil
}

func (h *Host) BlockUntilIdle() error { return nil }

// Contents returns the backing array of a host buffer. Kernels run by a host
// backend use it to read and write buffer contents in place.
func (h *Host) Contents(b Buffer) (*HostArray, error) {
	hb, err := h.own(b)
	if err != nil {
		return nil, err
	}
	return hb.arr, nil
}

// Mutable reports whether kernels may write the buffer.
func (h *Host) Mutable(b Buffer) bool {
	hb, err := h.own(b)
	return err == nil && hb.mutable
}
