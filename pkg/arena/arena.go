// Package arena implements a fixed-size bump allocator.
//
// An Arena hands out memory from one buffer allocated up front. Allocation is
// a pointer bump; there is no per-allocation metadata and no individual free.
// The only way to reclaim memory is Reset, which invalidates every slice
// returned since the previous reset.
//
// The buffer is backed by []uint64 so every allocation is 8-byte aligned and
// can be reinterpreted as any pointer-free value.
//
// An Arena is not safe for concurrent use.
package arena

import (
	"errors"
	"fmt"
	"unsafe"
)

// Alignment is the granularity of every allocation.
const Alignment = 8

// ErrOutOfMemory is returned when the arena cannot satisfy a request.
var ErrOutOfMemory = errors.New("arena: out of memory")

// ErrInvalidSize is returned for negative sizes.
var ErrInvalidSize = errors.New("arena: invalid size")

// Arena is a bump allocator over a single pre-sized buffer.
type Arena struct {
	words       []uint64
	buf         []byte
	offset      int
	allocations int
	generation  uint64
}

// Stats is a point-in-time view of arena usage.
type Stats struct {
	Capacity    int    `json:"capacity" doc:"Total bytes in the arena"`
	Used        int    `json:"used" doc:"Bytes handed out since the last reset"`
	Available   int    `json:"available" doc:"Bytes still available"`
	Allocations int    `json:"allocations" doc:"Allocations since the last reset"`
	Generation  uint64 `json:"generation" doc:"Number of resets performed"`
}

// New creates an arena of size bytes, rounded up to the alignment.
func New(size int) *Arena {
	if size < 0 {
		size = 0
	}
	n := AlignUp(size) / Alignment
	a := &Arena{words: make([]uint64, n)}
	if n > 0 {
		a.buf = unsafe.Slice((*byte)(unsafe.Pointer(&a.words[0])), n*Alignment)
	}
	return a
}

// AlignUp rounds n up to the next multiple of Alignment.
func AlignUp(n int) int {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

// Alloc returns n bytes of zeroed memory. The returned slice has its capacity
// clipped to n so appends can never spill into a neighbouring allocation.
func (a *Arena) Alloc(n int) ([]byte, error) {
	start, err := a.bump(n)
	if err != nil {
		return nil, err
	}
	b := a.buf[start : start+n : start+n]
	clear(b)
	return b, nil
}

// Reserve charges n bytes against the arena without handing out memory.
// It is used to budget values that hold Go pointers and therefore have to
// live on the garbage-collected heap.
func (a *Arena) Reserve(n int) error {
	_, err := a.bump(n)
	return err
}

func (a *Arena) bump(n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}
	// Available is a multiple of Alignment, so checking n before rounding
	// up keeps AlignUp from overflowing.
	if n > len(a.buf)-a.offset {
		return 0, fmt.Errorf("%w: requested %d bytes, %d of %d available",
			ErrOutOfMemory, n, len(a.buf)-a.offset, len(a.buf))
	}
	start := a.offset
	a.offset += AlignUp(n)
	a.allocations++
	return start, nil
}

// Reset reclaims the whole buffer. Every slice previously returned by Alloc
// becomes invalid; the caller guarantees none is still referenced.
func (a *Arena) Reset() {
	a.offset = 0
	a.allocations = 0
	a.generation++
}

// Release drops the backing buffer. The arena reports zero capacity afterwards.
func (a *Arena) Release() {
	a.words = nil
	a.buf = nil
	a.Reset()
}

// Cap returns the arena size in bytes.
func (a *Arena) Cap() int { return len(a.buf) }

// Used returns the bytes handed out since the last reset.
func (a *Arena) Used() int { return a.offset }

// Available returns the bytes that can still be allocated.
func (a *Arena) Available() int { return len(a.buf) - a.offset }

// Allocations returns the number of allocations since the last reset.
func (a *Arena) Allocations() int { return a.allocations }

// Generation returns the number of resets performed so far.
func (a *Arena) Generation() uint64 { return a.generation }

// Stats returns a snapshot of the arena counters.
func (a *Arena) Stats() Stats {
	return Stats{
		Capacity:    a.Cap(),
		Used:        a.Used(),
		Available:   a.Available(),
		Allocations: a.allocations,
		Generation:  a.generation,
	}
}
