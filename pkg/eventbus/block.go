package eventbus

import (
	"fmt"
	"unsafe"

	"github.com/smazurov/framebus/pkg/arena"
)

// block is a fixed-capacity run of records carved out of the payload arena.
// Only the header lives on the Go heap; record storage is arena memory.
type block[T any] struct {
	base     unsafe.Pointer
	stride   uintptr
	count    int
	capacity int
	next     *block[T]
}

// recordStride is sizeof(T) rounded up to the arena alignment. Zero-sized
// types still take one aligned slot so every record has its own address.
func recordStride[T any]() uintptr {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		size = 1
	}
	return uintptr(arena.AlignUp(size))
}

// newBlock allocates storage for up to capacity records. When the arena
// cannot hold a full block it hands out the largest block that still fits at
// least one record.
func newBlock[T any](a *arena.Arena, stride uintptr, capacity int) (*block[T], error) {
	fit := a.Available() / int(stride)
	if fit == 0 {
		return nil, fmt.Errorf("%w: %d bytes left, record needs %d",
			arena.ErrOutOfMemory, a.Available(), stride)
	}
	capacity = min(capacity, fit)
	mem, err := a.Alloc(capacity * int(stride))
	if err != nil {
		return nil, err
	}
	return &block[T]{
		base:     unsafe.Pointer(unsafe.SliceData(mem)),
		stride:   stride,
		capacity: capacity,
	}, nil
}

func (b *block[T]) full() bool {
	return b.count >= b.capacity
}

func (b *block[T]) slot(i int) *T {
	return (*T)(unsafe.Add(b.base, uintptr(i)*b.stride))
}

// alloc reserves the next slot.
func (b *block[T]) alloc() *T {
	p := b.slot(b.count)
	b.count++
	return p
}

// reverseChain flips a newest-first chain into arrival order.
func reverseChain[T any](head *block[T]) *block[T] {
	var prev *block[T]
	for head != nil {
		next := head.next
		head.next = prev
		prev = head
		head = next
	}
	return prev
}
