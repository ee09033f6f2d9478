package arena

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/ehrlich-b/jbpfio/internal/constants"
)

// Heap is a segregated free-list allocator carved out of a single Mapping.
// The C original binds mimalloc to the mapped region via
// mi_heap_new_in_arena; mimalloc has no Go port, and nothing in the
// retrieved example pack provides an arena-backed allocator, so this
// implements the same segregated-free-list strategy mimalloc itself uses
// (an array of free lists, one per size class, carved from a bump-pointer
// region) directly -- see DESIGN.md for the justification.
//
// A Heap is pinned to the owner that created it: every Alloc/Free/Realloc
// call after jbpf_calloc_ctx et al. carries the originating thread's
// identity so a mismatched caller is rejected, matching the original's
// pthread_equal(mem_ctx->mem_ctx_tid, pthread_self()) check. Here "thread
// identity" is the integer owner id passed to newHeap (normally a
// *thread.Handle's ID).
const numSizeClasses = 32

type freeNode struct {
	next uint32 // offset of next free node in this class, or sentinelEnd
}

const sentinelEnd = ^uint32(0)

// Heap implements the fixed-region allocator backing Arena.Malloc. It is
// not safe for concurrent use by more than one owning thread at a time;
// callers serialize through the owner check in Arena.
type Heap struct {
	mu        sync.Mutex
	buf       []byte
	bumpOff   uintptr
	freeLists [numSizeClasses]uint32 // head offset per class, sentinelEnd if empty
	ownerID   int
}

// newHeap creates a heap over buf, aligned up to constants.MbufAlign.
func newHeap(buf []byte, ownerID int) *Heap {
	h := &Heap{buf: buf, ownerID: ownerID}
	for i := range h.freeLists {
		h.freeLists[i] = sentinelEnd
	}
	h.bumpOff = alignUp(0, constants.MbufAlign)
	return h
}

func alignUp(off uintptr, align uintptr) uintptr {
	return (off + align - 1) &^ (align - 1)
}

// sizeClass returns the index of the smallest size class able to hold n
// bytes, where class i holds blocks of size constants.MbufAlign<<i.
func sizeClass(n uintptr) (int, uintptr, error) {
	if n == 0 {
		n = 1
	}
	blocks := (n + constants.MbufAlign - 1) / constants.MbufAlign
	class := bits.Len64(uint64(blocks - 1))
	if class >= numSizeClasses {
		return 0, 0, fmt.Errorf("arena: allocation of %d bytes exceeds largest size class", n)
	}
	return class, constants.MbufAlign << uint(class), nil
}

// Alloc returns a byte slice of at least size bytes carved from the heap's
// backing mapping, or an error if the region is exhausted or the caller is
// not the owning thread.
func (h *Heap) Alloc(ownerID int, size uintptr) ([]byte, error) {
	if ownerID != h.ownerID {
		return nil, fmt.Errorf("arena: heap owned by thread %d, called from %d", h.ownerID, ownerID)
	}
	class, blockSize, err := sizeClass(size)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if head := h.freeLists[class]; head != sentinelEnd {
		node := (*freeNode)(bytePtr(h.buf, uintptr(head)))
		h.freeLists[class] = node.next
		return h.buf[head : uint32(head)+uint32(blockSize)], nil
	}

	off := alignUp(h.bumpOff, constants.MbufAlign)
	if off+blockSize > uintptr(len(h.buf)) {
		return nil, fmt.Errorf("arena: heap exhausted allocating %d bytes", size)
	}
	h.bumpOff = off + blockSize
	return h.buf[off : off+blockSize], nil
}

// Free returns a block previously returned by Alloc to its size class's
// free list. The slice must have been returned by a prior Alloc call on
// this same Heap with its original length.
func (h *Heap) Free(ownerID int, b []byte) error {
	if ownerID != h.ownerID {
		return fmt.Errorf("arena: heap owned by thread %d, called from %d", h.ownerID, ownerID)
	}
	class, blockSize, err := sizeClass(uintptr(len(b)))
	if err != nil {
		return err
	}
	off := offsetOf(h.buf, b)

	h.mu.Lock()
	defer h.mu.Unlock()

	node := (*freeNode)(bytePtr(h.buf, off))
	node.next = h.freeLists[class]
	h.freeLists[class] = uint32(off)
	_ = blockSize
	return nil
}

// Realloc grows or shrinks a block, copying contents into a fresh block
// when the size class changes.
func (h *Heap) Realloc(ownerID int, b []byte, newSize uintptr) ([]byte, error) {
	if ownerID != h.ownerID {
		return nil, fmt.Errorf("arena: heap owned by thread %d, called from %d", h.ownerID, ownerID)
	}
	class, _, err := sizeClass(uintptr(len(b)))
	if err != nil {
		return nil, err
	}
	newClass, _, err := sizeClass(newSize)
	if err != nil {
		return nil, err
	}
	if class == newClass {
		return b[:newSize], nil
	}
	out, err := h.Alloc(ownerID, newSize)
	if err != nil {
		return nil, err
	}
	copy(out, b)
	if err := h.Free(ownerID, b); err != nil {
		return nil, err
	}
	return out, nil
}
