// Package mempool implements the fixed-size, reference-counted buffer pool
// described in spec.md §4.2, grounded on jbpf_mem_mgmt.c's mbuf free-ring
// design: every element has a fixed size decided at pool creation, is
// reference counted so a single buffer can be referenced from both an
// input and an output channel, and is recycled through a free ring. Pool
// teardown swings the pool's alloc pointer onto a second, permanently
// empty destroy ring (so allocation stops immediately) and pushes a
// marker through the free ring in place of a retired mbuf; whichever
// release call discovers the pool fully idle physically tears it down,
// so Destroy never blocks on outstanding references.
package mempool

import (
	"sync/atomic"
	"unsafe"
)

// Mbuf is one pool element: a fixed-size payload region plus a reference
// count. The payload itself lives in the arena-backed buffer supplied at
// pool creation; Mbuf only tracks bookkeeping. The original recovers an
// mbuf header from a data pointer via pointer arithmetic; callers outside
// this package instead carry the *Mbuf handle itself, since Go has no
// sound way to walk backward from a slice to an enclosing struct.
type Mbuf = mbuf

type mbuf struct {
	pool *Pool
	data []byte
	refs atomic.Int32
}

// Bytes returns the buffer's payload region.
func (m *mbuf) Bytes() []byte { return m.data }

// Ref increments the reference count. Used when the same buffer is handed
// to a second channel (e.g. a copy-free fan-out).
func (m *mbuf) Ref() {
	m.refs.Add(1)
}

// Ptr returns the mbuf's own address for ring storage as unsafe.Pointer,
// the representation lfq.MPMCPtr moves around without copying.
func (m *mbuf) Ptr() unsafe.Pointer {
	return unsafe.Pointer(m)
}

// FromPtr recovers an *Mbuf from a pointer previously obtained via Ptr,
// e.g. after a ring Dequeue.
func FromPtr(p unsafe.Pointer) *mbuf {
	return (*mbuf)(p)
}
