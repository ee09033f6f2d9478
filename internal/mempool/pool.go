package mempool

import (
	"errors"
	"fmt"
	"sync/atomic"

	"code.hybscloud.com/lfq"

	"github.com/ehrlich-b/jbpfio/internal/arena"
)

// ErrPoolEmpty is returned by Alloc when no buffer is immediately
// available, the Go analogue of the original returning NULL from
// jbpf_mempool_alloc. It is also returned once Destroy has run, since
// allocPtr has by then been swung onto the permanently empty destroy
// ring.
var ErrPoolEmpty = errors.New("mempool: pool exhausted")

// Pool is a fixed-size mbuf pool, grounded on jbpf_mem_mgmt.c's mbuf
// free-ring design (spec.md §4.2). Every element has a fixed size
// decided at pool creation and is reference counted so the same buffer
// can be reachable from more than one channel at once.
//
// Destroy uses the destroy-ring-plus-marker discipline described in
// spec.md §4.2/§9 rather than a blocking drain: allocPtr starts out
// aimed at freeRing and Destroy swings it onto destroyRing -- a ring
// nothing ever enqueues onto, so every Alloc from that point on fails
// immediately. freePtr is never swapped; it still targets freeRing both
// before and after Destroy, and Destroy enqueues a marker value through
// it exactly as Release enqueues a retired mbuf. Whether Destroy's own
// marker enqueue or some later Release is the one that finds the pool
// fully idle decides who physically tears it down; Destroy itself never
// blocks waiting for outstanding references (spec.md §8.5, "destroy
// under reference"). lfq's queue types intentionally expose no length
// query, so idleness is tracked with an auxiliary checkedOut counter
// alongside the ring rather than by probing ring occupancy directly.
type Pool struct {
	arena    *arena.Arena
	elemSize int
	elems    []*mbuf
	ownerID  int

	freeRing    *lfq.MPMCPtr
	destroyRing *lfq.MPMCPtr

	allocPtr atomic.Pointer[lfq.MPMCPtr]
	freePtr  atomic.Pointer[lfq.MPMCPtr]

	marker *mbuf

	checkedOut atomic.Int32
	destroying atomic.Bool
	destroyed  atomic.Bool
}

// New allocates capacity buffers of elemSize bytes each from a, owned by
// ownerID, and seeds the free ring with all of them. Every seeded mbuf
// starts at ref_cnt 0: the invariant is "on the free ring iff ref_cnt is
// zero," and Alloc is the only place ref_cnt becomes nonzero.
func New(a *arena.Arena, ownerID int, elemSize, capacity int) (*Pool, error) {
	p := &Pool{
		arena:    a,
		elemSize: elemSize,
		elems:    make([]*mbuf, 0, capacity),
		ownerID:  ownerID,
		marker:   new(mbuf),
	}
	// One slot beyond capacity so the teardown marker fits even when every
	// buffer is back on the free ring.
	p.freeRing = lfq.NewMPMCPtr(capacity + 1)
	p.destroyRing = lfq.NewMPMCPtr(capacity)
	p.allocPtr.Store(p.freeRing)
	p.freePtr.Store(p.freeRing)

	for i := 0; i < capacity; i++ {
		buf, err := a.Malloc(ownerID, uintptr(elemSize))
		if err != nil {
			return nil, fmt.Errorf("mempool: allocating element %d of %d: %w", i, capacity, err)
		}
		m := &mbuf{pool: p, data: buf}
		p.elems = append(p.elems, m)
		if err := p.freeRing.Enqueue(m.Ptr()); err != nil {
			return nil, fmt.Errorf("mempool: seeding free ring: %w", err)
		}
	}

	return p, nil
}

// ElemSize returns the fixed payload size of every buffer in the pool.
func (p *Pool) ElemSize() int { return p.elemSize }

// Cap returns the pool's total buffer count.
func (p *Pool) Cap() int { return len(p.elems) }

// Destroyed reports whether the pool has been physically torn down.
func (p *Pool) Destroyed() bool { return p.destroyed.Load() }

// Alloc takes a buffer off the current alloc ring and sets its
// reference count to 1. Once Destroy has run, the alloc ring is the
// permanently empty destroy ring, so Alloc always fails with
// ErrPoolEmpty.
func (p *Pool) Alloc() (*Mbuf, error) {
	ring := p.allocPtr.Load()
	ptr, err := ring.Dequeue()
	if err != nil {
		if errors.Is(err, lfq.ErrWouldBlock) {
			return nil, ErrPoolEmpty
		}
		return nil, err
	}
	m := FromPtr(ptr)
	m.refs.Store(1)
	p.checkedOut.Add(1)
	return m, nil
}

// Release drops one reference. When the count reaches zero, the buffer
// is enqueued back onto *freePtr regardless of which thread is
// releasing it; the free ring's producer side is not restricted to the
// pool's owner. If this release is the one that brings the pool to
// fully idle while Destroy is in progress, this goroutine performs the
// pool's physical teardown.
func (p *Pool) Release(m *Mbuf, releasingOwnerID int) error {
	if m.refs.Add(-1) > 0 {
		return nil
	}
	if err := p.freePtr.Load().Enqueue(m.Ptr()); err != nil {
		return fmt.Errorf("mempool: releasing buffer: %w", err)
	}
	if p.checkedOut.Add(-1) == 0 && p.destroying.Load() {
		p.tryTeardown()
	}
	return nil
}

// Destroy swings allocPtr onto the destroy ring, blocking further
// allocation, then enqueues the teardown marker through *freePtr (still
// freeRing). Only the pool's owning thread may call this. It does not
// wait for outstanding references: if buffers are still checked out,
// whichever later Release call brings the pool back to idle tears it
// down instead (spec.md §8.5).
func (p *Pool) Destroy(ownerID int) error {
	if ownerID != p.ownerID {
		return fmt.Errorf("mempool: destroy called by thread %d, pool owned by %d", ownerID, p.ownerID)
	}
	p.allocPtr.Store(p.destroyRing)
	if err := p.freePtr.Load().Enqueue(p.marker.Ptr()); err != nil {
		return fmt.Errorf("mempool: enqueueing teardown marker: %w", err)
	}
	p.destroying.Store(true)
	if p.checkedOut.Load() == 0 {
		p.tryTeardown()
	}
	return nil
}

// tryTeardown runs the pool's physical teardown at most once, no matter
// how many goroutines concurrently decide the pool looks idle.
func (p *Pool) tryTeardown() {
	if !p.destroyed.CompareAndSwap(false, true) {
		return
	}
	for _, m := range p.elems {
		_ = p.arena.Free(p.ownerID, m.data)
	}
}
