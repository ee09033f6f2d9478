// Package ioqueue implements the bounded lock-free ring of in-flight mbuf
// data pointers described in spec.md §4.3, grounded on jbpf_io_queue.c:
// one reservation slot per registered thread lets a producer hold exactly
// one in-flight buffer between reserve and submit/release, and the ring
// itself is MPSC on output queues (many codelets produce, one drain loop
// consumes) or MPMC on input queues (many external writers, many codelets
// consuming).
package ioqueue

import (
	"errors"
	"fmt"
	"math/bits"

	"code.hybscloud.com/lfq"

	"github.com/ehrlich-b/jbpfio/internal/arena"
	"github.com/ehrlich-b/jbpfio/internal/constants"
	"github.com/ehrlich-b/jbpfio/internal/mempool"
)

// Direction selects a queue's ring discipline: Output queues are MPSC
// (single drain loop consumes), Input queues are MPMC (any registered
// thread may consume).
type Direction int

const (
	DirectionOutput Direction = iota
	DirectionInput
)

// ErrNoReservation is Submit/Release's error when the calling thread holds
// no reservation on this queue.
var ErrNoReservation = errors.New("ioqueue: thread holds no reservation")

// ErrRingFull is Submit's error when the ring has no room; the caller's
// reservation remains held so a retry can submit it later.
var ErrRingFull = errors.New("ioqueue: ring full")

// ErrPoolEmpty mirrors mempool.ErrPoolEmpty for callers that only import
// ioqueue.
var ErrPoolEmpty = mempool.ErrPoolEmpty

// Queue is a fixed-capacity ring of mbuf data pointers plus the
// reservation-slot bookkeeping described in spec.md §4.3.
type Queue struct {
	pool         *mempool.Pool
	ring         lfq.QueuePtr
	elementSize  int
	direction    Direction
	reservations []*mempool.Mbuf
}

// New builds a mempool sized maxEntries+MaxThreads (so every registered
// thread can hold one in-flight reservation without starving consumers)
// and a ring of power-of-two capacity >= maxEntries+1.
func New(a *arena.Arena, ownerID int, elementSize, maxEntries int, dir Direction) (*Queue, error) {
	poolCap := maxEntries + constants.MaxThreads
	pool, err := mempool.New(a, ownerID, elementSize, poolCap)
	if err != nil {
		return nil, fmt.Errorf("ioqueue: creating backing pool: %w", err)
	}

	ringCap := nextPowerOfTwo(maxEntries + 1)
	return &Queue{
		pool:         pool,
		ring:         newRing(dir, ringCap),
		elementSize:  elementSize,
		direction:    dir,
		reservations: make([]*mempool.Mbuf, constants.MaxThreads),
	}, nil
}

// newRing picks the ring discipline matching dir: output queues have a
// single drain loop consumer (MPSC), input queues may be consumed by
// any registered thread (MPMC).
func newRing(dir Direction, capacity int) lfq.QueuePtr {
	if dir == DirectionOutput {
		return lfq.NewMPSCPtr(capacity)
	}
	return lfq.NewMPMCPtr(capacity)
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// ElementSize returns the fixed per-message size of this queue's buffers.
func (q *Queue) ElementSize() int { return q.elementSize }

// Direction reports whether this is an input or output queue.
func (q *Queue) Direction() Direction { return q.direction }

// Reserve returns the calling thread's in-flight buffer, allocating a
// fresh one from the pool if the thread holds none. A thread calling
// Reserve twice without an intervening Submit or Release gets back the
// same buffer (idempotent).
func (q *Queue) Reserve(threadID int) ([]byte, error) {
	if err := checkThreadID(threadID); err != nil {
		return nil, err
	}
	if existing := q.reservations[threadID]; existing != nil {
		return existing.Bytes(), nil
	}
	m, err := q.pool.Alloc()
	if err != nil {
		return nil, err
	}
	q.reservations[threadID] = m
	return m.Bytes(), nil
}

// Submit enqueues the calling thread's reserved buffer onto the ring and
// clears the reservation. If the ring is full the reservation is left in
// place so the caller can retry.
func (q *Queue) Submit(threadID int) error {
	if err := checkThreadID(threadID); err != nil {
		return err
	}
	m := q.reservations[threadID]
	if m == nil {
		return ErrNoReservation
	}
	if err := q.ring.Enqueue(m.Ptr()); err != nil {
		if errors.Is(err, lfq.ErrWouldBlock) {
			return ErrRingFull
		}
		return err
	}
	q.reservations[threadID] = nil
	return nil
}

// Release drops the calling thread's reservation without submitting it,
// decrementing the buffer's refcount and returning it toward the pool.
func (q *Queue) Release(threadID int, releasingOwnerID int) error {
	if err := checkThreadID(threadID); err != nil {
		return err
	}
	m := q.reservations[threadID]
	if m == nil {
		return ErrNoReservation
	}
	q.reservations[threadID] = nil
	return q.pool.Release(m, releasingOwnerID)
}

// ReleaseAll releases every outstanding reservation slot; a no-op on a
// queue with none held.
func (q *Queue) ReleaseAll(releasingOwnerID int) error {
	for id, m := range q.reservations {
		if m == nil {
			continue
		}
		q.reservations[id] = nil
		if err := q.pool.Release(m, releasingOwnerID); err != nil {
			return err
		}
	}
	return nil
}

// Dequeue pops one buffer off the ring, or (nil, nil) when empty. The
// caller is responsible for eventually releasing the returned buffer via
// ReleaseBuf.
func (q *Queue) Dequeue() (*mempool.Mbuf, error) {
	ptr, err := q.ring.Dequeue()
	if err != nil {
		if errors.Is(err, lfq.ErrWouldBlock) {
			return nil, nil
		}
		return nil, err
	}
	return mempool.FromPtr(ptr), nil
}

// BatchReceive repeatedly dequeues up to len(out) buffers, returning the
// actual count filled.
func (q *Queue) BatchReceive(out []*mempool.Mbuf) (int, error) {
	n := 0
	for n < len(out) {
		m, err := q.Dequeue()
		if err != nil {
			return n, err
		}
		if m == nil {
			break
		}
		out[n] = m
		n++
	}
	return n, nil
}

// ReleaseBuf releases a buffer obtained from Dequeue/BatchReceive once the
// caller is done with it.
func (q *Queue) ReleaseBuf(m *mempool.Mbuf, releasingOwnerID int) error {
	return q.pool.Release(m, releasingOwnerID)
}

// Destroy releases all reservations and destroys the backing pool.
func (q *Queue) Destroy(ownerID int) error {
	if err := q.ReleaseAll(ownerID); err != nil {
		return err
	}
	return q.pool.Destroy(ownerID)
}

func checkThreadID(id int) error {
	if id < 0 || id >= constants.MaxThreads {
		return fmt.Errorf("ioqueue: thread id %d out of range", id)
	}
	return nil
}
