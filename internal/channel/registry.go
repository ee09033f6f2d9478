package channel

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ehrlich-b/jbpfio/internal/arena"
	"github.com/ehrlich-b/jbpfio/internal/constants"
	"github.com/ehrlich-b/jbpfio/internal/epoch"
	"github.com/ehrlich-b/jbpfio/internal/ioqueue"
	"github.com/ehrlich-b/jbpfio/internal/mempool"
	"github.com/ehrlich-b/jbpfio/internal/thread"
)

// Registry holds every channel created in one direction (input or output)
// for one peer context. Creation and deletion serialize through
// createMu; lookups are lock-free reads of a copy-on-write table
// snapshot.
//
// No concurrent hash-table library appeared anywhere in the retrieved
// example pack, so the table is a sync/atomic.Pointer to a plain Go map,
// replaced wholesale under createMu on every insert/delete and read
// without synchronization by Lookup -- the idiomatic Go analogue of
// ck_ht's wait-free-reader contract.
type Registry struct {
	Direction ioqueue.Direction

	createMu sync.Mutex
	table    atomic.Pointer[map[StreamID]*Channel]
	dense    [constants.MaxChannels]atomic.Pointer[Channel]

	epochDomain *epoch.Domain
}

// NewRegistry creates an empty registry for one direction.
func NewRegistry(dir ioqueue.Direction) *Registry {
	r := &Registry{Direction: dir, epochDomain: epoch.NewDomain()}
	empty := map[StreamID]*Channel{}
	r.table.Store(&empty)
	return r
}

// EpochDomain exposes the registry's reclamation domain so callers can
// Begin/End a read-side critical section around Lookup.
func (r *Registry) EpochDomain() *epoch.Domain { return r.epochDomain }

// Create allocates a new channel in a, publishes it into both the hash
// table and the dense array, and returns it. Rejects a stream id already
// present in this direction, or a registry already at constants.MaxChannels.
func (r *Registry) Create(a *arena.Arena, ownerID int, opts CreateOptions) (*Channel, error) {
	r.createMu.Lock()
	defer r.createMu.Unlock()

	cur := *r.table.Load()
	if _, exists := cur[opts.StreamID]; exists {
		return nil, fmt.Errorf("channel: stream id %s already exists in this direction", opts.StreamID)
	}

	slot := -1
	for i := range r.dense {
		if r.dense[i].Load() == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		return nil, fmt.Errorf("channel: direction at capacity (%d channels)", constants.MaxChannels)
	}

	q, err := ioqueue.New(a, ownerID, opts.ElementSize, opts.MaxEntries, opts.Direction)
	if err != nil {
		return nil, fmt.Errorf("channel: creating queue: %w", err)
	}

	c := &Channel{
		StreamID:     opts.StreamID,
		Direction:    opts.Direction,
		Priority:     opts.Priority,
		ElementSize:  opts.ElementSize,
		queue:        q,
		serializer:   opts.Serializer,
		deserializer: opts.Deserializer,
	}

	next := make(map[StreamID]*Channel, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[opts.StreamID] = c
	r.table.Store(&next)
	r.dense[slot].Store(c)

	return c, nil
}

// Destroy removes streamID from the dense array and hash table, then
// defers the channel's actual teardown (destroying its queue and mempool)
// until the registry's epoch barrier confirms no in-flight Lookup can
// still observe it. The channel's serializer and deserializer are not
// released or closed.
func (r *Registry) Destroy(streamID StreamID, ownerID int) error {
	r.createMu.Lock()
	cur := *r.table.Load()
	c, exists := cur[streamID]
	if !exists {
		r.createMu.Unlock()
		return fmt.Errorf("channel: stream id %s not found", streamID)
	}

	next := make(map[StreamID]*Channel, len(cur)-1)
	for k, v := range cur {
		if k != streamID {
			next[k] = v
		}
	}
	r.table.Store(&next)

	for i := range r.dense {
		if r.dense[i].Load() == c {
			r.dense[i].Store(nil)
			break
		}
	}
	r.createMu.Unlock()

	r.epochDomain.Call(func() {
		_ = c.queue.Destroy(ownerID)
	})
	r.epochDomain.Barrier()
	return nil
}

// Lookup finds a channel by stream id, bracketing the read with the
// calling thread's epoch record so a concurrent Destroy cannot retire the
// channel out from under it.
func (r *Registry) Lookup(streamID StreamID, h *thread.Handle, domain thread.Domain) (*Channel, bool) {
	rec := h.Record(domain, r.epochDomain)
	rec.Begin(r.epochDomain)
	defer rec.End()

	cur := *r.table.Load()
	c, ok := cur[streamID]
	return c, ok
}

// DenseContains scans the dense array for streamID without going through
// the epoch-bracketed Lookup path. It is meant for control-plane paths
// (channel find requests) that run on their own goroutine rather than a
// registered worker thread and so have no thread.Handle to bracket with.
func (r *Registry) DenseContains(streamID StreamID) (*Channel, bool) {
	for i := range r.dense {
		c := r.dense[i].Load()
		if c != nil && c.StreamID == streamID {
			return c, true
		}
	}
	return nil, false
}

// Drain iterates the dense array, batch-receiving up to constants.BatchSize
// buffers from each non-nil channel and invoking cb with the channel, its
// stream id, and the received buffers. Callers must only invoke Drain on
// an output-direction registry belonging to a primary io_ctx.
func (r *Registry) Drain(cb func(c *Channel, streamID StreamID, bufs []*mempool.Mbuf, count int)) error {
	batch := make([]*mempool.Mbuf, constants.BatchSize)
	for i := range r.dense {
		c := r.dense[i].Load()
		if c == nil {
			continue
		}
		n, err := c.queue.BatchReceive(batch)
		if err != nil {
			return fmt.Errorf("channel: drain %s: %w", c.StreamID, err)
		}
		if n > 0 {
			cb(c, c.StreamID, batch[:n], n)
		}
	}
	return nil
}
