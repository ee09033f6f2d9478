package ipc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ehrlich-b/jbpfio/internal/arena"
	"github.com/ehrlich-b/jbpfio/internal/channel"
)

// localOp is one queued request for the primary's own process to create,
// destroy, or find a channel without going through a socket round trip.
type localOp struct {
	kind     localOpKind
	opts     channel.CreateOptions
	streamID channel.StreamID
	registry *channel.Registry
	ownerID  int
	arena    *arena.Arena

	done chan localResult
}

type localOpKind int

const (
	localOpCreate localOpKind = iota
	localOpDestroy
	localOpFind
)

// localResult is what a queued op resolves to.
type localResult struct {
	channel *channel.Channel
	err     error
}

// AsyncHandle is returned by LocalQueue.Submit*; callers either poll
// TryWait or block on Wait, mirroring the primary's deleted
// submit-then-poll async start pattern carried over to channel
// operations submitted from the primary's own process rather than a
// remote secondary.
type AsyncHandle struct {
	done chan localResult
	once sync.Once
	res  localResult
	have atomic.Bool
}

// Wait blocks until the queued operation completes.
func (h *AsyncHandle) Wait() (*channel.Channel, error) {
	h.once.Do(func() {
		h.res = <-h.done
		h.have.Store(true)
	})
	return h.res.channel, h.res.err
}

// TryWait returns immediately with (nil, nil, false) if the operation
// hasn't completed yet.
func (h *AsyncHandle) TryWait() (*channel.Channel, error, bool) {
	if h.have.Load() {
		return h.res.channel, h.res.err, true
	}
	select {
	case r := <-h.done:
		h.res = r
		h.have.Store(true)
		return r.channel, r.err, true
	default:
		return nil, nil, false
	}
}

// LocalQueue serializes same-process channel create/destroy/find requests
// through a single worker goroutine, so a primary's own application code
// and its IPC-serving goroutines never race directly against a
// channel.Registry's createMu -- every mutation funnels through one place.
type LocalQueue struct {
	ops chan *localOp

	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewLocalQueue starts the worker goroutine and returns the queue.
func NewLocalQueue() *LocalQueue {
	q := &LocalQueue{
		ops:  make(chan *localOp, 64),
		stop: make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *LocalQueue) run() {
	defer q.wg.Done()
	for {
		select {
		case op := <-q.ops:
			q.execute(op)
		case <-q.stop:
			return
		}
	}
}

func (q *LocalQueue) execute(op *localOp) {
	switch op.kind {
	case localOpCreate:
		c, err := op.registry.Create(op.arena, op.ownerID, op.opts)
		op.done <- localResult{channel: c, err: err}
	case localOpDestroy:
		err := op.registry.Destroy(op.streamID, op.ownerID)
		op.done <- localResult{err: err}
	case localOpFind:
		c, ok := op.registry.DenseContains(op.streamID)
		if !ok {
			op.done <- localResult{err: fmt.Errorf("ipc: stream id %s not found locally", op.streamID)}
			return
		}
		op.done <- localResult{channel: c}
	}
}

// SubmitCreate queues a local channel creation and returns a handle the
// caller can Wait on.
func (q *LocalQueue) SubmitCreate(registry *channel.Registry, a *arena.Arena, ownerID int, opts channel.CreateOptions) *AsyncHandle {
	done := make(chan localResult, 1)
	q.ops <- &localOp{kind: localOpCreate, registry: registry, arena: a, ownerID: ownerID, opts: opts, done: done}
	return &AsyncHandle{done: done}
}

// SubmitDestroy queues a local channel destruction.
func (q *LocalQueue) SubmitDestroy(registry *channel.Registry, streamID channel.StreamID, ownerID int) *AsyncHandle {
	done := make(chan localResult, 1)
	q.ops <- &localOp{kind: localOpDestroy, registry: registry, streamID: streamID, ownerID: ownerID, done: done}
	return &AsyncHandle{done: done}
}

// SubmitFind queues a local channel lookup.
func (q *LocalQueue) SubmitFind(registry *channel.Registry, streamID channel.StreamID) *AsyncHandle {
	done := make(chan localResult, 1)
	q.ops <- &localOp{kind: localOpFind, registry: registry, streamID: streamID, done: done}
	return &AsyncHandle{done: done}
}

// Close stops the worker goroutine. Any ops already queued are dropped.
func (q *LocalQueue) Close() {
	q.closeOnce.Do(func() { close(q.stop) })
	q.wg.Wait()
}
