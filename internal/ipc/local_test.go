package ipc

import (
	"testing"

	"github.com/ehrlich-b/jbpfio/internal/arena"
	"github.com/ehrlich-b/jbpfio/internal/channel"
	"github.com/ehrlich-b/jbpfio/internal/ioqueue"
)

func newLocalTestArena(t *testing.T) *arena.Arena {
	t.Helper()
	a, err := arena.Allocate(arena.Options{Size: 1 << 20}, 1, t.TempDir())
	if err != nil {
		t.Fatalf("arena.Allocate: %v", err)
	}
	t.Cleanup(func() { _ = a.Destroy() })
	return a
}

func TestLocalQueueSubmitCreateThenFind(t *testing.T) {
	q := NewLocalQueue()
	defer q.Close()

	a := newLocalTestArena(t)
	registry := channel.NewRegistry(ioqueue.DirectionInput)

	var sid channel.StreamID
	copy(sid[:], "local-stream-0001")

	handle := q.SubmitCreate(registry, a, 1, channel.CreateOptions{
		StreamID:    sid,
		Direction:   ioqueue.DirectionInput,
		ElementSize: 32,
		MaxEntries:  4,
	})
	c, err := handle.Wait()
	if err != nil {
		t.Fatalf("SubmitCreate: %v", err)
	}
	if c.StreamID != sid {
		t.Fatalf("created channel has stream id %s, want %s", c.StreamID, sid)
	}

	findHandle := q.SubmitFind(registry, sid)
	found, err := findHandle.Wait()
	if err != nil {
		t.Fatalf("SubmitFind: %v", err)
	}
	if found != c {
		t.Fatal("SubmitFind returned a different channel than was created")
	}
}

func TestLocalQueueSubmitDestroyRemovesChannel(t *testing.T) {
	q := NewLocalQueue()
	defer q.Close()

	a := newLocalTestArena(t)
	registry := channel.NewRegistry(ioqueue.DirectionOutput)

	var sid channel.StreamID
	copy(sid[:], "local-stream-0002")

	createHandle := q.SubmitCreate(registry, a, 1, channel.CreateOptions{
		StreamID:    sid,
		Direction:   ioqueue.DirectionOutput,
		ElementSize: 32,
		MaxEntries:  4,
	})
	if _, err := createHandle.Wait(); err != nil {
		t.Fatalf("SubmitCreate: %v", err)
	}

	destroyHandle := q.SubmitDestroy(registry, sid, 1)
	if _, err := destroyHandle.Wait(); err != nil {
		t.Fatalf("SubmitDestroy: %v", err)
	}

	findHandle := q.SubmitFind(registry, sid)
	if _, err := findHandle.Wait(); err == nil {
		t.Fatal("expected find to fail after destroy")
	}
}

func TestAsyncHandleTryWaitBeforeCompletion(t *testing.T) {
	q := NewLocalQueue()
	defer q.Close()

	a := newLocalTestArena(t)
	registry := channel.NewRegistry(ioqueue.DirectionInput)
	var sid channel.StreamID
	copy(sid[:], "local-stream-0003")

	h := q.SubmitCreate(registry, a, 1, channel.CreateOptions{
		StreamID:    sid,
		Direction:   ioqueue.DirectionInput,
		ElementSize: 16,
		MaxEntries:  2,
	})
	// TryWait may or may not observe completion depending on scheduling,
	// but it must never block; Wait is the one that blocks.
	_, _, _ = h.TryWait()
	if _, err := h.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}
