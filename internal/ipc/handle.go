package ipc

import (
	"sync"
	"sync/atomic"

	"github.com/ehrlich-b/jbpfio/internal/channel"
)

// handleTable interns channels behind small uint64 handles so the wire
// protocol never has to carry a pointer or a full stream id in a
// ChanDestroy/ChanFindResp frame, matching jbpf_io_ipc's use of an opaque
// channel handle across the control socket.
var (
	handleCounter atomic.Uint64
	handleMu      sync.RWMutex
	handles       = map[uint64]*channel.Channel{}
)

// internHandle assigns c a fresh handle (or returns one already minted for
// it) and records the mapping.
func internHandle(c *channel.Channel) uint64 {
	handleMu.Lock()
	defer handleMu.Unlock()
	for h, existing := range handles {
		if existing == c {
			return h
		}
	}
	h := handleCounter.Add(1)
	handles[h] = c
	return h
}

// lookupHandle resolves a handle back to its channel.
func lookupHandle(h uint64) (*channel.Channel, bool) {
	handleMu.RLock()
	defer handleMu.RUnlock()
	c, ok := handles[h]
	return c, ok
}

// forgetHandle removes a handle once its channel has been destroyed.
func forgetHandle(h uint64) {
	handleMu.Lock()
	delete(handles, h)
	handleMu.Unlock()
}
