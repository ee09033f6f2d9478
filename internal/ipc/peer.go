package ipc

import (
	"net"
	"sync"

	"github.com/ehrlich-b/jbpfio/internal/arena"
	"github.com/ehrlich-b/jbpfio/internal/channel"
	"github.com/ehrlich-b/jbpfio/internal/constants"
)

// RegState tracks a peer connection's place in the registration
// handshake, mirroring the dipc_peer_ctx reg_state field.
type RegState int

const (
	RegStateUnregistered RegState = iota
	RegStateNegotiating
	RegStateRegistered
)

// tentativeMapping records one fixed-address mmap attempt made while
// negotiating a peer's shared arena. Retry addresses are derived from the
// attempt index alone; the log is not consulted when choosing them.
type tentativeMapping struct {
	addr uintptr
	size uintptr
	ok   bool
}

// PeerCtx is everything the primary tracks about one connected secondary:
// its socket, its shared arena, and its own private input/output channel
// tables (channels a secondary creates live in its own PeerCtx, separate
// from the primary's local channels).
type PeerCtx struct {
	Conn  net.Conn
	Arena *arena.Arena

	Channels *channel.Manager

	mu         sync.Mutex
	state      RegState
	attemptLog [constants.MaxTryAttempts]tentativeMapping
	attempts   int
}

// newPeerCtx wraps a freshly accepted connection before registration
// completes.
func newPeerCtx(conn net.Conn) *PeerCtx {
	return &PeerCtx{
		Conn:     conn,
		Channels: channel.NewManager(),
		state:    RegStateUnregistered,
	}
}

// State returns the peer's current registration state.
func (p *PeerCtx) State() RegState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *PeerCtx) setState(s RegState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// recordAttempt appends a tentative mapping attempt to the peer's attempt
// log, sized exactly constants.MaxTryAttempts per spec.md §9 -- a constant, not
// separately configurable, exactly tracking MaxTryAttempts. Returns false
// once the log is full.
func (p *PeerCtx) recordAttempt(addr, size uintptr, ok bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attempts >= constants.MaxTryAttempts {
		return false
	}
	p.attemptLog[p.attempts] = tentativeMapping{addr: addr, size: size, ok: ok}
	p.attempts++
	return true
}

// Close destroys the peer's arena and closes its socket. The channels in
// p.Channels are not destroyed.
func (p *PeerCtx) Close() error {
	if p.Arena != nil {
		_ = p.Arena.Destroy()
	}
	return p.Conn.Close()
}
