// Package jbpfio is the I/O substrate of a sandboxed in-process
// extension framework: named typed channels backed by a huge-page arena
// and a lock-free mempool, an IPC control plane negotiating shared memory
// between a primary and its secondaries, an LCM lifecycle socket, and
// optional serde plug-ins loaded from in-memory shared objects.
//
// The eBPF VM/verifier, the helper-function table, and codelet object
// loading are deliberately out of scope; this package only moves bytes
// between named channels and across process boundaries.
package jbpfio

import (
	"fmt"

	"github.com/ehrlich-b/jbpfio/internal/arena"
	"github.com/ehrlich-b/jbpfio/internal/channel"
	"github.com/ehrlich-b/jbpfio/internal/ipc"
	"github.com/ehrlich-b/jbpfio/internal/thread"
)

// Kind is the role an IOCtx plays: a single-process instance, the primary
// side of a multi-process agent, or a secondary attaching to one.
type Kind int

const (
	// LocalPrimary owns its own arena and channels with no IPC surface.
	LocalPrimary Kind = iota
	// IPCPrimary owns an arena, listens for secondaries, and negotiates a
	// shared arena with each one that connects.
	IPCPrimary
	// IPCSecondary attaches to a primary's negotiated shared arena over
	// the control socket.
	IPCSecondary
)

func (k Kind) String() string {
	switch k {
	case LocalPrimary:
		return "local-primary"
	case IPCPrimary:
		return "ipc-primary"
	case IPCSecondary:
		return "ipc-secondary"
	default:
		return "unknown"
	}
}

// IOCtx is the top-level handle an application holds: one arena, one
// input/output channel manager pair, and (for the two IPC kinds) a
// control-plane endpoint.
type IOCtx struct {
	kind      Kind
	cfg       *Config
	arena     *arena.Arena
	chans     *channel.Manager
	threadReg *thread.Registry

	server *ipc.Server
	client *ipc.Client

	metrics *Metrics
}

// NewLocalPrimary allocates an arena of size bytes and returns a
// single-process IOCtx with no control-plane surface.
func NewLocalPrimary(cfg *Config, size uintptr, ownerID int) (*IOCtx, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	a, err := arena.Allocate(arena.Options{Size: size}, ownerID, cfg.MetaDir())
	if err != nil {
		return nil, WrapError("ARENA_ALLOC", err)
	}
	return &IOCtx{
		kind:      LocalPrimary,
		cfg:       cfg,
		arena:     a,
		chans:     channel.NewManager(),
		threadReg: thread.NewRegistry(),
		metrics:   NewMetrics(),
	}, nil
}

// NewIPCPrimary allocates its own local arena, starts a control-plane
// listener at network/address, and begins serving secondary registrations
// in the background.
func NewIPCPrimary(cfg *Config, network, address string, size uintptr, ownerID int) (*IOCtx, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	a, err := arena.Allocate(arena.Options{Size: size}, ownerID, cfg.MetaDir())
	if err != nil {
		return nil, WrapError("ARENA_ALLOC", err)
	}

	s, err := ipc.Listen(network, address, ownerID, cfg.MetaDir())
	if err != nil {
		_ = a.Destroy()
		return nil, WrapError("IPC_LISTEN", err)
	}
	go func() { _ = s.Serve() }()

	return &IOCtx{
		kind:      IPCPrimary,
		cfg:       cfg,
		arena:     a,
		chans:     channel.NewManager(),
		threadReg: thread.NewRegistry(),
		server:    s,
		metrics:   NewMetrics(),
	}, nil
}

// NewIPCSecondary dials a primary's control socket, negotiates a shared
// arena of at least size bytes, and returns an IOCtx attached to it.
func NewIPCSecondary(cfg *Config, network, address string, size uint64, ownerID int) (*IOCtx, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c, err := ipc.Dial(network, address, size, ownerID, cfg.MetaDir())
	if err != nil {
		return nil, WrapError("IPC_REGISTER", err)
	}
	return &IOCtx{
		kind:      IPCSecondary,
		cfg:       cfg,
		arena:     c.Arena,
		chans:     channel.NewManager(),
		threadReg: thread.NewRegistry(),
		client:    c,
		metrics:   NewMetrics(),
	}, nil
}

// Kind returns which role this IOCtx plays.
func (c *IOCtx) Kind() Kind { return c.kind }

// Channels exposes the input/output channel registries owned locally by
// this ctx (a secondary's remotely-created channels live on the primary's
// PeerCtx instead, reached only via the control socket).
func (c *IOCtx) Channels() *channel.Manager { return c.chans }

// Arena exposes the arena backing this ctx's locally-owned channels, the
// allocator SendMsg/Unpack callers pass to Channels().In/Out.Create.
func (c *IOCtx) Arena() *arena.Arena { return c.arena }

// RegisterThread hands back a *thread.Handle a caller threads through
// every subsequent SendMsg/Unpack/Create call it makes, standing in for
// the C original's thread-local registration (spec.md §4.5, §9).
func (c *IOCtx) RegisterThread() (*thread.Handle, error) {
	return c.threadReg.Register()
}

// UnregisterThread releases a handle obtained from RegisterThread.
func (c *IOCtx) UnregisterThread(h *thread.Handle) {
	c.threadReg.Remove(h)
}

// Metrics exposes this ctx's traffic counters.
func (c *IOCtx) Metrics() *Metrics { return c.metrics }

// Close tears down whatever this ctx owns: its arena, and (for IPC kinds)
// its control-plane endpoint.
func (c *IOCtx) Close() error {
	var firstErr error
	if c.client != nil {
		if err := c.client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("jbpfio: closing ipc client: %w", err)
		}
	}
	if c.server != nil {
		if err := c.server.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("jbpfio: closing ipc server: %w", err)
		}
	}
	if c.kind != IPCSecondary && c.arena != nil {
		if err := c.arena.Destroy(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("jbpfio: destroying arena: %w", err)
		}
	}
	return firstErr
}
