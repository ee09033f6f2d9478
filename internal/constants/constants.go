// Package constants holds the process-wide sizing and timing knobs shared
// by every jbpfio subsystem.
package constants

import "time"

// Registry and concurrency limits.
const (
	// MaxThreads bounds the thread-registration bitmap; every registered
	// goroutine gets a small integer id in [0, MaxThreads).
	MaxThreads = 256

	// MaxChannels bounds the per-direction dense array in the channel
	// registry.
	MaxChannels = 1024

	// StreamIDLen is the size in bytes of a channel stream id.
	StreamIDLen = 16

	// BatchSize is the default number of elements drained per channel per
	// Drain iteration.
	BatchSize = 32

	// MaxTryAttempts bounds the IPC registration handshake's
	// MAP_FIXED_NOREPLACE retry loop. The handshake's attempt log is sized
	// to this constant exactly; growing it requires growing the log.
	MaxTryAttempts = 10
)

// Arena sizing.
const (
	// ArenaBlockSize is the alignment/rounding unit for plain (non-huge-page)
	// arena mappings and for aligning the heap base within a mapping.
	ArenaBlockSize = 1 << 21 // 2 MiB

	// HugePageSize1GB and HugePageSize2MB are the two huge-page flavours in
	// the allocation cascade.
	HugePageSize1GB = 1 << 30
	HugePageSize2MB = 1 << 21

	// MbufAlign is the alignment every mbuf payload is rounded up to.
	MbufAlign = 16
)

// IPC control plane.
const (
	// IPCControlBacklog is the listen() backlog for the control socket.
	IPCControlBacklog = 128

	// VsockDefaultPort is used when a vsock:// address omits a port.
	VsockDefaultPort = 9999

	// ControlPollTimeout is the epoll_wait timeout used by the control
	// goroutine and the LCM server loop; it is also the cancellation
	// granularity for the is_running flag.
	ControlPollTimeout = time.Second

	// DefaultRunPath and DefaultNamespace locate UNIX sockets and sidecar
	// metadata files when the caller does not override them.
	DefaultRunPath   = "/var/run/jbpfio"
	DefaultNamespace = "default"
)

// LCM framing.
const (
	// LCMRequestBacklog is the listen() backlog for the LCM socket.
	LCMRequestBacklog = 16

	// LCMErrMsgLen bounds the ASCII error message carried in an LCM
	// response.
	LCMErrMsgLen = 256
)

// Environment variables consumed by the core (spec.md §6); everything else
// is left to external collaborators.
const (
	EnvCodeletPath = "JBPF_PATH"
)
