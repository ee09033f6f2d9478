package jbpfio

import "github.com/ehrlich-b/jbpfio/internal/constants"

// Re-exported process-wide knobs, so callers outside internal/ don't need
// to import internal/constants directly.
const (
	MaxThreads     = constants.MaxThreads
	MaxChannels    = constants.MaxChannels
	StreamIDLen    = constants.StreamIDLen
	BatchSize      = constants.BatchSize
	MaxTryAttempts = constants.MaxTryAttempts

	ArenaBlockSize  = constants.ArenaBlockSize
	HugePageSize1GB = constants.HugePageSize1GB
	HugePageSize2MB = constants.HugePageSize2MB

	VsockDefaultPort = constants.VsockDefaultPort
	DefaultRunPath   = constants.DefaultRunPath
	DefaultNamespace = constants.DefaultNamespace

	EnvCodeletPath = constants.EnvCodeletPath
)
