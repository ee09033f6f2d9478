// Package serde loads the per-channel serializer/deserializer plug-ins
// described in spec.md §4.4/§4.6. A plug-in is a compiled shared object
// passed to Load as an in-memory blob; the IPC control plane does not call
// Load, so channels created over the socket carry no serde. The C original
// dlopen()s it
// from a memfd via /proc/self/fd/<fd>. Go's stdlib plugin package is
// dlopen-based internally, so the same trick carries over directly:
// memfd_create the blob, then plugin.Open the resulting fd's /proc path.
// No other example in the retrieved pack performs dlopen-style dynamic
// loading, so this is the one ambient concern this package carries on the
// standard library alone -- see DESIGN.md.
package serde

import (
	"fmt"
	"plugin"

	"golang.org/x/sys/unix"
)

// SerializeFunc matches the exported symbol a serde plug-in must provide
// under the name JbpfIoSerialize.
type SerializeFunc func(data []byte, out []byte) (int, error)

// DeserializeFunc matches the exported symbol a serde plug-in must
// provide under the name JbpfIoDeserialize.
type DeserializeFunc func(wire []byte, data []byte) (int, error)

const (
	serializeSymbol   = "JbpfIoSerialize"
	deserializeSymbol = "JbpfIoDeserialize"
)

// Handle is a loaded serde plug-in. It implements channel.Serializer and
// channel.Deserializer.
type Handle struct {
	name    string
	plug    *plugin.Plugin
	serFn   SerializeFunc
	deserFn DeserializeFunc
}

// Load memfd_create's a new anonymous file, writes blob into it, and
// opens it as a Go plugin, resolving both exported symbols; a plug-in
// missing either one fails to load. The memfd is not sealed, and it is
// closed when Load returns.
func Load(name string, blob []byte) (*Handle, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("serde: memfd_create: %w", err)
	}
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(len(blob))); err != nil {
		return nil, fmt.Errorf("serde: ftruncate memfd: %w", err)
	}
	if _, err := unix.Pwrite(fd, blob, 0); err != nil {
		return nil, fmt.Errorf("serde: writing plugin blob: %w", err)
	}

	path := fmt.Sprintf("/proc/self/fd/%d", fd)
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("serde: plugin.Open: %w", err)
	}

	serSym, err := p.Lookup(serializeSymbol)
	if err != nil {
		return nil, fmt.Errorf("serde: missing %s: %w", serializeSymbol, err)
	}
	serFn, ok := serSym.(func([]byte, []byte) (int, error))
	if !ok {
		return nil, fmt.Errorf("serde: %s has unexpected signature", serializeSymbol)
	}

	deserSym, err := p.Lookup(deserializeSymbol)
	if err != nil {
		return nil, fmt.Errorf("serde: missing %s: %w", deserializeSymbol, err)
	}
	deserFn, ok := deserSym.(func([]byte, []byte) (int, error))
	if !ok {
		return nil, fmt.Errorf("serde: %s has unexpected signature", deserializeSymbol)
	}

	return &Handle{name: name, plug: p, serFn: SerializeFunc(serFn), deserFn: DeserializeFunc(deserFn)}, nil
}

// Name returns the name the plug-in was loaded under.
func (h *Handle) Name() string { return h.name }

// Serialize satisfies channel.Serializer.
func (h *Handle) Serialize(data []byte, out []byte) (int, error) {
	return h.serFn(data, out)
}

// Deserialize satisfies channel.Deserializer.
func (h *Handle) Deserialize(wire []byte, data []byte) (int, error) {
	return h.deserFn(wire, data)
}
