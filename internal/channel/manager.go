package channel

import (
	"fmt"

	"github.com/ehrlich-b/jbpfio/internal/ioqueue"
	"github.com/ehrlich-b/jbpfio/internal/thread"
)

// Manager pairs the input and output registries of one io_ctx, the unit
// spec.md §4.4's send_msg and unpack_msg operate over (they search or
// address a specific direction rather than belonging to either registry
// alone).
type Manager struct {
	In  *Registry
	Out *Registry
}

// NewManager creates an empty input/output registry pair.
func NewManager() *Manager {
	return &Manager{
		In:  NewRegistry(ioqueue.DirectionInput),
		Out: NewRegistry(ioqueue.DirectionOutput),
	}
}

// SendMsg looks up the input channel with streamID, reserves a buffer,
// copies up to len(payload) bytes into it, and submits. Fails if payload
// is larger than the channel's element size or no such input channel
// exists.
func (m *Manager) SendMsg(streamID StreamID, payload []byte, h *thread.Handle) error {
	c, ok := m.In.Lookup(streamID, h, thread.DomainInChannels)
	if !ok {
		return fmt.Errorf("channel: no input channel for stream id %s", streamID)
	}
	return reserveAndCopy(c.queue, h.ID(), payload)
}

// Unpack reads the 16-byte stream-id prefix from wire, finds the matching
// channel in either direction, reserves a buffer, deserializes the
// remaining bytes into it, and returns the buffer's contents. On decoder
// failure the reservation is released rather than submitted.
func (m *Manager) Unpack(wire []byte, h *thread.Handle) (StreamID, []byte, error) {
	var streamID StreamID
	if len(wire) < StreamIDLen {
		return streamID, nil, fmt.Errorf("channel: unpack input shorter than stream id prefix")
	}
	copy(streamID[:], wire[:StreamIDLen])

	c, ok := m.In.Lookup(streamID, h, thread.DomainInChannels)
	if !ok {
		c, ok = m.Out.Lookup(streamID, h, thread.DomainOutChannels)
	}
	if !ok {
		return streamID, nil, fmt.Errorf("channel: no channel for stream id %s", streamID)
	}
	if c.deserializer == nil {
		return streamID, nil, fmt.Errorf("channel: %s has no deserializer", streamID)
	}

	buf, err := c.queue.Reserve(h.ID())
	if err != nil {
		return streamID, nil, fmt.Errorf("channel: reserve: %w", err)
	}
	n, err := c.deserializer.Deserialize(wire[StreamIDLen:], buf)
	if err != nil {
		if releaseErr := c.queue.Release(h.ID(), h.ID()); releaseErr != nil {
			return streamID, nil, fmt.Errorf("channel: deserialize: %w (release also failed: %v)", err, releaseErr)
		}
		return streamID, nil, fmt.Errorf("channel: deserialize: %w", err)
	}
	return streamID, buf[:n], nil
}
