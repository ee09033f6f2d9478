// Package channel implements the channel and registry abstraction from
// spec.md §4.4, grounded on jbpf_io_channel.c: each channel owns one
// ioqueue.Queue plus an optional pair of serde plug-ins (one for the local
// process, one presented to a remote peer), and is published into a
// per-direction registry combining a hash table for O(1) lookup with a
// dense array for O(n) drain scans.
package channel

import (
	"fmt"

	"github.com/ehrlich-b/jbpfio/internal/ioqueue"
)

// Serializer turns a reserved buffer's contents into wire bytes.
type Serializer interface {
	Serialize(data []byte, out []byte) (int, error)
}

// Deserializer turns wire bytes into a reserved buffer's contents.
type Deserializer interface {
	Deserialize(wire []byte, data []byte) (int, error)
}

// Channel is one named, directional queue of fixed-size messages.
type Channel struct {
	StreamID    StreamID
	Direction   ioqueue.Direction
	Priority    int
	ElementSize int

	queue *ioqueue.Queue

	serializer   Serializer
	deserializer Deserializer
}

// Queue exposes the channel's underlying ioqueue for Reserve/Submit/
// Dequeue callers.
func (c *Channel) Queue() *ioqueue.Queue { return c.queue }

// CreateOptions configures Registry.Create.
type CreateOptions struct {
	StreamID     StreamID
	Direction    ioqueue.Direction
	Priority     int
	ElementSize  int
	MaxEntries   int
	Serializer   Serializer
	Deserializer Deserializer
}

// StreamIDLen is the fixed wire prefix length of a packed message, 16
// bytes of StreamID ahead of the serde-produced payload.
const StreamIDLen = 16

// Pack writes the 16-byte stream-id prefix followed by c's serializer
// output for data, returning the total bytes written. Fails if c has no
// serializer or buf is too small to hold at least the prefix.
func (c *Channel) Pack(data []byte, buf []byte) (int, error) {
	if c.serializer == nil {
		return 0, fmt.Errorf("channel: %s has no serializer", c.StreamID)
	}
	if len(buf) < StreamIDLen {
		return 0, fmt.Errorf("channel: pack buffer shorter than stream id prefix")
	}
	copy(buf[:StreamIDLen], c.StreamID[:])
	n, err := c.serializer.Serialize(data, buf[StreamIDLen:])
	if err != nil {
		return 0, fmt.Errorf("channel: serialize: %w", err)
	}
	return StreamIDLen + n, nil
}

// reserveAndCopy reserves a buffer on q for threadID, copies payload into
// it (failing if payload is larger than the queue's element size), then
// submits. Manager.SendMsg calls it after looking up the input channel.
func reserveAndCopy(q *ioqueue.Queue, threadID int, payload []byte) error {
	buf, err := q.Reserve(threadID)
	if err != nil {
		return fmt.Errorf("channel: reserve: %w", err)
	}
	if len(payload) > len(buf) {
		return fmt.Errorf("channel: payload of %d bytes exceeds element size %d", len(payload), len(buf))
	}
	copy(buf, payload)
	if err := q.Submit(threadID); err != nil {
		return fmt.Errorf("channel: submit: %w", err)
	}
	return nil
}
