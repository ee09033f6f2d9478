package channel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/jbpfio/internal/ioqueue"
	"github.com/ehrlich-b/jbpfio/internal/thread"
)

type identitySerde struct{}

func (identitySerde) Serialize(data []byte, out []byte) (int, error) {
	return copy(out, data), nil
}

func (identitySerde) Deserialize(wire []byte, data []byte) (int, error) {
	return copy(data, wire), nil
}

func TestSendMsgReservesCopiesAndSubmits(t *testing.T) {
	a := newTestArena(t)
	m := NewManager()
	reg := thread.NewRegistry()
	h, err := reg.Register()
	require.NoError(t, err)

	sid := testStreamID(5)
	_, err = m.In.Create(a, ownerID, CreateOptions{StreamID: sid, Direction: ioqueue.DirectionInput, ElementSize: 16, MaxEntries: 4})
	require.NoError(t, err)

	require.NoError(t, m.SendMsg(sid, []byte("hello"), h))
}

func TestSendMsgRejectsOversizedPayload(t *testing.T) {
	a := newTestArena(t)
	m := NewManager()
	reg := thread.NewRegistry()
	h, err := reg.Register()
	require.NoError(t, err)

	sid := testStreamID(6)
	_, err = m.In.Create(a, ownerID, CreateOptions{StreamID: sid, Direction: ioqueue.DirectionInput, ElementSize: 4, MaxEntries: 4})
	require.NoError(t, err)

	require.Error(t, m.SendMsg(sid, []byte("too long"), h))
}

func TestPackAndUnpackRoundTrip(t *testing.T) {
	a := newTestArena(t)
	m := NewManager()
	reg := thread.NewRegistry()
	h, err := reg.Register()
	require.NoError(t, err)

	sid := testStreamID(7)
	c, err := m.In.Create(a, ownerID, CreateOptions{
		StreamID: sid, Direction: ioqueue.DirectionInput, ElementSize: 16, MaxEntries: 4,
		Serializer: identitySerde{}, Deserializer: identitySerde{},
	})
	require.NoError(t, err)

	buf, err := c.queue.Reserve(h.ID())
	require.NoError(t, err)
	copy(buf, []byte("payload"))

	wire := make([]byte, StreamIDLen+16)
	n, err := c.Pack(buf[:len("payload")], wire)
	require.NoError(t, err)
	require.NoError(t, c.queue.Release(h.ID(), ownerID))

	gotSid, data, err := m.Unpack(wire[:n], h)
	require.NoError(t, err)
	require.Equal(t, sid, gotSid)
	require.Equal(t, "payload", string(data))
}

func TestUnpackFailsForUnknownStreamID(t *testing.T) {
	m := NewManager()
	reg := thread.NewRegistry()
	h, err := reg.Register()
	require.NoError(t, err)

	wire := make([]byte, StreamIDLen+4)
	_, _, err = m.Unpack(wire, h)
	require.Error(t, err)
}
