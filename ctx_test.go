package jbpfio

import (
	"testing"

	"github.com/ehrlich-b/jbpfio/internal/channel"
	"github.com/ehrlich-b/jbpfio/internal/ioqueue"
)

type loopbackSerde struct{}

func (loopbackSerde) Serialize(data []byte, out []byte) (int, error) {
	return copy(out, data), nil
}

func (loopbackSerde) Deserialize(wire []byte, data []byte) (int, error) {
	return copy(data, wire), nil
}

func newTestPrimary(t *testing.T) *IOCtx {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RunPath = t.TempDir()
	ctx, err := NewLocalPrimary(cfg, 1<<20, 0)
	if err != nil {
		t.Fatalf("NewLocalPrimary: %v", err)
	}
	t.Cleanup(func() {
		if err := ctx.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return ctx
}

func TestLocalPrimarySendAndUnpack(t *testing.T) {
	ctx := newTestPrimary(t)
	if ctx.Kind() != LocalPrimary {
		t.Fatalf("Kind() = %v, want LocalPrimary", ctx.Kind())
	}

	th, err := ctx.RegisterThread()
	if err != nil {
		t.Fatalf("RegisterThread: %v", err)
	}
	defer ctx.UnregisterThread(th)

	var streamID channel.StreamID
	copy(streamID[:], "test-channel")

	_, err = ctx.Channels().In.Create(ctx.Arena(), 0, channel.CreateOptions{
		StreamID:     streamID,
		Direction:    ioqueue.DirectionInput,
		ElementSize:  64,
		MaxEntries:   8,
		Serializer:   loopbackSerde{},
		Deserializer: loopbackSerde{},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	payload := []byte("payload")
	if err := ctx.Channels().SendMsg(streamID, payload, th); err != nil {
		t.Fatalf("SendMsg: %v", err)
	}
	ctx.Metrics().RecordSend(uint64(len(payload)), 0, true)

	wire := make([]byte, channel.StreamIDLen+len(payload))
	copy(wire[:channel.StreamIDLen], streamID[:])
	copy(wire[channel.StreamIDLen:], payload)

	gotID, data, err := ctx.Channels().Unpack(wire, th)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if gotID != streamID {
		t.Fatalf("Unpack stream id = %s, want %s", gotID, streamID)
	}
	if string(data) != "payload" {
		t.Fatalf("Unpack data = %q, want %q", data, "payload")
	}

	snap := ctx.Metrics().Snapshot()
	if snap.SendOps != 1 {
		t.Fatalf("SendOps = %d, want 1", snap.SendOps)
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		LocalPrimary: "local-primary",
		IPCPrimary:   "ipc-primary",
		IPCSecondary: "ipc-secondary",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
}
