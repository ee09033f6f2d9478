package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/ehrlich-b/jbpfio"
	"github.com/ehrlich-b/jbpfio/internal/channel"
	"github.com/ehrlich-b/jbpfio/internal/ioqueue"
)

func main() {
	var (
		sizeStr     = flag.String("size", "4M", "Size of the local arena (e.g. 4M, 64M, 1G)")
		elementSize = flag.Int("element-size", 256, "Fixed element size of the demo channel")
		maxEntries  = flag.Int("max-entries", 64, "Number of slots in the demo channel's ring")
		message     = flag.String("message", "hello jbpf", "Payload to send through the channel")
	)
	flag.Parse()

	size, err := parseSize(*sizeStr)
	if err != nil {
		log.Fatalf("invalid size %q: %v", *sizeStr, err)
	}

	cfg := jbpfio.DefaultConfig()
	ctx, err := jbpfio.NewLocalPrimary(cfg, size, 0)
	if err != nil {
		log.Fatalf("creating local io_ctx: %v", err)
	}
	defer func() {
		if err := ctx.Close(); err != nil {
			log.Printf("closing io_ctx: %v", err)
		}
	}()

	th, err := ctx.RegisterThread()
	if err != nil {
		log.Fatalf("registering thread: %v", err)
	}
	defer ctx.UnregisterThread(th)

	var streamID channel.StreamID
	copy(streamID[:], "demo-channel")

	c, err := ctx.Channels().In.Create(ctx.Arena(), 0, channel.CreateOptions{
		StreamID:     streamID,
		Direction:    ioqueue.DirectionInput,
		ElementSize:  *elementSize,
		MaxEntries:   *maxEntries,
		Serializer:   identitySerde{},
		Deserializer: identitySerde{},
	})
	if err != nil {
		log.Fatalf("creating channel: %v", err)
	}
	_ = c

	if err := ctx.Channels().SendMsg(streamID, []byte(*message), th); err != nil {
		log.Fatalf("sending message: %v", err)
	}
	ctx.Metrics().RecordSend(uint64(len(*message)), 0, true)

	buf := make([]byte, channel.StreamIDLen+*elementSize)
	copy(buf[:channel.StreamIDLen], streamID[:])
	copy(buf[channel.StreamIDLen:], *message)

	gotID, data, err := ctx.Channels().Unpack(buf[:channel.StreamIDLen+len(*message)], th)
	if err != nil {
		log.Fatalf("unpacking message: %v", err)
	}
	ctx.Metrics().RecordUnpack(uint64(len(data)), 0, true)

	fmt.Printf("stream id: %s\n", gotID)
	fmt.Printf("received:  %s\n", data)

	snap := ctx.Metrics().Snapshot()
	fmt.Printf("send ops: %d, unpack ops: %d\n", snap.SendOps, snap.UnpackOps)
}

// identitySerde copies bytes straight through, standing in for a codelet's
// compiled serde plug-in in this demo.
type identitySerde struct{}

func (identitySerde) Serialize(data []byte, out []byte) (int, error) {
	return copy(out, data), nil
}

func (identitySerde) Deserialize(wire []byte, data []byte) (int, error) {
	return copy(data, wire), nil
}

func parseSize(s string) (uintptr, error) {
	mult := uintptr(1)
	n := len(s)
	if n == 0 {
		return 0, fmt.Errorf("empty size")
	}
	switch s[n-1] {
	case 'K', 'k':
		mult = 1024
		s = s[:n-1]
	case 'M', 'm':
		mult = 1024 * 1024
		s = s[:n-1]
	case 'G', 'g':
		mult = 1024 * 1024 * 1024
		s = s[:n-1]
	}
	var val uintptr
	if _, err := fmt.Sscanf(s, "%d", &val); err != nil {
		return 0, err
	}
	return val * mult, nil
}
