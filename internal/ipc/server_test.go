package ipc

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ehrlich-b/jbpfio/internal/constants"
	"github.com/ehrlich-b/jbpfio/internal/uapi"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "ctrl.sock")
	s, err := Listen("unix", sockPath, 1, dir)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go s.Serve()
	t.Cleanup(func() { s.Close() })
	return s, sockPath
}

func TestClientServerRegistrationRoundTrip(t *testing.T) {
	_, sockPath := newTestServer(t)

	c, err := Dial("unix", sockPath, 4096, 2, filepath.Dir(sockPath))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if c.Arena == nil {
		t.Fatal("expected a negotiated arena")
	}
	if c.Arena.Mapping().Size() == 0 {
		t.Fatal("expected nonzero mapping size")
	}
}

func TestClientChannelCreateFindDestroyRoundTrip(t *testing.T) {
	_, sockPath := newTestServer(t)

	c, err := Dial("unix", sockPath, 1<<20, 3, filepath.Dir(sockPath))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	var sid [constants.StreamIDLen]byte
	copy(sid[:], "test-stream-0001")

	handle, err := c.CreateChannel(uapi.ChanRequest{
		StreamID:    sid,
		Direction:   0,
		Priority:    1,
		ElementSize: 64,
		MaxEntries:  8,
	})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	if handle == 0 {
		t.Fatal("expected a nonzero handle")
	}

	foundHandle, ok, err := c.FindChannel(sid, false)
	if err != nil {
		t.Fatalf("FindChannel: %v", err)
	}
	if !ok {
		t.Fatal("expected to find the created channel")
	}
	if foundHandle != handle {
		t.Fatalf("found handle %d, want %d", foundHandle, handle)
	}

	if err := c.DestroyChannel(handle); err != nil {
		t.Fatalf("DestroyChannel: %v", err)
	}

	// Destruction is fire-and-forget from the client's point of view; give
	// the server goroutine a moment to process it before checking.
	time.Sleep(10 * time.Millisecond)

	if _, ok, err := c.FindChannel(sid, false); err == nil && ok {
		t.Fatal("expected destroyed channel to no longer be found")
	}
}
