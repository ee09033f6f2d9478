package lcm

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ehrlich-b/jbpfio/internal/interfaces"
)

func newTestServer(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "lcm.sock")
	s, err := NewServer(sockPath, cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	s.Start()
	t.Cleanup(func() { s.Stop() })
	return s, sockPath
}

func TestLoadRequestSuccess(t *testing.T) {
	var loadedPath string
	cfg := Config{
		Load: interfaces.LoadFunc(func(req []byte) error {
			loadedPath = string(req)
			return nil
		}),
	}
	_, sockPath := newTestServer(t, cfg)

	resp, err := SendCodeletSetLoadReq(sockPath, "/etc/jbpf/codeletset.yaml")
	if err != nil {
		t.Fatalf("SendCodeletSetLoadReq: %v", err)
	}
	if resp.Outcome != 0 {
		t.Fatalf("Outcome = %d, want success (0)", resp.Outcome)
	}
	if loadedPath != "/etc/jbpf/codeletset.yaml" {
		t.Fatalf("loadedPath = %q, want /etc/jbpf/codeletset.yaml", loadedPath)
	}
}

func TestLoadRequestFailurePropagatesErrMsg(t *testing.T) {
	cfg := Config{
		Load: interfaces.LoadFunc(func(req []byte) error {
			return fmt.Errorf("bad codeletset schema")
		}),
	}
	_, sockPath := newTestServer(t, cfg)

	resp, err := SendCodeletSetLoadReq(sockPath, "/etc/jbpf/bad.yaml")
	if err != nil {
		t.Fatalf("SendCodeletSetLoadReq: %v", err)
	}
	if resp.Outcome == 0 {
		t.Fatal("expected a failure outcome")
	}
	if got := string(cTrim(resp.ErrMsg[:])); got != "bad codeletset schema" {
		t.Fatalf("ErrMsg = %q, want %q", got, "bad codeletset schema")
	}
}

func TestUnloadRequestDispatchesToUnloadFunc(t *testing.T) {
	called := false
	cfg := Config{
		Unload: interfaces.UnloadFunc(func(req []byte) error {
			called = true
			return nil
		}),
	}
	_, sockPath := newTestServer(t, cfg)

	if _, err := SendCodeletSetUnloadReq(sockPath, "codeletset-1"); err != nil {
		t.Fatalf("SendCodeletSetUnloadReq: %v", err)
	}
	if !called {
		t.Fatal("expected Unload to be called")
	}
}

func TestMissingHandlerReturnsFailure(t *testing.T) {
	_, sockPath := newTestServer(t, Config{})

	resp, err := SendCodeletSetLoadReq(sockPath, "/etc/jbpf/codeletset.yaml")
	if err != nil {
		t.Fatalf("SendCodeletSetLoadReq: %v", err)
	}
	if resp.Outcome == 0 {
		t.Fatal("expected a failure outcome with no handler configured")
	}
}

func TestSendReqRejectsOverlongPath(t *testing.T) {
	_, sockPath := newTestServer(t, Config{})

	longPath := make([]byte, 300)
	for i := range longPath {
		longPath[i] = 'a'
	}
	if _, err := SendCodeletSetLoadReq(sockPath, string(longPath)); err == nil {
		t.Fatal("expected an error for an overlong path")
	}
}
