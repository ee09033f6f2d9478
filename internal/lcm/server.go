package lcm

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/jbpfio/internal/constants"
	"github.com/ehrlich-b/jbpfio/internal/interfaces"
	"github.com/ehrlich-b/jbpfio/internal/logging"
	"github.com/ehrlich-b/jbpfio/internal/uapi"
)

// timeNow is a seam so tests can shrink the effective poll timeout
// without waiting on a real 1s clock tick.
var timeNow = time.Now

// Config holds the two lifecycle callbacks the server dispatches
// codeletset load/unload requests to, and an optional logger.
type Config struct {
	Load   interfaces.LoadFunc
	Unload interfaces.UnloadFunc
	Logger *logging.Logger
}

// Server is a UNIX-only lifecycle-management listener. Its accept loop
// blocks on the listener with a 1s deadline against an is_running atomic,
// preserving the C original's EpollWait-timeout-plus-flag cancellation
// idiom verbatim rather than switching to a context.Context cancellation
// style, since the spec calls this out as a behavior to keep unchanged.
type Server struct {
	ln     *net.UnixListener
	cfg    Config
	log    *logging.Logger
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewServer binds a UNIX socket at path and returns a Server ready to
// Start.
func NewServer(path string, cfg Config) (*Server, error) {
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	return &Server{ln: ln, cfg: cfg, log: log}, nil
}

// Start begins accepting connections on its own goroutine, returning
// immediately.
func (s *Server) Start() {
	s.running.Store(true)
	s.wg.Add(1)
	go s.acceptLoop()
}

// Stop flips the is_running flag and waits for the accept loop to notice
// within one poll tick and exit.
func (s *Server) Stop() error {
	s.running.Store(false)
	err := s.ln.Close()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for s.running.Load() {
		s.ln.SetDeadline(timeNow().Add(constants.ControlPollTimeout))
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if isTimeout(err) {
				continue
			}
			s.log.Warn("lcm: accept failed", "err", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	req, err := ReadReq(conn)
	if err != nil {
		s.log.Debug("lcm: malformed request, closing without reply", "err", err)
		return
	}

	var resp uapi.LCMResp
	switch req.MsgType {
	case uapi.LCMReqCodeletSetLoad:
		resp = s.dispatch(s.cfg.Load, req)
	case uapi.LCMReqCodeletSetUnload:
		resp = s.dispatch(s.cfg.Unload, req)
	default:
		s.log.Warn("lcm: unknown request type, closing without reply", "type", req.MsgType)
		return
	}

	if err := WriteResp(conn, resp); err != nil {
		s.log.Warn("lcm: writing response failed", "err", err)
	}
}

func (s *Server) dispatch(fn func([]byte) error, req uapi.LCMReq) uapi.LCMResp {
	if fn == nil {
		return failResp("lcm: no handler configured")
	}
	if err := fn(cTrim(req.Path[:])); err != nil {
		return failResp(err.Error())
	}
	return uapi.LCMResp{Outcome: uapi.LCMOutcomeSuccess}
}

func failResp(msg string) uapi.LCMResp {
	var resp uapi.LCMResp
	resp.Outcome = uapi.LCMOutcomeFail
	copy(resp.ErrMsg[:], msg)
	return resp
}

func cTrim(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}
