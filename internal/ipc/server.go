package ipc

import (
	"fmt"
	"net"
	"sync"

	"github.com/ehrlich-b/jbpfio/internal/channel"
	"github.com/ehrlich-b/jbpfio/internal/ioqueue"
	"github.com/ehrlich-b/jbpfio/internal/logging"
	"github.com/ehrlich-b/jbpfio/internal/uapi"
)

// Server is the primary side of the control plane: it listens for
// secondary connections, runs the registration handshake, and thereafter
// services each peer's channel create/destroy/find requests on its own
// goroutine, grounded on dipc_ctrl_thread's per-connection request loop.
type Server struct {
	ln      net.Listener
	ownerID int
	metaDir string
	log     *logging.Logger

	mu    sync.Mutex
	peers map[*PeerCtx]struct{}

	local *LocalQueue
}

// Listen starts a primary control-plane server on network/address (e.g.
// "unix", "/var/run/jbpfio/ctrl.sock"). Both are passed to net.Listen
// unchanged, so only the networks it supports can be used; there is no
// AF_VSOCK listener.
func Listen(network, address string, ownerID int, metaDir string) (*Server, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen %s %s: %w", network, address, err)
	}
	return &Server{
		ln:      ln,
		ownerID: ownerID,
		metaDir: metaDir,
		log:     logging.Default(),
		peers:   make(map[*PeerCtx]struct{}),
		local:   NewLocalQueue(),
	}, nil
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Local exposes the primary's local single-producer/single-consumer
// request queue for same-process channel operations that never need to
// cross the control socket.
func (s *Server) Local() *LocalQueue { return s.local }

// Serve accepts connections until the listener is closed, handling each
// on its own goroutine.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return err
		}
		p := newPeerCtx(conn)
		s.mu.Lock()
		s.peers[p] = struct{}{}
		s.mu.Unlock()
		go s.servePeer(p)
	}
}

// Close stops accepting connections and tears down every connected peer.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.mu.Lock()
	peers := make([]*PeerCtx, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		s.removePeer(p)
	}
	return err
}

func (s *Server) removePeer(p *PeerCtx) {
	s.mu.Lock()
	delete(s.peers, p)
	s.mu.Unlock()
	_ = p.Close()
}

// servePeer runs the registration handshake, then loops reading and
// dispatching channel requests until the connection closes or the peer
// deregisters, mirroring jbpf_io_ipc_handle_msg's switch over message
// type, with jbpf_io_ipc_remove_peer's cleanup on loss.
func (s *Server) servePeer(p *PeerCtx) {
	defer s.removePeer(p)

	if err := s.handleRegister(p); err != nil {
		s.log.Warn("ipc: registration failed", "err", err)
		return
	}

	for {
		f, err := ReadFrame(p.Conn)
		if err != nil {
			s.log.Debug("ipc: peer connection ended", "err", err)
			return
		}

		if err := s.dispatch(p, f); err != nil {
			s.log.Warn("ipc: dispatch failed", "msg_type", f.Type, "err", err)
		}
		if f.Type == uapi.IPCMsgDeregReq {
			return
		}
	}
}

func (s *Server) dispatch(p *PeerCtx, f Frame) error {
	switch f.Type {
	case uapi.IPCMsgDeregReq:
		return handleDeregister(p.Conn)
	case uapi.IPCMsgChanCreateReq:
		return s.handleChanCreate(p, f)
	case uapi.IPCMsgChanDestroy:
		return s.handleChanDestroy(p, f)
	case uapi.IPCMsgChanFindReq:
		return s.handleChanFind(p, f)
	default:
		return fmt.Errorf("ipc: unexpected message type %d from registered peer", f.Type)
	}
}

func (s *Server) handleChanCreate(p *PeerCtx, f Frame) error {
	var req uapi.ChanRequest
	if err := uapi.Unmarshal(f.Payload, &req); err != nil {
		return fmt.Errorf("decoding ChanRequest: %w", err)
	}

	dir := ioqueue.DirectionInput
	registry := p.Channels.In
	if req.Direction != 0 {
		dir = ioqueue.DirectionOutput
		registry = p.Channels.Out
	}

	var sid channel.StreamID
	copy(sid[:], req.StreamID[:])

	c, err := registry.Create(p.Arena, s.ownerID, channel.CreateOptions{
		StreamID:    sid,
		Direction:   dir,
		Priority:    int(req.Priority),
		ElementSize: int(req.ElementSize),
		MaxEntries:  int(req.MaxEntries),
	})

	resp := uapi.ChanCreateResp{Status: uint32(uapi.StatusSuccess)}
	if err != nil {
		resp.Status = uint32(uapi.StatusFail)
	} else {
		resp.Handle = internHandle(c)
	}
	return WriteFrame(p.Conn, Frame{Type: uapi.IPCMsgChanCreateResp, Payload: uapi.Marshal(&resp)})
}

func (s *Server) handleChanDestroy(p *PeerCtx, f Frame) error {
	var req uapi.ChanDestroy
	if err := uapi.Unmarshal(f.Payload, &req); err != nil {
		return fmt.Errorf("decoding ChanDestroy: %w", err)
	}
	c, ok := lookupHandle(req.Handle)
	if !ok {
		return fmt.Errorf("ipc: unknown channel handle %d", req.Handle)
	}
	registry := p.Channels.In
	if c.Direction == ioqueue.DirectionOutput {
		registry = p.Channels.Out
	}
	if err := registry.Destroy(c.StreamID, s.ownerID); err != nil {
		return err
	}
	forgetHandle(req.Handle)
	return nil
}

func (s *Server) handleChanFind(p *PeerCtx, f Frame) error {
	var req uapi.ChanFindReq
	if err := uapi.Unmarshal(f.Payload, &req); err != nil {
		return fmt.Errorf("decoding ChanFindReq: %w", err)
	}
	var sid channel.StreamID
	copy(sid[:], req.StreamID[:])

	registry := p.Channels.In
	if req.IsOutput != 0 {
		registry = p.Channels.Out
	}

	resp := uapi.ChanFindResp{Status: uint32(uapi.StatusFail)}
	if c, ok := registry.DenseContains(sid); ok {
		resp.Status = uint32(uapi.StatusSuccess)
		resp.Handle = internHandle(c)
	}
	return WriteFrame(p.Conn, Frame{Type: uapi.IPCMsgChanFindResp, Payload: uapi.Marshal(&resp)})
}
