package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/ehrlich-b/jbpfio/internal/arena"
	"github.com/ehrlich-b/jbpfio/internal/constants"
	"github.com/ehrlich-b/jbpfio/internal/uapi"
)

// negotiateAddrBase is the first virtual address the primary tries to
// place a secondary's shared arena at; each retry shifts by 1024 arena
// blocks (2 GiB) so a collision with one peer's existing mapping doesn't
// repeat for the next.
const negotiateAddrBase = uintptr(0x7f0000000000)

// handleRegister runs the registration handshake for one freshly accepted
// connection: read the secondary's RegReq, try MAP_FIXED_NOREPLACE at a
// sequence of candidate addresses (recording each attempt), and reply
// with a RegResp naming wherever it actually landed.
func (s *Server) handleRegister(p *PeerCtx) error {
	p.setState(RegStateNegotiating)

	f, err := ReadFrame(p.Conn)
	if err != nil {
		return fmt.Errorf("ipc: reading registration request: %w", err)
	}
	if f.Type != uapi.IPCMsgRegReq {
		return fmt.Errorf("ipc: expected RegReq, got message type %d", f.Type)
	}
	var req uapi.RegReq
	if err := uapi.Unmarshal(f.Payload, &req); err != nil {
		return fmt.Errorf("ipc: decoding RegReq: %w", err)
	}

	a, resp, err := s.negotiateArena(p, uintptr(req.AllocSize))
	if err != nil {
		failResp := uapi.RegResp{Status: uint32(uapi.StatusFail)}
		_ = WriteFrame(p.Conn, Frame{Type: uapi.IPCMsgRegResp, Payload: uapi.Marshal(&failResp)})
		return err
	}

	p.Arena = a
	p.setState(RegStateRegistered)

	if err := WriteFrame(p.Conn, Frame{Type: uapi.IPCMsgRegResp, Payload: uapi.Marshal(resp)}); err != nil {
		return fmt.Errorf("ipc: sending RegResp: %w", err)
	}
	return nil
}

// negotiateArena tries up to constants.MaxTryAttempts fixed addresses,
// recording each attempt in p's attempt log, before giving up.
func (s *Server) negotiateArena(p *PeerCtx, size uintptr) (*arena.Arena, *uapi.RegResp, error) {
	name := fmt.Sprintf("jbpfio-peer-%p", p)

	var lastErr error
	for i := 0; i < constants.MaxTryAttempts; i++ {
		addr := negotiateAddrBase + uintptr(i)*constants.ArenaBlockSize*1024

		a, err := arena.Allocate(arena.Options{
			Size:       size,
			SharedName: name,
			FixedAddr:  addr,
			UseSharedMem: true,
		}, s.ownerID, s.metaDir)
		if err != nil {
			p.recordAttempt(addr, size, false)
			if errors.Is(err, syscall.EEXIST) {
				lastErr = err
				continue
			}
			lastErr = err
			continue
		}

		p.recordAttempt(addr, size, true)
		resp := &uapi.RegResp{
			Status:            uint32(uapi.StatusSuccess),
			BaseAddr:          uint64(a.Mapping().Addr()),
			AdjustedAllocSize: uint64(a.Mapping().Size()),
		}
		copy(resp.MemName[:], name)
		return a, resp, nil
	}

	return nil, nil, fmt.Errorf("ipc: exhausted %d address negotiation attempts: %w", constants.MaxTryAttempts, lastErr)
}

// handleDeregister answers a DeregReq with an immediate DeregResp; the
// caller is expected to close the connection afterward.
func handleDeregister(conn io.Writer) error {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, uint32(uapi.StatusSuccess))
	return WriteFrame(conn, Frame{Type: uapi.IPCMsgDeregResp, Payload: payload})
}
