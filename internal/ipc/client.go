package ipc

import (
	"fmt"
	"net"

	"github.com/ehrlich-b/jbpfio/internal/arena"
	"github.com/ehrlich-b/jbpfio/internal/constants"
	"github.com/ehrlich-b/jbpfio/internal/uapi"
)

// Client is the secondary side of the control plane: it dials the
// primary's control socket, registers to obtain a shared arena, and
// thereafter sends channel create/destroy/find requests, grounded on
// jbpf_io_ipc_register and the request senders in jbpf_io_ipc.c.
type Client struct {
	conn    net.Conn
	Arena   *arena.Arena
	memName string
}

// Dial connects to the primary at network/address, runs the registration
// handshake for an arena of at least allocSize bytes, and attaches to the
// resulting shared mapping.
func Dial(network, address string, allocSize uint64, ownerID int, metaDir string) (*Client, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s %s: %w", network, address, err)
	}

	req := uapi.RegReq{AllocSize: allocSize}
	if err := WriteFrame(conn, Frame{Type: uapi.IPCMsgRegReq, Payload: uapi.Marshal(&req)}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ipc: sending RegReq: %w", err)
	}

	f, err := ReadFrame(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ipc: reading RegResp: %w", err)
	}
	if f.Type != uapi.IPCMsgRegResp {
		conn.Close()
		return nil, fmt.Errorf("ipc: expected RegResp, got message type %d", f.Type)
	}
	var resp uapi.RegResp
	if err := uapi.Unmarshal(f.Payload, &resp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ipc: decoding RegResp: %w", err)
	}
	if uapi.ChanStatus(resp.Status) != uapi.StatusSuccess {
		conn.Close()
		return nil, fmt.Errorf("ipc: registration rejected by primary")
	}

	name := cString(resp.MemName[:])
	a, err := arena.Attach(name, ownerID, metaDir)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ipc: attaching negotiated arena %s: %w", name, err)
	}

	return &Client{conn: conn, Arena: a, memName: name}, nil
}

// Close sends a deregistration request and closes the connection.
func (c *Client) Close() error {
	if err := WriteFrame(c.conn, Frame{Type: uapi.IPCMsgDeregReq}); err == nil {
		_, _ = ReadFrame(c.conn)
	}
	return c.conn.Close()
}

// CreateChannel asks the primary to create a channel and returns its
// interned handle.
func (c *Client) CreateChannel(req uapi.ChanRequest) (uint64, error) {
	if err := WriteFrame(c.conn, Frame{Type: uapi.IPCMsgChanCreateReq, Payload: uapi.Marshal(&req)}); err != nil {
		return 0, fmt.Errorf("ipc: sending ChanCreateReq: %w", err)
	}
	f, err := ReadFrame(c.conn)
	if err != nil {
		return 0, fmt.Errorf("ipc: reading ChanCreateResp: %w", err)
	}
	var resp uapi.ChanCreateResp
	if err := uapi.Unmarshal(f.Payload, &resp); err != nil {
		return 0, fmt.Errorf("ipc: decoding ChanCreateResp: %w", err)
	}
	if uapi.ChanStatus(resp.Status) != uapi.StatusSuccess {
		return 0, fmt.Errorf("ipc: channel creation rejected by primary")
	}
	return resp.Handle, nil
}

// DestroyChannel asks the primary to tear down the channel named by
// handle.
func (c *Client) DestroyChannel(handle uint64) error {
	req := uapi.ChanDestroy{Handle: handle}
	return WriteFrame(c.conn, Frame{Type: uapi.IPCMsgChanDestroy, Payload: uapi.Marshal(&req)})
}

// FindChannel asks the primary whether a channel with streamID exists in
// the given direction, returning its handle if so.
func (c *Client) FindChannel(streamID [constants.StreamIDLen]byte, isOutput bool) (uint64, bool, error) {
	req := uapi.ChanFindReq{StreamID: streamID}
	if isOutput {
		req.IsOutput = 1
	}
	if err := WriteFrame(c.conn, Frame{Type: uapi.IPCMsgChanFindReq, Payload: uapi.Marshal(&req)}); err != nil {
		return 0, false, fmt.Errorf("ipc: sending ChanFindReq: %w", err)
	}
	f, err := ReadFrame(c.conn)
	if err != nil {
		return 0, false, fmt.Errorf("ipc: reading ChanFindResp: %w", err)
	}
	var resp uapi.ChanFindResp
	if err := uapi.Unmarshal(f.Payload, &resp); err != nil {
		return 0, false, fmt.Errorf("ipc: decoding ChanFindResp: %w", err)
	}
	if uapi.ChanStatus(resp.Status) != uapi.StatusSuccess {
		return 0, false, nil
	}
	return resp.Handle, true, nil
}

// cString trims a fixed-size NUL-padded byte array down to its string
// contents.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
