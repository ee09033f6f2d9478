// Package ipc implements the control-plane protocol described in
// spec.md §4.6, grounded on jbpf_io_ipc.c: a primary listens on a stream
// socket opened with net.Listen (UNIX in practice; there is no AF_VSOCK
// support), negotiates a shared arena mapping with
// each connecting secondary at a mutually agreed virtual address, and
// thereafter accepts channel create/destroy/find requests framed as
// fixed-size messages.
//
// The C original drives its accept loop with epoll directly. This
// package uses net.Listener and one goroutine per connection instead --
// the idiomatic Go equivalent for a control plane handling at most a few
// dozen peer connections, where raw epoll buys nothing net/poll doesn't
// already give the runtime.
package ipc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ehrlich-b/jbpfio/internal/uapi"
)

// frameHeaderLen is the fixed prefix every message on the wire carries:
// a 4-byte message type tag. The payload length is implied by the tag,
// matching the C union's fixed total message size.
const frameHeaderLen = 4

// payloadSize returns the marshaled size of the payload a given message
// type carries, so ReadFrame knows how many more bytes to pull off the
// wire after the type tag.
func payloadSize(t uapi.IPCMsgType) (int, error) {
	switch t {
	case uapi.IPCMsgRegReq:
		return len(uapi.Marshal(&uapi.RegReq{})), nil
	case uapi.IPCMsgRegResp:
		return len(uapi.Marshal(&uapi.RegResp{})), nil
	case uapi.IPCMsgDeregReq:
		return 0, nil
	case uapi.IPCMsgDeregResp:
		return 4, nil
	case uapi.IPCMsgChanCreateReq:
		return len(uapi.Marshal(&uapi.ChanRequest{})), nil
	case uapi.IPCMsgChanCreateResp:
		return len(uapi.Marshal(&uapi.ChanCreateResp{})), nil
	case uapi.IPCMsgChanDestroy:
		return len(uapi.Marshal(&uapi.ChanDestroy{})), nil
	case uapi.IPCMsgChanFindReq:
		return len(uapi.Marshal(&uapi.ChanFindReq{})), nil
	case uapi.IPCMsgChanFindResp:
		return len(uapi.Marshal(&uapi.ChanFindResp{})), nil
	default:
		return 0, fmt.Errorf("ipc: unknown message type %d", t)
	}
}

// Frame is one message read off or about to be written to the control
// socket: a type tag plus its raw payload bytes.
type Frame struct {
	Type    uapi.IPCMsgType
	Payload []byte
}

// WriteFrame writes f's type tag followed by its payload to w.
func WriteFrame(w io.Writer, f Frame) error {
	header := make([]byte, frameHeaderLen)
	binary.LittleEndian.PutUint32(header, uint32(f.Type))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("ipc: write frame header: %w", err)
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("ipc: write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one full message from r, blocking until the type tag
// and its entire (type-determined) payload have arrived.
func ReadFrame(r io.Reader) (Frame, error) {
	header := make([]byte, frameHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, err
	}
	msgType := uapi.IPCMsgType(binary.LittleEndian.Uint32(header))

	size, err := payloadSize(msgType)
	if err != nil {
		return Frame{}, err
	}
	payload := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("ipc: read frame payload: %w", err)
		}
	}
	return Frame{Type: msgType, Payload: payload}, nil
}
