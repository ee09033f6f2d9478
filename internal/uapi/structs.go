// Package uapi defines the fixed-size, C-struct-compatible wire formats
// exchanged over the IPC control plane (spec.md §4.6) and the LCM socket
// (spec.md §4.7), grounded on jbpf_io_ipc_msg.h and jbpf_lcm_ipc.h. Every
// struct here is meant to be marshaled with a fixed byte layout so a
// secondary peer compiled from a different source tree still agrees on
// field offsets; see marshal.go for the manual binary.LittleEndian
// encode/decode pairs and the compile-time size assertions below.
package uapi

import (
	"unsafe"

	"github.com/ehrlich-b/jbpfio/internal/constants"
)

// IPCMsgType tags the payload carried by an IPCMsg, mirroring
// jbpf_io_ipc_msg_type.
type IPCMsgType uint32

const (
	IPCMsgRegReq IPCMsgType = iota
	IPCMsgRegResp
	IPCMsgDeregReq
	IPCMsgDeregResp
	IPCMsgChanCreateReq
	IPCMsgChanCreateResp
	IPCMsgChanDestroy
	IPCMsgChanFindReq
	IPCMsgChanFindResp
)

// ChanStatus mirrors jbpf_io_ipc_chan_status.
type ChanStatus uint32

const (
	StatusSuccess ChanStatus = iota
	StatusFail
)

// MemNameLen is the fixed length of the shared-memory name a primary hands
// back to a secondary during registration.
const MemNameLen = 64

// RegReq is a secondary peer's registration request: how large an arena
// it needs mapped.
type RegReq struct {
	Status    uint32
	_         uint32 // padding to keep AllocSize 8-byte aligned
	AllocSize uint64
}

var _ [16]byte = [unsafe.Sizeof(RegReq{})]byte{}

// RegResp is the primary's answer: where the shared arena was mapped, how
// large it actually ended up (after huge-page rounding), and its name so
// the secondary can open the same backing file.
type RegResp struct {
	Status            uint32
	_                 uint32
	BaseAddr          uint64
	AdjustedAllocSize uint64
	MemName           [MemNameLen]byte
}

var _ [MemNameLen + 24]byte = [unsafe.Sizeof(RegResp{})]byte{}

// ChanRequest describes the channel a peer wants created, carried inside
// ChanCreateReq.
type ChanRequest struct {
	StreamID    [constants.StreamIDLen]byte
	Direction   uint8
	_           [3]byte
	Priority    uint32
	ElementSize uint32
	MaxEntries  uint32
	SerdeLen    uint32
}

var _ [36]byte = [unsafe.Sizeof(ChanRequest{})]byte{}

// ChanCreateReq wraps a ChanRequest as a top-level message payload.
type ChanCreateReq struct {
	Request ChanRequest
}

// ChanCreateResp returns the interned handle for a newly created channel,
// or a Fail status.
type ChanCreateResp struct {
	Handle uint64
	Status uint32
	_      uint32
}

var _ [16]byte = [unsafe.Sizeof(ChanCreateResp{})]byte{}

// ChanDestroy requests destruction of the channel named by Handle.
type ChanDestroy struct {
	Handle uint64
}

var _ [8]byte = [unsafe.Sizeof(ChanDestroy{})]byte{}

// ChanFindReq looks up a channel by stream id in one direction.
type ChanFindReq struct {
	StreamID [constants.StreamIDLen]byte
	IsOutput uint8
	_        [7]byte
}

var _ [24]byte = [unsafe.Sizeof(ChanFindReq{})]byte{}

// ChanFindResp returns the handle found, or a Fail status if none existed.
type ChanFindResp struct {
	Handle uint64
	Status uint32
	_      uint32
}

var _ [16]byte = [unsafe.Sizeof(ChanFindResp{})]byte{}

// LCMReqType mirrors jbpf_lcm_ipc_msg_type: the two codeletset lifecycle
// operations the LCM socket accepts.
type LCMReqType uint32

const (
	LCMReqCodeletSetLoad LCMReqType = iota
	LCMReqCodeletSetUnload
)

// LCMPathLen is the fixed length of a codeletset config path or id
// embedded in an LCM request, matching the C original's fixed-size
// request framing (no length-prefixed strings over this socket).
const LCMPathLen = 256

// LCMOutcome mirrors the req/resp outcome field jbpf_lcm_ipc_server_start
// sets from its load/unload callback's return value.
type LCMOutcome uint32

const (
	LCMOutcomeSuccess LCMOutcome = iota
	LCMOutcomeFail
)

// LCMReq is the fixed-size request frame sent to the LCM server.
type LCMReq struct {
	MsgType LCMReqType
	_       uint32
	Path    [LCMPathLen]byte
}

var _ [LCMPathLen + 8]byte = [unsafe.Sizeof(LCMReq{})]byte{}

// LCMResp is the fixed-size response frame, carrying an error message on
// failure.
type LCMResp struct {
	Outcome LCMOutcome
	_       uint32
	ErrMsg  [constants.LCMErrMsgLen]byte
}

var _ [constants.LCMErrMsgLen + 8]byte = [unsafe.Sizeof(LCMResp{})]byte{}
