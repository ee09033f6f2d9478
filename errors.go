package jbpfio

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is a structured jbpfio error carrying the operation that failed,
// a high-level category, and (when applicable) the stream id and peer it
// concerns. Adapted from the teacher's ublk Error type: same Op/Code/Msg/
// Errno/Inner shape, generalized from device/queue identifiers to stream
// ids and peer addresses.
type Error struct {
	Op       string // Operation that failed (e.g. "ARENA_ALLOC", "CHAN_CREATE")
	StreamID string // Channel stream id, hex, empty if not applicable
	Peer     string // Peer address (socket path or vsock cid:port), empty if not applicable
	Code     ErrorCode
	Errno    syscall.Errno
	Msg      string
	Inner    error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.StreamID != "" {
		parts = append(parts, fmt.Sprintf("stream=%s", e.StreamID))
	}
	if e.Peer != "" {
		parts = append(parts, fmt.Sprintf("peer=%s", e.Peer))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("jbpfio: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("jbpfio: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Inner }

// Is reports whether target is either a matching *Error or a matching
// bare ErrorCode sentinel (for == comparisons against the Err* constants
// below).
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if code, ok := target.(ErrorCode); ok {
		return e.Code == code
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode is a high-level error category, every kind named in the I/O
// substrate's operations: pool exhaustion, unregistered thread, duplicate
// stream id, registry at capacity, handshake retries exhausted, peer
// loss, serde failure, arena allocation failure.
type ErrorCode string

// Error makes an ErrorCode usable as an error sentinel in errors.Is.
func (c ErrorCode) Error() string { return string(c) }

const (
	ErrCodeArenaExhausted     ErrorCode = "arena exhausted"
	ErrCodeArenaAllocFailed   ErrorCode = "arena allocation failed"
	ErrCodePoolExhausted      ErrorCode = "mempool exhausted"
	ErrCodeThreadUnregistered ErrorCode = "thread not registered"
	ErrCodeDuplicateStreamID  ErrorCode = "duplicate stream id"
	ErrCodeStreamNotFound     ErrorCode = "stream id not found"
	ErrCodeRegistryFull       ErrorCode = "channel registry at capacity"
	ErrCodeHandshakeExhausted ErrorCode = "address negotiation retries exhausted"
	ErrCodePeerLost           ErrorCode = "peer connection lost"
	ErrCodeSerdeFailed        ErrorCode = "serde plug-in failure"
	ErrCodeInvalidParameters  ErrorCode = "invalid parameters"
	ErrCodePermissionDenied   ErrorCode = "permission denied"
	ErrCodeTimeout            ErrorCode = "timeout"
	ErrCodeIOError            ErrorCode = "I/O error"
)

// NewError creates a new structured error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewErrorWithErrno creates a new structured error carrying a kernel
// errno.
func NewErrorWithErrno(op string, code ErrorCode, errno syscall.Errno) *Error {
	return &Error{Op: op, Code: code, Errno: errno, Msg: errno.Error()}
}

// NewStreamError creates a new error scoped to a specific channel stream
// id.
func NewStreamError(op string, streamID string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, StreamID: streamID, Code: code, Msg: msg}
}

// NewPeerError creates a new error scoped to a specific control-plane
// peer.
func NewPeerError(op string, peer string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Peer: peer, Code: code, Msg: msg}
}

// WrapError wraps an existing error with jbpfio context, mapping common
// syscall errnos to an ErrorCode the way the teacher's WrapError does.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if je, ok := inner.(*Error); ok {
		return &Error{
			Op:       op,
			StreamID: je.StreamID,
			Peer:     je.Peer,
			Code:     je.Code,
			Errno:    je.Errno,
			Msg:      je.Msg,
			Inner:    je.Inner,
		}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: ErrCodeIOError, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.ENOENT:
		return ErrCodeStreamNotFound
	case syscall.EEXIST:
		return ErrCodeDuplicateStreamID
	case syscall.EINVAL, syscall.E2BIG:
		return ErrCodeInvalidParameters
	case syscall.EPERM, syscall.EACCES:
		return ErrCodePermissionDenied
	case syscall.ENOMEM, syscall.ENOSPC:
		return ErrCodeArenaExhausted
	case syscall.ETIMEDOUT:
		return ErrCodeTimeout
	default:
		return ErrCodeIOError
	}
}

// IsCode reports whether err is (or wraps) a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsErrno reports whether err is (or wraps) a *Error carrying the given
// errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Errno == errno
	}
	return false
}
