// Package lcm implements the lifecycle-management socket described in
// spec.md §4.7, grounded on jbpf_lcm_ipc.c: a UNIX-only stream socket
// accepting fixed-size codeletset load/unload requests and replying with
// a fixed-size outcome frame. Unlike internal/ipc's control plane, this
// socket carries no shared-memory negotiation -- every request is
// self-contained.
package lcm

import (
	"fmt"
	"io"

	"github.com/ehrlich-b/jbpfio/internal/uapi"
)

// WriteReq writes req to w using uapi.LCMReq's fixed layout.
func WriteReq(w io.Writer, req uapi.LCMReq) error {
	_, err := w.Write(uapi.Marshal(&req))
	if err != nil {
		return fmt.Errorf("lcm: write request: %w", err)
	}
	return nil
}

// ReadReq reads one fixed-size uapi.LCMReq from r.
func ReadReq(r io.Reader) (uapi.LCMReq, error) {
	buf := make([]byte, lcmReqSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return uapi.LCMReq{}, err
	}
	var req uapi.LCMReq
	if err := uapi.Unmarshal(buf, &req); err != nil {
		return uapi.LCMReq{}, fmt.Errorf("lcm: decoding request: %w", err)
	}
	return req, nil
}

// WriteResp writes resp to w using uapi.LCMResp's fixed layout.
func WriteResp(w io.Writer, resp uapi.LCMResp) error {
	_, err := w.Write(uapi.Marshal(&resp))
	if err != nil {
		return fmt.Errorf("lcm: write response: %w", err)
	}
	return nil
}

// ReadResp reads one fixed-size uapi.LCMResp from r.
func ReadResp(r io.Reader) (uapi.LCMResp, error) {
	buf := make([]byte, lcmRespSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return uapi.LCMResp{}, err
	}
	var resp uapi.LCMResp
	if err := uapi.Unmarshal(buf, &resp); err != nil {
		return uapi.LCMResp{}, fmt.Errorf("lcm: decoding response: %w", err)
	}
	return resp, nil
}

var (
	lcmReqSize  = len(uapi.Marshal(&uapi.LCMReq{}))
	lcmRespSize = len(uapi.Marshal(&uapi.LCMResp{}))
)
