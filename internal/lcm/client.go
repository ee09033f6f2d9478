package lcm

import (
	"fmt"
	"net"

	"github.com/ehrlich-b/jbpfio/internal/uapi"
)

// SendCodeletSetLoadReq dials path, sends a load request naming
// codeletsetPath, and returns the outcome. Grounded on
// jbpf_lcm_ipc_send_codeletset_load_req.
func SendCodeletSetLoadReq(path, codeletsetPath string) (uapi.LCMResp, error) {
	return sendReq(path, uapi.LCMReqCodeletSetLoad, codeletsetPath)
}

// SendCodeletSetUnloadReq dials path, sends an unload request naming
// codeletsetID, and returns the outcome. Grounded on
// jbpf_lcm_ipc_send_codeletset_unload_req.
func SendCodeletSetUnloadReq(path, codeletsetID string) (uapi.LCMResp, error) {
	return sendReq(path, uapi.LCMReqCodeletSetUnload, codeletsetID)
}

func sendReq(path string, msgType uapi.LCMReqType, payload string) (uapi.LCMResp, error) {
	if len(payload) >= uapi.LCMPathLen {
		return uapi.LCMResp{}, fmt.Errorf("lcm: path %q exceeds %d bytes", payload, uapi.LCMPathLen-1)
	}

	conn, err := net.Dial("unix", path)
	if err != nil {
		return uapi.LCMResp{}, fmt.Errorf("lcm: dial %s: %w", path, err)
	}
	defer conn.Close()

	var req uapi.LCMReq
	req.MsgType = msgType
	copy(req.Path[:], payload)

	if err := WriteReq(conn, req); err != nil {
		return uapi.LCMResp{}, err
	}
	return ReadResp(conn)
}
