package uapi

// Socket addressing defaults for the IPC control plane and LCM server,
// grounded on jbpf_io.c's default config and jbpf_lcm_ipc.h.
const (
	DefaultIPCSocketName = "jbpf_io_ipc.sock"
	DefaultLCMSocketName = "jbpf_lcm_ipc.sock"
)
