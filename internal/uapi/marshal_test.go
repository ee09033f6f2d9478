package uapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegReqRoundTrip(t *testing.T) {
	r := &RegReq{Status: uint32(StatusSuccess), AllocSize: 1 << 20}
	buf := Marshal(r)

	var out RegReq
	require.NoError(t, Unmarshal(buf, &out))
	require.Equal(t, r.Status, out.Status)
	require.Equal(t, r.AllocSize, out.AllocSize)
}

func TestRegRespRoundTrip(t *testing.T) {
	r := &RegResp{Status: uint32(StatusSuccess), BaseAddr: 0x7f0000000000, AdjustedAllocSize: 1 << 21}
	copy(r.MemName[:], "jbpfio-arena-0")
	buf := Marshal(r)

	var out RegResp
	require.NoError(t, Unmarshal(buf, &out))
	require.Equal(t, r.BaseAddr, out.BaseAddr)
	require.Equal(t, r.AdjustedAllocSize, out.AdjustedAllocSize)
	require.Equal(t, r.MemName, out.MemName)
}

func TestChanCreateRespRoundTripViaDirectMarshal(t *testing.T) {
	r := &ChanCreateResp{Handle: 42, Status: uint32(StatusSuccess)}
	buf := Marshal(r)

	var out ChanCreateResp
	require.NoError(t, Unmarshal(buf, &out))
	require.Equal(t, r.Handle, out.Handle)
	require.Equal(t, r.Status, out.Status)
}

func TestUnmarshalRejectsShortBuffer(t *testing.T) {
	var out RegReq
	require.ErrorIs(t, Unmarshal([]byte{1, 2, 3}, &out), ErrInsufficientData)
}
