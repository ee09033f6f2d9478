package ioqueue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/jbpfio/internal/arena"
	"github.com/ehrlich-b/jbpfio/internal/mempool"
)

const ownerID = 1

func newTestArena(t *testing.T) *arena.Arena {
	t.Helper()
	a, err := arena.Allocate(arena.Options{Size: 1 << 20}, ownerID, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Destroy() })
	return a
}

func TestReserveIsIdempotentForSameThread(t *testing.T) {
	a := newTestArena(t)
	q, err := New(a, ownerID, 32, 4, DirectionOutput)
	require.NoError(t, err)

	b1, err := q.Reserve(ownerID)
	require.NoError(t, err)
	b2, err := q.Reserve(ownerID)
	require.NoError(t, err)
	require.Equal(t, &b1[0], &b2[0])
}

func TestSubmitThenDequeue(t *testing.T) {
	a := newTestArena(t)
	q, err := New(a, ownerID, 32, 4, DirectionOutput)
	require.NoError(t, err)

	b, err := q.Reserve(ownerID)
	require.NoError(t, err)
	b[0] = 0x42

	require.NoError(t, q.Submit(ownerID))

	m, err := q.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, byte(0x42), m.Bytes()[0])

	require.NoError(t, q.ReleaseBuf(m, ownerID))
}

func TestSubmitWithoutReservationFails(t *testing.T) {
	a := newTestArena(t)
	q, err := New(a, ownerID, 32, 4, DirectionOutput)
	require.NoError(t, err)

	require.ErrorIs(t, q.Submit(ownerID), ErrNoReservation)
}

func TestDequeueOnEmptyRingReturnsNil(t *testing.T) {
	a := newTestArena(t)
	q, err := New(a, ownerID, 32, 4, DirectionOutput)
	require.NoError(t, err)

	m, err := q.Dequeue()
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestReleaseAllIsNoOpWithNoReservations(t *testing.T) {
	a := newTestArena(t)
	q, err := New(a, ownerID, 32, 4, DirectionOutput)
	require.NoError(t, err)

	require.NoError(t, q.ReleaseAll(ownerID))
}

func TestBatchReceiveReturnsActualCount(t *testing.T) {
	a := newTestArena(t)
	q, err := New(a, ownerID, 32, 4, DirectionOutput)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := q.Reserve(ownerID)
		require.NoError(t, err)
		require.NoError(t, q.Submit(ownerID))
	}

	out := make([]*mempool.Mbuf, 8)
	n, err := q.BatchReceive(out)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestDestroyReleasesOutstandingReservation(t *testing.T) {
	a := newTestArena(t)
	q, err := New(a, ownerID, 32, 4, DirectionOutput)
	require.NoError(t, err)

	_, err = q.Reserve(ownerID)
	require.NoError(t, err)

	require.NoError(t, q.Destroy(ownerID))
}
