package mempool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/jbpfio/internal/arena"
)

const ownerID = 1

func newTestArena(t *testing.T) *arena.Arena {
	t.Helper()
	a, err := arena.Allocate(arena.Options{Size: 1 << 20}, ownerID, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Destroy() })
	return a
}

func TestAllocReturnsDistinctBuffersUpToCapacity(t *testing.T) {
	a := newTestArena(t)
	p, err := New(a, ownerID, 64, 4)
	require.NoError(t, err)

	seen := make(map[*mbuf]bool)
	for i := 0; i < 4; i++ {
		m, err := p.Alloc()
		require.NoError(t, err)
		require.Len(t, m.Bytes(), 64)
		require.False(t, seen[m])
		seen[m] = true
	}

	_, err = p.Alloc()
	require.ErrorIs(t, err, ErrPoolEmpty)
}

func TestReleaseReturnsToFreeRingImmediately(t *testing.T) {
	a := newTestArena(t)
	p, err := New(a, ownerID, 64, 2)
	require.NoError(t, err)

	m, err := p.Alloc()
	require.NoError(t, err)
	require.NoError(t, p.Release(m, ownerID))

	m2, err := p.Alloc()
	require.NoError(t, err)
	require.Same(t, m, m2)
}

func TestReleaseByNonOwnerAlsoReturnsToFreeRing(t *testing.T) {
	a := newTestArena(t)
	p, err := New(a, ownerID, 64, 1)
	require.NoError(t, err)

	m, err := p.Alloc()
	require.NoError(t, err)

	const otherThread = 2
	require.NoError(t, p.Release(m, otherThread))

	m2, err := p.Alloc()
	require.NoError(t, err)
	require.Same(t, m, m2)
}

func TestRefCountKeepsBufferAliveUntilLastRelease(t *testing.T) {
	a := newTestArena(t)
	p, err := New(a, ownerID, 64, 2)
	require.NoError(t, err)

	m, err := p.Alloc()
	require.NoError(t, err)
	m.Ref()

	require.NoError(t, p.Release(m, ownerID))
	_, err = p.Alloc()
	require.Error(t, err, "buffer still held by second reference")

	require.NoError(t, p.Release(m, ownerID))
	m2, err := p.Alloc()
	require.NoError(t, err)
	require.Same(t, m, m2)
}

func TestDestroyByNonOwnerFails(t *testing.T) {
	a := newTestArena(t)
	p, err := New(a, ownerID, 64, 2)
	require.NoError(t, err)

	require.Error(t, p.Destroy(2))
	require.False(t, p.Destroyed())
}

func TestDestroyWhileIdleTearsDownImmediately(t *testing.T) {
	a := newTestArena(t)
	p, err := New(a, ownerID, 64, 2)
	require.NoError(t, err)

	require.NoError(t, p.Destroy(ownerID))
	require.True(t, p.Destroyed())

	_, err = p.Alloc()
	require.ErrorIs(t, err, ErrPoolEmpty)
}

// TestDestroyUnderReferenceDefersTeardown covers spec scenario §8.5:
// Destroy must not tear the pool down while a buffer is still
// outstanding. Teardown happens only once the last outstanding buffer
// is released.
func TestDestroyUnderReferenceDefersTeardown(t *testing.T) {
	a := newTestArena(t)
	p, err := New(a, ownerID, 64, 2)
	require.NoError(t, err)

	m, err := p.Alloc()
	require.NoError(t, err)

	require.NoError(t, p.Destroy(ownerID))
	require.False(t, p.Destroyed(), "teardown must wait for the outstanding buffer")

	_, err = p.Alloc()
	require.ErrorIs(t, err, ErrPoolEmpty, "no allocation once Destroy has begun")

	require.NoError(t, p.Release(m, ownerID))
	require.True(t, p.Destroyed(), "last release must complete teardown")
}
