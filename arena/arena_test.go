package arena_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvyskoc/segalloc/arena"
)

func TestExtendAdvancesHighWaterMark(t *testing.T) {
	a, err := arena.New(1 << 20)
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, arena.Addr(0), a.Lo())
	require.Equal(t, arena.Addr(0), a.Hi())

	first, err := a.Extend(64)
	require.NoError(t, err)
	require.Equal(t, arena.Addr(0), first)
	require.Equal(t, uint32(64), a.Heapsize())

	second, err := a.Extend(128)
	require.NoError(t, err)
	require.Equal(t, arena.Addr(64), second)
	require.Equal(t, arena.Addr(192), a.Hi())
}

func TestExtendPastReservationFails(t *testing.T) {
	a, err := arena.New(4096)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Extend(4096)
	require.NoError(t, err)

	_, err = a.Extend(1)
	require.ErrorIs(t, err, arena.ErrOutOfMemory)
}

func TestGetAndPtrRoundTrip(t *testing.T) {
	a, err := arena.New(1 << 16)
	require.NoError(t, err)
	defer a.Close()

	addr, err := a.Extend(8)
	require.NoError(t, err)

	*(*uint64)(a.Ptr(addr)) = 0xdeadbeef

	var p *uint64
	a.Get(addr, &p)
	require.Equal(t, uint64(0xdeadbeef), *p)
}

func TestReset(t *testing.T) {
	a, err := arena.New(1 << 16)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Extend(4096)
	require.NoError(t, err)
	require.NotEqual(t, uint32(0), a.Heapsize())

	a.Reset()
	require.Equal(t, uint32(0), a.Heapsize())
}
