package segalloc_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/mvyskoc/segalloc/arena"
	"github.com/mvyskoc/segalloc/pool"
	"github.com/mvyskoc/segalloc/segalloc"
)

func newEngine(t *testing.T) (*segalloc.Engine, *arena.Arena) {
	t.Helper()
	a, err := arena.New(128 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	e := segalloc.New(a)
	e.Init()
	return e, a
}

// TestOwnerResolution mirrors spec.md §8's S3: allocate one of each
// small class plus one large request, release in reverse order, then
// check for zero errors.
func TestOwnerResolution(t *testing.T) {
	e, _ := newEngine(t)

	sizes := []uint32{16, 32, 48, 64, 128, 269, 578, 2000}
	var addrs []arena.Addr
	for _, n := range sizes {
		addr, err := e.Allocate(n)
		require.NoError(t, err)
		require.NotEqual(t, arena.Null, addr)
		addrs = append(addrs, addr)
	}

	for i := len(addrs) - 1; i >= 0; i-- {
		e.Release(addrs[i])
	}

	report := e.Check(true)
	require.True(t, report.OK(), "%v", report.Errors)
}

func TestAllocateZeroReturnsNull(t *testing.T) {
	e, _ := newEngine(t)
	addr, err := e.Allocate(0)
	require.NoError(t, err)
	require.Equal(t, arena.Null, addr)
}

// TestCallocZeroesMemory is spec.md §8's P8.
func TestCallocZeroesMemory(t *testing.T) {
	e, a := newEngine(t)

	addr, err := e.Allocate(64)
	require.NoError(t, err)
	buf := unsafe.Slice((*byte)(a.Ptr(addr)), 64)
	for i := range buf {
		buf[i] = 0xff
	}
	e.Release(addr)

	addr, err = e.Calloc(8, 8)
	require.NoError(t, err)
	buf = unsafe.Slice((*byte)(a.Ptr(addr)), 64)
	for _, b := range buf {
		require.Equal(t, byte(0), b)
	}
}

// TestResizeShrinkWithinCapacityKeepsPointer is spec.md §8's P9 for the
// small-pool path.
func TestResizeShrinkWithinCapacityKeepsPointer(t *testing.T) {
	e, a := newEngine(t)

	addr, err := e.Allocate(50) // class 64
	require.NoError(t, err)
	buf := unsafe.Slice((*byte)(a.Ptr(addr)), 50)
	for i := range buf {
		buf[i] = byte(i)
	}

	resized, err := e.Resize(addr, 60)
	require.NoError(t, err)
	require.Equal(t, addr, resized)

	buf = unsafe.Slice((*byte)(a.Ptr(resized)), 50)
	for i := range buf {
		require.Equal(t, byte(i), buf[i])
	}
}

// TestResizeSmallToLargeFreesOldSlot pins DESIGN.md's Open Question
// decision 3: unlike the source this design is drawn from, crossing
// from a small slot into the large allocator frees the old slot.
func TestResizeSmallToLargeFreesOldSlot(t *testing.T) {
	e, _ := newEngine(t)

	addr, err := e.Allocate(64)
	require.NoError(t, err)

	resized, err := e.Resize(addr, 2000)
	require.NoError(t, err)
	require.NotEqual(t, addr, resized)

	report := e.Check(true)
	require.True(t, report.OK(), "%v", report.Errors)

	classIdx, ok := classIndexFor(64)
	require.True(t, ok)
	for _, ch := range report.Classes[classIdx].Chunks {
		require.Equal(t, uint32(0), ch.Occupied)
	}
}

func TestResizeToZeroReturnsOriginalPointer(t *testing.T) {
	e, _ := newEngine(t)
	addr, err := e.Allocate(64)
	require.NoError(t, err)

	resized, err := e.Resize(addr, 0)
	require.NoError(t, err)
	require.Equal(t, addr, resized)
}

func classIndexFor(n uint32) (int, bool) {
	return pool.ClassFor(n)
}
