package largealloc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvyskoc/segalloc/arena"
	"github.com/mvyskoc/segalloc/largealloc"
)

func newHeap(t *testing.T) (*largealloc.Heap, *arena.Arena) {
	t.Helper()
	a, err := arena.New(64 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	h := largealloc.New(a)
	h.Init()
	return h, a
}

func TestBlockSize(t *testing.T) {
	require.Equal(t, uint32(largealloc.MinLargeBlock), largealloc.BlockSize(1))
	require.Equal(t, uint32(largealloc.MinLargeBlock), largealloc.BlockSize(256))
	require.Equal(t, uint32(2016), largealloc.BlockSize(2000))
}

func TestAllocateThenReleaseLeavesOneFreeBlock(t *testing.T) {
	h, _ := newHeap(t)

	bp, err := h.Allocate(1024)
	require.NoError(t, err)
	require.NotEqual(t, arena.Null, bp)

	h.Release(bp)

	chunks := h.Diagnose()
	require.Len(t, chunks, 1)
	// prologue + one big free block + epilogue
	require.Len(t, chunks[0].Blocks, 3)
	require.False(t, chunks[0].Blocks[1].Alloc)
	require.True(t, chunks[0].Blocks[1].FooterMatches)
}

// TestSplitAndCoalesce mirrors spec.md §8's S2 at smaller scale: three
// adjacent allocations from the same chunk, freed in an order that
// exercises three of the four coalesce cases (both neighbors allocated,
// successor free, both free).
func TestSplitAndCoalesce(t *testing.T) {
	h, _ := newHeap(t)

	a1, err := h.Allocate(600)
	require.NoError(t, err)
	a2, err := h.Allocate(600)
	require.NoError(t, err)
	a3, err := h.Allocate(600)
	require.NoError(t, err)

	// both neighbors allocated: a2 joins the chunk's trailing remainder
	// as a second, disjoint free block.
	h.Release(a2)
	chunks := h.Diagnose()
	require.Equal(t, 2, countFree(chunks))

	// release a1: predecessor is the prologue (alloc), successor a2 is
	// free -> merges forward with a2. The trailing remainder is still
	// separate, so the count is unchanged.
	h.Release(a1)
	chunks = h.Diagnose()
	require.Equal(t, 2, countFree(chunks))

	// release a3: predecessor (merged a1+a2) and successor (the
	// remainder) are both free -> all three merge into one block.
	h.Release(a3)
	chunks = h.Diagnose()
	require.Equal(t, 1, countFree(chunks))
	// the single free block should now span from right after the prologue
	// to right before the epilogue
	blocks := chunks[0].Blocks
	require.False(t, blocks[1].Alloc)
	require.True(t, blocks[2].Size == 0) // epilogue directly follows
}

func countFree(chunks []largealloc.ChunkSummary) int {
	n := 0
	for _, c := range chunks {
		for _, b := range c.Blocks {
			if !b.Alloc && b.Size > 0 {
				n++
			}
		}
	}
	return n
}

// TestResizeGrowsInPlace mirrors spec.md §8's S4: growing into a free
// physical successor keeps the same pointer instead of copying.
func TestResizeGrowsInPlace(t *testing.T) {
	h, _ := newHeap(t)

	a1, err := h.Allocate(700)
	require.NoError(t, err)
	a2, err := h.Allocate(700)
	require.NoError(t, err)
	h.Release(a2)

	resized, err := h.Resize(a1, 1000)
	require.NoError(t, err)
	require.Equal(t, a1, resized)
	require.GreaterOrEqual(t, h.BlockSizeOf(a1), largealloc.BlockSize(1000))
}

// TestResizeNeedsCopy mirrors spec.md §8's S5: the immediate neighbor
// is too small to satisfy the grown request, so Resize must report
// ErrNeedsCopy rather than silently failing.
func TestResizeNeedsCopy(t *testing.T) {
	h, _ := newHeap(t)

	a1, err := h.Allocate(700)
	require.NoError(t, err)
	a2, err := h.Allocate(700)
	require.NoError(t, err)
	_, err = h.Allocate(700)
	require.NoError(t, err)
	h.Release(a2)

	_, err = h.Resize(a1, 1500)
	require.ErrorIs(t, err, largealloc.ErrNeedsCopy)
}

func TestFreeListReciprocity(t *testing.T) {
	h, _ := newHeap(t)
	a1, _ := h.Allocate(64)
	a2, _ := h.Allocate(64)
	h.Release(a1)
	h.Release(a2)

	addrs := h.FreeListAddrs()
	require.Len(t, addrs, 1) // a1, a2 and the chunk's remainder all coalesce into one block
}
