// Package largealloc implements spec.md §4.4: the boundary-tag
// explicit free-list allocator for requests too large for the
// segregated pool. It is grounded on original_source/seg_list.c for
// the exact header/footer bit layout and offset arithmetic, and on the
// teacher's alloc2/simple.go for the Go idiom of doing that arithmetic
// against an arena-backed buffer through small get32/put32 accessors —
// see DESIGN.md.
package largealloc

import (
	"errors"

	"github.com/mvyskoc/segalloc/arena"
)

// ErrNeedsCopy is returned internally by Resize when a large block
// cannot be grown in place; segalloc.Engine handles it by allocating,
// copying, and freeing the old block, per spec.md §4.4's Resize case 4
// "otherwise" branch.
var ErrNeedsCopy = errors.New("largealloc: resize requires allocate-copy-free")

// Heap owns the boundary-tag free list and the diagnostic chain of
// large chunks. Like pool.Pool, it carries no lock of its own.
type Heap struct {
	arena     arena.Provider
	freeHead  arena.Addr
	chunkHead arena.Addr
}

// New creates a Heap over the given arena. Call Init before first use.
func New(a arena.Provider) *Heap {
	return &Heap{arena: a}
}

// Init resets the free list and diagnostic chunk chain to empty.
func (h *Heap) Init() {
	h.freeHead = arena.Null
	h.chunkHead = arena.Null
}

func (h *Heap) freeListInsert(bp arena.Addr) {
	h.setFreeNext(bp, h.freeHead)
	h.setFreePrev(bp, arena.Null)
	if h.freeHead != arena.Null {
		h.setFreePrev(h.freeHead, bp)
	}
	h.freeHead = bp
}

func (h *Heap) freeListRemove(bp arena.Addr) {
	next := h.freeNext(bp)
	prev := h.freePrev(bp)
	if prev != arena.Null {
		h.setFreeNext(prev, next)
	} else {
		h.freeHead = next
	}
	if next != arena.Null {
		h.setFreePrev(next, prev)
	}
}

// find implements spec.md §4.4's first-fit Find.
func (h *Heap) find(need uint32) arena.Addr {
	for cur := h.freeHead; cur != arena.Null; cur = h.freeNext(cur) {
		if h.size(cur) >= need {
			return cur
		}
	}
	return arena.Null
}

// place implements spec.md §4.4's Place: split off a remainder when
// there's enough slack to keep it a valid free block, otherwise absorb
// the whole free block into the allocation.
func (h *Heap) place(bp arena.Addr, need uint32) {
	total := h.size(bp)
	prevAlloc := h.isPrevAlloc(bp)
	h.freeListRemove(bp)
	if total-need >= MinLargeBlock {
		h.writeAlloc(bp, need, prevAlloc)
		rem := bp + arena.Addr(need)
		h.writeFree(rem, total-need, true)
		h.freeListInsert(rem)
	} else {
		h.writeAlloc(bp, total, prevAlloc)
		h.setNextPrevAlloc(bp, true)
	}
}

// Allocate implements spec.md §4.4's Allocate path: compute the block
// size, find a fit or seed a new chunk, then place.
func (h *Heap) Allocate(n uint32) (arena.Addr, error) {
	need := BlockSize(n)
	bp := h.find(need)
	if bp == arena.Null {
		var err error
		bp, err = h.newChunk(need)
		if err != nil {
			return arena.Null, err
		}
	}
	h.place(bp, need)
	return bp, nil
}

// Release implements spec.md §4.4's Release: mark bp free, fix up the
// following block's prev_alloc bit, insert into the free list, and
// coalesce with either physical neighbor that is also free.
func (h *Heap) Release(bp arena.Addr) {
	size := h.size(bp)
	prevAlloc := h.isPrevAlloc(bp)
	h.writeFree(bp, size, prevAlloc)
	h.setNextPrevAlloc(bp, false)
	h.freeListInsert(bp)
	h.coalesce(bp)
}

// coalesce implements spec.md §4.4's four-case boundary-tag coalesce,
// returning the address of the (possibly merged) free block.
func (h *Heap) coalesce(bp arena.Addr) arena.Addr {
	prevAlloc := h.isPrevAlloc(bp)
	size := h.size(bp)
	next := bp + arena.Addr(size)
	nextAlloc := h.isAlloc(next)

	switch {
	case prevAlloc && nextAlloc:
		return bp

	case prevAlloc && !nextAlloc:
		nsize := h.size(next)
		h.freeListRemove(next)
		h.writeFree(bp, size+nsize, true)
		return bp

	case !prevAlloc && nextAlloc:
		prev := h.prevBlock(bp)
		psize := h.size(prev)
		prevPrevAlloc := h.isPrevAlloc(prev)
		h.freeListRemove(bp)
		h.writeFree(prev, psize+size, prevPrevAlloc)
		return prev

	default: // both free
		prev := h.prevBlock(bp)
		psize := h.size(prev)
		nsize := h.size(next)
		prevPrevAlloc := h.isPrevAlloc(prev)
		h.freeListRemove(bp)
		h.freeListRemove(next)
		h.writeFree(prev, psize+size+nsize, prevPrevAlloc)
		return prev
	}
}

// shrink implements spec.md §4.4's Resize case "B < O": split off a
// free remainder in place when there's enough slack, otherwise leave
// the (now over-sized) block as-is.
func (h *Heap) shrink(bp arena.Addr, need uint32) {
	old := h.size(bp)
	if old-need < MinLargeBlock {
		return
	}
	prevAlloc := h.isPrevAlloc(bp)
	h.writeAlloc(bp, need, prevAlloc)
	rem := bp + arena.Addr(need)
	h.writeFree(rem, old-need, true)
	h.setNextPrevAlloc(rem, false)
	h.freeListInsert(rem)
	h.coalesce(rem)
}

// Resize implements spec.md §4.4's Resize for a pointer already known
// to live in this heap (the negative branch of case 3, and all of case
// 4). It returns ErrNeedsCopy when growth in place is impossible; the
// caller (segalloc.Engine) is responsible for the allocate-copy-free
// fallback, since only it can allocate a fresh block.
func (h *Heap) Resize(bp arena.Addr, n uint32) (arena.Addr, error) {
	need := BlockSize(n)
	old := h.size(bp)

	switch {
	case need == old:
		return bp, nil
	case need < old:
		h.shrink(bp, need)
		return bp, nil
	}

	next := bp + arena.Addr(old)
	if h.isAlloc(next) {
		return arena.Null, ErrNeedsCopy
	}
	nsize := h.size(next)
	if old+nsize < need {
		return arena.Null, ErrNeedsCopy
	}

	prevAlloc := h.isPrevAlloc(bp)
	total := old + nsize
	h.freeListRemove(next)
	if total-need >= MinLargeBlock {
		h.writeAlloc(bp, need, prevAlloc)
		rem := bp + arena.Addr(need)
		h.writeFree(rem, total-need, true)
		h.freeListInsert(rem)
	} else {
		h.writeAlloc(bp, total, prevAlloc)
		h.setNextPrevAlloc(bp, true)
	}
	return bp, nil
}

// BlockSizeOf reports bp's total block size, header and (if free)
// footer included.
func (h *Heap) BlockSizeOf(bp arena.Addr) uint32 {
	return h.size(bp)
}

// PayloadCapacity reports how many bytes of bp's payload are safe to
// copy out of it — spec.md §4.4's "copy old_size − DWORD bytes".
func (h *Heap) PayloadCapacity(bp arena.Addr) uint32 {
	return h.size(bp) - Dword
}

// FreeListAddrs returns every block currently on the free list, head
// first. It exists for the consistency checker's free-list
// reciprocity check (spec.md §4.5) and is not used by the allocator
// itself.
func (h *Heap) FreeListAddrs() []arena.Addr {
	var out []arena.Addr
	for cur := h.freeHead; cur != arena.Null; cur = h.freeNext(cur) {
		out = append(out, cur)
	}
	return out
}

// BlockSummary is one physical block's diagnostic snapshot.
type BlockSummary struct {
	Addr          arena.Addr
	Size          uint32
	Alloc         bool
	PrevAlloc     bool
	FooterMatches bool // only meaningful when !Alloc
}

// ChunkSummary is one large chunk's diagnostic snapshot: every
// physical block from the prologue through the epilogue, in address
// order.
type ChunkSummary struct {
	Base   arena.Addr
	Size   uint32
	Blocks []BlockSummary
}

// Diagnose implements spec.md §4.5's read-only walk of the
// boundary-tag heap: every large chunk, from the prologue sentinel
// through every block to the epilogue sentinel.
func (h *Heap) Diagnose() []ChunkSummary {
	var chunks []ChunkSummary
	for base := h.chunkHead; base != arena.Null; {
		total := h.get32(base + prefixSize)
		var blocks []BlockSummary
		bp := base + prologueOffset
		for {
			word := h.header(bp)
			size := unpackSize(word)
			bs := BlockSummary{
				Addr:      bp,
				Size:      size,
				Alloc:     unpackAlloc(word),
				PrevAlloc: unpackPrevAlloc(word),
			}
			if !bs.Alloc && size > 0 {
				bs.FooterMatches = h.get32(h.footerAddr(bp, size)) == word
			}
			blocks = append(blocks, bs)
			if size == 0 {
				break
			}
			bp += arena.Addr(size)
		}
		chunks = append(chunks, ChunkSummary{Base: base, Size: total, Blocks: blocks})
		base = arena.Addr(h.get32(base + prefixPrevChunk))
	}
	return chunks
}
