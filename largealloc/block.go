package largealloc

import "github.com/mvyskoc/segalloc/arena"

// Word, Dword and Align are spec.md §3's constants; MinLargeBlock is
// the minimum total block size (header + footer + free-list links,
// 16-byte aligned) a free block may have.
const (
	Word          = 4
	Dword         = 8
	Align         = 16
	MinLargeBlock = 592
)

// BlockSize implements spec.md §4.4's block_size(n): the total block
// size (header included) needed to satisfy a user request of n bytes.
func BlockSize(n uint32) uint32 {
	aligned := alignUp(n+Word, Align)
	if aligned < MinLargeBlock {
		return MinLargeBlock
	}
	return aligned
}

func alignUp(x, a uint32) uint32 {
	return (x + a - 1) &^ (a - 1)
}

func pack(size uint32, prevAlloc, alloc bool) uint32 {
	v := size
	if prevAlloc {
		v |= 2
	}
	if alloc {
		v |= 1
	}
	return v
}

func unpackSize(word uint32) uint32    { return word &^ 7 }
func unpackAlloc(word uint32) bool     { return word&1 != 0 }
func unpackPrevAlloc(word uint32) bool { return word&2 != 0 }

func (h *Heap) get32(addr arena.Addr) uint32 {
	return *(*uint32)(h.arena.Ptr(addr))
}

func (h *Heap) put32(addr arena.Addr, v uint32) {
	*(*uint32)(h.arena.Ptr(addr)) = v
}

// header/footer/size/alloc/prevAlloc operate on bp, a block's payload
// address — "block pointer" in spec.md's glossary. The header lies at
// bp-WORD; the footer (when the block is free) at bp+size-DWORD,
// exactly as original_source/seg_list.c's HDRP/FTRP macros place them.

func (h *Heap) header(bp arena.Addr) uint32 {
	return h.get32(bp - Word)
}

func (h *Heap) setHeader(bp arena.Addr, word uint32) {
	h.put32(bp-Word, word)
}

func (h *Heap) footerAddr(bp arena.Addr, size uint32) arena.Addr {
	return bp + arena.Addr(size) - Dword
}

func (h *Heap) setFooter(bp arena.Addr, size, word uint32) {
	h.put32(h.footerAddr(bp, size), word)
}

func (h *Heap) size(bp arena.Addr) uint32 {
	return unpackSize(h.header(bp))
}

func (h *Heap) isAlloc(bp arena.Addr) bool {
	return unpackAlloc(h.header(bp))
}

func (h *Heap) isPrevAlloc(bp arena.Addr) bool {
	return unpackPrevAlloc(h.header(bp))
}

// nextBlock / prevBlock are NEXT_BLKP / PREV_BLKP: physical neighbors
// found purely from size tags, never from the free list.
func (h *Heap) nextBlock(bp arena.Addr) arena.Addr {
	return bp + arena.Addr(h.size(bp))
}

// prevBlock is only meaningful when isPrevAlloc(bp) is false: the
// predecessor's footer sits at bp-DWORD and carries its size.
func (h *Heap) prevBlock(bp arena.Addr) arena.Addr {
	prevSize := unpackSize(h.get32(bp - Dword))
	return bp - arena.Addr(prevSize)
}

// writeFree stamps a free block's header and footer identically, the
// header/footer invariant spec.md §3 requires of every free block.
func (h *Heap) writeFree(bp arena.Addr, size uint32, prevAlloc bool) {
	word := pack(size, prevAlloc, false)
	h.setHeader(bp, word)
	h.setFooter(bp, size, word)
}

// writeAlloc stamps an allocated block's header only — allocated
// blocks carry no footer.
func (h *Heap) writeAlloc(bp arena.Addr, size uint32, prevAlloc bool) {
	h.setHeader(bp, pack(size, prevAlloc, true))
}

// setNextPrevAlloc updates the prev_alloc bit of the block physically
// following bp to reflect alloc — bp's own new allocation state. When
// that next block is itself free its footer is kept in sync too, per
// spec.md §3's "header ≡ footer for every free block".
func (h *Heap) setNextPrevAlloc(bp arena.Addr, alloc bool) {
	next := h.nextBlock(bp)
	word := h.header(next)
	if alloc {
		word |= 2
	} else {
		word &^= 2
	}
	h.setHeader(next, word)
	if !unpackAlloc(word) {
		h.setFooter(next, unpackSize(word), word)
	}
}

// Free-block payload: the first four bytes hold the next free-list
// link, the next four hold the previous. spec.md's narrative describes
// 8-byte pointer-wide link fields; DESIGN.md records the adaptation to
// 4-byte arena.Addr offsets, consistent with this engine's addressing
// throughout.
func (h *Heap) freeNext(bp arena.Addr) arena.Addr { return arena.Addr(h.get32(bp)) }
func (h *Heap) freePrev(bp arena.Addr) arena.Addr { return arena.Addr(h.get32(bp + Word)) }
func (h *Heap) setFreeNext(bp, v arena.Addr)      { h.put32(bp, uint32(v)) }
func (h *Heap) setFreePrev(bp, v arena.Addr)      { h.put32(bp+Word, uint32(v)) }
