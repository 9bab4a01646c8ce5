package largealloc

import "github.com/mvyskoc/segalloc/arena"

// chunkMultiple is spec.md's CHUNK: large chunks are sized to the next
// multiple of this. chunkOverhead is every fixed byte a chunk spends on
// bookkeeping that isn't available to the seeded free block: the
// 20-byte prefix (8-byte previous-chunk diagnostic link, 4-byte
// chunk_size, 8 bytes padding), the 8-byte prologue (header+footer,
// size 8), and the 4-byte epilogue.
const (
	chunkMultiple = 4096
	chunkOverhead = 20 + Dword + Word

	prefixPrevChunk = 0
	prefixSize      = 8
	prologueOffset  = 24 // prefix(20) + prologue header(4)
)

// roundChunkSize resolves spec.md §9's flagged ambiguity in the
// chunk-size rounding rule. The source's literal `(size>>12+1)<<12`
// always advances one page past the raw block size, which can
// under-size the seeded free block once chunkOverhead is subtracted
// from it — a same-page block right at the 4 KiB boundary would then
// leave less free space than the request that triggered the chunk
// needs. Rounding on need+chunkOverhead instead guarantees the seeded
// free block always satisfies that request, while still always
// advancing at least a full page (need+chunkOverhead > 0 always
// rounds up to at least chunkMultiple). See DESIGN.md Open Question 7.
func roundChunkSize(need uint32) uint32 {
	return alignUp(need+chunkOverhead, chunkMultiple)
}

// newChunk implements spec.md §4.4's chunk seeding: obtain a fresh
// chunk from the arena sized to satisfy `need`, lay down the prefix,
// prologue, one large free block spanning the remainder, and the
// epilogue, then insert the free block at the head of the free list.
// Returns the free block's bp.
func (h *Heap) newChunk(need uint32) (arena.Addr, error) {
	total := roundChunkSize(need)
	if h.arena.Heapsize() == 0 {
		// Offset 0 is arena.Null, which ends the chunk chain, so no
		// chunk may start there: leave the arena's first Align bytes
		// unused.
		if _, err := h.arena.Extend(Align); err != nil {
			return arena.Null, err
		}
	}
	base, err := h.arena.Extend(total)
	if err != nil {
		return arena.Null, err
	}

	h.put32(base+prefixPrevChunk, uint32(h.chunkHead))
	h.put32(base+prefixPrevChunk+Word, 0) // upper half of the adapted 8-byte link
	h.put32(base+prefixSize, total)
	h.put32(base+prefixSize+Word, 0) // 8 bytes padding
	h.put32(base+prefixSize+Word+Word, 0)

	prologueBp := base + prologueOffset
	h.setHeader(prologueBp, pack(Dword, true, true))
	h.setFooter(prologueBp, Dword, pack(Dword, true, true))

	freeBp := h.nextBlock(prologueBp)
	freeSize := total - (prologueOffset + Dword)
	h.writeFree(freeBp, freeSize, true)

	epilogueBp := h.nextBlock(freeBp)
	h.setHeader(epilogueBp, pack(0, false, true))

	h.freeListInsert(freeBp)
	h.chunkHead = base
	return freeBp, nil
}
