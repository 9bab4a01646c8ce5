// Package pool implements spec.md §4.2: the segregated fixed-size
// small-object allocator. Each of the seven size classes (classes.go)
// is the head of a singly-linked list of 4 KiB slab chunks carrying a
// 256-bit occupancy bitmap (chunk.go). It is grounded on the teacher's
// bitmap/block.go occupancy vector and alloc/simple.go's chunk-list
// shape — see DESIGN.md.
package pool

import "github.com/mvyskoc/segalloc/arena"

// Pool owns the seven class heads. It carries no lock of its own,
// matching spec.md §5's single-mutator model; segalloc.Locked is the
// layer that adds synchronization for callers that need it.
type Pool struct {
	arena arena.Provider
	heads [NumClasses]arena.Addr
}

// New creates a Pool over the given arena. Call Init before first use.
func New(a arena.Provider) *Pool {
	return &Pool{arena: a}
}

// Init resets all seven class heads to empty. spec.md §9 notes the
// source's init() skips the class-48 head — DESIGN.md records that as
// a fixed bug: every class is reset here.
func (p *Pool) Init() {
	for i := range p.heads {
		p.heads[i] = arena.Null
	}
}

// Allocate implements spec.md §4.2's Allocate algorithm for the given
// class index: walk the class's chunk list newest-first, returning the
// first clear slot found; if none, obtain a new chunk from the arena.
func (p *Pool) Allocate(classIdx int) (arena.Addr, error) {
	slotSize := Classes[classIdx].Slot
	capacity := Capacity(slotSize)

	for cur := p.heads[classIdx]; cur != arena.Null; {
		cv := chunkView{p.arena, cur}
		occ := cv.occupancy()
		if i, ok := firstClear(occ, capacity); ok {
			setBit(occ, i)
			return cv.slotAddr(i), nil
		}
		cur = cv.next()
	}

	newChunk, err := p.newChunk(classIdx, slotSize)
	if err != nil {
		return arena.Null, err
	}
	cv := chunkView{p.arena, newChunk}
	setBit(cv.occupancy(), 0)
	return cv.slotAddr(0), nil
}

func (p *Pool) newChunk(classIdx int, slotSize uint32) (arena.Addr, error) {
	if p.arena.Heapsize() == 0 {
		// Offset 0 is arena.Null, which ends every chunk list, so no
		// chunk may start there: leave the arena's first 16 bytes unused.
		if _, err := p.arena.Extend(16); err != nil {
			return arena.Null, err
		}
	}
	base, err := p.arena.Extend(chunkSize)
	if err != nil {
		return arena.Null, err
	}
	cv := chunkView{p.arena, base}
	cv.init(slotSize, Classes[classIdx].Min, p.heads[classIdx])
	p.heads[classIdx] = base
	return base, nil
}

// Release implements spec.md §4.2's Release: clear the occupancy bit
// for addr's slot inside chunkAddr, a chunk of class classIdx. Callers
// must already know the owning chunk (via FindOwner) — releasing an
// address that is not a live slot of that chunk is undefined, per
// spec.md §7's PreconditionViolated.
func (p *Pool) Release(classIdx int, chunkAddr, addr arena.Addr) {
	cv := chunkView{p.arena, chunkAddr}
	i := uint32(addr-chunkAddr-headerSize) / cv.slotSize()
	clearBit(cv.occupancy(), i)
}

// FindOwner implements spec.md §4.3's owner resolution restricted to
// the small pool: it reports which class and chunk, if any, contains
// addr. The containment test is half-open, [base, base+4096) — see
// DESIGN.md's Open Question decision on the boundary ambiguity
// spec.md §9 flags; every payload address returned by Allocate is
// strictly greater than its chunk's base (by at least headerSize), so
// this agrees with the open-interval phrasing used elsewhere in the
// spec for any address Allocate could actually have produced.
func (p *Pool) FindOwner(addr arena.Addr) (classIdx int, chunkAddr arena.Addr, ok bool) {
	for idx, head := range p.heads {
		for cur := head; cur != arena.Null; {
			if addr >= cur && addr < cur+chunkSize {
				return idx, cur, true
			}
			cur = chunkView{p.arena, cur}.next()
		}
	}
	return 0, arena.Null, false
}

// ChunkSummary is one slab chunk's diagnostic snapshot.
type ChunkSummary struct {
	Base     arena.Addr
	SlotSize uint32
	MinSlot  uint32
	Capacity uint32
	Occupied uint32
}

// ClassSummary is one size class's diagnostic snapshot.
type ClassSummary struct {
	Min, Max, SlotSize uint32
	Chunks             []ChunkSummary
}

// Diagnose is the read-only walk spec.md §4.5 asks of the consistency
// checker, restricted to the small pool: one ClassSummary per class,
// each carrying every chunk's capacity and occupancy count.
func (p *Pool) Diagnose() [NumClasses]ClassSummary {
	var out [NumClasses]ClassSummary
	for idx, cls := range Classes {
		out[idx].Min, out[idx].Max, out[idx].SlotSize = cls.Min, cls.Max, cls.Slot
		cap := Capacity(cls.Slot)
		for cur := p.heads[idx]; cur != arena.Null; {
			cv := chunkView{p.arena, cur}
			out[idx].Chunks = append(out[idx].Chunks, ChunkSummary{
				Base:     cur,
				SlotSize: cv.slotSize(),
				MinSlot:  cv.minSlot(),
				Capacity: cap,
				Occupied: countSet(cv.occupancy(), cap),
			})
			cur = cv.next()
		}
	}
	return out
}
