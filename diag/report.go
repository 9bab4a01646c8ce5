// Package diag implements spec.md §4.5's consistency checker: a
// read-only walk of both the small pool and the large heap that
// reports structure and flags invariant violations, never mutating
// either. It is grounded on original_source/seg_list.c's
// print_seglist_headers for the verbose text shape, adapted to a
// structured Report that can also be marshaled to JSON the way the
// teacher's HTTP handlers marshal their own response structs.
package diag

import (
	"bytes"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/mvyskoc/segalloc/arena"
	"github.com/mvyskoc/segalloc/largealloc"
	"github.com/mvyskoc/segalloc/pool"
)

// SlotChunkReport is one slab chunk's diagnostic snapshot.
type SlotChunkReport struct {
	Base     arena.Addr `json:"base"`
	Capacity uint32     `json:"capacity"`
	Occupied uint32     `json:"occupied"`
}

// ClassReport is one small size class's diagnostic snapshot.
type ClassReport struct {
	Min      uint32            `json:"min"`
	Max      uint32            `json:"max"`
	SlotSize uint32            `json:"slot_size"`
	Chunks   []SlotChunkReport `json:"chunks"`
}

// BlockReport is one large-heap physical block's diagnostic snapshot.
type BlockReport struct {
	Addr      arena.Addr `json:"addr"`
	Size      uint32     `json:"size"`
	Alloc     bool       `json:"alloc"`
	PrevAlloc bool       `json:"prev_alloc"`
	FooterOK  bool       `json:"footer_ok"`
}

// LargeChunkReport is one large chunk's diagnostic snapshot: every
// physical block from the prologue through the epilogue.
type LargeChunkReport struct {
	Base   arena.Addr    `json:"base"`
	Size   uint32        `json:"size"`
	Blocks []BlockReport `json:"blocks"`
}

// Report is the full consistency-check result spec.md §4.5 and §6's
// check(verbose) ask for: both structures' snapshots plus any
// invariant violations found along the way.
type Report struct {
	Classes []ClassReport      `json:"classes"`
	Chunks  []LargeChunkReport `json:"large_chunks"`
	Errors  []string           `json:"errors"`
	Verbose bool               `json:"-"`
}

// OK reports whether the walk found zero invariant violations.
func (r *Report) OK() bool { return len(r.Errors) == 0 }

// Build walks p and h exactly as spec.md §4.5 describes and returns
// the resulting Report. It never mutates p or h.
func Build(p *pool.Pool, h *largealloc.Heap, verbose bool) *Report {
	r := &Report{Verbose: verbose}
	buildClasses(r, p)
	buildChunks(r, h)
	return r
}

func buildClasses(r *Report, p *pool.Pool) {
	for _, cs := range p.Diagnose() {
		cr := ClassReport{Min: cs.Min, Max: cs.Max, SlotSize: cs.SlotSize}
		for _, ch := range cs.Chunks {
			cr.Chunks = append(cr.Chunks, SlotChunkReport{
				Base:     ch.Base,
				Capacity: ch.Capacity,
				Occupied: ch.Occupied,
			})
			if ch.Occupied > ch.Capacity {
				r.Errors = append(r.Errors, fmt.Sprintf(
					"class [%d,%d] chunk %d: occupied %d exceeds capacity %d",
					cs.Min, cs.Max, ch.Base, ch.Occupied, ch.Capacity))
			}
		}
		r.Classes = append(r.Classes, cr)
	}
}

// buildChunks walks every large chunk's physical block chain and
// checks, for each block in turn: header/footer agreement on free
// blocks (P6), prev_alloc consistency against the physical predecessor
// (P7), the no-two-adjacent-free-blocks coalescing invariant, minimum
// size and ALIGN-multiple on free blocks, and free-list reciprocity
// against h.FreeListAddrs.
func buildChunks(r *Report, h *largealloc.Heap) {
	freeSet := make(map[arena.Addr]bool)
	for _, a := range h.FreeListAddrs() {
		freeSet[a] = true
	}
	seenFree := make(map[arena.Addr]bool)

	for _, cs := range h.Diagnose() {
		lcr := LargeChunkReport{Base: cs.Base, Size: cs.Size}
		prevAlloc := true // the block after the prologue always has prev_alloc = 1
		for i, b := range cs.Blocks {
			lcr.Blocks = append(lcr.Blocks, BlockReport{
				Addr:      b.Addr,
				Size:      b.Size,
				Alloc:     b.Alloc,
				PrevAlloc: b.PrevAlloc,
				FooterOK:  b.FooterMatches,
			})

			if i > 0 && b.PrevAlloc != prevAlloc {
				r.Errors = append(r.Errors, fmt.Sprintf(
					"chunk %d block %d: prev_alloc=%v but predecessor alloc=%v",
					cs.Base, b.Addr, b.PrevAlloc, prevAlloc))
			}

			if !b.Alloc && b.Size > 0 {
				if !b.FooterMatches {
					r.Errors = append(r.Errors, fmt.Sprintf(
						"chunk %d block %d: header/footer mismatch", cs.Base, b.Addr))
				}
				if b.Size < largealloc.MinLargeBlock {
					r.Errors = append(r.Errors, fmt.Sprintf(
						"chunk %d block %d: free size %d below MinLargeBlock", cs.Base, b.Addr, b.Size))
				}
				if b.Size%largealloc.Align != 0 {
					r.Errors = append(r.Errors, fmt.Sprintf(
						"chunk %d block %d: free size %d not ALIGN-multiple", cs.Base, b.Addr, b.Size))
				}
				if !prevAlloc && i > 0 {
					r.Errors = append(r.Errors, fmt.Sprintf(
						"chunk %d block %d: adjacent to another free block", cs.Base, b.Addr))
				}
				if !freeSet[b.Addr] {
					r.Errors = append(r.Errors, fmt.Sprintf(
						"chunk %d block %d: free but missing from free list", cs.Base, b.Addr))
				}
				seenFree[b.Addr] = true
			}
			prevAlloc = b.Alloc
		}
		r.Chunks = append(r.Chunks, lcr)
	}

	for addr := range freeSet {
		if !seenFree[addr] {
			r.Errors = append(r.Errors, fmt.Sprintf(
				"free list entry %d does not correspond to any free block", addr))
		}
	}
}

// WriteText renders the report the way
// original_source/seg_list.c's print_seglist_headers does: one line
// per size class naming its range, slot size and chunk count, and
// (when r.Verbose) one line per large block naming its address, size
// and allocation bits. It always ends with an error summary.
func (r *Report) WriteText() string {
	var b bytes.Buffer
	for _, c := range r.Classes {
		fmt.Fprintf(&b, "class [%3d,%3d] slot=%-3d chunks=%d\n", c.Min, c.Max, c.SlotSize, len(c.Chunks))
		if r.Verbose {
			for _, ch := range c.Chunks {
				fmt.Fprintf(&b, "  chunk %d  occupied %d/%d\n", ch.Base, ch.Occupied, ch.Capacity)
			}
		}
	}
	for _, ch := range r.Chunks {
		fmt.Fprintf(&b, "large chunk %d  size=%d\n", ch.Base, ch.Size)
		if r.Verbose {
			for _, blk := range ch.Blocks {
				fmt.Fprintf(&b, "  block %d  size=%-5d alloc=%d prev_alloc=%d\n",
					blk.Addr, blk.Size, b2i(blk.Alloc), b2i(blk.PrevAlloc))
			}
		}
	}
	if len(r.Errors) == 0 {
		fmt.Fprintf(&b, "check: ok\n")
	} else {
		fmt.Fprintf(&b, "check: %d error(s)\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}
	return b.String()
}

func b2i(v bool) int {
	if v {
		return 1
	}
	return 0
}

// ToJSON marshals the report with json-iterator, the same library the
// teacher's own HTTP handlers use for their response bodies.
func (r *Report) ToJSON() ([]byte, error) {
	return jsoniter.Marshal(r)
}
