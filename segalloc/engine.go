// Package segalloc composes the arena, pool and largealloc packages
// into the single public allocator spec.md §6 describes: init,
// allocate, release, resize, calloc, check. It is grounded on the
// teacher's bitmap.Wrapper (one type owning an allocator collaborator
// plus the structure built on top of it) and alloc.Allocator's small,
// stable three-method surface — see DESIGN.md.
package segalloc

import (
	"errors"
	"unsafe"

	"github.com/mvyskoc/segalloc/arena"
	"github.com/mvyskoc/segalloc/diag"
	"github.com/mvyskoc/segalloc/largealloc"
	"github.com/mvyskoc/segalloc/pool"
)

// Engine is the hybrid allocator: a size dispatcher over a segregated
// small pool and a boundary-tag large heap, both carved out of one
// arena. Like pool.Pool and largealloc.Heap it holds no lock; Locked
// wraps an Engine for callers that need one.
type Engine struct {
	arena arena.Provider
	pool  *pool.Pool
	heap  *largealloc.Heap
}

// New creates an Engine over the given arena. Call Init before first
// use.
func New(a arena.Provider) *Engine {
	return &Engine{
		arena: a,
		pool:  pool.New(a),
		heap:  largealloc.New(a),
	}
}

// Init implements spec.md §6's init(): reset every engine head to
// empty. No arena work is performed here — spec.md §5 assumes each
// Init pairs with a fresh arena.
func (e *Engine) Init() {
	e.pool.Init()
	e.heap.Init()
}

// Allocate implements spec.md §4.1's dispatcher plus §4.2/§4.4's
// allocate paths. Allocate(0) returns arena.Null with no error, per
// spec.md §7's InvalidArgument note ("not an error").
func (e *Engine) Allocate(n uint32) (arena.Addr, error) {
	if n == 0 {
		return arena.Null, nil
	}
	if idx, ok := pool.ClassFor(n); ok {
		return e.pool.Allocate(idx)
	}
	return e.heap.Allocate(n)
}

// Release implements spec.md §6's release(p): resolve p's owner via
// §4.3 and free it there. Release(arena.Null) is a no-op. Releasing a
// pointer not produced by Allocate/Calloc/Resize is undefined, per
// spec.md §7's PreconditionViolated — the engine does not detect it.
func (e *Engine) Release(p arena.Addr) {
	if p == arena.Null {
		return
	}
	if idx, chunkAddr, ok := e.pool.FindOwner(p); ok {
		e.pool.Release(idx, chunkAddr, p)
		return
	}
	e.heap.Release(p)
}

// Calloc implements spec.md §6's calloc(num, size): allocate(num*size)
// followed by a byte-wise zero. num*size is not checked for overflow —
// DESIGN.md's Open Question decision 6 preserves the source's
// behavior verbatim rather than hardening it.
func (e *Engine) Calloc(num, size uint32) (arena.Addr, error) {
	n := num * size
	addr, err := e.Allocate(n)
	if err != nil || addr == arena.Null {
		return addr, err
	}
	if n > 0 {
		buf := unsafe.Slice((*byte)(e.arena.Ptr(addr)), n)
		clear(buf)
	}
	return addr, nil
}

// Resize implements spec.md §4.4's Resize, extended to cover pointers
// of every origin per §6's realloc-shaped contract.
//
// One deliberate deviation from realloc(3), pinned by DESIGN.md's Open
// Question decision 2 rather than silently "fixed": Resize(p, 0) frees
// p and returns p itself, not null. As with realloc(3), Resize(null, n)
// behaves as Allocate(n) (spec.md §4.4 case 2).
//
// A resize that crosses from a small slot into the large allocator
// frees the old slot after copying (decision 3), unlike the source
// this design is drawn from.
func (e *Engine) Resize(p arena.Addr, n uint32) (arena.Addr, error) {
	if p == arena.Null {
		return e.Allocate(n)
	}
	if n == 0 {
		e.Release(p)
		return p, nil
	}

	if idx, chunkAddr, ok := e.pool.FindOwner(p); ok {
		slotSize := pool.Classes[idx].Slot
		if n <= slotSize {
			return p, nil
		}
		newAddr, err := e.Allocate(n)
		if err != nil {
			return arena.Null, err
		}
		e.copy(newAddr, p, slotSize)
		e.pool.Release(idx, chunkAddr, p)
		return newAddr, nil
	}

	newAddr, err := e.heap.Resize(p, n)
	if err == nil {
		return newAddr, nil
	}
	if !errors.Is(err, largealloc.ErrNeedsCopy) {
		return arena.Null, err
	}

	capacity := e.heap.PayloadCapacity(p)
	newAddr, err = e.Allocate(n)
	if err != nil {
		return arena.Null, err
	}
	e.copy(newAddr, p, capacity)
	e.heap.Release(p)
	return newAddr, nil
}

func (e *Engine) copy(dst, src arena.Addr, n uint32) {
	if n == 0 {
		return
	}
	d := unsafe.Slice((*byte)(e.arena.Ptr(dst)), n)
	s := unsafe.Slice((*byte)(e.arena.Ptr(src)), n)
	copy(d, s)
}

// Check implements spec.md §6's check(verbose): a read-only walk of
// both structures. It never mutates engine state.
func (e *Engine) Check(verbose bool) *diag.Report {
	return diag.Build(e.pool, e.heap, verbose)
}
