// Package arena provides the monotonically growing byte region the
// hybrid allocator is carved out of. It plays the role spec.md calls
// an external collaborator (a brk-like façade): the allocator core
// never manages address space itself, it only calls Extend and reads
// Lo/Hi.
package arena

import (
	"errors"
	"unsafe"

	"github.com/modern-go/reflect2"
	"golang.org/x/sys/unix"
)

// Addr is an offset into an Arena's byte region, relative to the
// region's base. Like the teacher's alloc.Ptr, it is a compact,
// comparable handle that stays valid regardless of where the backing
// mapping actually landed in the process's address space.
type Addr uint32

// Null stands in for a null pointer; Addr(0) is never a valid
// allocation because every Arena's first bytes belong to whatever the
// first Extend call reserves for chunk/block metadata.
const Null Addr = 0

// ErrOutOfMemory is returned by Extend when the arena's reservation is
// exhausted. It is the single failure mode spec.md §7 defines for the
// allocation-producing paths.
var ErrOutOfMemory = errors.New("arena: out of memory")

// Provider is the set of operations spec.md §6 says the core consumes
// from its arena collaborator: extend, lo, hi, heapsize, pagesize. Get
// and Ptr are the Go-specific addition needed to turn an Addr into a
// typed view of the underlying bytes.
type Provider interface {
	Extend(n uint32) (Addr, error)
	Get(addr Addr, ptr interface{})
	Ptr(addr Addr) unsafe.Pointer
	Lo() Addr
	Hi() Addr
	Heapsize() uint32
	Pagesize() uint32
}

// Arena is a contiguous, monotonically growing byte region backed by a
// single mmap reservation. Extend commits pages one range at a time
// with mprotect; nothing is ever unmapped except by Close.
type Arena struct {
	mem      []byte // keeps the mapping's backing storage reachable
	base     unsafe.Pointer
	reserved uint32
	used     uint32
	pagesize uint32
}

// New reserves `reserve` bytes of address space without committing any
// of it, the same shape as a brk-style heap whose ceiling sits far
// above its current break.
func New(reserve uint32) (*Arena, error) {
	mem, err := unix.Mmap(-1, 0, int(reserve), unix.PROT_NONE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	return &Arena{
		mem:      mem,
		base:     unsafe.Pointer(&mem[0]),
		reserved: reserve,
		pagesize: uint32(unix.Getpagesize()),
	}, nil
}

// Extend commits n more bytes and returns the address of the first of
// them — the arena's previous high-water mark. It never shrinks the
// arena and never invalidates addresses already handed out.
func (a *Arena) Extend(n uint32) (Addr, error) {
	if n == 0 {
		return Addr(a.used), nil
	}
	if a.used+n < a.used || a.used+n > a.reserved {
		return Null, ErrOutOfMemory
	}
	// mprotect needs a page-aligned start; re-committing the already
	// committed head of that page is harmless.
	start := a.used &^ (a.pagesize - 1)
	if err := unix.Mprotect(a.mem[start:a.used+n], unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return Null, err
	}
	base := a.used
	a.used += n
	return Addr(base), nil
}

// Lo is the address of the arena's first byte, always zero for a
// freshly reserved region.
func (a *Arena) Lo() Addr { return 0 }

// Hi is one past the last committed byte.
func (a *Arena) Hi() Addr { return Addr(a.used) }

// Heapsize is the number of bytes committed so far.
func (a *Arena) Heapsize() uint32 { return a.used }

// Pagesize reports the OS page size Extend commits in units of.
func (a *Arena) Pagesize() uint32 { return a.pagesize }

// Ptr resolves addr to a live pointer into the mapping.
func (a *Arena) Ptr(addr Addr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(a.base) + uintptr(addr))
}

// Get loads the address of addr into ptr, which must be a pointer to a
// pointer type (e.g. **uint64). This is alloc.Base.Get's idiom
// verbatim: an unsafe.Pointer swap through reflect2.PtrOf instead of a
// reflect.Value round trip, cheap enough to call on every
// allocate/release.
func (a *Arena) Get(addr Addr, ptr interface{}) {
	*(*unsafe.Pointer)(reflect2.PtrOf(ptr)) = a.Ptr(addr)
}

// Reset rewinds the arena's high-water mark to zero without unmapping
// anything. It exists purely for test harnesses that want a fresh
// Engine without paying for a new mmap reservation each case — see
// SPEC_FULL.md's "Supplemented Features". segalloc.Engine.Init never
// calls this: spec.md §5 ties the arena's lifetime to its own
// init/deinit pairing, separate from the engine's.
func (a *Arena) Reset() {
	a.used = 0
}

// Close releases the arena's reserved address space.
func (a *Arena) Close() error {
	if a.mem == nil {
		return nil
	}
	err := unix.Munmap(a.mem)
	a.mem = nil
	a.base = nil
	return err
}
