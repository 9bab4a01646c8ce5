package pool

import (
	"math/bits"

	"github.com/mvyskoc/segalloc/arena"
)

// chunkSize is the fixed slab size spec.md §3 specifies. headerSize is
// the 48-byte header ahead of every chunk's slot storage: an 8-byte
// next-chunk link (we only ever populate the low 4 bytes, see
// DESIGN.md's "32-bit addressing" decision), a 32-byte / 256-bit
// occupancy vector, and two 4-byte size fields.
const (
	chunkSize  = 4096
	headerSize = 48

	occOffset     = 8
	slotSizeOff   = 40
	minSlotOff    = 44
	payloadPerChu = chunkSize - headerSize
)

// Capacity is floor(4048 / s), the number of slots a chunk of slot
// size s can hold.
func Capacity(slotSize uint32) uint32 {
	return payloadPerChu / slotSize
}

// chunkView is a typed window onto one slab chunk's header, addressed
// through an arena.Provider the way alloc.Base addresses its chunks.
type chunkView struct {
	a    arena.Provider
	base arena.Addr
}

func (c chunkView) next() arena.Addr {
	return arena.Addr(*(*uint32)(c.a.Ptr(c.base)))
}

func (c chunkView) setNext(n arena.Addr) {
	*(*uint32)(c.a.Ptr(c.base)) = uint32(n)
}

func (c chunkView) occupancy() *[4]uint64 {
	return (*[4]uint64)(c.a.Ptr(c.base + occOffset))
}

func (c chunkView) slotSize() uint32 {
	return *(*uint32)(c.a.Ptr(c.base + slotSizeOff))
}

func (c chunkView) minSlot() uint32 {
	return *(*uint32)(c.a.Ptr(c.base + minSlotOff))
}

func (c chunkView) init(slotSize, minSlot uint32, next arena.Addr) {
	c.setNext(next)
	*c.occupancy() = [4]uint64{}
	*(*uint32)(c.a.Ptr(c.base + slotSizeOff)) = slotSize
	*(*uint32)(c.a.Ptr(c.base + minSlotOff)) = minSlot
}

func (c chunkView) slotAddr(i uint32) arena.Addr {
	return c.base + headerSize + arena.Addr(i*c.slotSize())
}

// firstClear does the 256-bit bit-scan spec.md §4.2 and §9 describe:
// iterate the four 64-bit lanes low to high, and within a lane return
// the lowest clear bit whose absolute index is below capacity. §9
// explicitly invites replacing a linear per-bit scan with a hardware
// trailing-zero-count, which is what bits.TrailingZeros64 gives us —
// the same family of trick the teacher's own bitmap3/sex.go and
// bitmap2/util.go lean on via math/bits for fast bit-position search.
func firstClear(occ *[4]uint64, capacity uint32) (uint32, bool) {
	for lane := 0; lane < 4; lane++ {
		base := uint32(lane) * 64
		if base >= capacity {
			break
		}
		inv := ^occ[lane]
		if base+64 > capacity {
			width := capacity - base
			inv &= (uint64(1) << width) - 1
		}
		if inv != 0 {
			return base + uint32(bits.TrailingZeros64(inv)), true
		}
	}
	return 0, false
}

func setBit(occ *[4]uint64, i uint32) {
	occ[i/64] |= 1 << (i % 64)
}

func clearBit(occ *[4]uint64, i uint32) {
	occ[i/64] &^= 1 << (i % 64)
}

func countSet(occ *[4]uint64, capacity uint32) uint32 {
	var n uint32
	for lane := 0; lane < 4; lane++ {
		base := uint32(lane) * 64
		if base >= capacity {
			break
		}
		v := occ[lane]
		if base+64 > capacity {
			width := capacity - base
			v &= (uint64(1) << width) - 1
		}
		n += uint32(bits.OnesCount64(v))
	}
	return n
}
