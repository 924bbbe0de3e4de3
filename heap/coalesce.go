package heap

import (
	"github.com/vkngwrapper/malloc/memutils/boundary"
)

// coalesce merges the free block at bp with whichever of its neighbors are free. The block at bp
// must not be on the free list; merged neighbors are taken off it. The returned block is free,
// carries matching tags and is also not on the list.
func (h *Heap) coalesce(mem []byte, bp int) int {
	h.checkTags(mem, bp)
	size := boundary.BlockSize(mem, bp)

	prevFree := !boundary.PrevAllocated(mem, bp)
	next := boundary.NextBlock(mem, bp)
	nextFree := !boundary.NextAllocated(mem, bp)

	switch {
	case !prevFree && !nextFree:
		return bp

	case !prevFree && nextFree:
		h.checkTags(mem, next)
		h.free.Remove(next)
		size += boundary.BlockSize(mem, next)

	case prevFree && !nextFree:
		prev := boundary.PrevBlock(mem, bp)
		h.checkTags(mem, prev)
		h.free.Remove(prev)
		size += boundary.BlockSize(mem, prev)
		bp = prev

	default:
		prev := boundary.PrevBlock(mem, bp)
		h.checkTags(mem, prev)
		h.checkTags(mem, next)
		h.free.Remove(prev)
		h.free.Remove(next)
		size += boundary.BlockSize(mem, prev) + boundary.BlockSize(mem, next)
		bp = prev
	}

	boundary.Write(mem, bp, size, false)
	return bp
}
