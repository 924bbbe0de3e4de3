package heap

import (
	"github.com/vkngwrapper/malloc/memutils"
	"github.com/vkngwrapper/malloc/memutils/boundary"
	"golang.org/x/exp/slog"
)

// Resize changes the size of the allocation at p, preserving its contents up to the smaller of the
// old and new sizes. Resizing NilPtr allocates, and resizing to 0 frees and returns NilPtr. The block
// is shrunk or grown in place when it can be; otherwise the contents move to a new allocation and the
// old one is freed. If the resize fails the original allocation is left untouched.
func (h *Heap) Resize(p Ptr, size int) (Ptr, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.logger.Debug("Heap::Resize", slog.Int("Ptr", int(p)), slog.Int("Size", size))

	if p == NilPtr {
		return h.allocateLocked(size)
	}

	bp, err := h.lookup(p)
	if err != nil {
		return NilPtr, err
	}

	if size == 0 {
		h.release(bp)
		memutils.DebugValidate(validator{h})
		return NilPtr, nil
	}

	asize, err := h.adjustSize(size)
	if err != nil {
		return NilPtr, err
	}

	resized, err := h.resizeInPlace(bp, asize)
	if err != nil {
		h.logger.Debug("  Heap::Resize FAILED", slog.Int("Ptr", bp), slog.Int("Size", size))
		return NilPtr, err
	}
	if resized {
		h.live.Put(bp, size)
		memutils.DebugValidate(validator{h})
		return p, nil
	}

	newBP, err := h.allocate(asize)
	if err != nil {
		h.logger.Debug("  Heap::Resize FAILED", slog.Int("Ptr", bp), slog.Int("Size", size))
		return NilPtr, err
	}
	h.live.Put(newBP, size)

	// allocate may have grown the source, so fetch memory afterward
	mem := h.src.Bytes()
	keep := min(usableAt(mem, bp), usableAt(mem, newBP))
	copy(mem[newBP:newBP+keep], mem[bp:bp+keep])
	h.release(bp)

	memutils.DebugValidate(validator{h})
	return Ptr(newBP), nil
}

// resizeInPlace reports whether the block at bp could be resized without moving. A failure to grow
// the heap for the last block is returned rather than retried by moving the block.
func (h *Heap) resizeInPlace(bp int, asize int) (bool, error) {
	mem := h.src.Bytes()
	size := boundary.BlockSize(mem, bp)

	if asize <= size {
		h.shrink(mem, bp, size, asize)
		return true, nil
	}

	next := boundary.NextBlock(mem, bp)
	nextHeader := boundary.Header(mem, next)
	available := size
	if !nextHeader.Allocated() {
		h.checkTags(mem, next)
		available += nextHeader.Size()
	}

	if available < asize {
		// Only the last block of the heap can be stretched by growing the source
		atEnd := nextHeader.Size() == 0 ||
			(!nextHeader.Allocated() && boundary.NextBlock(mem, next) == len(mem))
		if !atEnd {
			return false, nil
		}

		// The new space must be able to stand as a free block of its own
		err := h.extend(max(memutils.AlignUp(asize-available, h.alignment), h.chunkSize, h.minBlock))
		if err != nil {
			return false, err
		}

		// The new space has been merged into the free block that follows bp
		mem = h.src.Bytes()
		next = boundary.NextBlock(mem, bp)
		available = size + boundary.BlockSize(mem, next)
	}

	h.free.Remove(next)
	h.allocBytes -= size
	h.allocBytes += h.split(mem, bp, available, asize)
	return true, nil
}

// shrink gives back the tail of an allocated block when it is large enough to form a block,
// merging it with a free successor
func (h *Heap) shrink(mem []byte, bp int, size int, asize int) {
	if size-asize < h.minBlock {
		return
	}

	h.markAllocated(mem, bp, asize)
	h.allocBytes -= size - asize

	rest := bp + asize
	boundary.Write(mem, rest, size-asize, false)
	rest = h.coalesce(mem, rest)
	h.free.InsertFront(rest)
}
