package heap

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/malloc/memutils"
	"github.com/vkngwrapper/malloc/memutils/boundary"
	"github.com/vkngwrapper/malloc/memutils/freelist"
)

var _ memutils.Validatable = &Heap{}

// validator lets memutils.DebugValidate check a heap from inside a method that already holds its lock
type validator struct {
	h *Heap
}

func (v validator) Validate() error {
	return v.h.validate()
}

// Validate walks every block in the heap and every member of the free list and returns an error
// describing the first inconsistency it finds. It does not modify the heap.
func (h *Heap) Validate() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.validate()
}

func (h *Heap) validate() error {
	mem := h.src.Bytes()
	brk := len(mem)

	if brk < h.firstBlock {
		return cerrors.Newf("heap of %d bytes is too small to hold its prologue", brk)
	}

	prologue := boundary.PrevFooter(mem, h.firstBlock)
	if prologue != boundary.Encode(boundary.Overhead, true) ||
		boundary.Get(mem, h.firstBlock-boundary.WordSize-boundary.Overhead) != prologue {
		return cerrors.Newf("prologue is damaged: %s", prologue)
	}

	epilogue := boundary.Get(mem, brk-boundary.WordSize)
	if epilogue != boundary.Encode(0, true) {
		return cerrors.Newf("epilogue at %d is damaged: %s", brk-boundary.WordSize, epilogue)
	}

	freeBlocks := swiss.NewMap[int, struct{}](uint32(h.free.Len() + 1))
	allocatedCount := 0
	allocatedBytes := 0
	prevFree := false

	bp := h.firstBlock
	for bp < brk {
		header := boundary.Header(mem, bp)
		size := header.Size()
		if size == 0 {
			break
		}

		if bp%int(h.alignment) != 0 {
			return cerrors.Newf("block at %d is not aligned to %d", bp, h.alignment)
		}
		if size < h.minBlock || size%int(h.alignment) != 0 {
			return cerrors.Newf("block at %d has invalid size %d", bp, size)
		}
		if bp+size > brk {
			return cerrors.Newf("block at %d with size %d runs past the end of the heap at %d", bp, size, brk)
		}

		footer := boundary.Get(mem, bp+size-boundary.Overhead)
		if footer != header {
			return cerrors.Newf("block at %d has header %s but footer %s", bp, header, footer)
		}

		if header.Allocated() {
			requested, live := h.live.Get(bp)
			if !live {
				return cerrors.Newf("block at %d is allocated but was never handed out", bp)
			}
			if requested > usable(size) {
				return cerrors.Newf("block at %d holds %d bytes but %d were requested", bp, usable(size), requested)
			}
			if !memutils.ValidateMagicValue(mem, bp+usable(size)) {
				return cerrors.Wrapf(memutils.CorruptionError, "canary after block at %d has been overwritten", bp)
			}
			allocatedCount++
			allocatedBytes += size
			prevFree = false
		} else {
			if prevFree {
				return cerrors.Newf("free block at %d follows another free block", bp)
			}
			freeBlocks.Put(bp, struct{}{})
			prevFree = true
		}

		bp += size
	}

	if bp != brk {
		return cerrors.Newf("block sizes add up to %d but the heap ends at %d", bp, brk)
	}

	if allocatedCount != h.live.Count() {
		return cerrors.Newf("found %d allocated blocks but %d allocations are live", allocatedCount, h.live.Count())
	}
	if allocatedBytes != h.allocBytes {
		return cerrors.Newf("allocated blocks hold %d bytes but %d are accounted for", allocatedBytes, h.allocBytes)
	}

	return h.validateFreeList(freeBlocks)
}

func (h *Heap) validateFreeList(freeBlocks *swiss.Map[int, struct{}]) error {
	seen := swiss.NewMap[int, struct{}](uint32(freeBlocks.Count() + 1))
	prev := freelist.None

	for bp := h.free.Head(); bp != freelist.None; bp = h.free.Next(bp) {
		if seen.Has(bp) {
			return cerrors.Newf("free list loops back to %d", bp)
		}
		seen.Put(bp, struct{}{})

		if !freeBlocks.Has(bp) {
			return cerrors.Newf("free list member %d is not a free block", bp)
		}
		if h.free.Prev(bp) != prev {
			return cerrors.Newf("free list member %d links back to %d instead of %d", bp, h.free.Prev(bp), prev)
		}
		prev = bp
	}

	if seen.Count() != freeBlocks.Count() {
		return cerrors.Newf("free list holds %d blocks but the heap has %d free blocks", seen.Count(), freeBlocks.Count())
	}
	if seen.Count() != h.free.Len() {
		return cerrors.Newf("free list holds %d blocks but records a length of %d", seen.Count(), h.free.Len())
	}

	return nil
}

// CheckCorruption verifies the canary written after every live allocation. Canaries are only written
// when built with the debug_mem_utils tag; otherwise this always succeeds.
func (h *Heap) CheckCorruption() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if memutils.DebugMargin == 0 {
		return nil
	}

	mem := h.src.Bytes()
	var err error
	h.live.Iter(func(bp int, _ int) bool {
		if !memutils.ValidateMagicValue(mem, bp+usableAt(mem, bp)) {
			err = cerrors.Wrapf(memutils.CorruptionError, "canary after block at %d has been overwritten", bp)
			return true
		}
		return false
	})
	return err
}
