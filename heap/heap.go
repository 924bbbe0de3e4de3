package heap

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/google/uuid"
	"github.com/vkngwrapper/malloc/internal/utils"
	"github.com/vkngwrapper/malloc/memutils"
	"github.com/vkngwrapper/malloc/memutils/boundary"
	"github.com/vkngwrapper/malloc/memutils/freelist"
	"github.com/vkngwrapper/malloc/source"
	"golang.org/x/exp/slog"
)

// Ptr identifies an allocation by the offset of its payload within the heap's memory
type Ptr int

// NilPtr is the Ptr that never identifies an allocation
const NilPtr Ptr = 0

// Heap is a boundary-tagged heap with an explicit free list, carved out of the memory of a
// single source. The free list, the set of live allocations and all counters belong to the Heap,
// so any number of heaps may coexist.
type Heap struct {
	id     uuid.UUID
	logger *slog.Logger
	mutex  utils.OptionalMutex
	src    source.Source
	free   *freelist.List

	alignment   uint
	minBlock    int
	chunkSize   int
	initialSize int
	strategy    freelist.AllocationStrategy
	// firstBlock is the payload offset of the first block after the prologue
	firstBlock int

	// live maps the payload offset of every allocated block to the size its caller requested
	live       *swiss.Map[int, int]
	allocBytes int
	growCalls  int
}

// ID returns the identifier the heap attaches to its log lines
func (h *Heap) ID() uuid.UUID { return h.id }

// Alignment returns the alignment of every payload handed out by the heap
func (h *Heap) Alignment() uint { return h.alignment }

// MinBlockSize returns the size of the smallest block the heap will create, tags included
func (h *Heap) MinBlockSize() int { return h.minBlock }

// Size returns the number of bytes the heap has taken from its source
func (h *Heap) Size() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.src.Size()
}

// GrowCount returns how many times the heap has asked its source for more memory since the last Init
func (h *Heap) GrowCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.growCalls
}

// FreeBlockCount returns the length of the free list
func (h *Heap) FreeBlockCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.free.Len()
}

// AllocationCount returns the number of live allocations
func (h *Heap) AllocationCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.live.Count()
}

// Init returns the heap to its initial state: every allocation is dropped, the source is reset and
// the prologue and epilogue are written again. If Options.InitialSize was set, that much free space
// is requested from the source.
func (h *Heap) Init() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.logger.Debug("Heap::Init")
	return h.init()
}

func (h *Heap) init() error {
	memutils.DebugCheckPow2(h.alignment, "alignment")

	h.src.Reset()
	h.free.Reset()
	h.live.Clear()
	h.allocBytes = 0
	h.growCalls = 0

	// | pad | prologue header | prologue footer | epilogue header |
	base, err := h.src.Grow(h.firstBlock)
	if err != nil {
		return cerrors.Mark(cerrors.Wrap(err, "writing heap prologue"), memutils.OutOfMemoryError)
	}
	if base != 0 {
		return cerrors.AssertionFailedf("source returned break %d after reset", base)
	}

	mem := h.src.Bytes()
	prologue := h.firstBlock - boundary.WordSize - boundary.Overhead
	boundary.Put(mem, prologue, boundary.Encode(boundary.Overhead, true))
	boundary.Put(mem, prologue+boundary.WordSize, boundary.Encode(boundary.Overhead, true))
	boundary.Put(mem, boundary.HeaderOffset(h.firstBlock), boundary.Encode(0, true))

	if h.initialSize > 0 {
		err = h.extend(h.initialSize)
		if err != nil {
			return err
		}
	}

	memutils.DebugValidate(validator{h})
	return nil
}

// Close releases the heap's source. The heap must not be used afterward.
func (h *Heap) Close() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.logger.Debug("Heap::Close")
	h.free.Reset()
	h.live.Clear()
	return h.src.Release()
}

// adjustSize converts a request into a block size: payload plus tags plus any debug margin,
// rounded to the alignment and no smaller than the minimum block.
func (h *Heap) adjustSize(size int) (int, error) {
	if size < 0 || size > memutils.AlignDown(boundary.MaxBlockSize, h.alignment)-boundary.Overhead-memutils.DebugMargin {
		return 0, cerrors.Wrapf(memutils.SizeOverflowError, "size %d", size)
	}

	asize := memutils.AlignUp(size+boundary.Overhead+memutils.DebugMargin, h.alignment)
	if asize < h.minBlock {
		asize = h.minBlock
	}
	return asize, nil
}

// usable returns the number of payload bytes a caller may use in a block of the given size
func usable(blockSize int) int {
	return blockSize - boundary.Overhead - memutils.DebugMargin
}

// usableAt returns the number of payload bytes a caller may use in the block at bp
func usableAt(mem []byte, bp int) int {
	return boundary.PayloadSize(mem, bp) - memutils.DebugMargin
}

// markAllocated writes allocated tags for a block and, in debug builds, the corruption canary
// that follows its usable payload
func (h *Heap) markAllocated(mem []byte, bp int, size int) {
	boundary.Write(mem, bp, size, true)
	memutils.WriteMagicValue(mem, bp+usable(size))
}

// checkTags aborts when a block's header and footer disagree. The free list and the coalescer
// trust these tags, so carrying on would spread the damage.
func (h *Heap) checkTags(mem []byte, bp int) {
	header := boundary.Header(mem, bp)
	footerOffset := bp + header.Size() - boundary.Overhead
	if header.Size() < boundary.Overhead || footerOffset+boundary.WordSize > len(mem) {
		panic(cerrors.AssertionFailedf("heap corrupted: block at %d has header %s which runs past the end of the heap", bp, header))
	}

	if !boundary.Matches(mem, bp) {
		panic(cerrors.AssertionFailedf("heap corrupted: block at %d has header %s but footer %s", bp, header, boundary.Footer(mem, bp)))
	}
}

// lookup resolves a pointer passed in by a caller to a live block
func (h *Heap) lookup(p Ptr) (int, error) {
	bp := int(p)
	mem := h.src.Bytes()

	if _, ok := h.live.Get(bp); ok {
		h.checkTags(mem, bp)
		return bp, nil
	}

	// Best effort to tell a repeated free apart from a pointer that was never handed out
	if bp >= h.firstBlock && bp < len(mem) && bp%int(h.alignment) == 0 {
		header := boundary.Header(mem, bp)
		if !header.Allocated() && header.Size() >= h.minBlock && bp+header.Size() <= len(mem) {
			return 0, cerrors.Wrapf(memutils.DoubleFreeError, "pointer %d", bp)
		}
	}

	return 0, cerrors.Wrapf(memutils.InvalidPointerError, "pointer %d", bp)
}

// growthFor returns how many bytes the heap must take from its source so that a block of asize
// bytes can be carved from the end of the heap
func (h *Heap) growthFor(asize int) int {
	mem := h.src.Bytes()
	deficit := asize

	// The block before the epilogue merges with the new space when it is free
	last := boundary.PrevFooter(mem, len(mem))
	if !last.Allocated() {
		deficit -= last.Size()
	}

	deficit = memutils.AlignUp(deficit, h.alignment)
	if deficit < h.chunkSize {
		deficit = h.chunkSize
	}
	return deficit
}

// extend takes size more bytes from the source, formats them as one free block in place of the
// old epilogue, merges that block with a free predecessor and puts the result on the free list
func (h *Heap) extend(size int) error {
	if size < h.minBlock {
		return cerrors.AssertionFailedf("heap extension of %d bytes is smaller than the minimum block of %d", size, h.minBlock)
	}

	h.logger.Debug("Heap::extend", slog.Int("Size", size), slog.Int("HeapSize", h.src.Size()))

	bp, err := h.src.Grow(size)
	if err != nil {
		h.logger.Warn("Heap::extend FAILED", slog.Int("Size", size), slog.Any("Error", err))
		return cerrors.Mark(cerrors.Wrapf(err, "growing heap by %d bytes", size), memutils.OutOfMemoryError)
	}
	h.growCalls++

	// The old epilogue header becomes the new block's header
	mem := h.src.Bytes()
	boundary.Write(mem, bp, size, false)
	boundary.Put(mem, boundary.HeaderOffset(bp+size), boundary.Encode(0, true))

	bp = h.coalesce(mem, bp)
	h.free.InsertFront(bp)
	return nil
}

// split turns the block at bp, currently total bytes and off the free list, into an allocated block
// of asize bytes. The surplus becomes a free block when it can stand on its own; otherwise it stays
// in the allocation.
func (h *Heap) split(mem []byte, bp int, total int, asize int) int {
	if total-asize < h.minBlock {
		h.markAllocated(mem, bp, total)
		return total
	}

	h.markAllocated(mem, bp, asize)
	rest := bp + asize
	boundary.Write(mem, rest, total-asize, false)
	h.free.InsertFront(rest)
	return asize
}

// place allocates asize bytes out of the free block at bp
func (h *Heap) place(bp int, asize int) {
	mem := h.src.Bytes()
	h.free.Remove(bp)
	h.allocBytes += h.split(mem, bp, boundary.BlockSize(mem, bp), asize)
}

func (h *Heap) allocate(asize int) (int, error) {
	bp, found := h.free.FindFit(asize, h.strategy)
	if !found {
		err := h.extend(h.growthFor(asize))
		if err != nil {
			return 0, err
		}

		bp, found = h.free.FindFit(asize, h.strategy)
		if !found {
			return 0, cerrors.Wrapf(memutils.OutOfMemoryError, "no block of %d bytes after growing the heap", asize)
		}
	}

	h.place(bp, asize)
	return bp, nil
}

// release frees a live block and returns it, merged with its free neighbors, to the free list
func (h *Heap) release(bp int) {
	mem := h.src.Bytes()
	size := boundary.BlockSize(mem, bp)

	h.live.Delete(bp)
	h.allocBytes -= size
	boundary.SetAllocated(mem, bp, false)

	bp = h.coalesce(mem, bp)
	h.free.InsertFront(bp)
}

// Allocate reserves a block with at least size bytes of payload and returns a pointer to the payload.
// A size of 0 returns NilPtr. If no free block is large enough the heap grows once; if that fails the
// returned error is marked with memutils.OutOfMemoryError.
func (h *Heap) Allocate(size int) (Ptr, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.logger.Debug("Heap::Allocate", slog.Int("Size", size))
	return h.allocateLocked(size)
}

func (h *Heap) allocateLocked(size int) (Ptr, error) {
	if size == 0 {
		return NilPtr, nil
	}

	asize, err := h.adjustSize(size)
	if err != nil {
		return NilPtr, err
	}

	bp, err := h.allocate(asize)
	if err != nil {
		h.logger.Debug("  Heap::Allocate FAILED", slog.Int("Size", size))
		return NilPtr, err
	}
	h.live.Put(bp, size)

	memutils.DebugValidate(validator{h})
	return Ptr(bp), nil
}

// AllocateZeroed reserves a zero-filled block large enough for count elements of size bytes each
func (h *Heap) AllocateZeroed(count, size int) (Ptr, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.logger.Debug("Heap::AllocateZeroed", slog.Int("Count", count), slog.Int("Size", size))
	if memutils.MulOverflows(count, size) {
		return NilPtr, cerrors.Wrapf(memutils.SizeOverflowError, "%d elements of %d bytes", count, size)
	}

	p, err := h.allocateLocked(count * size)
	if err != nil || p == NilPtr {
		return p, err
	}

	mem := h.src.Bytes()
	bp := int(p)
	clear(mem[bp : bp+usableAt(mem, bp)])
	return p, nil
}

// Free returns an allocation to the heap. Freeing NilPtr does nothing. Pointers the heap did not hand
// out, or has already taken back, are rejected with memutils.InvalidPointerError or
// memutils.DoubleFreeError and leave the heap untouched. A live block whose boundary tags have been
// overwritten causes a panic.
func (h *Heap) Free(p Ptr) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.logger.Debug("Heap::Free", slog.Int("Ptr", int(p)))
	if p == NilPtr {
		return nil
	}

	bp, err := h.lookup(p)
	if err != nil {
		return err
	}

	h.release(bp)
	memutils.DebugValidate(validator{h})
	return nil
}

// Bytes returns the payload of a live allocation, sized to the request it was made with and capped
// at the block's usable payload. The slice is only valid until the next call that can grow the heap.
func (h *Heap) Bytes(p Ptr) ([]byte, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	bp, err := h.lookup(p)
	if err != nil {
		return nil, err
	}

	requested, _ := h.live.Get(bp)
	mem := h.src.Bytes()
	end := bp + usableAt(mem, bp)
	return mem[bp : bp+requested : end], nil
}

// PayloadSize returns the number of bytes usable at p, which may exceed what was requested
func (h *Heap) PayloadSize(p Ptr) (int, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	bp, err := h.lookup(p)
	if err != nil {
		return 0, err
	}

	return usableAt(h.src.Bytes(), bp), nil
}
