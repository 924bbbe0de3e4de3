package trace

import (
	"time"

	cerrors "github.com/cockroachdb/errors"
	mapset "github.com/deckarep/golang-set"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/malloc/heap"
)

// ReplayOptions contains optional settings for Replay
type ReplayOptions struct {
	// CheckHeap runs the heap's consistency checker after every operation
	CheckHeap bool
}

// Result summarizes one replayed trace
type Result struct {
	Name string
	Ops  int
	// PeakPayload is the largest number of requested bytes live at once
	PeakPayload int
	// HeapSize is the number of bytes the heap took from its source by the end of the trace
	HeapSize int
	Elapsed  time.Duration
}

// Utilization returns the peak live payload as a fraction of the final heap size
func (r Result) Utilization() float64 {
	if r.HeapSize == 0 {
		return 0
	}

	return float64(r.PeakPayload) / float64(r.HeapSize)
}

// OpsPerSecond returns the replay throughput
func (r Result) OpsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}

	return float64(r.Ops) / r.Elapsed.Seconds()
}

type replayAllocation struct {
	ptr  heap.Ptr
	size int
}

type replayer struct {
	heap    *heap.Heap
	options ReplayOptions

	// live holds the ids with an outstanding allocation
	live        mapset.Set
	allocations *swiss.Map[int, replayAllocation]
	payload     int
	peak        int
}

// Replay resets h and runs every operation of t against it. Each payload the heap returns is checked
// for alignment, bounds and overlap with other live payloads, then filled with a pattern derived from
// its id that is verified again when the id is freed or resized.
func Replay(h *heap.Heap, t *Trace, options ReplayOptions) (Result, error) {
	result := Result{Name: t.Name, Ops: len(t.Ops)}

	err := h.Init()
	if err != nil {
		return result, err
	}

	r := &replayer{
		heap:        h,
		options:     options,
		live:        mapset.NewSet(),
		allocations: swiss.NewMap[int, replayAllocation](uint32(t.IDCount)),
	}

	start := time.Now()
	for _, op := range t.Ops {
		err = r.run(op)
		if err != nil {
			return result, cerrors.Wrapf(err, "%s line %d (%s %d)", t.Name, op.Line, op.Kind, op.ID)
		}
	}
	result.Elapsed = time.Since(start)

	result.PeakPayload = r.peak
	result.HeapSize = h.Size()
	return result, nil
}

func (r *replayer) run(op Op) error {
	var err error
	switch op.Kind {
	case OpAllocate:
		err = r.allocate(op.ID, op.Size)
	case OpFree:
		err = r.free(op.ID)
	case OpResize:
		err = r.resize(op.ID, op.Size)
	default:
		err = cerrors.AssertionFailedf("unknown operation kind %d", op.Kind)
	}
	if err != nil {
		return err
	}

	if r.options.CheckHeap {
		err = r.heap.Validate()
		if err != nil {
			return cerrors.Wrap(err, "heap failed validation")
		}
	}

	return nil
}

func (r *replayer) allocate(id int, size int) error {
	if r.live.Contains(id) {
		return cerrors.Wrapf(InconsistentTraceError, "id %d is already allocated", id)
	}

	p, err := r.heap.Allocate(size)
	if err != nil {
		return err
	}

	err = r.checkPlacement(id, p, size)
	if err != nil {
		return err
	}

	err = r.writePattern(id, p)
	if err != nil {
		return err
	}

	r.track(id, replayAllocation{ptr: p, size: size})
	return nil
}

func (r *replayer) free(id int) error {
	alloc, err := r.lookup(id)
	if err != nil {
		return err
	}

	err = r.verifyPattern(id, alloc.ptr, alloc.size)
	if err != nil {
		return err
	}

	err = r.heap.Free(alloc.ptr)
	if err != nil {
		return err
	}

	r.live.Remove(id)
	r.allocations.Delete(id)
	r.payload -= alloc.size
	return nil
}

func (r *replayer) resize(id int, size int) error {
	alloc, err := r.lookup(id)
	if err != nil {
		return err
	}

	p, err := r.heap.Resize(alloc.ptr, size)
	if err != nil {
		return err
	}

	r.payload -= alloc.size
	r.live.Remove(id)
	r.allocations.Delete(id)

	err = r.checkPlacement(id, p, size)
	if err != nil {
		return err
	}

	err = r.verifyPattern(id, p, min(alloc.size, size))
	if err != nil {
		return err
	}

	err = r.writePattern(id, p)
	if err != nil {
		return err
	}

	r.track(id, replayAllocation{ptr: p, size: size})
	return nil
}

func (r *replayer) lookup(id int) (replayAllocation, error) {
	if !r.live.Contains(id) {
		return replayAllocation{}, cerrors.Wrapf(InconsistentTraceError, "id %d is not allocated", id)
	}

	alloc, _ := r.allocations.Get(id)
	return alloc, nil
}

func (r *replayer) track(id int, alloc replayAllocation) {
	r.live.Add(id)
	r.allocations.Put(id, alloc)
	r.payload += alloc.size
	if r.payload > r.peak {
		r.peak = r.payload
	}
}

func (r *replayer) checkPlacement(id int, p heap.Ptr, size int) error {
	if size == 0 {
		if p != heap.NilPtr {
			return cerrors.Wrapf(PayloadError, "empty allocation for id %d returned %d", id, p)
		}
		return nil
	}

	if int(p)%int(r.heap.Alignment()) != 0 {
		return cerrors.Wrapf(PayloadError, "payload %d for id %d is not aligned to %d", p, id, r.heap.Alignment())
	}

	start, end := int(p), int(p)+size
	if start <= 0 || end > r.heap.Size() {
		return cerrors.Wrapf(PayloadError, "payload [%d, %d) for id %d lies outside the heap", start, end, id)
	}

	var err error
	r.allocations.Iter(func(other int, alloc replayAllocation) bool {
		if other == id || alloc.size == 0 {
			return false
		}

		otherStart, otherEnd := int(alloc.ptr), int(alloc.ptr)+alloc.size
		if start < otherEnd && otherStart < end {
			err = cerrors.Wrapf(PayloadError, "payload [%d, %d) for id %d overlaps [%d, %d) for id %d",
				start, end, id, otherStart, otherEnd, other)
			return true
		}
		return false
	})
	return err
}

func pattern(id int, index int) byte {
	return byte(id*31 + index)
}

func (r *replayer) writePattern(id int, p heap.Ptr) error {
	if p == heap.NilPtr {
		return nil
	}

	data, err := r.heap.Bytes(p)
	if err != nil {
		return err
	}

	for i := range data {
		data[i] = pattern(id, i)
	}
	return nil
}

func (r *replayer) verifyPattern(id int, p heap.Ptr, length int) error {
	if p == heap.NilPtr || length == 0 {
		return nil
	}

	data, err := r.heap.Bytes(p)
	if err != nil {
		return err
	}

	for i := 0; i < length; i++ {
		if data[i] != pattern(id, i) {
			return cerrors.Wrapf(PayloadError, "byte %d of id %d changed from %d to %d", i, id, pattern(id, i), data[i])
		}
	}
	return nil
}
