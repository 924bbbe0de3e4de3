package heap

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/malloc/memutils"
	"github.com/vkngwrapper/malloc/memutils/boundary"
)

// BlockVisitor is called by VisitBlocks with the payload pointer, total size and state of each block
type BlockVisitor func(p Ptr, size int, free bool) error

// VisitBlocks walks the heap's blocks in address order. If visitor returns an error the walk stops
// and the error is returned.
func (h *Heap) VisitBlocks(visitor BlockVisitor) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.visitBlocks(visitor)
}

func (h *Heap) visitBlocks(visitor BlockVisitor) error {
	mem := h.src.Bytes()
	for bp := h.firstBlock; ; {
		header := boundary.Header(mem, bp)
		if header.Size() == 0 {
			return nil
		}

		err := visitor(Ptr(bp), header.Size(), !header.Allocated())
		if err != nil {
			return err
		}
		bp += header.Size()
	}
}

// AddStatistics adds this heap's running totals to stats
func (h *Heap) AddStatistics(stats *memutils.Statistics) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	stats.HeapCount++
	stats.HeapBytes += h.src.Size()
	stats.AllocationCount += h.live.Count()
	stats.AllocationBytes += h.allocBytes
}

// AddDetailedStatistics walks the heap and adds every allocation and free range to stats
func (h *Heap) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.addDetailedStatistics(stats)
}

func (h *Heap) addDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.HeapCount++
	stats.HeapBytes += h.src.Size()

	_ = h.visitBlocks(func(_ Ptr, size int, free bool) error {
		if free {
			stats.AddUnusedRange(size)
		} else {
			stats.AddAllocation(size)
		}
		return nil
	})
}

// WriteJSON writes a JSON object describing the heap and each of its blocks
func (h *Heap) WriteJSON(writer *jwriter.Writer) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	h.addDetailedStatistics(&stats)

	obj := writer.Object()
	defer obj.End()

	obj.Name("ID").String(h.id.String())
	obj.Name("TotalBytes").Int(stats.HeapBytes)
	obj.Name("UnusedBytes").Int(stats.UnusedRangeBytes)
	obj.Name("Allocations").Int(stats.AllocationCount)
	obj.Name("UnusedRanges").Int(stats.UnusedRangeCount)
	obj.Name("Fragmentation").Float64(stats.Fragmentation())

	blocks := obj.Name("Blocks").Array()
	defer blocks.End()

	_ = h.visitBlocks(func(p Ptr, size int, free bool) error {
		block := blocks.Object()
		defer block.End()

		block.Name("Offset").Int(int(p))
		block.Name("Size").Int(size)
		block.Name("Free").Bool(free)
		if !free {
			requested, _ := h.live.Get(int(p))
			block.Name("Requested").Int(requested)
		}
		return nil
	})
}
