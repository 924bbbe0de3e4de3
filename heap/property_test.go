package heap_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/malloc/heap"
	"github.com/vkngwrapper/malloc/memutils/freelist"
)

type liveAllocation struct {
	ptr   heap.Ptr
	size  int
	value byte
}

func runRandomOperations(t *testing.T, options heap.Options, seed int64, operations int) {
	h, _ := newTestHeap(t, options)
	rng := rand.New(rand.NewSource(seed))

	var live []liveAllocation
	var value byte

	for i := 0; i < operations; i++ {
		op := rng.Intn(10)
		switch {
		case op < 5 || len(live) == 0:
			size := 1 + rng.Intn(512)
			p, err := h.Allocate(size)
			require.NoError(t, err)
			require.Zero(t, int(p)%int(h.Alignment()))

			value++
			fill(t, h, p, value)
			live = append(live, liveAllocation{ptr: p, size: size, value: value})

		case op < 8:
			index := rng.Intn(len(live))
			alloc := live[index]
			requireFilled(t, h, alloc.ptr, alloc.value, alloc.size)

			require.NoError(t, h.Free(alloc.ptr))
			live[index] = live[len(live)-1]
			live = live[:len(live)-1]

		default:
			index := rng.Intn(len(live))
			alloc := live[index]
			size := 1 + rng.Intn(1024)

			p, err := h.Resize(alloc.ptr, size)
			require.NoError(t, err)
			requireFilled(t, h, p, alloc.value, min(alloc.size, size))

			value++
			fill(t, h, p, value)
			live[index] = liveAllocation{ptr: p, size: size, value: value}
		}

		require.NoError(t, h.Validate(), "after operation %d", i)
		require.Equal(t, len(live), h.AllocationCount())
	}

	for _, alloc := range live {
		requireFilled(t, h, alloc.ptr, alloc.value, alloc.size)
		require.NoError(t, h.Free(alloc.ptr))
	}

	require.NoError(t, h.Validate())
	require.Equal(t, 1, h.FreeBlockCount())
}

func TestRandomOperationsFirstFit(t *testing.T) {
	runRandomOperations(t, heap.Options{}, 1, 2000)
}

func TestRandomOperationsBestFit(t *testing.T) {
	runRandomOperations(t, heap.Options{Strategy: freelist.AllocationStrategyMinMemory}, 2, 2000)
}

func TestRandomOperationsLowestOffset(t *testing.T) {
	runRandomOperations(t, heap.Options{Strategy: freelist.AllocationStrategyMinOffset}, 3, 2000)
}

func TestRandomOperationsExactGrowth(t *testing.T) {
	runRandomOperations(t, heap.Options{ChunkSize: 8, Flags: heap.CreateExternallySynchronized}, 4, 2000)
}

func TestRandomOperationsAlignment16(t *testing.T) {
	runRandomOperations(t, heap.Options{Alignment: 16, InitialSize: 1 << 14}, 5, 2000)
}
