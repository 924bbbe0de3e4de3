package heap_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/malloc/heap"
	"github.com/vkngwrapper/malloc/memutils"
	"github.com/vkngwrapper/malloc/source"
	"golang.org/x/exp/slog"
)

type block struct {
	Offset int
	Size   int
	Free   bool
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// skipDebugLayout skips tests that assert exact block sizes, which change when debug canaries are
// compiled in
func skipDebugLayout(t *testing.T) {
	if memutils.DebugMargin != 0 {
		t.Skip("block sizes differ when built with debug_mem_utils")
	}
}

func newTestHeap(t *testing.T, options heap.Options) (*heap.Heap, *source.SliceSource) {
	src := source.NewSliceSource(0, 0)
	h, err := heap.New(testLogger(), src, options)
	require.NoError(t, err)
	return h, src
}

func blocks(t *testing.T, h *heap.Heap) []block {
	var out []block
	err := h.VisitBlocks(func(p heap.Ptr, size int, free bool) error {
		out = append(out, block{Offset: int(p), Size: size, Free: free})
		return nil
	})
	require.NoError(t, err)
	return out
}

func fill(t *testing.T, h *heap.Heap, p heap.Ptr, value byte) {
	data, err := h.Bytes(p)
	require.NoError(t, err)
	for i := range data {
		data[i] = value
	}
}

func requireFilled(t *testing.T, h *heap.Heap, p heap.Ptr, value byte, length int) {
	data, err := h.Bytes(p)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), length)
	for i := 0; i < length; i++ {
		require.Equalf(t, value, data[i], "byte %d of allocation at %d", i, p)
	}
}
