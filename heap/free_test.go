package heap_test

import (
	"testing"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/malloc/heap"
	"github.com/vkngwrapper/malloc/memutils"
	"github.com/vkngwrapper/malloc/memutils/boundary"
)

func TestFreeNil(t *testing.T) {
	h, _ := newTestHeap(t, heap.Options{})
	require.NoError(t, h.Free(heap.NilPtr))
	require.NoError(t, h.Validate())
}

func TestFreeTwiceIsRejected(t *testing.T) {
	h, _ := newTestHeap(t, heap.Options{ChunkSize: 8})

	p, err := h.Allocate(40)
	require.NoError(t, err)
	keep, err := h.Allocate(40)
	require.NoError(t, err)

	require.NoError(t, h.Free(p))
	err = h.Free(p)
	require.True(t, cerrors.Is(err, memutils.DoubleFreeError))

	_, err = h.Resize(p, 10)
	require.True(t, cerrors.Is(err, memutils.DoubleFreeError))

	_, err = h.Bytes(p)
	require.True(t, cerrors.Is(err, memutils.DoubleFreeError))

	require.Equal(t, 1, h.AllocationCount())
	require.Equal(t, 1, h.FreeBlockCount())
	require.NoError(t, h.Validate())
	require.NoError(t, h.Free(keep))
}

func TestFreeForeignPointerIsRejected(t *testing.T) {
	h, _ := newTestHeap(t, heap.Options{})

	p, err := h.Allocate(64)
	require.NoError(t, err)

	for _, bad := range []heap.Ptr{p + 1, p + 8, 4, -16, heap.Ptr(h.Size()), heap.Ptr(h.Size() + 4096)} {
		err = h.Free(bad)
		require.Truef(t, cerrors.Is(err, memutils.InvalidPointerError), "pointer %d: %v", bad, err)
	}

	require.Equal(t, 1, h.AllocationCount())
	require.NoError(t, h.Validate())
	require.NoError(t, h.Free(p))
}

func TestFreeCorruptedTagsPanics(t *testing.T) {
	h, src := newTestHeap(t, heap.Options{ChunkSize: 8})

	p, err := h.Allocate(32)
	require.NoError(t, err)
	_, err = h.Allocate(32)
	require.NoError(t, err)

	size, err := h.PayloadSize(p)
	require.NoError(t, err)

	// Overwrite the footer as a buffer overrun would
	mem := src.Bytes()
	footer := int(p) + size + memutils.DebugMargin
	boundary.Put(mem, footer, boundary.Encode(4096, false))

	require.Error(t, h.Validate())
	require.Panics(t, func() {
		_ = h.Free(p)
	})
}

func TestFreeCorruptedNeighborPanics(t *testing.T) {
	h, src := newTestHeap(t, heap.Options{ChunkSize: 8})

	p1, err := h.Allocate(32)
	require.NoError(t, err)
	p2, err := h.Allocate(32)
	require.NoError(t, err)
	_, err = h.Allocate(32)
	require.NoError(t, err)
	require.NoError(t, h.Free(p2))

	// The free neighbor's header no longer matches its footer
	mem := src.Bytes()
	header := boundary.Header(mem, int(p2))
	boundary.Put(mem, boundary.HeaderOffset(int(p2)), boundary.Encode(header.Size()+8, false))

	require.Panics(t, func() {
		_ = h.Free(p1)
	})
}
