package memutils_test

import (
	"math"
	"testing"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/malloc/memutils"
)

func TestCheckPow2(t *testing.T) {
	require.NoError(t, memutils.CheckPow2(8, "alignment"))
	require.NoError(t, memutils.CheckPow2(uint(4096), "chunk"))

	err := memutils.CheckPow2(24, "alignment")
	require.Error(t, err)
	require.True(t, cerrors.Is(err, memutils.PowerOfTwoError))
	require.Contains(t, err.Error(), "alignment is 24")

	require.Error(t, memutils.CheckPow2(0, "alignment"))
}

func TestAlign(t *testing.T) {
	require.Equal(t, 0, memutils.AlignUp(0, 8))
	require.Equal(t, 8, memutils.AlignUp(1, 8))
	require.Equal(t, 112, memutils.AlignUp(108, 8))
	require.Equal(t, 112, memutils.AlignUp(112, 16))
	require.Equal(t, 128, memutils.AlignUp(113, 16))

	require.Equal(t, 104, memutils.AlignDown(108, 8))
	require.Equal(t, 96, memutils.AlignDown(108, 16))
}

func TestMulOverflows(t *testing.T) {
	require.False(t, memutils.MulOverflows(0, 100))
	require.False(t, memutils.MulOverflows(10, 100))
	require.True(t, memutils.MulOverflows(-1, 100))
	require.True(t, memutils.MulOverflows(math.MaxInt/2, 3))
}

func TestDetailedStatistics(t *testing.T) {
	var stats memutils.DetailedStatistics
	stats.Clear()

	require.Equal(t, math.MaxInt, stats.AllocationSizeMin)
	require.Equal(t, float64(0), stats.Fragmentation())

	stats.AddAllocation(32)
	stats.AddAllocation(64)
	stats.AddUnusedRange(48)
	stats.AddUnusedRange(16)
	stats.HeapBytes = 160

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			HeapBytes:       160,
			AllocationCount: 2,
			AllocationBytes: 96,
		},
		UnusedRangeCount:   2,
		UnusedRangeBytes:   64,
		AllocationSizeMin:  32,
		AllocationSizeMax:  64,
		UnusedRangeSizeMin: 16,
		UnusedRangeSizeMax: 48,
	}, stats)
	require.InDelta(t, 0.25, stats.Fragmentation(), 1e-9)
	require.InDelta(t, 0.6, stats.Utilization(), 1e-9)

	var total memutils.DetailedStatistics
	total.Clear()
	total.AddDetailedStatistics(&stats)
	total.AddDetailedStatistics(&stats)
	require.Equal(t, 4, total.AllocationCount)
	require.Equal(t, 16, total.UnusedRangeSizeMin)
	require.Equal(t, 64, total.AllocationSizeMax)
}
