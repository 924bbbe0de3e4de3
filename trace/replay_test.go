package trace_test

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/malloc/heap"
	"github.com/vkngwrapper/malloc/memutils/freelist"
	"github.com/vkngwrapper/malloc/source"
	"github.com/vkngwrapper/malloc/trace"
	"golang.org/x/exp/slog"
)

func newHeap(t *testing.T, strategy freelist.AllocationStrategy) *heap.Heap {
	h, err := heap.New(slog.New(slog.NewTextHandler(io.Discard, nil)), source.NewSliceSource(0, 0), heap.Options{
		Strategy: strategy,
	})
	require.NoError(t, err)
	return h
}

func TestReplayBundledTraces(t *testing.T) {
	all, err := trace.LoadDir(afero.NewOsFs(), "testdata")
	require.NoError(t, err)

	for _, strategy := range []freelist.AllocationStrategy{
		freelist.AllocationStrategyMinTime,
		freelist.AllocationStrategyMinMemory,
		freelist.AllocationStrategyMinOffset,
	} {
		h := newHeap(t, strategy)
		for _, loaded := range all {
			result, err := trace.Replay(h, loaded, trace.ReplayOptions{CheckHeap: true})
			require.NoError(t, err, "%s with %s", loaded.Name, strategy)

			require.Equal(t, len(loaded.Ops), result.Ops)
			require.Positive(t, result.PeakPayload)
			require.GreaterOrEqual(t, result.HeapSize, result.PeakPayload)
			require.Greater(t, result.Utilization(), 0.0)
			require.LessOrEqual(t, result.Utilization(), 1.0)
			require.Equal(t, 0, h.AllocationCount())
		}
	}
}

func TestReplayResetsHeap(t *testing.T) {
	loaded, err := trace.Parse(strings.NewReader(smallTrace))
	require.NoError(t, err)
	h := newHeap(t, freelist.AllocationStrategyMinTime)

	first, err := trace.Replay(h, loaded, trace.ReplayOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, h.AllocationCount())

	second, err := trace.Replay(h, loaded, trace.ReplayOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, h.AllocationCount())
	require.Equal(t, first.HeapSize, second.HeapSize)
	require.Equal(t, 164, second.PeakPayload)
}

func TestReplayInconsistentTrace(t *testing.T) {
	h := newHeap(t, freelist.AllocationStrategyMinTime)

	for _, input := range []string{
		"10\n1\n1\n1\nf 0\n",
		"10\n1\n2\n1\na 0 8\na 0 8\n",
		"10\n1\n1\n1\nr 0 8\n",
	} {
		loaded, err := trace.Parse(strings.NewReader(input))
		require.NoError(t, err)

		_, err = trace.Replay(h, loaded, trace.ReplayOptions{})
		require.True(t, cerrors.Is(err, trace.InconsistentTraceError), "%v", err)
	}
}

func TestReplayZeroSizes(t *testing.T) {
	loaded, err := trace.Parse(strings.NewReader("10\n1\n4\n1\na 0 0\nr 0 32\nr 0 0\nf 0\n"))
	require.NoError(t, err)

	h := newHeap(t, freelist.AllocationStrategyMinTime)
	_, err = trace.Replay(h, loaded, trace.ReplayOptions{CheckHeap: true})
	require.NoError(t, err)
	require.Equal(t, 0, h.AllocationCount())
}

func TestWriteReport(t *testing.T) {
	results := []trace.Result{
		{Name: "first", Ops: 12000, PeakPayload: 500, HeapSize: 1000, Elapsed: time.Second},
		{Name: "second", Ops: 3000, PeakPayload: 750, HeapSize: 1000, Elapsed: 2 * time.Second},
	}

	var out bytes.Buffer
	require.NoError(t, trace.WriteReport(&out, results))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[1], "first")
	require.Contains(t, lines[1], "12,000")
	require.Contains(t, lines[1], "50.0%")
	require.Contains(t, lines[3], "total")
	require.Contains(t, lines[3], "15,000")
	require.Contains(t, lines[3], "62.5%")

	summary := trace.Summarize(results)
	require.Equal(t, 2, summary.Traces)
	require.InDelta(t, 5000.0, summary.OpsPerSecond, 0.001)
}

func TestWriteJSONReport(t *testing.T) {
	results := []trace.Result{
		{Name: "only", Ops: 10, PeakPayload: 40, HeapSize: 80, Elapsed: time.Second},
	}

	writer := jwriter.NewWriter()
	trace.WriteJSONReport(&writer, results)
	require.NoError(t, writer.Error())

	var report struct {
		Traces []struct {
			Name         string
			Ops          int
			Utilization  float64
			OpsPerSecond float64
		}
		Summary struct {
			Traces int
			Ops    int
		}
	}
	require.NoError(t, json.Unmarshal(writer.Bytes(), &report))
	require.Len(t, report.Traces, 1)
	require.Equal(t, "only", report.Traces[0].Name)
	require.InDelta(t, 0.5, report.Traces[0].Utilization, 0.0001)
	require.InDelta(t, 10.0, report.Traces[0].OpsPerSecond, 0.0001)
	require.Equal(t, 1, report.Summary.Traces)
	require.Equal(t, 10, report.Summary.Ops)
}
