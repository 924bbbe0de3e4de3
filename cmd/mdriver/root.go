package main

import (
	"io"
	"os"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/profile"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/malloc/heap"
	"github.com/vkngwrapper/malloc/memutils/freelist"
	"github.com/vkngwrapper/malloc/source"
	"github.com/vkngwrapper/malloc/trace"
	"golang.org/x/exp/slog"
)

type driverOptions struct {
	dir        string
	strategy   string
	maxHeap    int
	chunk      int
	alignment  uint
	mmap       bool
	check      bool
	jsonOut    bool
	verbose    bool
	cpuProfile bool
	memProfile bool
	profileDir string
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	var opts driverOptions

	cmd := &cobra.Command{
		Use:   "mdriver [trace files...]",
		Short: "Replay allocation traces against the heap",
		Long: `mdriver replays malloc-lab trace files against a heap, checking every payload
it hands out, and reports space utilization and throughput for each trace.

With no arguments every .rep file in --dir is replayed.

Example:
  mdriver --dir traces
  mdriver --strategy best --check traces/short1-bal.rep
  mdriver --mmap --json traces/*.rep`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDriver(cmd, fs, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.dir, "dir", "d", ".", "Directory to load traces from when none are named")
	flags.StringVarP(&opts.strategy, "strategy", "s", "first", "Free block selection: first, best or lowest")
	flags.IntVar(&opts.maxHeap, "max-heap", source.DefaultMaxSize, "Largest heap size in bytes")
	flags.IntVar(&opts.chunk, "chunk", 0, "Least number of bytes to grow the heap by (0 for the default)")
	flags.UintVar(&opts.alignment, "alignment", 0, "Payload alignment (0 for the default)")
	flags.BoolVar(&opts.mmap, "mmap", false, "Reserve the heap with mmap instead of a Go slice")
	flags.BoolVarP(&opts.check, "check", "c", false, "Validate the heap after every operation")
	flags.BoolVar(&opts.jsonOut, "json", false, "Output in JSON format")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log every heap operation")
	flags.BoolVar(&opts.cpuProfile, "cpu-profile", false, "Write a CPU profile")
	flags.BoolVar(&opts.memProfile, "mem-profile", false, "Write a memory profile")
	flags.StringVar(&opts.profileDir, "profile-dir", ".", "Directory profiles are written to")

	return cmd
}

func runDriver(cmd *cobra.Command, fs afero.Fs, opts driverOptions, args []string) error {
	strategy, ok := freelist.ParseAllocationStrategy(opts.strategy)
	if !ok {
		return cerrors.Newf("unknown strategy %q: expected first, best or lowest", opts.strategy)
	}

	if opts.cpuProfile && opts.memProfile {
		return cerrors.New("--cpu-profile and --mem-profile cannot be used together")
	}
	if opts.cpuProfile {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(opts.profileDir), profile.NoShutdownHook, profile.Quiet).Stop()
	} else if opts.memProfile {
		defer profile.Start(profile.MemProfile, profile.ProfilePath(opts.profileDir), profile.NoShutdownHook, profile.Quiet).Stop()
	}

	traces, err := loadTraces(fs, opts.dir, args)
	if err != nil {
		return err
	}
	if len(traces) == 0 {
		return cerrors.Newf("no trace files found in %s", opts.dir)
	}

	src, err := newSource(opts)
	if err != nil {
		return err
	}

	h, err := heap.New(newLogger(cmd.ErrOrStderr(), opts.verbose), src, heap.Options{
		Alignment: opts.alignment,
		ChunkSize: opts.chunk,
		Strategy:  strategy,
	})
	if err != nil {
		_ = src.Release()
		return err
	}
	defer h.Close()

	results := make([]trace.Result, 0, len(traces))
	for _, t := range traces {
		result, err := trace.Replay(h, t, trace.ReplayOptions{CheckHeap: opts.check})
		if err != nil {
			return err
		}
		results = append(results, result)
	}

	if opts.jsonOut {
		writer := jwriter.NewWriter()
		trace.WriteJSONReport(&writer, results)
		if err := writer.Error(); err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(append(writer.Bytes(), '\n'))
		return err
	}

	return trace.WriteReport(cmd.OutOrStdout(), results)
}

func loadTraces(fs afero.Fs, dir string, args []string) ([]*trace.Trace, error) {
	if len(args) == 0 {
		return trace.LoadDir(fs, dir)
	}

	traces := make([]*trace.Trace, 0, len(args))
	for _, path := range args {
		t, err := trace.Load(fs, path)
		if err != nil {
			return nil, err
		}
		traces = append(traces, t)
	}
	return traces, nil
}

func newSource(opts driverOptions) (source.Source, error) {
	if opts.mmap {
		return source.NewMmapSource(opts.maxHeap)
	}

	return source.NewSliceSource(opts.maxHeap, 0), nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
