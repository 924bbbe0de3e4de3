package heap

import (
	"io"
	"sort"
	"strings"

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

// CreateFlags indicate specific heap behaviors to activate or deactivate
type CreateFlags int32

const (
	// CreateExternallySynchronized ensures that the heap will not be synchronized internally. The consumer
	// must guarantee it is used from only one goroutine at a time or is synchronized by some other mechanism,
	// but performance may improve because the internal mutex is not used.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

var createFlagsMapping = map[CreateFlags]string{
	CreateExternallySynchronized: "CreateExternallySynchronized",
}

func (f CreateFlags) String() string {
	var names []string
	for flag, name := range createFlagsMapping {
		if f&flag != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

const (
	// DefaultAlignment is the payload alignment used when Options.Alignment is 0
	DefaultAlignment uint = 8
	// DefaultChunkSize is the minimum number of bytes requested from the source each time the heap grows
	// when Options.ChunkSize is 0. It is equal to 4Kb.
	DefaultChunkSize int = 1 << 12
)

// Options contains optional settings when creating a heap
type Options struct {
	// Flags indicates specific heap behaviors to activate or deactivate
	Flags CreateFlags
	// Alignment is the alignment in bytes of every payload pointer and block size. It must be a
	// power of two no smaller than 8.
	Alignment uint
	// ChunkSize is the least the heap will grow by when no free block fits a request. Growth is
	// always at least the shortfall of the request, so a ChunkSize equal to Alignment grows by
	// exactly what is missing. Values below the minimum block size are raised to it.
	ChunkSize int
	// InitialSize is the number of bytes of free space to request from the source during Init,
	// on top of the heap's fixed bookkeeping. It may be 0; other values below the minimum block
	// size are raised to it.
	InitialSize int
	// Strategy selects how free blocks are chosen for allocations. The default is first fit.
	Strategy freelist.AllocationStrategy
}

// New creates a heap on top of src and initializes it. The heap takes ownership of src: Init resets
// it and Close releases it.
func New(logger *slog.Logger, src source.Source, options Options) (*Heap, error) {
	if src == nil {
		return nil, cerrors.New("a heap requires a source")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	alignment := options.Alignment
	if alignment == 0 {
		alignment = DefaultAlignment
	}
	err := memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return nil, err
	}
	if alignment < 1<<boundary.FlagBits {
		return nil, cerrors.Newf("alignment must be at least %d, but it is %d", 1<<boundary.FlagBits, alignment)
	}

	chunkSize := options.ChunkSize
	if chunkSize < 0 {
		return nil, cerrors.Newf("chunk size must not be negative, but it is %d", chunkSize)
	} else if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}

	if options.InitialSize < 0 {
		return nil, cerrors.Newf("initial size must not be negative, but it is %d", options.InitialSize)
	}

	strategy := options.Strategy
	if strategy == 0 {
		strategy = freelist.AllocationStrategyMinTime
	}

	minBlock := memutils.AlignUp(boundary.Overhead+max(freelist.MinPayload, memutils.DebugMargin), alignment)

	// Every extension becomes a free block, so none may be smaller than the minimum block
	initialSize := options.InitialSize
	if initialSize > 0 {
		initialSize = max(memutils.AlignUp(initialSize, alignment), minBlock)
	}

	id := uuid.New()
	h := &Heap{
		id:     id,
		logger: logger.With(slog.String("HeapID", id.String())),
		src:    src,
		mutex: utils.OptionalMutex{
			UseMutex: options.Flags&CreateExternallySynchronized == 0,
		},

		alignment:   alignment,
		minBlock:    minBlock,
		chunkSize:   max(memutils.AlignUp(chunkSize, alignment), minBlock),
		initialSize: initialSize,
		strategy:    strategy,
		firstBlock:  memutils.AlignUp(3*boundary.WordSize, alignment),

		live: swiss.NewMap[int, int](64),
	}
	h.free = freelist.New(src)

	h.logger.Debug("Heap::New",
		slog.Any("Flags", options.Flags),
		slog.Int("Alignment", int(alignment)),
		slog.Int("ChunkSize", h.chunkSize),
		slog.String("Strategy", strategy.String()),
	)

	err = h.init()
	if err != nil {
		return nil, err
	}

	return h, nil
}
