//go:build linux || darwin

package source

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/malloc/memutils"
	"golang.org/x/sys/unix"
)

// MmapSource reserves its whole address range up front with an inaccessible anonymous mapping and
// commits pages as the break moves up, the way sbrk extends a data segment. The region never moves.
type MmapSource struct {
	region    []byte
	brk       int
	committed int
	pageSize  uint
}

var _ Source = &MmapSource{}

// NewMmapSource reserves max bytes of address space, rounded up to a whole number of pages
func NewMmapSource(max int) (*MmapSource, error) {
	if max <= 0 {
		max = DefaultMaxSize
	}

	pageSize := uint(unix.Getpagesize())
	reserve := memutils.AlignUp(max, pageSize)

	region, err := unix.Mmap(-1, 0, reserve, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, cerrors.Wrapf(err, "reserving %d bytes", reserve)
	}

	return &MmapSource{
		region:   region,
		pageSize: pageSize,
	}, nil
}

func (s *MmapSource) Grow(delta int) (int, error) {
	if s.region == nil {
		return 0, cerrors.New("mmap source has been released")
	}
	if delta < 0 {
		return 0, cerrors.Wrapf(InvalidGrowError, "delta %d", delta)
	}

	oldBreak := s.brk
	if delta > len(s.region)-oldBreak {
		return 0, cerrors.Wrapf(ExhaustedError, "cannot grow %d bytes past %d, limit is %d", delta, oldBreak, len(s.region))
	}

	newBreak := oldBreak + delta
	if newBreak > s.committed {
		commit := memutils.AlignUp(newBreak, s.pageSize)
		err := unix.Mprotect(s.region[s.committed:commit], unix.PROT_READ|unix.PROT_WRITE)
		if err != nil {
			return 0, cerrors.Mark(cerrors.Wrapf(err, "committing pages %d-%d", s.committed, commit), ExhaustedError)
		}
		s.committed = commit
	}

	// Pages below the committed mark may hold data from before a Reset
	clear(s.region[oldBreak:newBreak])
	s.brk = newBreak

	return oldBreak, nil
}

func (s *MmapSource) Bytes() []byte { return s.region[:s.brk] }

func (s *MmapSource) Size() int { return s.brk }

// Max returns the size of the reserved range
func (s *MmapSource) Max() int { return len(s.region) }

func (s *MmapSource) Reset() {
	s.brk = 0
}

func (s *MmapSource) Release() error {
	if s.region == nil {
		return nil
	}

	err := unix.Munmap(s.region)
	s.region = nil
	s.brk = 0
	s.committed = 0
	return err
}
