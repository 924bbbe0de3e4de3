package source

import (
	cerrors "github.com/cockroachdb/errors"
)

// SliceSource is a Source backed by an ordinary Go byte slice. Growing past the slice's capacity
// reallocates it, which is safe for heaps because they address memory by offset.
type SliceSource struct {
	data []byte
	max  int
}

var _ Source = &SliceSource{}

// NewSliceSource creates a source that refuses to grow beyond max bytes. initialCapacity
// preallocates backing storage so that small heaps never reallocate.
func NewSliceSource(max int, initialCapacity int) *SliceSource {
	if max <= 0 {
		max = DefaultMaxSize
	}
	if initialCapacity < 0 {
		initialCapacity = 0
	}
	if initialCapacity > max {
		initialCapacity = max
	}

	return &SliceSource{
		data: make([]byte, 0, initialCapacity),
		max:  max,
	}
}

func (s *SliceSource) Grow(delta int) (int, error) {
	if delta < 0 {
		return 0, cerrors.Wrapf(InvalidGrowError, "delta %d", delta)
	}

	oldBreak := len(s.data)
	if delta > s.max-oldBreak {
		return 0, cerrors.Wrapf(ExhaustedError, "cannot grow %d bytes past %d, limit is %d", delta, oldBreak, s.max)
	}

	newBreak := oldBreak + delta
	if newBreak > cap(s.data) {
		newCap := cap(s.data) * 2
		if newCap < newBreak {
			newCap = newBreak
		}
		if newCap > s.max {
			newCap = s.max
		}

		grown := make([]byte, oldBreak, newCap)
		copy(grown, s.data)
		s.data = grown
	}

	s.data = s.data[:newBreak]
	clear(s.data[oldBreak:])

	return oldBreak, nil
}

func (s *SliceSource) Bytes() []byte { return s.data }

func (s *SliceSource) Size() int { return len(s.data) }

// Max returns the limit the break may not exceed
func (s *SliceSource) Max() int { return s.max }

func (s *SliceSource) Reset() {
	s.data = s.data[:0]
}

func (s *SliceSource) Release() error {
	s.data = nil
	return nil
}
