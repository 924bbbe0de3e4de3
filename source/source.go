// Package source provides the regions of memory that a heap grows into. A Source behaves like the
// data segment of a process: it has a break that only moves upward until the source is reset, and
// every byte below the break stays addressable at the same offset for the life of the source.
package source

import (
	"github.com/pkg/errors"
)

//go:generate mockgen -source source.go -destination ./mocks/source.go -package mocks

// Source is a contiguous, growable byte region
type Source interface {
	// Grow moves the break up by delta bytes and returns the offset of the first new byte (the old
	// break). The new bytes are zeroed. On failure the break does not move.
	Grow(delta int) (int, error)
	// Bytes returns the region below the break. The returned slice may be invalidated by Grow or
	// Reset; offsets into it are not.
	Bytes() []byte
	// Size returns the current break
	Size() int
	// Reset moves the break back to zero
	Reset()
	// Release returns the region's memory. The source must not be used afterward.
	Release() error
}

var (
	// ExhaustedError is returned by Grow when the request would move the break past the source's limit
	ExhaustedError error = errors.New("heap source exhausted")
	// InvalidGrowError is returned by Grow for negative deltas
	InvalidGrowError error = errors.New("heap source cannot shrink through Grow")
)

// DefaultMaxSize is the limit used when a source is created with a non-positive max. It is equal to 20Mb.
const DefaultMaxSize int = 20 * 1024 * 1024
