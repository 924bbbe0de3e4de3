package memutils

import "github.com/pkg/errors"

var (
	// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
	PowerOfTwoError error = errors.New("number must be a power of two")
	// OutOfMemoryError is returned when a heap could not produce a block large enough for a request, even after
	// asking its source for more memory
	OutOfMemoryError error = errors.New("out of memory")
	// InvalidPointerError is returned when a pointer passed to a heap does not identify a block that the heap
	// handed out
	InvalidPointerError error = errors.New("pointer was not returned by this heap")
	// DoubleFreeError is returned when a pointer is freed while its block is already free
	DoubleFreeError error = errors.New("block is already free")
	// SizeOverflowError is returned when a requested size is negative or cannot be represented
	SizeOverflowError error = errors.New("requested size is out of range")
)

// CorruptionError is returned when the canary written after an allocation has been overwritten
var CorruptionError error = errors.New("memory corruption detected")
