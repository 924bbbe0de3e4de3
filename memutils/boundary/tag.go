// Package boundary encodes the boundary tags that sit at both ends of every heap block and
// provides the address arithmetic used to walk blocks in both directions.
//
// Offsets handed to the navigation helpers are payload offsets ("bp"): the byte immediately
// after a block's header. All multi-byte values are little endian.
package boundary

import (
	"encoding/binary"
	"fmt"
)

const (
	// WordSize is the width in bytes of a header or footer tag
	WordSize = 4
	// Overhead is the number of bytes every block spends on tags
	Overhead = 2 * WordSize
	// FlagBits is the number of low-order tag bits reserved for flags. Block sizes must be
	// multiples of 1<<FlagBits.
	FlagBits = 3
	// MaxBlockSize is the largest block size accepted by Encode. It keeps sizes representable
	// as an int on 32-bit platforms.
	MaxBlockSize = 1<<31 - 1<<FlagBits
)

// Tag is a single header or footer word: the block size in the high bits and
// the allocated flag in bit 0.
type Tag uint32

const (
	allocatedBit Tag = 0x1
	sizeMask     Tag = ^Tag(1<<FlagBits - 1)
)

// Encode packs a block size and allocation status into a tag. The size must be a non-negative
// multiple of 8 no larger than MaxBlockSize.
func Encode(size int, allocated bool) Tag {
	if size < 0 || size > MaxBlockSize || Tag(size)&^sizeMask != 0 {
		panic(fmt.Sprintf("block size %d cannot be encoded in a boundary tag", size))
	}

	t := Tag(size)
	if allocated {
		t |= allocatedBit
	}
	return t
}

// Decode unpacks a tag into its block size and allocation status
func Decode(t Tag) (int, bool) {
	return t.Size(), t.Allocated()
}

func (t Tag) Size() int {
	return int(t & sizeMask)
}

func (t Tag) Allocated() bool {
	return t&allocatedBit != 0
}

func (t Tag) String() string {
	if t.Allocated() {
		return fmt.Sprintf("%d/a", t.Size())
	}
	return fmt.Sprintf("%d/f", t.Size())
}

// Get reads the tag word at off
func Get(mem []byte, off int) Tag {
	return Tag(binary.LittleEndian.Uint32(mem[off:]))
}

// Put writes the tag word at off
func Put(mem []byte, off int, t Tag) {
	binary.LittleEndian.PutUint32(mem[off:], uint32(t))
}
