// Package freelist implements an explicit, unordered, doubly linked list of free heap blocks.
// The list owns no storage of its own: the previous and next links live in the first bytes of each
// free block's payload and are expressed as offsets into the heap's memory.
package freelist

import (
	"encoding/binary"

	"github.com/vkngwrapper/malloc/memutils/boundary"
)

const (
	// LinkSize is the width in bytes of a single stored link
	LinkSize = 8
	// prevLink and nextLink are the payload offsets of the two links
	prevLink = 0
	nextLink = LinkSize

	// None marks the absence of a link. Offset 0 is never a payload.
	None = 0
)

// MinPayload is the number of payload bytes a block must have to be threaded onto the list
const MinPayload = 2 * LinkSize

// Memory is the byte region the list threads its links through. The slice returned may change
// between calls when the region grows, so the list never holds on to it.
type Memory interface {
	Bytes() []byte
}

// List is the free list of a single heap
type List struct {
	mem    Memory
	head   int
	length int
}

// New creates an empty list over mem
func New(mem Memory) *List {
	return &List{mem: mem}
}

// Reset forgets every member without touching memory
func (l *List) Reset() {
	l.head = None
	l.length = 0
}

// Head returns the payload offset of the first member, or None
func (l *List) Head() int { return l.head }

// Len returns the number of members
func (l *List) Len() int { return l.length }

// Next returns the member after bp, or None
func (l *List) Next(bp int) int {
	return getLink(l.mem.Bytes(), bp+nextLink)
}

// Prev returns the member before bp, or None
func (l *List) Prev(bp int) int {
	return getLink(l.mem.Bytes(), bp+prevLink)
}

// InsertFront makes bp the new head of the list. bp must be a free block that is not
// already a member.
func (l *List) InsertFront(bp int) {
	mem := l.mem.Bytes()

	putLink(mem, bp+nextLink, l.head)
	if l.head != None {
		putLink(mem, l.head+prevLink, bp)
	}
	putLink(mem, bp+prevLink, None)
	l.head = bp
	l.length++
}

// Remove splices bp out of the list. bp must be a member.
func (l *List) Remove(bp int) {
	mem := l.mem.Bytes()
	prev := getLink(mem, bp+prevLink)
	next := getLink(mem, bp+nextLink)

	if prev != None {
		putLink(mem, prev+nextLink, next)
	} else {
		l.head = next
	}

	if next != None {
		putLink(mem, next+prevLink, prev)
	}
	l.length--
}

// Visit calls visitor for each member in list order until it returns false
func (l *List) Visit(visitor func(bp int) bool) {
	mem := l.mem.Bytes()
	for bp := l.head; bp != None; bp = getLink(mem, bp+nextLink) {
		if !visitor(bp) {
			return
		}
	}
}

// FindFit searches for a free block whose total size is at least size, choosing among candidates
// according to strategy. It returns false if no member is large enough.
func (l *List) FindFit(size int, strategy AllocationStrategy) (int, bool) {
	mem := l.mem.Bytes()

	switch {
	case strategy&AllocationStrategyMinMemory != 0:
		best, bestSize := None, 0
		for bp := l.head; bp != None; bp = getLink(mem, bp+nextLink) {
			blockSize := boundary.BlockSize(mem, bp)
			if blockSize < size {
				continue
			}
			if blockSize == size {
				return bp, true
			}
			if best == None || blockSize < bestSize {
				best, bestSize = bp, blockSize
			}
		}
		return best, best != None

	case strategy&AllocationStrategyMinOffset != 0:
		best := None
		for bp := l.head; bp != None; bp = getLink(mem, bp+nextLink) {
			if boundary.BlockSize(mem, bp) >= size && (best == None || bp < best) {
				best = bp
			}
		}
		return best, best != None

	default:
		for bp := l.head; bp != None; bp = getLink(mem, bp+nextLink) {
			if boundary.BlockSize(mem, bp) >= size {
				return bp, true
			}
		}
		return None, false
	}
}

func getLink(mem []byte, off int) int {
	return int(binary.LittleEndian.Uint64(mem[off:]))
}

func putLink(mem []byte, off int, bp int) {
	binary.LittleEndian.PutUint64(mem[off:], uint64(bp))
}
