package boundary

// HeaderOffset returns the offset of the header belonging to the block whose payload starts at bp
func HeaderOffset(bp int) int {
	return bp - WordSize
}

// FooterOffset returns the offset of the footer of the block at bp, using the size in its header
func FooterOffset(mem []byte, bp int) int {
	return bp + BlockSize(mem, bp) - Overhead
}

// Header reads the header tag of the block at bp
func Header(mem []byte, bp int) Tag {
	return Get(mem, HeaderOffset(bp))
}

// Footer reads the footer tag of the block at bp
func Footer(mem []byte, bp int) Tag {
	return Get(mem, FooterOffset(mem, bp))
}

// BlockSize returns the total size recorded in the header of the block at bp
func BlockSize(mem []byte, bp int) int {
	return Header(mem, bp).Size()
}

// IsAllocated returns the allocation flag recorded in the header of the block at bp
func IsAllocated(mem []byte, bp int) bool {
	return Header(mem, bp).Allocated()
}

// PayloadSize returns the number of payload bytes available in the block at bp
func PayloadSize(mem []byte, bp int) int {
	return BlockSize(mem, bp) - Overhead
}

// Write writes identical header and footer tags for a block of the given size at bp
func Write(mem []byte, bp int, size int, allocated bool) {
	t := Encode(size, allocated)
	Put(mem, HeaderOffset(bp), t)
	Put(mem, bp+size-Overhead, t)
}

// SetAllocated rewrites the allocation flag in both tags of the block at bp, keeping its size
func SetAllocated(mem []byte, bp int, allocated bool) {
	Write(mem, bp, BlockSize(mem, bp), allocated)
}

// Matches reports whether the header and footer of the block at bp carry the same tag
func Matches(mem []byte, bp int) bool {
	return Header(mem, bp) == Footer(mem, bp)
}

// NextBlock returns the payload offset of the block that follows bp in address order
func NextBlock(mem []byte, bp int) int {
	return bp + BlockSize(mem, bp)
}

// PrevFooter reads the footer of the block preceding bp in address order
func PrevFooter(mem []byte, bp int) Tag {
	return Get(mem, bp-Overhead)
}

// PrevBlock returns the payload offset of the block that precedes bp in address order
func PrevBlock(mem []byte, bp int) int {
	return bp - PrevFooter(mem, bp).Size()
}

// PrevAllocated reports the allocation flag of the preceding block, read from its footer
func PrevAllocated(mem []byte, bp int) bool {
	return PrevFooter(mem, bp).Allocated()
}

// NextAllocated reports the allocation flag of the following block, read from its header
func NextAllocated(mem []byte, bp int) bool {
	return IsAllocated(mem, NextBlock(mem, bp))
}
