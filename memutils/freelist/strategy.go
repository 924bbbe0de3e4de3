package freelist

// AllocationStrategy selects how FindFit chooses among free blocks that are large enough for a
// request. If none is chosen, first fit is used.
type AllocationStrategy uint32

const (
	// AllocationStrategyMinTime selects the first suitable free block in list order. Blocks freed most
	// recently sit at the head of the list, so this is also the strategy most likely to hand back
	// memory that was just released.
	AllocationStrategyMinTime AllocationStrategy = 1 << iota
	// AllocationStrategyMinMemory selects the smallest suitable free block, scanning the whole list
	// unless an exact fit is found, to reduce the size of split remainders.
	AllocationStrategyMinMemory
	// AllocationStrategyMinOffset selects the suitable free block with the lowest address, packing
	// allocations toward the start of the heap.
	AllocationStrategyMinOffset
)

var allocationStrategyMapping = map[AllocationStrategy]string{
	AllocationStrategyMinTime:   "AllocationStrategyMinTime",
	AllocationStrategyMinMemory: "AllocationStrategyMinMemory",
	AllocationStrategyMinOffset: "AllocationStrategyMinOffset",
}

func (s AllocationStrategy) String() string {
	return allocationStrategyMapping[s]
}

var allocationStrategyNames = map[string]AllocationStrategy{
	"first":  AllocationStrategyMinTime,
	"best":   AllocationStrategyMinMemory,
	"lowest": AllocationStrategyMinOffset,
}

// ParseAllocationStrategy maps the short names "first", "best" and "lowest" to a strategy
func ParseAllocationStrategy(name string) (AllocationStrategy, bool) {
	s, ok := allocationStrategyNames[name]
	return s, ok
}
