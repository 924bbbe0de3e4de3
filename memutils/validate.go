package memutils

// Validatable is anything that can check its own bookkeeping, such as a heap walking its blocks and
// free list. DebugValidate accepts any Validatable.
type Validatable interface {
	Validate() error
}
