//go:build !linux && !darwin

package source

// MmapSource falls back to a slice-backed source on platforms without the mapping primitives
// the reserving implementation needs.
type MmapSource struct {
	SliceSource
}

var _ Source = &MmapSource{}

func NewMmapSource(max int) (*MmapSource, error) {
	return &MmapSource{SliceSource: *NewSliceSource(max, 0)}, nil
}
