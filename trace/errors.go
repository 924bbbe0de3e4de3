package trace

import "github.com/pkg/errors"

var (
	// MalformedTraceError is returned when a trace file cannot be parsed
	MalformedTraceError error = errors.New("malformed trace")
	// InconsistentTraceError is returned when a trace frees or resizes an id that is not allocated,
	// or allocates an id that already is
	InconsistentTraceError error = errors.New("trace is inconsistent")
	// PayloadError is returned when the heap hands out a payload that is misaligned, lies outside the
	// heap, overlaps another live payload or has lost its contents
	PayloadError error = errors.New("heap returned a bad payload")
)
