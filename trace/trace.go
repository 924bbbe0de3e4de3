// Package trace reads allocation workloads in the malloc-lab trace format and replays them against a
// heap, checking every payload the heap hands out.
//
// A trace file starts with four integers: the suggested heap size, the number of distinct allocation
// ids, the number of operations and a weight. Each following line is one operation:
//
//	a <id> <size>   allocate size bytes and remember the pointer as id
//	f <id>          free the pointer remembered as id
//	r <id> <size>   resize the pointer remembered as id to size bytes
//
// Blank lines and lines starting with # are ignored.
package trace

import (
	"bufio"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	cerrors "github.com/cockroachdb/errors"
	"github.com/spf13/afero"
)

// OpKind identifies the heap call made by an Op
type OpKind int

const (
	OpAllocate OpKind = iota
	OpFree
	OpResize
)

var opKindMapping = map[OpKind]string{
	OpAllocate: "a",
	OpFree:     "f",
	OpResize:   "r",
}

func (k OpKind) String() string {
	return opKindMapping[k]
}

// Op is a single operation in a trace
type Op struct {
	Kind OpKind
	ID   int
	Size int
	// Line is the line of the trace file the operation was read from
	Line int
}

// Trace is a parsed trace file
type Trace struct {
	Name              string
	SuggestedHeapSize int
	IDCount           int
	Weight            int
	Ops               []Op
}

// Extension is the file extension LoadDir looks for
const Extension = ".rep"

// Parse reads a trace from r. Errors name the offending line.
func Parse(r io.Reader) (*Trace, error) {
	scanner := bufio.NewScanner(r)
	trace := &Trace{}

	var header []int
	declaredOps := 0
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if len(header) < 4 {
			value, err := strconv.Atoi(line)
			if err != nil || value < 0 {
				return nil, cerrors.Wrapf(MalformedTraceError, "line %d: expected a non-negative header value, found %q", lineNumber, line)
			}
			header = append(header, value)

			if len(header) == 4 {
				trace.SuggestedHeapSize = header[0]
				trace.IDCount = header[1]
				declaredOps = header[2]
				trace.Weight = header[3]
				trace.Ops = make([]Op, 0, declaredOps)
			}
			continue
		}

		op, err := parseOp(line, lineNumber, trace.IDCount)
		if err != nil {
			return nil, err
		}
		trace.Ops = append(trace.Ops, op)
	}

	err := scanner.Err()
	if err != nil {
		return nil, cerrors.Wrap(err, "reading trace")
	}

	if len(header) < 4 {
		return nil, cerrors.Wrapf(MalformedTraceError, "trace ended after %d of 4 header values", len(header))
	}
	if len(trace.Ops) != declaredOps {
		return nil, cerrors.Wrapf(MalformedTraceError, "header declares %d operations but the trace holds %d", declaredOps, len(trace.Ops))
	}

	return trace, nil
}

func parseOp(line string, lineNumber int, idCount int) (Op, error) {
	fields := strings.Fields(line)
	op := Op{Line: lineNumber}

	var expectedFields int
	switch fields[0] {
	case "a":
		op.Kind = OpAllocate
		expectedFields = 3
	case "f":
		op.Kind = OpFree
		expectedFields = 2
	case "r":
		op.Kind = OpResize
		expectedFields = 3
	default:
		return op, cerrors.Wrapf(MalformedTraceError, "line %d: unknown operation %q", lineNumber, fields[0])
	}

	if len(fields) != expectedFields {
		return op, cerrors.Wrapf(MalformedTraceError, "line %d: operation %s takes %d arguments, found %d", lineNumber, fields[0], expectedFields-1, len(fields)-1)
	}

	id, err := strconv.Atoi(fields[1])
	if err != nil || id < 0 || id >= idCount {
		return op, cerrors.Wrapf(MalformedTraceError, "line %d: id %q is not in [0, %d)", lineNumber, fields[1], idCount)
	}
	op.ID = id

	if expectedFields == 3 {
		size, err := strconv.Atoi(fields[2])
		if err != nil || size < 0 {
			return op, cerrors.Wrapf(MalformedTraceError, "line %d: invalid size %q", lineNumber, fields[2])
		}
		op.Size = size
	}

	return op, nil
}

// Load parses the trace file at path within fs. The trace is named after the file.
func Load(fs afero.Fs, path string) (*Trace, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, cerrors.Wrapf(err, "opening trace %s", path)
	}
	defer file.Close()

	trace, err := Parse(file)
	if err != nil {
		return nil, cerrors.Wrapf(err, "parsing trace %s", path)
	}

	trace.Name = strings.TrimSuffix(filepath.Base(path), Extension)
	return trace, nil
}

// LoadDir loads every trace file in dir, sorted by file name
func LoadDir(fs afero.Fs, dir string) ([]*Trace, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, cerrors.Wrapf(err, "listing traces in %s", dir)
	}

	var paths []string
	for _, info := range infos {
		if !info.IsDir() && strings.HasSuffix(info.Name(), Extension) {
			paths = append(paths, filepath.Join(dir, info.Name()))
		}
	}
	sort.Strings(paths)

	traces := make([]*Trace, 0, len(paths))
	for _, path := range paths {
		trace, err := Load(fs, path)
		if err != nil {
			return nil, err
		}
		traces = append(traces, trace)
	}

	return traces, nil
}
