package main

import (
	"bytes"
	"encoding/json"
	"testing"

	cerrors "github.com/cockroachdb/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/malloc/memutils"
)

func runCommand(t *testing.T, fs afero.Fs, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd(fs)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestReplayBundledTraces(t *testing.T) {
	output, err := runCommand(t, afero.NewOsFs(), "--dir", "../../trace/testdata", "--check")
	require.NoError(t, err)

	require.Contains(t, output, "short1-bal")
	require.Contains(t, output, "random-bal")
	require.Contains(t, output, "total")
}

func TestReplayNamedTraceAsJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/tiny.rep", []byte("100\n2\n3\n1\na 0 10\na 1 20\nf 0\n"), 0o644))

	output, err := runCommand(t, fs, "--json", "--strategy", "best", "/work/tiny.rep")
	require.NoError(t, err)

	var report struct {
		Traces []struct {
			Name string
			Ops  int
		}
	}
	require.NoError(t, json.Unmarshal([]byte(output), &report))
	require.Len(t, report.Traces, 1)
	require.Equal(t, "tiny", report.Traces[0].Name)
	require.Equal(t, 3, report.Traces[0].Ops)
}

func TestHeapLimit(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/big.rep", []byte("100\n1\n1\n1\na 0 100000\n"), 0o644))

	_, err := runCommand(t, fs, "--max-heap", "4096", "/work/big.rep")
	require.True(t, cerrors.Is(err, memutils.OutOfMemoryError), "%v", err)
}

func TestInvalidArguments(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/empty", 0o755))

	_, err := runCommand(t, fs, "--strategy", "worst")
	require.Error(t, err)

	_, err = runCommand(t, fs, "--dir", "/empty")
	require.Error(t, err)

	_, err = runCommand(t, fs, "--cpu-profile", "--mem-profile", "--dir", "/empty")
	require.Error(t, err)
}
