package source_test

import (
	"testing"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/malloc/source"
)

func TestSliceSourceGrow(t *testing.T) {
	src := source.NewSliceSource(64, 8)

	base, err := src.Grow(16)
	require.NoError(t, err)
	require.Equal(t, 0, base)
	require.Equal(t, 16, src.Size())

	copy(src.Bytes(), "0123456789abcdef")

	base, err = src.Grow(32)
	require.NoError(t, err)
	require.Equal(t, 16, base)
	require.Equal(t, 48, src.Size())
	require.Equal(t, "0123456789abcdef", string(src.Bytes()[:16]))
	require.Equal(t, make([]byte, 32), src.Bytes()[16:])

	base, err = src.Grow(0)
	require.NoError(t, err)
	require.Equal(t, 48, base)
}

func TestSliceSourceLimit(t *testing.T) {
	src := source.NewSliceSource(64, 0)
	require.Equal(t, 64, src.Max())

	_, err := src.Grow(48)
	require.NoError(t, err)

	_, err = src.Grow(24)
	require.Error(t, err)
	require.True(t, cerrors.Is(err, source.ExhaustedError))
	require.Equal(t, 48, src.Size())

	_, err = src.Grow(-8)
	require.True(t, cerrors.Is(err, source.InvalidGrowError))

	_, err = src.Grow(16)
	require.NoError(t, err)
	require.Equal(t, 64, src.Size())
}

func TestSliceSourceReset(t *testing.T) {
	src := source.NewSliceSource(0, 0)
	require.Equal(t, source.DefaultMaxSize, src.Max())

	_, err := src.Grow(8)
	require.NoError(t, err)
	src.Bytes()[3] = 0xff

	src.Reset()
	require.Equal(t, 0, src.Size())
	require.Empty(t, src.Bytes())

	_, err = src.Grow(8)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 8), src.Bytes())

	require.NoError(t, src.Release())
}
