package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringSliceValueScanRoundTrip(t *testing.T) {
	s := StringSlice{"a", "b"}

	v, err := s.Value()
	require.NoError(t, err)

	var out StringSlice
	require.NoError(t, out.Scan(v))
	assert.Equal(t, s, out)
}

func TestStringSliceValueNilYieldsEmptyArray(t *testing.T) {
	var s StringSlice
	v, err := s.Value()

	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestStringSliceScanNilClears(t *testing.T) {
	s := StringSlice{"a"}
	require.NoError(t, s.Scan(nil))
	assert.Nil(t, s)
}

func TestFloatSliceValueScanRoundTrip(t *testing.T) {
	f := FloatSlice{0.1, 0.2, 0.3}

	v, err := f.Value()
	require.NoError(t, err)

	var out FloatSlice
	require.NoError(t, out.Scan(v))
	assert.Equal(t, f, out)
}

func TestFloatSliceScanAcceptsStringValue(t *testing.T) {
	var f FloatSlice
	require.NoError(t, f.Scan("[1.5,2.5]"))
	assert.Equal(t, FloatSlice{1.5, 2.5}, f)
}

func TestSplitSectionsDropsBlankFragments(t *testing.T) {
	body := "first section\n\n\n\nsecond section\n\n   \n\nthird"
	sections := splitSections(body)

	assert.Equal(t, []string{"first section", "second section", "third"}, sections)
}

func TestChunkIDIsDeterministic(t *testing.T) {
	a := chunkID("tenant-1", "Title", "body text")
	b := chunkID("tenant-1", "Title", "body text")
	assert.Equal(t, a, b)
}

func TestChunkIDDiffersByTenant(t *testing.T) {
	a := chunkID("tenant-1", "Title", "body text")
	b := chunkID("tenant-2", "Title", "body text")
	assert.NotEqual(t, a, b)
}
