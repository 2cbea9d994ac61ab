package dbtype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringMapValueScan(t *testing.T) {
	in := StringMap{"size": "M", "color": "red"}
	v, err := in.Value()
	require.NoError(t, err)

	var out StringMap
	require.NoError(t, out.Scan([]byte(v.(string))))
	assert.Equal(t, in, out)
}

func TestScanNilAndBadType(t *testing.T) {
	var m Map
	require.NoError(t, m.Scan(nil))
	assert.Empty(t, m)

	assert.Error(t, m.Scan(42))
}

func TestNilMapValue(t *testing.T) {
	var m StringMap
	v, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)
}
