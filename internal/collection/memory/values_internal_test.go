package memory

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/filterkit/internal/query"
)

func TestCompareValues_LargeUnsigned(t *testing.T) {
	d, ok := toDecimal(uint64(math.MaxUint64))
	require.True(t, ok)
	assert.Equal(t, "18446744073709551615", d.String())

	cmp, ok := compareValues(uint64(math.MaxUint64), int64(1))
	require.True(t, ok)
	assert.Equal(t, 1, cmp, "values above MaxInt64 do not wrap negative")

	assert.True(t, matchLookup(uint64(math.MaxUint64), query.GT, int64(math.MaxInt64)))
	assert.False(t, matchLookup(uint64(1<<63), query.LT, 0))
}
