package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRectangular(t *testing.T) {
	b := NewBuilder()
	b.Append(map[string]float64{"A": 1, "B": 2})
	b.Append(map[string]float64{"A": 3})
	b.Append(map[string]float64{"B": 4, "C": 5})

	tbl := b.Build()
	require.Len(t, tbl, 3)
	for key, col := range tbl {
		assert.Len(t, col, 3, "column %q", key)
	}

	// Union of emitted keys, null where absent.
	assert.Equal(t, 1.0, *tbl["A"][0])
	assert.Equal(t, 3.0, *tbl["A"][1])
	assert.Nil(t, tbl["A"][2])
	assert.Nil(t, tbl["B"][1])
	assert.Nil(t, tbl["C"][0])
	assert.Nil(t, tbl["C"][1])
	assert.Equal(t, 5.0, *tbl["C"][2])
}

func TestBuildEmpty(t *testing.T) {
	b := NewBuilder()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Build())
}

func TestBuildRange(t *testing.T) {
	b := NewBuilder()
	for i := 0; i < 10; i++ {
		b.Append(map[string]float64{"V": float64(i)})
	}

	tbl := b.BuildRange(3, 6)
	require.Len(t, tbl["V"], 3)
	assert.Equal(t, 3.0, *tbl["V"][0])
	assert.Equal(t, 5.0, *tbl["V"][2])

	// Out-of-range bounds are clamped.
	tbl = b.BuildRange(8, 100)
	assert.Len(t, tbl["V"], 2)
}
