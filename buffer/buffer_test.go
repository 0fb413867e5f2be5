package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/grid"
)

var (
	red  = grid.MustParseColor("#ff0000ff")
	blue = grid.MustParseColor("#0000ffff")
)

func whiteCells(n int) []grid.Color {
	g, _ := grid.New(1, n, grid.White)
	return g.Cells
}

func TestRecord_Bounds(t *testing.T) {
	b := New(16)

	require.NoError(t, b.Record(0, red))
	require.NoError(t, b.Record(15, red))

	for _, index := range []int{-1, 16, 100} {
		err := b.Record(index, red)
		assert.True(t, errors.Is(errors.KindOutOfRange, err), "index %d", index)
	}
	assert.Equal(t, 2, b.Len(), "rejected edits must not be recorded")
}

func TestOverlay_LastWriteWins(t *testing.T) {
	b := New(4)
	require.NoError(t, b.Record(2, red))
	require.NoError(t, b.Record(2, blue))

	base := whiteCells(4)
	out := b.Overlay(base)

	assert.Equal(t, blue, out[2])
	assert.Equal(t, grid.White, base[2], "overlay must not mutate the base")
	assert.Equal(t, []int{2}, b.Touched())
}

func TestActionsIsACopy(t *testing.T) {
	b := New(4)
	require.NoError(t, b.Record(1, red))

	actions := b.Actions()
	actions[0].Index = 3

	assert.Equal(t, 1, b.Actions()[0].Index)
}

func TestAppend(t *testing.T) {
	b := New(4)
	require.NoError(t, b.Append(grid.UpdateAction{Index: 0, Color: red}, grid.UpdateAction{Index: 3, Color: blue}))
	assert.Equal(t, 2, b.Len())

	err := b.Append(grid.UpdateAction{Index: 4, Color: red})
	assert.True(t, errors.Is(errors.KindOutOfRange, err))
	assert.Equal(t, 2, b.Len())
}

func TestClear(t *testing.T) {
	b := New(4)
	require.NoError(t, b.Record(1, red))
	b.Clear()

	assert.Equal(t, 0, b.Len())
	assert.Equal(t, whiteCells(4), b.Overlay(whiteCells(4)))
}
