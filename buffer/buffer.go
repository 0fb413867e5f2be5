// Package buffer holds a client's uncommitted edits and renders them over a
// base grid.
package buffer

import (
	"fmt"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/grid"
)

// Buffer is an ordered list of pending UpdateActions for a grid of a fixed
// size. It is not safe for concurrent use; its owner serializes access.
type Buffer struct {
	size    int
	actions []grid.UpdateAction
}

// New returns an empty buffer for a grid of size cells.
func New(size int) *Buffer {
	return &Buffer{size: size}
}

// Record appends an edit. It fails with KindOutOfRange if index is not in 0..size-1.
func (b *Buffer) Record(index int, color grid.Color) error {
	if index < 0 || index >= b.size {
		return errors.E(errors.Op("buffer.Record"), errors.KindOutOfRange,
			fmt.Sprintf("index %d outside 0..%d", index, b.size-1))
	}
	b.actions = append(b.actions, grid.UpdateAction{Index: index, Color: color})
	return nil
}

// Append records several edits, stopping at the first out-of-range one.
func (b *Buffer) Append(actions ...grid.UpdateAction) error {
	if err := grid.CheckBounds(b.size, actions); err != nil {
		return err
	}
	b.actions = append(b.actions, actions...)
	return nil
}

// Overlay returns a copy of base with every recorded edit applied in order.
func (b *Buffer) Overlay(base []grid.Color) []grid.Color {
	return grid.Overlay(base, b.actions)
}

// Actions returns a copy of the recorded edits.
func (b *Buffer) Actions() []grid.UpdateAction {
	out := make([]grid.UpdateAction, len(b.actions))
	copy(out, b.actions)
	return out
}

// Touched returns the distinct indices edited, ascending.
func (b *Buffer) Touched() []int {
	return grid.Touched(b.actions)
}

// Len is the number of recorded edits, including superseded ones.
func (b *Buffer) Len() int { return len(b.actions) }

// Size is the number of cells of the grid the buffer edits.
func (b *Buffer) Size() int { return b.size }

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.actions = nil
}
