// Package grid defines the shared rectangular canvas of colored cells and the
// rule for applying edits to it.
//
// Cells are addressed row-major: index i is (i / cols, i % cols).
package grid

import (
	"fmt"
	"sort"

	"github.com/c0deZ3R0/pixel-chunk/errors"
)

// MaxDimension caps rows and cols.
const MaxDimension = 256

// Grid is a rows × cols array of colors.
type Grid struct {
	Rows  int     `json:"rows"`
	Cols  int     `json:"cols"`
	Cells []Color `json:"chunks"`
}

// UpdateAction is one intended write of Color to the cell at Index.
type UpdateAction struct {
	Index int   `json:"index"`
	Color Color `json:"color"`
}

// ValidateDimensions checks 1 ≤ rows, cols ≤ MaxDimension.
func ValidateDimensions(rows, cols int) error {
	if rows < 1 || cols < 1 || rows > MaxDimension || cols > MaxDimension {
		return errors.E(errors.Op("grid.ValidateDimensions"), errors.KindInvalid,
			fmt.Sprintf("dimensions %dx%d outside 1..%d", rows, cols, MaxDimension))
	}
	return nil
}

// New returns a rows × cols grid with every cell set to fill.
func New(rows, cols int, fill Color) (*Grid, error) {
	if err := ValidateDimensions(rows, cols); err != nil {
		return nil, err
	}
	cells := make([]Color, rows*cols)
	for i := range cells {
		cells[i] = fill
	}
	return &Grid{Rows: rows, Cols: cols, Cells: cells}, nil
}

// Validate checks the dimension bounds and len(Cells) == Rows*Cols.
func (g *Grid) Validate() error {
	if err := ValidateDimensions(g.Rows, g.Cols); err != nil {
		return err
	}
	if len(g.Cells) != g.Rows*g.Cols {
		return errors.E(errors.Op("grid.Validate"), errors.KindInvalid,
			fmt.Sprintf("have %d cells, want %d", len(g.Cells), g.Rows*g.Cols))
	}
	return nil
}

// Len is the number of cells.
func (g *Grid) Len() int { return g.Rows * g.Cols }

// InBounds reports whether index addresses a cell.
func (g *Grid) InBounds(index int) bool { return index >= 0 && index < g.Len() }

// RowCol converts a cell index to its (row, col) position.
func (g *Grid) RowCol(index int) (int, int) { return index / g.Cols, index % g.Cols }

// Index converts a (row, col) position to a cell index.
func (g *Grid) Index(row, col int) int { return row*g.Cols + col }

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	cells := make([]Color, len(g.Cells))
	copy(cells, g.Cells)
	return &Grid{Rows: g.Rows, Cols: g.Cols, Cells: cells}
}

// Apply returns a new grid with actions applied in order. Every action must be in bounds.
func (g *Grid) Apply(actions []UpdateAction) (*Grid, error) {
	if err := CheckBounds(g.Len(), actions); err != nil {
		return nil, err
	}
	return &Grid{Rows: g.Rows, Cols: g.Cols, Cells: Overlay(g.Cells, actions)}, nil
}

// Overlay returns a copy of base with every action applied in order, so that
// for a repeated index the last action wins. Actions outside base are skipped.
func Overlay(base []Color, actions []UpdateAction) []Color {
	out := make([]Color, len(base))
	copy(out, base)
	for _, a := range actions {
		if a.Index < 0 || a.Index >= len(out) {
			continue
		}
		out[a.Index] = a.Color
	}
	return out
}

// CheckBounds fails with KindOutOfRange on the first action outside 0..size-1.
func CheckBounds(size int, actions []UpdateAction) error {
	for _, a := range actions {
		if a.Index < 0 || a.Index >= size {
			return errors.E(errors.Op("grid.CheckBounds"), errors.KindOutOfRange,
				fmt.Sprintf("index %d outside 0..%d", a.Index, size-1))
		}
	}
	return nil
}

// Touched returns the distinct indices written by actions, ascending.
func Touched(actions []UpdateAction) []int {
	seen := make(map[int]struct{}, len(actions))
	out := make([]int, 0, len(actions))
	for _, a := range actions {
		if _, ok := seen[a.Index]; ok {
			continue
		}
		seen[a.Index] = struct{}{}
		out = append(out, a.Index)
	}
	sort.Ints(out)
	return out
}

// Diff returns the ascending indices whose color differs between a and b.
func Diff(a, b *Grid) ([]int, error) {
	if a.Rows != b.Rows || a.Cols != b.Cols || len(a.Cells) != len(b.Cells) {
		return nil, errors.E(errors.Op("grid.Diff"), errors.KindInvalid,
			fmt.Sprintf("shape mismatch %dx%d vs %dx%d", a.Rows, a.Cols, b.Rows, b.Cols))
	}
	var out []int
	for i := range a.Cells {
		if a.Cells[i] != b.Cells[i] {
			out = append(out, i)
		}
	}
	return out, nil
}

// Intersect returns the ascending indices present in both sorted slices.
func Intersect(a, b []int) []int {
	var out []int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

// Without returns the actions whose index is not in drop, preserving order.
func Without(actions []UpdateAction, drop []int) []UpdateAction {
	if len(drop) == 0 {
		out := make([]UpdateAction, len(actions))
		copy(out, actions)
		return out
	}
	skip := make(map[int]struct{}, len(drop))
	for _, i := range drop {
		skip[i] = struct{}{}
	}
	out := make([]UpdateAction, 0, len(actions))
	for _, a := range actions {
		if _, ok := skip[a.Index]; !ok {
			out = append(out, a)
		}
	}
	return out
}
