package grid

import (
	"fmt"

	"github.com/c0deZ3R0/pixel-chunk/errors"
)

// EncodeCells packs cells into 4 bytes per cell, row-major.
func EncodeCells(cells []Color) []byte {
	out := make([]byte, 0, len(cells)*4)
	for _, c := range cells {
		out = append(out, c[:]...)
	}
	return out
}

// DecodeCells unpacks a blob produced by EncodeCells into a rows × cols grid.
func DecodeCells(data []byte, rows, cols int) (*Grid, error) {
	if err := ValidateDimensions(rows, cols); err != nil {
		return nil, err
	}
	if len(data) != rows*cols*4 {
		return nil, errors.E(errors.Op("grid.DecodeCells"), errors.KindInvalid,
			fmt.Sprintf("have %d bytes, want %d", len(data), rows*cols*4))
	}
	cells := make([]Color, rows*cols)
	for i := range cells {
		copy(cells[i][:], data[i*4:i*4+4])
	}
	return &Grid{Rows: rows, Cols: cols, Cells: cells}, nil
}
