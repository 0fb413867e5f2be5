package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/grid"
)

// parseCells reads index=color or row,col=color arguments.
func parseCells(args []string, rows, cols int) ([]grid.UpdateAction, error) {
	actions := make([]grid.UpdateAction, 0, len(args))
	for _, arg := range args {
		at, color, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, invalidCell(arg, "missing =")
		}
		c, err := grid.ParseColor(color)
		if err != nil {
			return nil, errors.E(errors.OpRecord, err, "cell "+arg)
		}

		var index int
		if r, col, isPair := strings.Cut(at, ","); isPair {
			row, err1 := strconv.Atoi(strings.TrimSpace(r))
			column, err2 := strconv.Atoi(strings.TrimSpace(col))
			if err1 != nil || err2 != nil {
				return nil, invalidCell(arg, "bad row,col")
			}
			if row < 0 || row >= rows || column < 0 || column >= cols {
				return nil, errors.E(errors.OpRecord, errors.KindOutOfRange,
					fmt.Sprintf("cell %s outside %dx%d", arg, rows, cols))
			}
			index = row*cols + column
		} else {
			index, err = strconv.Atoi(strings.TrimSpace(at))
			if err != nil {
				return nil, invalidCell(arg, "bad index")
			}
		}
		actions = append(actions, grid.UpdateAction{Index: index, Color: c})
	}
	return actions, nil
}

func invalidCell(arg, why string) error {
	return errors.E(errors.OpRecord, errors.KindInvalid, fmt.Sprintf("cell %q: %s", arg, why))
}
