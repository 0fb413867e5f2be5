package grid

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/c0deZ3R0/pixel-chunk/errors"
)

const opParseColor = errors.Op("grid.ParseColor")

// Color is a 4-byte RGBA value.
type Color [4]uint8

var (
	White = Color{0xff, 0xff, 0xff, 0xff}
	Black = Color{0x00, 0x00, 0x00, 0xff}
)

// ParseColor parses an 8-hex-digit "#rrggbbaa" color. The leading '#' is
// optional and digits are case-insensitive.
func ParseColor(s string) (Color, error) {
	var c Color
	raw := strings.TrimPrefix(s, "#")
	if len(raw) != 8 {
		return c, errors.NewValidationError(opParseColor, fmt.Errorf("invalid color %q: want 8 hex digits", s))
	}
	if _, err := hex.Decode(c[:], []byte(raw)); err != nil {
		return c, errors.NewValidationError(opParseColor, fmt.Errorf("invalid color %q: %w", s, err))
	}
	return c, nil
}

// MustParseColor is like ParseColor but panics on error.
func MustParseColor(s string) Color {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the lowercase "#rrggbbaa" form.
func (c Color) String() string {
	return "#" + hex.EncodeToString(c[:])
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
