package board

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/microbit-kws-lab/internal/kws"
)

// Glyph is a 5x5 LED matrix image, brightness 0-255 per pixel.
type Glyph [5][5]uint8

// ParseGlyph reads the comma/newline image text used by the board firmware,
// e.g. "000,255,000,255,000\n...".
func ParseGlyph(text string) (Glyph, error) {
	var g Glyph
	rows := strings.Split(strings.TrimSpace(text), "\n")
	if len(rows) != 5 {
		return g, fmt.Errorf("glyph needs 5 rows, got %d", len(rows))
	}
	for y, row := range rows {
		cells := strings.Split(strings.TrimSpace(row), ",")
		if len(cells) != 5 {
			return g, fmt.Errorf("glyph row %d needs 5 cells, got %d", y, len(cells))
		}
		for x, cell := range cells {
			v, err := strconv.ParseUint(strings.TrimSpace(cell), 10, 8)
			if err != nil {
				return g, fmt.Errorf("glyph row %d cell %d: %w", y, x, err)
			}
			g[y][x] = uint8(v)
		}
	}
	return g, nil
}

func mustGlyph(text string) Glyph {
	g, err := ParseGlyph(text)
	if err != nil {
		panic(err)
	}
	return g
}

func (g Glyph) String() string {
	var b strings.Builder
	for y := range g {
		for x := range g[y] {
			if g[y][x] > 0 {
				b.WriteByte('#')
			} else {
				b.WriteByte('.')
			}
		}
		if y < len(g)-1 {
			b.WriteByte('/')
		}
	}
	return b.String()
}

var glyphs = map[kws.GlyphID]Glyph{
	kws.GlyphHappy: mustGlyph(`
000,255,000,255,000
000,000,000,000,000
255,000,000,000,255
000,255,255,255,000
000,000,000,000,000`),
	kws.GlyphAlternate: mustGlyph(`
000,000,255,000,000
000,255,255,255,000
255,255,255,255,255
000,255,255,255,000
000,255,000,255,000`),
	kws.GlyphIdle: mustGlyph(`
000,000,000,000,000
000,000,000,000,000
000,000,255,000,000
000,000,000,000,000
000,000,000,000,000`),
}

// GlyphFor returns the image for id; unknown ids render as idle.
func GlyphFor(id kws.GlyphID) Glyph {
	if g, ok := glyphs[id]; ok {
		return g
	}
	return glyphs[kws.GlyphIdle]
}
