package board

import (
	"github.com/microbit-kws-lab/internal/kws"
	"github.com/microbit-kws-lab/internal/logging"
)

// Board is the display/LED collaborator. Commands are fire-and-forget.
type Board interface {
	SetPin(pin, value int)
	Show(id kws.GlyphID)
}

// Pins maps each tracked keyword to the LED pin it drives.
type Pins [2]int

// Pin returns the pin for k. k must not be kws.None.
func (p Pins) Pin(k kws.Keyword) int { return p[k] }

// Apply drives b from one window's actuation: the acting LED (when it
// toggled) and then the glyph.
func Apply(b Board, pins Pins, a kws.Actuation) {
	if a.Toggled {
		v := 0
		if a.On {
			v = 1
		}
		b.SetPin(pins.Pin(a.Acting), v)
	}
	b.Show(a.Glyph)
}

// Reset switches every LED off, as the firmware does at power-on.
func Reset(b Board, pins Pins) {
	for _, p := range pins {
		b.SetPin(p, 0)
	}
}

// LogBoard writes board commands to the structured log. The glyph is only
// logged when it changes.
type LogBoard struct {
	last kws.GlyphID
	seen bool
}

func NewLogBoard() *LogBoard { return &LogBoard{} }

func (l *LogBoard) SetPin(pin, value int) {
	logging.Infow("board: set pin", "pin", pin, "value", value)
}

func (l *LogBoard) Show(id kws.GlyphID) {
	if l.seen && l.last == id {
		return
	}
	l.last, l.seen = id, true
	logging.Debugw("board: show glyph", "glyph", id.String(), "image", GlyphFor(id).String())
}

// Multi fans commands out to several boards.
type Multi []Board

func (m Multi) SetPin(pin, value int) {
	for _, b := range m {
		b.SetPin(pin, value)
	}
}

func (m Multi) Show(id kws.GlyphID) {
	for _, b := range m {
		b.Show(id)
	}
}
