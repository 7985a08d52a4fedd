package kws

// Actuation is what the board should do after one window.
type Actuation struct {
	Acting Keyword
	// Toggled is set when the acting keyword's LED flipped; On is its new level.
	Toggled bool
	On      bool
	Glyph   GlyphID
}

// Actuate advances the output state machine. Every acting window bumps
// ActionCount and only the first one of an episode may toggle; a window with
// no acting keyword re-arms the latch and shows the idle glyph.
func Actuate(st *DetectorState, acting Keyword) Actuation {
	a := Actuation{Acting: acting, Glyph: GlyphIdle}
	if acting == None {
		st.ActionCount = 0
		return a
	}

	a.Glyph = GlyphHappy
	if acting == Secondary {
		a.Glyph = GlyphAlternate
	}
	st.ActionCount++
	if st.ActionCount < ActionLimit {
		st.LED[acting] = !st.LED[acting]
		a.Toggled = true
		a.On = st.LED[acting]
	}
	return a
}
