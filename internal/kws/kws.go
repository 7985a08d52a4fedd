// Package kws turns per-window classifier output into stable LED actions.
//
// Each window passes through three stages that share one DetectorState:
//
//   - Accumulate: threshold the two tracked labels, shift the 5-window vote
//     histories and decide which keyword, if any, was firmly detected.
//   - SelectActing: pick the keyword whose cooldown latch is still open.
//   - Actuate: toggle that keyword's LED at most once per episode and choose
//     the glyph to show.
//
// The thresholds below are fixed; changing them changes what the LEDs do.
package kws

const (
	// Threshold is the probability a label must strictly exceed to count.
	Threshold float32 = 0.4
	// VoteWindow is the number of windows kept in a VoteHistory.
	VoteWindow = 5
	// DefiniteVotes is the vote count at which a keyword is firmly detected.
	DefiniteVotes = 1
	// CooldownLatch is the largest cooldown value that keeps a keyword acting.
	CooldownLatch = 4
	// ActionLimit bounds LED toggles per episode: toggling needs ActionCount < ActionLimit.
	ActionLimit = 2
	// CooldownSentinel means "never heard / long ago".
	CooldownSentinel = 100
)

// Keyword identifies a tracked label. Primary wins ties with Secondary.
type Keyword int

const (
	None Keyword = iota - 1
	Primary
	Secondary
)

func (k Keyword) String() string {
	switch k {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return "none"
	}
}

// Keywords lists the tracked keywords in priority order.
var Keywords = [2]Keyword{Primary, Secondary}

// Labels maps each tracked keyword to its classifier label.
type Labels [2]string

// Label returns the classifier label for k, or "" for None.
func (l Labels) Label(k Keyword) string {
	if k == None {
		return ""
	}
	return l[k]
}

// GlyphID names what the 5x5 display should show.
type GlyphID int

const (
	GlyphIdle GlyphID = iota
	GlyphHappy
	GlyphAlternate
)

func (g GlyphID) String() string {
	switch g {
	case GlyphHappy:
		return "happy"
	case GlyphAlternate:
		return "alternate"
	default:
		return "idle"
	}
}
