package kws

import (
	"math/bits"

	"github.com/microbit-kws-lab/internal/classifier"
)

const voteMask = 1<<VoteWindow - 1

// VoteHistory records the last VoteWindow outcomes for one keyword, newest
// in bit 0.
type VoteHistory uint8

// Push shifts in one outcome, evicting the oldest.
func (h *VoteHistory) Push(heard bool) {
	next := (*h << 1) & voteMask
	if heard {
		next |= 1
	}
	*h = next
}

func (h VoteHistory) Count() int { return bits.OnesCount8(uint8(h & voteMask)) }

func (h *VoteHistory) Reset() { *h = 0 }

// Votes is the accumulator's verdict for one window.
type Votes struct {
	// Heard holds the raw per-keyword threshold crossings.
	Heard [2]bool
	// Dominant is the keyword that claimed the window.
	Dominant Keyword
	// Counts are the vote totals before any reset.
	Counts [2]int
	// Firm is the keyword judged definitely heard this window.
	Firm Keyword
}

// Accumulate folds one classifier result into st. Labels are scanned in the
// model's order; a label claims Primary first, Secondary only otherwise,
// and Primary dominates the window whenever both cross the threshold.
func Accumulate(st *DetectorState, labels Labels, res classifier.Result) Votes {
	v := Votes{Dominant: None, Firm: None}
	for _, c := range res.Classification {
		if c.Label == labels[Primary] && c.Value > Threshold {
			v.Heard[Primary] = true
		} else if c.Label == labels[Secondary] && c.Value > Threshold {
			v.Heard[Secondary] = true
		}
	}
	switch {
	case v.Heard[Primary]:
		v.Dominant = Primary
	case v.Heard[Secondary]:
		v.Dominant = Secondary
	}

	for _, k := range Keywords {
		st.Votes[k].Push(k == v.Dominant)
		v.Counts[k] = st.Votes[k].Count()
	}

	// provisional report for the window's own winner
	if v.Dominant != None {
		st.Votes[v.Dominant].Reset()
		st.Cooldown[v.Dominant] = 0
	}

	switch {
	case v.Counts[Primary] >= DefiniteVotes:
		v.Firm = Primary
	case v.Counts[Secondary] >= DefiniteVotes:
		v.Firm = Secondary
	}

	if v.Firm != None {
		st.Votes[v.Firm].Reset()
		st.Cooldown[v.Firm] = 0
	} else {
		for _, k := range Keywords {
			st.Cooldown[k]++
		}
	}
	return v
}
