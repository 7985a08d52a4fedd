package kws

import (
	"math/rand"
	"testing"

	"github.com/microbit-kws-lab/internal/classifier"
)

const (
	labelA = "microbit"
	labelB = "house"
)

// window builds a result in a typical model label order (alphabetical).
func window(a, b float32) classifier.Result {
	return classifier.Result{Classification: []classifier.Classification{
		{Label: labelB, Value: b},
		{Label: labelA, Value: a},
		{Label: "noise", Value: 1 - a - b},
	}}
}

func quiet() classifier.Result { return window(0.1, 0.1) }

func TestVoteHistoryKeepsFiveBits(t *testing.T) {
	var h VoteHistory
	for i := 0; i < 12; i++ {
		h.Push(true)
		if h > voteMask {
			t.Fatalf("push %d: history grew beyond %d bits: %b", i, VoteWindow, h)
		}
	}
	if got := h.Count(); got != VoteWindow {
		t.Fatalf("count want=%d got=%d", VoteWindow, got)
	}
	for i := 0; i < VoteWindow-1; i++ {
		h.Push(false)
	}
	if got := h.Count(); got != 1 {
		t.Fatalf("after %d misses count want=1 got=%d", VoteWindow-1, got)
	}
	h.Push(false)
	if got := h.Count(); got != 0 {
		t.Fatalf("oldest vote should be evicted, count=%d", got)
	}
}

func TestNothingAboveThresholdIsNeutral(t *testing.T) {
	d := NewDetector(labelA, labelB)
	d.State.ActionCount = 3
	for _, res := range []classifier.Result{quiet(), window(0.4, 0.4), window(0, 0)} {
		dec := d.Process(res)
		if dec.Acting != None {
			t.Fatalf("acting want=none got=%v", dec.Acting)
		}
		if d.State.ActionCount != 0 {
			t.Fatalf("action count want=0 got=%d", d.State.ActionCount)
		}
		if dec.Actuation.Glyph != GlyphIdle || dec.Actuation.Toggled {
			t.Fatalf("unexpected actuation: %+v", dec.Actuation)
		}
	}
	if d.State.LED != [2]bool{} {
		t.Fatalf("LEDs must stay off: %v", d.State.LED)
	}
}

func TestSingleStrongWindowResetsCooldown(t *testing.T) {
	d := NewDetector(labelA, labelB)
	dec := d.Process(window(0.41, 0.2))
	if dec.Votes.Dominant != Primary || dec.Votes.Firm != Primary {
		t.Fatalf("want primary dominant and firm, got %+v", dec.Votes)
	}
	if d.State.Cooldown[Primary] != 0 {
		t.Fatalf("cooldown want=0 got=%d", d.State.Cooldown[Primary])
	}
	if d.State.Votes[Primary].Count() != 0 {
		t.Fatalf("vote history should be cleared, got %b", d.State.Votes[Primary])
	}
	if dec.Votes.Counts[Primary] != 1 {
		t.Fatalf("pre-reset vote count want=1 got=%d", dec.Votes.Counts[Primary])
	}
}

func TestPrimaryWinsTies(t *testing.T) {
	d := NewDetector(labelA, labelB)
	dec := d.Process(window(0.45, 0.45))
	if !dec.Votes.Heard[Primary] || !dec.Votes.Heard[Secondary] {
		t.Fatalf("both keywords crossed the threshold: %+v", dec.Votes.Heard)
	}
	if dec.Votes.Dominant != Primary || dec.Acting != Primary {
		t.Fatalf("primary must win ties, got dominant=%v acting=%v", dec.Votes.Dominant, dec.Acting)
	}
	if d.State.Cooldown[Secondary] != CooldownSentinel {
		t.Fatalf("secondary cooldown should stay at sentinel, got %d", d.State.Cooldown[Secondary])
	}
}

// TestEpisodeTogglesOnce walks one detection episode: the LED flips on the
// first window and stays put for the rest of the latch.
func TestEpisodeTogglesOnce(t *testing.T) {
	d := NewDetector(labelA, labelB)
	toggles := 0

	dec := d.Process(window(0.9, 0))
	if !dec.Actuation.Toggled || !dec.Actuation.On || dec.Actuation.Glyph != GlyphHappy {
		t.Fatalf("first window should switch LED on: %+v", dec.Actuation)
	}
	toggles++

	for i := 1; i <= CooldownLatch; i++ {
		// raw scores do not matter while latched
		dec = d.Process(window(0, 0.3))
		if dec.Acting != Primary {
			t.Fatalf("window %d: acting want=primary got=%v (cooldown=%d)", i, dec.Acting, d.State.Cooldown[Primary])
		}
		if dec.Actuation.Toggled {
			toggles++
		}
	}
	if toggles != 1 {
		t.Fatalf("LED toggled %d times in one episode", toggles)
	}
	if !d.State.LED[Primary] {
		t.Fatalf("LED should be on after the episode")
	}

	dec = d.Process(quiet())
	if dec.Acting != None || dec.Actuation.Glyph != GlyphIdle || d.State.ActionCount != 0 {
		t.Fatalf("episode should end after the latch: %+v action_count=%d", dec, d.State.ActionCount)
	}

	// re-armed: the next detection toggles the LED back off
	dec = d.Process(window(0.8, 0))
	if !dec.Actuation.Toggled || dec.Actuation.On {
		t.Fatalf("fresh detection should toggle LED off: %+v", dec.Actuation)
	}
}

func TestRepeatedDetectionsInsideEpisodeDoNotRetoggle(t *testing.T) {
	d := NewDetector(labelA, labelB)
	d.Process(window(0.9, 0))
	for i := 0; i < 10; i++ {
		dec := d.Process(window(0.9, 0))
		if dec.Actuation.Toggled {
			t.Fatalf("window %d retoggled the LED", i)
		}
	}
	if !d.State.LED[Primary] {
		t.Fatalf("LED should remain on")
	}
}

func TestSecondaryEpisodeUsesItsOwnLED(t *testing.T) {
	d := NewDetector(labelA, labelB)
	dec := d.Process(window(0.1, 0.7))
	if dec.Acting != Secondary || dec.Actuation.Glyph != GlyphAlternate {
		t.Fatalf("want secondary acting with alternate glyph, got %+v", dec)
	}
	if !d.State.LED[Secondary] || d.State.LED[Primary] {
		t.Fatalf("only the secondary LED should be on: %v", d.State.LED)
	}
}

// TestFirmDetectionFreezesOtherCooldown pins the firmware behaviour: while one
// keyword is firmly detected the other keyword's counter does not advance.
func TestFirmDetectionFreezesOtherCooldown(t *testing.T) {
	d := NewDetector(labelA, labelB)
	d.Process(window(0, 0.9))
	d.Process(window(0.9, 0))
	if d.State.Cooldown[Secondary] != 0 {
		t.Fatalf("secondary cooldown want=0 got=%d", d.State.Cooldown[Secondary])
	}
}

// TestSecondaryTakesOverWithoutRetoggle: once the primary latch runs out the
// secondary latch can still be open; it acts, but the episode never went
// back to neutral so its LED is left alone.
func TestSecondaryTakesOverWithoutRetoggle(t *testing.T) {
	d := NewDetector(labelA, labelB)
	d.Process(window(0.9, 0))
	d.Process(quiet())
	d.Process(window(0, 0.9))

	var actings []Keyword
	for i := 0; i < 5; i++ {
		dec := d.Process(quiet())
		actings = append(actings, dec.Acting)
		if dec.Acting == Secondary && dec.Actuation.Toggled {
			t.Fatalf("secondary must not toggle inside a running episode")
		}
	}
	want := []Keyword{Primary, Primary, Primary, Secondary, None}
	for i := range want {
		if actings[i] != want[i] {
			t.Fatalf("window %d acting want=%v got=%v (all=%v)", i, want[i], actings[i], actings)
		}
	}
	if d.State.LED[Secondary] {
		t.Fatalf("secondary LED should still be off")
	}
}

func TestCooldownIncrementsWhenNothingFirm(t *testing.T) {
	st := NewDetectorState()
	Accumulate(st, Labels{labelA, labelB}, quiet())
	if st.Cooldown != [2]int{CooldownSentinel + 1, CooldownSentinel + 1} {
		t.Fatalf("cooldowns want=%d got=%v", CooldownSentinel+1, st.Cooldown)
	}
}

func TestSelectActingPriority(t *testing.T) {
	st := NewDetectorState()
	st.Cooldown = [2]int{CooldownLatch, 0}
	if got := SelectActing(st); got != Primary {
		t.Fatalf("want primary, got %v", got)
	}
	st.Cooldown = [2]int{CooldownLatch + 1, CooldownLatch}
	if got := SelectActing(st); got != Secondary {
		t.Fatalf("want secondary, got %v", got)
	}
	st.Cooldown = [2]int{CooldownLatch + 1, CooldownLatch + 1}
	if got := SelectActing(st); got != None {
		t.Fatalf("want none, got %v", got)
	}
}

// TestRandomStreamInvariants feeds random windows and checks the invariants
// that must hold for any input.
func TestRandomStreamInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	d := NewDetector(labelA, labelB)
	togglesThisEpisode := 0
	for i := 0; i < 5000; i++ {
		res := window(rng.Float32()*0.6, rng.Float32()*0.6)
		dec := d.Process(res)
		for _, k := range Keywords {
			if d.State.Votes[k] > voteMask {
				t.Fatalf("window %d: history overflow %b", i, d.State.Votes[k])
			}
		}
		if dec.Acting == None {
			togglesThisEpisode = 0
			if d.State.ActionCount != 0 {
				t.Fatalf("window %d: action count not reset", i)
			}
			continue
		}
		if dec.Actuation.Toggled {
			togglesThisEpisode++
		}
		if togglesThisEpisode > 1 {
			t.Fatalf("window %d: more than one toggle in an episode", i)
		}
	}
}
