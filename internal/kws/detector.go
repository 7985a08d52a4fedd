package kws

import "github.com/microbit-kws-lab/internal/classifier"

// DetectorState is everything the smoothing stages mutate. It is owned by
// the inference loop and passed by reference through each stage.
type DetectorState struct {
	Votes       [2]VoteHistory
	Cooldown    [2]int
	LED         [2]bool
	ActionCount int
}

// NewDetectorState returns the power-on state: no votes, cooldowns at the
// sentinel, LEDs off, nothing acted on.
func NewDetectorState() *DetectorState {
	return &DetectorState{Cooldown: [2]int{CooldownSentinel, CooldownSentinel}}
}

// Decision is the full outcome of one window.
type Decision struct {
	Votes     Votes
	Acting    Keyword
	Actuation Actuation
	// Cooldown is a snapshot taken after the window was scored.
	Cooldown [2]int
}

// Detector runs the three stages over a DetectorState.
type Detector struct {
	Labels Labels
	State  *DetectorState
}

func NewDetector(primary, secondary string) *Detector {
	return &Detector{Labels: Labels{primary, secondary}, State: NewDetectorState()}
}

// Process scores one window and returns what happened.
func (d *Detector) Process(res classifier.Result) Decision {
	votes := Accumulate(d.State, d.Labels, res)
	acting := SelectActing(d.State)
	act := Actuate(d.State, acting)
	return Decision{
		Votes:     votes,
		Acting:    acting,
		Actuation: act,
		Cooldown:  d.State.Cooldown,
	}
}
