package classifier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/microbit-kws-lab/internal/audio"
)

// ErrScriptExhausted is returned once a non-looping script runs out.
var ErrScriptExhausted = errors.New("replay script exhausted")

// Script is the on-disk replay format. Each window lists one probability
// per label, in label order.
//
//	labels: [house, microbit, noise]
//	dsp_ms: 12
//	classification_ms: 30
//	windows:
//	  - [0.05, 0.90, 0.05]
type Script struct {
	Labels           []string    `yaml:"labels"`
	DSPMs            int64       `yaml:"dsp_ms"`
	ClassificationMs int64       `yaml:"classification_ms"`
	Windows          [][]float32 `yaml:"windows"`
}

// ReplayClassifier ignores the audio and returns scripted results, one
// window per call. It stands in for a model when demoing the board logic.
type ReplayClassifier struct {
	script Script
	loop   bool
	next   int
}

// LoadScript reads and validates a replay script.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("failed to read replay script %s: %w", path, err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("failed to parse replay script %s: %w", path, err)
	}
	return s, s.Validate()
}

func (s Script) Validate() error {
	if len(s.Labels) == 0 {
		return fmt.Errorf("replay script has no labels")
	}
	for i, w := range s.Windows {
		if len(w) != len(s.Labels) {
			return fmt.Errorf("window %d has %d values, want %d", i, len(w), len(s.Labels))
		}
		for _, v := range w {
			if v < 0 || v > 1 {
				return fmt.Errorf("window %d has probability %v outside [0,1]", i, v)
			}
		}
	}
	return nil
}

func NewReplayClassifier(s Script, loop bool) *ReplayClassifier {
	return &ReplayClassifier{script: s, loop: loop}
}

func (r *ReplayClassifier) Classify(ctx context.Context, sig audio.Signal) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if r.next >= len(r.script.Windows) {
		if !r.loop || len(r.script.Windows) == 0 {
			return Result{}, ErrScriptExhausted
		}
		r.next = 0
	}
	w := r.script.Windows[r.next]
	r.next++

	res := Result{
		Classification: make([]Classification, len(w)),
		Timing: Timing{
			DSP:            time.Duration(r.script.DSPMs) * time.Millisecond,
			Classification: time.Duration(r.script.ClassificationMs) * time.Millisecond,
		},
	}
	for i, v := range w {
		res.Classification[i] = Classification{Label: r.script.Labels[i], Value: v}
	}
	return res, nil
}
