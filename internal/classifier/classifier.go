package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/microbit-kws-lab/internal/audio"
)

// Classification is one label's probability for a window.
type Classification struct {
	Label string  `json:"label" yaml:"label"`
	Value float32 `json:"value" yaml:"value"`
}

// Timing reports where the inference time went.
type Timing struct {
	DSP            time.Duration
	Classification time.Duration
}

// Result is produced once per window, in the model's label order.
type Result struct {
	Classification []Classification
	Timing         Timing
}

// Value returns the probability for label, or false when absent.
func (r Result) Value(label string) (float32, bool) {
	for _, c := range r.Classification {
		if c.Label == label {
			return c.Value, true
		}
	}
	return 0, false
}

// Classifier runs a model over one window. Calls are synchronous and never
// overlap.
type Classifier interface {
	Classify(ctx context.Context, sig audio.Signal) (Result, error)
}

// ImpulseError carries the numeric code of a failed classifier run.
type ImpulseError struct {
	Code int
	Msg  string
}

func (e *ImpulseError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("classifier failed (%d)", e.Code)
	}
	return fmt.Sprintf("classifier failed (%d): %s", e.Code, e.Msg)
}

// Code extracts the numeric code from err, or -1 when it carries none.
func Code(err error) int {
	var ie *ImpulseError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return -1
}
