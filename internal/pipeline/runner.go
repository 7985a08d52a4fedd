// Package pipeline is the inference loop: it polls the buffer pair, scores
// each ready window and drives the board from the detector's decision.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/microbit-kws-lab/internal/audio"
	"github.com/microbit-kws-lab/internal/board"
	"github.com/microbit-kws-lab/internal/classifier"
	"github.com/microbit-kws-lab/internal/kws"
	"github.com/microbit-kws-lab/internal/logging"
	"github.com/microbit-kws-lab/internal/metrics"
	"github.com/microbit-kws-lab/internal/recording"
)

const DefaultTick = time.Millisecond

// Runner owns the detector state and is the only consumer of Pair. Metrics
// and Recorder are optional.
type Runner struct {
	Pair          *audio.BufferPair
	Classifier    classifier.Classifier
	Detector      *kws.Detector
	Board         board.Board
	Pins          board.Pins
	Metrics       *metrics.Metrics
	Recorder      *recording.Recorder
	Tick          time.Duration
	WarmupWindows int
	SignalScale   float32

	seq uint64
}

// Run drives both LEDs off and then polls for windows every Tick until ctx
// is cancelled (nil) or the classifier fails (the error).
func (r *Runner) Run(ctx context.Context) error {
	runID := uuid.NewString()
	ctx = logging.WithFields(ctx, "run_id", runID)
	tick := r.Tick
	if tick <= 0 {
		tick = DefaultTick
	}

	board.Reset(r.Board, r.Pins)
	logging.InfowCtx(ctx, "inference loop started",
		"keywords", r.Detector.Labels, "slice_size", r.Pair.Size(), "warmup_windows", r.WarmupWindows, "tick", tick.String())

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.InfowCtx(ctx, "inference loop stopped", "windows", r.seq)
			return nil
		case <-ticker.C:
			if _, err := r.Step(ctx); err != nil {
				return err
			}
		}
	}
}

// Step processes at most one ready window and reports whether it found one.
func (r *Runner) Step(ctx context.Context) (bool, error) {
	w, ok := r.Pair.Acquire()
	if !ok {
		return false, nil
	}
	defer r.Pair.Release()
	r.seq++
	return true, r.process(logging.WithFields(ctx, logging.WindowFields(r.seq, w.Selector)...), w)
}

// process classifies every window, so a continuous classifier sees each
// slice and fails fast. Only scoring waits until window WarmupWindows, the
// first one whose model window is all fresh audio.
func (r *Runner) process(ctx context.Context, w audio.Window) error {
	res, err := r.Classifier.Classify(ctx, audio.NewSignal(w, r.SignalScale))
	if err != nil {
		logging.ErrorwCtx(ctx, "failed to run classifier", "code", classifier.Code(err), "err", err)
		if r.Metrics != nil {
			r.Metrics.ClassifierErrors.Inc()
		}
		return fmt.Errorf("run classifier: %w", err)
	}

	if r.seq < uint64(r.WarmupWindows) {
		if r.Metrics != nil {
			r.Metrics.WarmupSkipped.Inc()
		}
		logging.DebugwCtx(ctx, "warming up", "remaining", uint64(r.WarmupWindows)-r.seq)
		return nil
	}
	logging.DebugwCtx(ctx, "predictions", predictionFields(res)...)

	dec := r.Detector.Process(res)
	r.logVotes(ctx, dec)
	board.Apply(r.Board, r.Pins, dec.Actuation)
	r.observe(dec, res)

	if dec.Votes.Firm != kws.None && r.Recorder != nil {
		samples := make([]int8, len(w.Samples))
		copy(samples, w.Samples)
		_, err := r.Recorder.Save(recording.Detection{
			Seq:      r.seq,
			Keyword:  r.Detector.Labels.Label(dec.Votes.Firm),
			Samples:  samples,
			Result:   res,
			Votes:    dec.Votes.Counts,
			Cooldown: dec.Cooldown,
			LEDOn:    r.Detector.State.LED[dec.Votes.Firm],
		})
		if err != nil {
			logging.WarnwCtx(ctx, "failed to save detection", "err", err)
		} else if r.Metrics != nil {
			r.Metrics.Recordings.Inc()
		}
	}
	return nil
}

func predictionFields(res classifier.Result) []interface{} {
	preds := make(map[string]float32, len(res.Classification))
	for _, c := range res.Classification {
		preds[c.Label] = c.Value
	}
	return []interface{}{
		"dsp_ms", res.Timing.DSP.Milliseconds(),
		"classification_ms", res.Timing.Classification.Milliseconds(),
		"predictions", preds,
	}
}

func (r *Runner) logVotes(ctx context.Context, dec kws.Decision) {
	if k := dec.Votes.Dominant; k != kws.None {
		logging.InfowCtx(ctx, "heard keyword",
			append(logging.KeywordFields(r.Detector.Labels.Label(k), dec.Votes.Counts[k]), "window_votes", kws.VoteWindow)...)
	}
	if k := dec.Votes.Firm; k != kws.None {
		logging.InfowCtx(ctx, "definitely heard keyword",
			logging.KeywordFields(r.Detector.Labels.Label(k), dec.Votes.Counts[k])...)
	}
	if dec.Actuation.Toggled {
		logging.InfowCtx(ctx, "led toggled",
			"keyword", r.Detector.Labels.Label(dec.Acting), "pin", r.Pins.Pin(dec.Acting), "on", dec.Actuation.On)
	}
}

func (r *Runner) observe(dec kws.Decision, res classifier.Result) {
	m := r.Metrics
	if m == nil {
		return
	}
	m.WindowsProcessed.Inc()
	m.RecordTiming(res.Timing.DSP, res.Timing.Classification)
	m.SetActing(dec.Acting)
	if dec.Votes.Firm != kws.None {
		m.RecordFirm(r.Detector.Labels.Label(dec.Votes.Firm))
	}
	if dec.Actuation.Toggled {
		m.RecordToggle(r.Pins.Pin(dec.Acting))
	}
}
