// Package recording keeps the audio behind firm detections: each one is saved
// as an 8-bit mono wav with a JSON sidecar describing what the loop saw.
package recording

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/microbit-kws-lab/internal/audio"
	"github.com/microbit-kws-lab/internal/classifier"
	"github.com/microbit-kws-lab/internal/logging"
)

// Detection is one firm detection handed over by the inference loop.
// Samples must be a copy; the recorder keeps no reference to pair storage.
type Detection struct {
	Seq      uint64
	Keyword  string
	Samples  []int8
	Result   classifier.Result
	Votes    [2]int
	Cooldown [2]int
	LEDOn    bool
	At       time.Time
}

// Sidecar is the JSON written next to each wav.
type Sidecar struct {
	CorrelationID    string             `json:"correlation_id"`
	Keyword          string             `json:"keyword"`
	Window           uint64             `json:"window"`
	CreatedAt        time.Time          `json:"created_at"`
	WAVPath          string             `json:"wav_path"`
	SampleRate       int                `json:"sample_rate"`
	Samples          int                `json:"samples"`
	Probabilities    map[string]float32 `json:"probabilities"`
	DSPMs            float64            `json:"dsp_ms"`
	ClassificationMs float64            `json:"classification_ms"`
	Votes            [2]int             `json:"votes"`
	Cooldown         [2]int             `json:"cooldown"`
	LEDOn            bool               `json:"led_on"`
}

// Recorder writes detections under Dir.
type Recorder struct {
	Dir        string
	SampleRate int
	now        func() time.Time
}

// New returns nil when dir is empty; a nil Recorder ignores Save.
func New(dir string, sampleRate int) *Recorder {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	return &Recorder{Dir: dir, SampleRate: sampleRate, now: time.Now}
}

func sanitize(label string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, label)
}

// Save writes the wav and then its sidecar, both atomically.
func (r *Recorder) Save(d Detection) (*Sidecar, error) {
	if r == nil {
		return nil, nil
	}
	at := d.At
	if at.IsZero() {
		at = r.now()
	}
	at = at.UTC()
	cid := uuid.NewString()
	base := fmt.Sprintf("%s_%s_cid%s", at.Format("20060102T150405.000Z"), sanitize(d.Keyword), cid)
	wavPath := filepath.Join(r.Dir, base+".wav")

	if err := saveFileAtomic(wavPath, audio.BuildWAV8(d.Samples, r.SampleRate), 0o644); err != nil {
		return nil, fmt.Errorf("save detection wav: %w", err)
	}

	sc := &Sidecar{
		CorrelationID:    cid,
		Keyword:          d.Keyword,
		Window:           d.Seq,
		CreatedAt:        at,
		WAVPath:          wavPath,
		SampleRate:       r.SampleRate,
		Samples:          len(d.Samples),
		Probabilities:    make(map[string]float32, len(d.Result.Classification)),
		DSPMs:            float64(d.Result.Timing.DSP) / float64(time.Millisecond),
		ClassificationMs: float64(d.Result.Timing.Classification) / float64(time.Millisecond),
		Votes:            d.Votes,
		Cooldown:         d.Cooldown,
		LEDOn:            d.LEDOn,
	}
	for _, c := range d.Result.Classification {
		sc.Probabilities[c.Label] = c.Value
	}
	b, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal sidecar: %w", err)
	}
	if err := saveFileAtomic(filepath.Join(r.Dir, base+".json"), b, 0o644); err != nil {
		return nil, fmt.Errorf("save detection sidecar: %w", err)
	}
	logging.Infow("recording: saved detection", "path", wavPath, "correlation_id", cid, "keyword", d.Keyword, "window.seq", d.Seq)
	return sc, nil
}
