package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/microbit-kws-lab/internal/audio"
)

func testSignal() audio.Signal {
	return audio.NewSignal(audio.Window{Samples: []int8{1, 2, 3, 4}}, 1)
}

func TestHTTPClassifierDecodesResult(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string][]float32
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		if len(req["samples"]) != 4 || req["samples"][3] != 4 {
			http.Error(w, "unexpected samples", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"classification": []map[string]interface{}{
				{"label": "house", "value": 0.1},
				{"label": "microbit", "value": 0.85},
			},
			"timing": map[string]int{"dsp_ms": 11, "classification_ms": 22},
		})
	}))
	defer ts.Close()

	c := NewHTTPClassifier(ts.URL, time.Second)
	res, err := c.Classify(context.Background(), testSignal())
	require.NoError(t, err)
	require.Len(t, res.Classification, 2)
	require.Equal(t, "house", res.Classification[0].Label)
	v, ok := res.Value("microbit")
	require.True(t, ok)
	require.InDelta(t, 0.85, v, 1e-6)
	require.Equal(t, 11*time.Millisecond, res.Timing.DSP)
	require.Equal(t, 22*time.Millisecond, res.Timing.Classification)
}

func TestHTTPClassifierErrorCarriesCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := NewHTTPClassifier(ts.URL, time.Second).Classify(context.Background(), testSignal())
	if err == nil {
		t.Fatalf("expected an error")
	}
	if got := Code(err); got != http.StatusServiceUnavailable {
		t.Fatalf("error code want=%d got=%d", http.StatusServiceUnavailable, got)
	}
}

func TestCodeWithoutImpulseError(t *testing.T) {
	if got := Code(errors.New("boom")); got != -1 {
		t.Fatalf("want=-1 got=%d", got)
	}
}

func TestReplayClassifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	body := `
labels: [microbit, house, noise]
dsp_ms: 5
windows:
  - [0.9, 0.05, 0.05]
  - [0.1, 0.8, 0.1]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	s, err := LoadScript(path)
	require.NoError(t, err)

	r := NewReplayClassifier(s, false)
	ctx := context.Background()

	first, err := r.Classify(ctx, testSignal())
	require.NoError(t, err)
	v, _ := first.Value("microbit")
	require.InDelta(t, 0.9, v, 1e-6)
	require.Equal(t, 5*time.Millisecond, first.Timing.DSP)

	second, err := r.Classify(ctx, testSignal())
	require.NoError(t, err)
	v, _ = second.Value("house")
	require.InDelta(t, 0.8, v, 1e-6)

	_, err = r.Classify(ctx, testSignal())
	require.ErrorIs(t, err, ErrScriptExhausted)
}

func TestReplayClassifierLoops(t *testing.T) {
	r := NewReplayClassifier(Script{Labels: []string{"a"}, Windows: [][]float32{{0.5}}}, true)
	for i := 0; i < 3; i++ {
		if _, err := r.Classify(context.Background(), testSignal()); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}

func TestScriptValidateRejectsShortWindow(t *testing.T) {
	s := Script{Labels: []string{"a", "b"}, Windows: [][]float32{{0.5}}}
	if err := s.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestShippedReplayScript(t *testing.T) {
	s, err := LoadScript(filepath.Join("..", "..", "configs", "replay.yaml"))
	require.NoError(t, err)
	r := NewReplayClassifier(s, false)
	res, err := r.Classify(context.Background(), testSignal())
	require.NoError(t, err)
	require.Len(t, res.Classification, len(s.Labels))
	require.Equal(t, 27*time.Millisecond, res.Timing.Classification)
}
