package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/microbit-kws-lab/internal/audio"
	"github.com/microbit-kws-lab/internal/logging"
)

// HTTPClassifier posts each window to a remote inference endpoint. There
// are no retries: a failed run ends the inference loop.
type HTTPClassifier struct {
	URL    string
	Client *http.Client
}

func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{URL: url, Client: &http.Client{Timeout: timeout}}
}

type httpRequest struct {
	Samples []float32 `json:"samples"`
}

type httpResponse struct {
	Classification []Classification `json:"classification"`
	Timing         struct {
		DSPMs            int64 `json:"dsp_ms"`
		ClassificationMs int64 `json:"classification_ms"`
	} `json:"timing"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, sig audio.Signal) (Result, error) {
	body, err := json.Marshal(httpRequest{Samples: sig.Floats()})
	if err != nil {
		return Result{}, fmt.Errorf("encode window: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build classifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read classifier response: %w", err)
	}
	if resp.StatusCode >= 300 {
		logging.Debugw("classifier: non-2xx response", "status", resp.StatusCode, "body_len", len(raw))
		return Result{}, &ImpulseError{Code: resp.StatusCode, Msg: http.StatusText(resp.StatusCode)}
	}

	var out httpResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("decode classifier response: %w", err)
	}
	return Result{
		Classification: out.Classification,
		Timing: Timing{
			DSP:            time.Duration(out.Timing.DSPMs) * time.Millisecond,
			Classification: time.Duration(out.Timing.ClassificationMs) * time.Millisecond,
		},
	}, nil
}
