// Package capture feeds recorded audio into the buffer pair the way the
// microphone interrupt does on the board: fixed-size chunks of signed 8-bit
// samples, optionally paced at the sample rate.
package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/microbit-kws-lab/internal/audio"
	"github.com/microbit-kws-lab/internal/logging"
)

const (
	FormatRaw = "raw"
	FormatWAV = "wav"

	DefaultChunkSize = 256
)

// Sink receives each chunk. The slice is reused after Sink returns.
type Sink func(samples []int8)

// FileSource streams a raw s8 or WAV file. Path "-" reads raw samples from
// stdin (Loop is ignored there).
type FileSource struct {
	Path       string
	Format     string
	SampleRate int
	ChunkSize  int
	Realtime   bool
	Loop       bool
}

// Stats summarises one Run.
type Stats struct {
	Samples int
	Passes  int
}

func (s *FileSource) chunkSize() int {
	if s.ChunkSize > 0 {
		return s.ChunkSize
	}
	return DefaultChunkSize
}

// open returns a reader of s8 sample bytes and, when the source can be
// replayed, a rewind function.
func (s *FileSource) open() (io.Reader, func() error, func() error, error) {
	if s.Path == "-" {
		return bufio.NewReader(os.Stdin), nil, func() error { return nil }, nil
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open capture input: %w", err)
	}
	switch s.Format {
	case FormatWAV:
		info, samples, err := audio.ReadWAV(bufio.NewReader(f))
		_ = f.Close()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("read wav %s: %w", s.Path, err)
		}
		if s.SampleRate > 0 && int(info.SampleRate) != s.SampleRate {
			logging.Warnw("capture: wav sample rate differs from configured rate",
				"path", s.Path, "wav_rate", info.SampleRate, "configured", s.SampleRate)
		}
		r := bytes.NewReader(int8Bytes(samples))
		rewind := func() error { _, err := r.Seek(0, io.SeekStart); return err }
		return r, rewind, func() error { return nil }, nil
	case FormatRaw, "":
		rewind := func() error { _, err := f.Seek(0, io.SeekStart); return err }
		return f, rewind, f.Close, nil
	default:
		_ = f.Close()
		return nil, nil, nil, fmt.Errorf("unknown capture format %q", s.Format)
	}
}

func int8Bytes(samples []int8) []byte {
	out := make([]byte, len(samples))
	for i, v := range samples {
		out[i] = byte(v)
	}
	return out
}

// Run streams the input into sink until it ends (or, with Loop, until ctx is
// cancelled). A cancelled context is not an error.
func (s *FileSource) Run(ctx context.Context, sink Sink) (Stats, error) {
	var st Stats
	r, rewind, closeFn, err := s.open()
	if err != nil {
		return st, err
	}
	defer func() { _ = closeFn() }()

	n := s.chunkSize()
	buf := make([]byte, n)
	chunk := make([]int8, n)

	var tick <-chan time.Time
	if s.Realtime && s.SampleRate > 0 {
		period := time.Duration(n) * time.Second / time.Duration(s.SampleRate)
		t := time.NewTicker(period)
		defer t.Stop()
		tick = t.C
	}

	logging.Infow("capture: started", "path", s.Path, "format", s.Format, "chunk", n, "realtime", tick != nil, "loop", s.Loop)
	for {
		got, err := io.ReadFull(r, buf)
		if got > 0 {
			if tick != nil {
				select {
				case <-ctx.Done():
					return st, nil
				case <-tick:
				}
			} else if ctx.Err() != nil {
				return st, nil
			}
			for i := 0; i < got; i++ {
				chunk[i] = int8(buf[i])
			}
			sink(chunk[:got])
			st.Samples += got
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return st, fmt.Errorf("read capture input: %w", err)
		}
		st.Passes++
		if !s.Loop || rewind == nil || ctx.Err() != nil {
			logging.Infow("capture: input ended", "samples", st.Samples, "passes", st.Passes)
			return st, nil
		}
		if err := rewind(); err != nil {
			return st, fmt.Errorf("rewind capture input: %w", err)
		}
		if st.Samples == 0 {
			return st, errors.New("capture input is empty")
		}
	}
}
