package audio

// DefaultSignalScale passes signed 8-bit samples through unchanged, as the
// board's int8-to-float conversion does. Models trained on 16-bit audio
// want 256.
const DefaultSignalScale float32 = 1

// Signal presents one window as a virtual array of float samples. The
// classifier pulls ranges of it on demand through GetData.
type Signal struct {
	TotalLength int
	samples     []int8
	scale       float32
}

// NewSignal wraps a window. A non-positive scale falls back to
// DefaultSignalScale.
func NewSignal(w Window, scale float32) Signal {
	if scale <= 0 {
		scale = DefaultSignalScale
	}
	return Signal{TotalLength: len(w.Samples), samples: w.Samples, scale: scale}
}

// GetData converts samples[offset:offset+length] into out. Callers must stay
// in bounds and size out to at least length.
func (s Signal) GetData(offset, length int, out []float32) error {
	src := s.samples[offset : offset+length]
	for i, v := range src {
		out[i] = float32(v) * s.scale
	}
	return nil
}

// Floats materializes the whole window. Used by transports that ship the
// signal in one request.
func (s Signal) Floats() []float32 {
	out := make([]float32, s.TotalLength)
	_ = s.GetData(0, s.TotalLength, out)
	return out
}
