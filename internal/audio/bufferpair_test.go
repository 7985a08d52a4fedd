package audio

import (
	"sync"
	"testing"
)

func fill(n int, v int8) []int8 {
	s := make([]int8, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestNewBufferPairRejectsInvalidSize(t *testing.T) {
	if p, err := NewBufferPair(0); err == nil || p != nil {
		t.Fatalf("expected error and nil pair, got pair=%v err=%v", p, err)
	}
}

func TestAcquireBeforeAnyFlip(t *testing.T) {
	p, err := NewBufferPair(4)
	if err != nil {
		t.Fatalf("NewBufferPair: %v", err)
	}
	p.Write(fill(3, 1))
	if _, ok := p.Acquire(); ok {
		t.Fatalf("no window should be ready before the active buffer fills")
	}
}

// TestSelectorAlternates checks flips go 0,1,0,1 and the consumer always
// reads the buffer that is not being filled.
func TestSelectorAlternates(t *testing.T) {
	p, err := NewBufferPair(4)
	if err != nil {
		t.Fatalf("NewBufferPair: %v", err)
	}
	wantActive := []int{1, 0, 1, 0, 1}
	for i, want := range wantActive {
		p.Write(fill(4, int8(i+1)))
		if got := p.Selector(); got != want {
			t.Fatalf("flip %d: active selector want=%d got=%d", i, want, got)
		}
		w, ok := p.Acquire()
		if !ok {
			t.Fatalf("flip %d: expected a ready window", i)
		}
		if w.Selector == p.Selector() {
			t.Fatalf("flip %d: consumer reads the buffer being filled (%d)", i, w.Selector)
		}
		if w.Samples[0] != int8(i+1) {
			t.Fatalf("flip %d: window content want=%d got=%d", i, i+1, w.Samples[0])
		}
		p.Release()
	}
	if got := p.Stats().Flips; got != uint64(len(wantActive)) {
		t.Fatalf("flips want=%d got=%d", len(wantActive), got)
	}
}

func TestReadyIsConsumedOnce(t *testing.T) {
	p, _ := NewBufferPair(2)
	p.Write(fill(2, 7))
	if !p.Pending() {
		t.Fatalf("ready window should be pending")
	}
	if _, ok := p.Acquire(); !ok {
		t.Fatalf("expected ready window")
	}
	if !p.Pending() {
		t.Fatalf("held window should be pending")
	}
	p.Release()
	if p.Pending() {
		t.Fatalf("nothing should be pending after release")
	}
	if _, ok := p.Acquire(); ok {
		t.Fatalf("the same window must not be handed out twice")
	}
}

func TestUnconsumedWindowIsOverwritten(t *testing.T) {
	p, _ := NewBufferPair(2)
	p.Write(fill(2, 1))
	p.Write(fill(2, 2))
	w, ok := p.Acquire()
	if !ok {
		t.Fatalf("expected ready window")
	}
	if w.Samples[0] != 2 {
		t.Fatalf("consumer should see the freshest window, got %d", w.Samples[0])
	}
	p.Release()
	if got := p.Stats().Overwritten; got != 1 {
		t.Fatalf("overwritten want=1 got=%d", got)
	}
}

func TestHeldWindowIsNeverWritten(t *testing.T) {
	p, _ := NewBufferPair(2)
	p.Write(fill(2, 1))
	w, ok := p.Acquire()
	if !ok {
		t.Fatalf("expected ready window")
	}
	// Two more full windows while the consumer is busy: the first fills the
	// free buffer but cannot be published, the second refills it.
	p.Write(fill(2, 2))
	p.Write(fill(2, 3))
	if w.Samples[0] != 1 || w.Samples[1] != 1 {
		t.Fatalf("held window was modified: %v", w.Samples)
	}
	if got := p.Stats().Dropped; got != 2 {
		t.Fatalf("dropped want=2 got=%d", got)
	}
	p.Release()
	if _, ok := p.Acquire(); ok {
		t.Fatalf("dropped windows must not become ready")
	}
	p.Write(fill(2, 4))
	w, ok = p.Acquire()
	if !ok || w.Samples[0] != 4 {
		t.Fatalf("expected fresh window after release, ok=%v samples=%v", ok, w.Samples)
	}
	p.Release()
}

// TestConcurrentHandoff runs a producer and consumer together; under -race
// it also verifies the handoff publishes buffer contents safely.
func TestConcurrentHandoff(t *testing.T) {
	const size = 64
	p, _ := NewBufferPair(size)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			p.Write(fill(size/2, int8(i/2%100)))
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	consumed := 0
	for {
		if w, ok := p.Acquire(); ok {
			first := w.Samples[0]
			for _, s := range w.Samples[:size/2] {
				if s != first {
					t.Errorf("torn window: %v", w.Samples)
					break
				}
			}
			consumed++
			p.Release()
			continue
		}
		select {
		case <-done:
			st := p.Stats()
			if uint64(consumed) > st.Flips {
				t.Fatalf("consumed %d windows but only %d flips", consumed, st.Flips)
			}
			return
		default:
		}
	}
}
