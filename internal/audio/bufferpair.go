package audio

import (
	"fmt"
	"sync/atomic"
)

// Pair state is one atomic word so the capture side and the inference loop
// never observe the selector, ready and held flags out of step.
const (
	stateSelector uint32 = 1 << iota // index of the buffer being filled
	stateReady                       // the other buffer holds an unconsumed window
	stateHeld                        // the consumer is reading the other buffer
)

// BufferPair is a single-producer/single-consumer double buffer. The capture
// goroutine fills buffers[selector]; the inference loop reads
// buffers[selector^1] between Acquire and Release.
type BufferPair struct {
	buffers [2][]int8
	size    int
	state   atomic.Uint32

	// owned by the producer
	cursor int

	flips       atomic.Uint64
	overwritten atomic.Uint64
	dropped     atomic.Uint64
}

// Window is a read-only view of the ready buffer. Samples aliases pair
// storage and is only valid until Release.
type Window struct {
	Selector int
	Samples  []int8
}

// PairStats is a snapshot of the pair's counters.
type PairStats struct {
	Flips       uint64
	Overwritten uint64
	Dropped     uint64
}

// NewBufferPair allocates both window buffers. It returns an error (and no
// pair) when either buffer cannot be allocated.
func NewBufferPair(sliceSize int) (p *BufferPair, err error) {
	if sliceSize <= 0 {
		return nil, fmt.Errorf("failed to alloc buffers: invalid slice size %d", sliceSize)
	}
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = fmt.Errorf("failed to alloc buffers of %d samples: %v", sliceSize, r)
		}
	}()
	p = &BufferPair{size: sliceSize}
	p.buffers[0] = make([]int8, sliceSize)
	p.buffers[1] = make([]int8, sliceSize)
	return p, nil
}

// Size returns the number of samples per window.
func (p *BufferPair) Size() int { return p.size }

// Write appends samples to the active buffer, flipping whenever it fills.
// It must only be called from the capture goroutine.
func (p *BufferPair) Write(samples []int8) {
	for len(samples) > 0 {
		active := p.state.Load() & stateSelector
		n := copy(p.buffers[active][p.cursor:], samples)
		p.cursor += n
		samples = samples[n:]
		if p.cursor == p.size {
			p.cursor = 0
			p.flip()
		}
	}
}

// flip publishes the full active buffer. When the consumer still holds the
// other buffer there is nowhere to write next, so the fresh window is
// discarded and the active buffer is refilled.
func (p *BufferPair) flip() {
	for {
		old := p.state.Load()
		if old&stateHeld != 0 {
			p.dropped.Add(1)
			return
		}
		next := (old ^ stateSelector) | stateReady
		if p.state.CompareAndSwap(old, next) {
			if old&stateReady != 0 {
				p.overwritten.Add(1)
			}
			p.flips.Add(1)
			return
		}
	}
}

// Acquire claims the ready window, if any. The selector is sampled once, in
// the same atomic step that clears the ready flag.
func (p *BufferPair) Acquire() (Window, bool) {
	for {
		old := p.state.Load()
		if old&stateReady == 0 {
			return Window{}, false
		}
		next := (old &^ stateReady) | stateHeld
		if p.state.CompareAndSwap(old, next) {
			ready := int(old&stateSelector) ^ 1
			return Window{Selector: ready, Samples: p.buffers[ready]}, true
		}
	}
}

// Release hands the window buffer back to the capture side.
func (p *BufferPair) Release() {
	p.state.And(^stateHeld)
}

// Pending reports whether a window is waiting for, or held by, the consumer.
func (p *BufferPair) Pending() bool {
	return p.state.Load()&(stateReady|stateHeld) != 0
}

// Selector reports the index of the buffer currently being filled.
func (p *BufferPair) Selector() int {
	return int(p.state.Load() & stateSelector)
}

func (p *BufferPair) Stats() PairStats {
	return PairStats{
		Flips:       p.flips.Load(),
		Overwritten: p.overwritten.Load(),
		Dropped:     p.dropped.Load(),
	}
}
