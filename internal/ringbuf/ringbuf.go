// Package ringbuf provides a bounded sliding window of model.Tick values.
// Unlike a drop-on-full queue, the window evicts the oldest entry when a push
// exceeds capacity — the retained ticks are always the most recent N in
// arrival order. Designed for single-goroutine usage — no locks needed.
package ringbuf

import "volatility-systemv1/internal/model"

// Window is a fixed-capacity FIFO ring of ticks.
type Window struct {
	buf  []model.Tick
	head int // index of the oldest entry
	size int

	// Eviction counter (for metrics)
	evicted uint64
}

// New creates a window with the given capacity. Minimum capacity is 1.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]model.Tick, capacity)}
}

// Push appends a tick at the tail. When the window is full the oldest entry
// is evicted first. O(1) per tick.
func (w *Window) Push(t model.Tick) {
	if w.size == len(w.buf) {
		// Overwrite the oldest slot and advance head.
		w.buf[w.head] = t
		w.head = (w.head + 1) % len(w.buf)
		w.evicted++
		return
	}
	w.buf[(w.head+w.size)%len(w.buf)] = t
	w.size++
}

// Replace discards the current contents and fills the window with the last
// Cap() entries of ticks, preserving arrival order. Used by backfill.
func (w *Window) Replace(ticks []model.Tick) {
	w.head = 0
	w.size = 0
	start := 0
	if len(ticks) > len(w.buf) {
		start = len(ticks) - len(w.buf)
	}
	for _, t := range ticks[start:] {
		w.Push(t)
	}
}

// Snapshot returns a copy of the retained ticks in arrival order.
func (w *Window) Snapshot() []model.Tick {
	out := make([]model.Tick, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

// Last returns the most recent tick, if any.
func (w *Window) Last() (model.Tick, bool) {
	if w.size == 0 {
		return model.Tick{}, false
	}
	return w.buf[(w.head+w.size-1)%len(w.buf)], true
}

// Each calls fn for every retained tick in arrival order. Avoids the Snapshot
// allocation on the per-second analysis path.
func (w *Window) Each(fn func(model.Tick)) {
	for i := 0; i < w.size; i++ {
		fn(w.buf[(w.head+i)%len(w.buf)])
	}
}

// Len returns the current number of retained ticks.
func (w *Window) Len() int { return w.size }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// Evicted returns the total number of entries evicted due to a full window.
func (w *Window) Evicted() uint64 { return w.evicted }
