package candle

import "github.com/gamboaalejandro/trading-bot/internal/model"

// Window is a fixed-capacity ring of closed candles, ordered oldest to
// newest. Pushing onto a full window evicts the oldest bar. It is owned by a
// single aggregator goroutine; concurrent access goes through the
// Aggregator's lock, not this type.
type Window struct {
	buf   []model.Candle
	start int
	size  int
}

// NewWindow creates a window holding at most capacity closed candles.
// Minimum capacity is 1.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]model.Candle, capacity)}
}

// Push appends a closed candle, evicting the oldest when full.
func (w *Window) Push(c model.Candle) {
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = c
		w.size++
		return
	}
	w.buf[w.start] = c
	w.start = (w.start + 1) % len(w.buf)
}

// Len returns the number of closed candles held.
func (w *Window) Len() int { return w.size }

// Cap returns the window bound.
func (w *Window) Cap() int { return len(w.buf) }

// Last returns the newest closed candle, if any.
func (w *Window) Last() (model.Candle, bool) {
	if w.size == 0 {
		return model.Candle{}, false
	}
	return w.buf[(w.start+w.size-1)%len(w.buf)], true
}

// Snapshot returns an ordered copy of the held candles. Callers may keep or
// mutate the returned slice freely — it shares no storage with the window.
func (w *Window) Snapshot() []model.Candle {
	out := make([]model.Candle, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}
