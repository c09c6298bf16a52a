// Package candle rolls normalized ticks into fixed-interval OHLCV bars.
// Each symbol has its own Aggregator holding a bounded window of closed
// candles plus exactly one open (forming) candle.
package candle

import (
	"log"
	"sync"
	"time"

	"github.com/gamboaalejandro/trading-bot/internal/model"
)

// DefaultWindowSize is the default bound on closed candles kept per symbol.
const DefaultWindowSize = 100

// Aggregator builds interval candles for one symbol. Apply is called from a
// single per-symbol goroutine; the lock exists so snapshot readers (status
// endpoints) can observe the window concurrently.
type Aggregator struct {
	symbol      string
	intervalSec int64

	mu     sync.Mutex
	window *Window
	open   model.Candle
	bucket int64 // interval start (Unix seconds) of the open candle
	opened bool

	// OnDroppedTick is called when a tick older than the open interval is
	// discarded (optional).
	OnDroppedTick func()
}

// NewAggregator creates an aggregator for one symbol with the given candle
// interval and closed-window bound.
func NewAggregator(symbol string, interval time.Duration, windowSize int) *Aggregator {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	sec := int64(interval / time.Second)
	if sec < 1 {
		sec = 1
	}
	return &Aggregator{
		symbol:      symbol,
		intervalSec: sec,
		window:      NewWindow(windowSize),
	}
}

// Apply incorporates one tick. If the tick starts a new interval the previous
// open candle is closed and returned; otherwise the open candle is updated in
// place and (zero, false) is returned.
//
// Ticks with timestamps older than the open interval start are dropped with a
// warning — the window never rewinds. Duplicate or out-of-order timestamps
// inside the open interval are folded in idempotently as ordinary updates.
func (a *Aggregator) Apply(tick model.Tick) (model.Candle, bool) {
	bucket := tick.Timestamp / 1000
	bucket -= bucket % a.intervalSec

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.opened {
		a.openCandle(bucket, tick)
		return model.Candle{}, false
	}

	if bucket < a.bucket {
		log.Printf("[candle] %s: dropping late tick ts=%d (open bucket=%d)",
			a.symbol, tick.Timestamp, a.bucket)
		if a.OnDroppedTick != nil {
			a.OnDroppedTick()
		}
		return model.Candle{}, false
	}

	if bucket > a.bucket {
		closed := a.open
		a.window.Push(closed)
		a.openCandle(bucket, tick)
		return closed, true
	}

	// Same interval — update OHLCV
	c := &a.open
	if tick.Last > c.High {
		c.High = tick.Last
	}
	if tick.Last < c.Low {
		c.Low = tick.Last
	}
	c.Close = tick.Last
	c.Volume += tick.Volume
	c.Ticks++
	return model.Candle{}, false
}

// openCandle seeds a fresh open candle from a tick. Caller holds the lock.
func (a *Aggregator) openCandle(bucket int64, tick model.Tick) {
	a.bucket = bucket
	a.opened = true
	a.open = model.Candle{
		Symbol: a.symbol,
		Start:  time.Unix(bucket, 0).UTC(),
		Open:   tick.Last,
		High:   tick.Last,
		Low:    tick.Last,
		Close:  tick.Last,
		Volume: tick.Volume,
		Ticks:  1,
	}
}

// Snapshot returns a copy of the closed-candle window, oldest first. The
// returned slice shares no storage with the live window.
func (a *Aggregator) Snapshot() []model.Candle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.window.Snapshot()
}

// OpenCandle returns a copy of the current open candle, if one exists.
func (a *Aggregator) OpenCandle() (model.Candle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.opened {
		return model.Candle{}, false
	}
	return a.open, true
}

// ClosedCount returns the number of closed candles currently held.
func (a *Aggregator) ClosedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.window.Len()
}
