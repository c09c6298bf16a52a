package model

import (
	"encoding/json"
	"time"
)

// Candle represents one fixed-interval OHLCV bar for a single symbol.
// Closed candles are immutable; only the aggregator mutates the open candle.
type Candle struct {
	Symbol string    `json:"symbol"`
	Start  time.Time `json:"start"` // interval start (UTC, interval-aligned)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Ticks  int       `json:"ticks"` // number of ticks aggregated
}

// TrueRange returns the bar's true range given the previous close.
// Pass the bar's own open for the first bar of a window.
func (c *Candle) TrueRange(prevClose float64) float64 {
	tr := c.High - c.Low
	if hc := abs(c.High - prevClose); hc > tr {
		tr = hc
	}
	if lc := abs(c.Low - prevClose); lc > tr {
		tr = lc
	}
	return tr
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
