package model

import (
	"encoding/json"
	"time"
)

// Tick represents a single normalized market data update for one symbol.
// The symbol is always in canonical "BASE/QUOTE" form (see marketdata/normalize);
// exchange-specific contract suffixes never survive past the normalizer.
//
// Bid/Ask/High/Low/ChangePct are optional — many derivatives feeds publish a
// trade price without a quote. Consumers must not assume they are set.
type Tick struct {
	Symbol    string   `json:"symbol"`
	Timestamp int64    `json:"timestamp"` // exchange time, Unix milliseconds
	Last      float64  `json:"last"`
	Volume    float64  `json:"volume,omitempty"`
	Bid       *float64 `json:"bid,omitempty"`
	Ask       *float64 `json:"ask,omitempty"`
	High      *float64 `json:"high,omitempty"`
	Low       *float64 `json:"low,omitempty"`
	ChangePct *float64 `json:"change_percent,omitempty"`
}

// Time returns the exchange timestamp as a time.Time in UTC.
func (t *Tick) Time() time.Time {
	return time.UnixMilli(t.Timestamp).UTC()
}

// JSON returns the JSON-encoded tick (ignoring errors for hot-path usage).
func (t *Tick) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}
