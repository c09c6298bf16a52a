// Package normalize converts exchange-native ticker payloads into canonical
// model.Tick records. It is the only place exchange symbol quirks are allowed:
// downstream of this package a symbol is always plain "BASE/QUOTE".
package normalize

import (
	"log"
	"strings"

	"github.com/gamboaalejandro/trading-bot/internal/model"
)

// RawTicker is the wire shape delivered by the ingestion collaborator.
// Every field except symbol, timestamp and last is optional — derivatives
// feeds frequently omit the quote side entirely.
type RawTicker struct {
	Symbol    string   `json:"symbol"`
	Timestamp int64    `json:"timestamp"` // Unix milliseconds
	Last      *float64 `json:"last"`
	Volume    *float64 `json:"volume"`
	Bid       *float64 `json:"bid"`
	Ask       *float64 `json:"ask"`
	High      *float64 `json:"high"`
	Low       *float64 `json:"low"`
	ChangePct *float64 `json:"change_percent"`
}

// contract suffixes stripped from perpetual/futures symbols.
var contractSuffixes = []string{"-PERP", "-SWAP", ".P"}

// Normalizer validates raw tickers and produces canonical ticks.
type Normalizer struct {
	// OnRejected is called when a malformed ticker is dropped (optional).
	OnRejected func()
}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize converts a raw ticker into a canonical Tick.
// A ticker without a positive last price is rejected: it is logged, counted,
// and (false, zero Tick) is returned. Malformed input never propagates.
func (n *Normalizer) Normalize(raw RawTicker) (model.Tick, bool) {
	if raw.Symbol == "" || raw.Last == nil || *raw.Last <= 0 {
		log.Printf("[normalize] dropping malformed ticker symbol=%q last=%v", raw.Symbol, raw.Last)
		if n.OnRejected != nil {
			n.OnRejected()
		}
		return model.Tick{}, false
	}

	tick := model.Tick{
		Symbol:    CanonicalSymbol(raw.Symbol),
		Timestamp: raw.Timestamp,
		Last:      *raw.Last,
		Bid:       raw.Bid,
		Ask:       raw.Ask,
		High:      raw.High,
		Low:       raw.Low,
		ChangePct: raw.ChangePct,
	}
	if raw.Volume != nil {
		tick.Volume = *raw.Volume
	}
	return tick, true
}

// CanonicalSymbol strips exchange-specific contract qualifiers from a symbol,
// reducing e.g. "BTC/USDT:USDT" (ccxt perpetual) or "ETH/USD-PERP" to the
// spot-style "BASE/QUOTE" form.
func CanonicalSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))

	// ccxt-style settle-currency qualifier: "BTC/USDT:USDT"
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	for _, suf := range contractSuffixes {
		s = strings.TrimSuffix(s, suf)
	}
	return s
}
