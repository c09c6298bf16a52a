// Package portfolio holds the position book data types and the symbol
// correlation matrix consulted by the risk gate.
package portfolio

import (
	"strings"
	"time"

	"github.com/gamboaalejandro/trading-bot/internal/model"
)

// Status is the lifecycle state of a tracked position.
type Status string

const (
	// StatusPending marks capital reserved for an approved intent whose
	// fill has not been confirmed yet. Pending risk counts toward exposure.
	StatusPending Status = "PENDING_APPROVAL"
	StatusOpen    Status = "OPEN"
	StatusClosed  Status = "CLOSED"
)

// Position is one entry in the book.
type Position struct {
	Symbol     string          `json:"symbol"`
	Side       model.Direction `json:"side"`
	Quantity   float64         `json:"quantity"`
	Notional   float64         `json:"notional"`
	Entry      float64         `json:"entry"`
	StopLoss   float64         `json:"stop_loss"`
	TakeProfit float64         `json:"take_profit"`
	RiskAmount float64         `json:"risk_amount"`
	Status     Status          `json:"status"`
	OpenedAt   time.Time       `json:"opened_at"`
}

// Live reports whether the position still holds reserved or deployed capital.
func (p *Position) Live() bool {
	return p.Status == StatusPending || p.Status == StatusOpen
}

// CorrelationMatrix maps symbol pairs to correlation coefficients. It is
// immutable once built; updates replace the whole matrix.
type CorrelationMatrix struct {
	pairs     map[string]float64
	threshold float64
}

// NewCorrelationMatrix builds a matrix from pair coefficients keyed either
// direction. Pairs absent from the map are treated as uncorrelated. Symbols
// correlate with themselves regardless of the map.
func NewCorrelationMatrix(pairs map[[2]string]float64, threshold float64) *CorrelationMatrix {
	m := &CorrelationMatrix{
		pairs:     make(map[string]float64, len(pairs)),
		threshold: threshold,
	}
	for k, v := range pairs {
		m.pairs[pairKey(k[0], k[1])] = v
	}
	return m
}

func pairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}

// Coefficient returns the stored correlation for a pair, zero when unknown.
func (m *CorrelationMatrix) Coefficient(a, b string) float64 {
	if a == b {
		return 1
	}
	return m.pairs[pairKey(a, b)]
}

// Correlated reports whether two symbols move together closely enough to be
// treated as one exposure.
func (m *CorrelationMatrix) Correlated(a, b string) bool {
	return m.Coefficient(a, b) >= m.threshold
}
