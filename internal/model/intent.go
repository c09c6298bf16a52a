package model

// PositionIntent is a fully sized trade proposal awaiting the risk gate.
// Ephemeral: it exists only for the duration of one risk check.
type PositionIntent struct {
	Symbol     string    `json:"symbol"`
	Side       Direction `json:"side"` // Buy or Sell
	Quantity   float64   `json:"quantity"` // base units
	Notional   float64   `json:"notional"` // quantity × entry, quote units
	Leverage   float64   `json:"leverage"`
	Entry      float64   `json:"entry"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	RiskAmount float64   `json:"risk_amount"` // quote units lost if the stop is hit
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale"`
}
