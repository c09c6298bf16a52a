package model

// Direction is the directional opinion of a strategy or combined decision.
type Direction string

const (
	Buy     Direction = "BUY"
	Sell    Direction = "SELL"
	Hold    Direction = "HOLD"
	Neutral Direction = "NEUTRAL"
)

// Actionable reports whether the direction calls for a trade.
func (d Direction) Actionable() bool {
	return d == Buy || d == Sell
}

// Signal is a single strategy's opinion for one evaluation of one window.
// Produced fresh on every evaluation, never mutated.
type Signal struct {
	Strategy   string    `json:"strategy"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"` // 0.0–1.0
	Entry      float64   `json:"entry"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Rationale  string    `json:"rationale"`
}

// Decision is the combiner's merged verdict for one symbol.
// Signals holds the contributing signals in strategy registration order.
type Decision struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
	Entry      float64   `json:"entry"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Signals    []Signal  `json:"signals"`
}

// Actionable reports whether the decision should reach the sizer:
// a tradeable direction with confidence at or above the configured minimum.
func (d *Decision) Actionable(minConfidence float64) bool {
	return d.Direction.Actionable() && d.Confidence >= minConfidence
}
