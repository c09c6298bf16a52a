package strategy

import (
	"fmt"

	"github.com/gamboaalejandro/trading-bot/internal/indicator"
	"github.com/gamboaalejandro/trading-bot/internal/model"
)

// MomentumParams configures the momentum strategy. Zero values take the
// documented defaults.
type MomentumParams struct {
	RSIPeriod     int     `json:"rsi_period"`     // default 14
	FastEMA       int     `json:"fast_ema"`       // default 10
	SlowEMA       int     `json:"slow_ema"`       // default 30
	ATRPeriod     int     `json:"atr_period"`     // default 14
	ATRMultiplier float64 `json:"atr_multiplier"` // default 2.0
	RewardRatio   float64 `json:"reward_ratio"`   // take-profit = ratio × stop distance, default 3.0
	MinConfidence float64 `json:"min_confidence"` // floor for the "any" policy, default 0.5
}

func (p *MomentumParams) defaults() {
	if p.RSIPeriod == 0 {
		p.RSIPeriod = 14
	}
	if p.FastEMA == 0 {
		p.FastEMA = 10
	}
	if p.SlowEMA == 0 {
		p.SlowEMA = 30
	}
	if p.ATRPeriod == 0 {
		p.ATRPeriod = 14
	}
	if p.ATRMultiplier == 0 {
		p.ATRMultiplier = 2.0
	}
	if p.RewardRatio == 0 {
		p.RewardRatio = 3.0
	}
	if p.MinConfidence == 0 {
		p.MinConfidence = 0.5
	}
}

// Momentum signals on an RSI-confirmed EMA crossover.
//
// BUY: fast EMA crossed above slow EMA on this bar AND RSI > 50.
// SELL: fast EMA crossed below slow EMA on this bar AND RSI < 50.
// The cross is an edge: the previous bar's ordering must differ, so merely
// being above/below never signals.
type Momentum struct {
	params MomentumParams
}

// NewMomentum creates a momentum strategy with the given parameters.
func NewMomentum(params MomentumParams) *Momentum {
	params.defaults()
	return &Momentum{params: params}
}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) ConfidenceFloor() float64 { return m.params.MinConfidence }

func (m *Momentum) RequiredCandles() int {
	n := m.params.SlowEMA
	if m.params.RSIPeriod > n {
		n = m.params.RSIPeriod
	}
	if m.params.ATRPeriod > n {
		n = m.params.ATRPeriod
	}
	// +1: the cross edge and RSI/ATR all need the previous bar.
	return n + 1
}

func (m *Momentum) Evaluate(window []model.Candle) (*model.Signal, error) {
	closes := indicator.Closes(window)

	rsi, ok := indicator.RSI(closes, m.params.RSIPeriod)
	if !ok {
		return nil, nil
	}
	fast := indicator.EMASeries(closes, m.params.FastEMA)
	slow := indicator.EMASeries(closes, m.params.SlowEMA)
	if fast == nil || slow == nil || len(slow) < m.params.SlowEMA+1 {
		return nil, nil
	}
	atr, ok := indicator.ATR(window, m.params.ATRPeriod)
	if !ok {
		return nil, nil
	}

	last := len(closes) - 1
	fastNow, fastPrev := fast[last], fast[last-1]
	slowNow, slowPrev := slow[last], slow[last-1]

	crossedUp := fastPrev <= slowPrev && fastNow > slowNow
	crossedDown := fastPrev >= slowPrev && fastNow < slowNow

	entry := closes[last]
	stopDist := atr * m.params.ATRMultiplier

	switch {
	case crossedUp && rsi > 50:
		conf := m.confidence(rsi-50, fastNow, slowNow)
		return &model.Signal{
			Strategy:   m.Name(),
			Symbol:     window[last].Symbol,
			Direction:  model.Buy,
			Confidence: conf,
			Entry:      entry,
			StopLoss:   entry - stopDist,
			TakeProfit: entry + stopDist*m.params.RewardRatio,
			Rationale: fmt.Sprintf("EMA%d crossed above EMA%d, RSI=%.1f",
				m.params.FastEMA, m.params.SlowEMA, rsi),
		}, nil

	case crossedDown && rsi < 50:
		conf := m.confidence(50-rsi, fastNow, slowNow)
		return &model.Signal{
			Strategy:   m.Name(),
			Symbol:     window[last].Symbol,
			Direction:  model.Sell,
			Confidence: conf,
			Entry:      entry,
			StopLoss:   entry + stopDist,
			TakeProfit: entry - stopDist*m.params.RewardRatio,
			Rationale: fmt.Sprintf("EMA%d crossed below EMA%d, RSI=%.1f",
				m.params.FastEMA, m.params.SlowEMA, rsi),
		}, nil
	}

	return nil, nil
}

// confidence scales with how far RSI sits beyond the midline and how wide
// the EMA separation is at the cross.
func (m *Momentum) confidence(rsiEdge, fastNow, slowNow float64) float64 {
	rsiFactor := rsiEdge / 50
	if rsiFactor > 1 {
		rsiFactor = 1
	}
	sep := fastNow - slowNow
	if sep < 0 {
		sep = -sep
	}
	maFactor := 0.0
	if slowNow != 0 {
		maFactor = sep / slowNow * 100
		if maFactor > 0.5 {
			maFactor = 0.5
		}
	}
	conf := 0.5 + rsiFactor*0.3 + maFactor*0.2
	if conf > 1 {
		conf = 1
	}
	return conf
}
