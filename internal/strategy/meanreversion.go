package strategy

import (
	"fmt"

	"github.com/gamboaalejandro/trading-bot/internal/indicator"
	"github.com/gamboaalejandro/trading-bot/internal/model"
)

// MeanReversionParams configures the mean-reversion strategy. Zero values
// take the documented defaults.
type MeanReversionParams struct {
	BBPeriod      int     `json:"bb_period"`      // default 20
	BBStdDev      float64 `json:"bb_std"`         // default 2.0
	RSIPeriod     int     `json:"rsi_period"`     // default 14
	Oversold      float64 `json:"oversold"`       // default 30
	Overbought    float64 `json:"overbought"`     // default 70
	MinConfidence float64 `json:"min_confidence"` // floor for the "any" policy, default 0.5
}

func (p *MeanReversionParams) defaults() {
	if p.BBPeriod == 0 {
		p.BBPeriod = 20
	}
	if p.BBStdDev == 0 {
		p.BBStdDev = 2.0
	}
	if p.RSIPeriod == 0 {
		p.RSIPeriod = 14
	}
	if p.Oversold == 0 {
		p.Oversold = 30
	}
	if p.Overbought == 0 {
		p.Overbought = 70
	}
	if p.MinConfidence == 0 {
		p.MinConfidence = 0.5
	}
}

// MeanReversion trades Bollinger Band touches confirmed by RSI extremes.
//
// BUY: close at or below the lower band AND RSI < oversold.
// SELL: close at or above the upper band AND RSI > overbought.
// Stop sits half a band-width beyond the touched band; the target is the
// middle band (the mean the price is expected to revert to).
type MeanReversion struct {
	params MeanReversionParams
}

// NewMeanReversion creates a mean-reversion strategy with the given parameters.
func NewMeanReversion(params MeanReversionParams) *MeanReversion {
	params.defaults()
	return &MeanReversion{params: params}
}

func (m *MeanReversion) Name() string { return "mean_reversion" }

func (m *MeanReversion) ConfidenceFloor() float64 { return m.params.MinConfidence }

func (m *MeanReversion) RequiredCandles() int {
	n := m.params.BBPeriod
	if m.params.RSIPeriod+1 > n {
		n = m.params.RSIPeriod + 1
	}
	return n
}

func (m *MeanReversion) Evaluate(window []model.Candle) (*model.Signal, error) {
	closes := indicator.Closes(window)

	rsi, ok := indicator.RSI(closes, m.params.RSIPeriod)
	if !ok {
		return nil, nil
	}
	middle, upper, lower, ok := indicator.Bollinger(closes, m.params.BBPeriod, m.params.BBStdDev)
	if !ok {
		return nil, nil
	}

	width := upper - lower
	if width <= 0 {
		return nil, nil // flat market, bands collapsed
	}

	last := len(closes) - 1
	price := closes[last]

	switch {
	case price <= lower && rsi < m.params.Oversold:
		conf := m.confidence((lower-price)/width, 1-rsi/m.params.Oversold)
		return &model.Signal{
			Strategy:   m.Name(),
			Symbol:     window[last].Symbol,
			Direction:  model.Buy,
			Confidence: conf,
			Entry:      price,
			StopLoss:   lower - width/2,
			TakeProfit: middle,
			Rationale:  fmt.Sprintf("close %.4f at lower band %.4f, RSI=%.1f", price, lower, rsi),
		}, nil

	case price >= upper && rsi > m.params.Overbought:
		rsiFactor := (rsi - m.params.Overbought) / (100 - m.params.Overbought)
		conf := m.confidence((price-upper)/width, rsiFactor)
		return &model.Signal{
			Strategy:   m.Name(),
			Symbol:     window[last].Symbol,
			Direction:  model.Sell,
			Confidence: conf,
			Entry:      price,
			StopLoss:   upper + width/2,
			TakeProfit: middle,
			Rationale:  fmt.Sprintf("close %.4f at upper band %.4f, RSI=%.1f", price, upper, rsi),
		}, nil
	}

	return nil, nil
}

// confidence scales with how deep the close penetrates the band and how
// extreme RSI is past its threshold.
func (m *MeanReversion) confidence(penetration, rsiFactor float64) float64 {
	bandFactor := penetration * 10
	if bandFactor > 1 {
		bandFactor = 1
	}
	if bandFactor < 0 {
		bandFactor = 0
	}
	if rsiFactor < 0 {
		rsiFactor = 0
	}
	if rsiFactor > 1 {
		rsiFactor = 1
	}
	conf := 0.5 + bandFactor*0.2 + rsiFactor*0.3
	if conf > 1 {
		conf = 1
	}
	return conf
}
