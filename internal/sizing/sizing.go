// Package sizing converts actionable decisions into concrete position
// intents using fractional Kelly risk allocation and stop-distance sizing.
package sizing

import (
	"fmt"
	"log"

	"github.com/gamboaalejandro/trading-bot/internal/model"
)

// Config holds the sizing parameters. Zero values take the documented
// defaults; the Kelly inputs come from measured strategy statistics and
// must be configured deliberately.
type Config struct {
	WinRate          float64 `json:"win_rate"`           // historical win probability, (0,1)
	AvgWin           float64 `json:"avg_win"`            // mean winning trade, quote units
	AvgLoss          float64 `json:"avg_loss"`           // mean losing trade, quote units (positive)
	KellyFraction    float64 `json:"kelly_fraction"`     // fraction of full Kelly to use, default 0.25
	MaxKelly         float64 `json:"max_kelly"`          // hard cap on the raw Kelly value, default 0.25
	MaxRiskPerTrade  float64 `json:"max_risk_per_trade"` // of balance, default 0.02
	MinStopDistance  float64 `json:"min_stop_distance"`  // of entry price, default 0.001
	MaxBarVolatility float64 `json:"max_bar_volatility"` // last-bar TR/close skip threshold, default 0.05
	MinNotional      float64 `json:"min_notional"`       // exchange minimum order value, default 10
	Leverage         float64 `json:"leverage"`           // default 1
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.KellyFraction == 0 {
		out.KellyFraction = 0.25
	}
	if out.MaxKelly == 0 {
		out.MaxKelly = 0.25
	}
	if out.MaxRiskPerTrade == 0 {
		out.MaxRiskPerTrade = 0.02
	}
	if out.MinStopDistance == 0 {
		out.MinStopDistance = 0.001
	}
	if out.MaxBarVolatility == 0 {
		out.MaxBarVolatility = 0.05
	}
	if out.MinNotional == 0 {
		out.MinNotional = 10
	}
	if out.Leverage == 0 {
		out.Leverage = 1
	}
	return out
}

// Kelly returns the capped fractional Kelly allocation for the given trade
// statistics: f = W - (1-W)/R with R = avgWin/avgLoss, clamped to
// [0, maxKelly], then scaled by kellyFraction. Degenerate inputs (win rate
// outside (0,1), non-positive averages) size to zero rather than erroring.
func Kelly(winRate, avgWin, avgLoss, maxKelly, kellyFraction float64) float64 {
	if winRate <= 0 || winRate >= 1 || avgWin <= 0 || avgLoss <= 0 {
		return 0
	}
	ratio := avgWin / avgLoss
	f := winRate - (1-winRate)/ratio
	if f < 0 {
		f = 0
	}
	if f > maxKelly {
		f = maxKelly
	}
	return f * kellyFraction
}

// StopFor returns the stop price entry ∓ multiplier×atr for the given side.
func StopFor(entry, atr float64, side model.Direction, multiplier float64) float64 {
	if side == model.Sell {
		return entry + atr*multiplier
	}
	return entry - atr*multiplier
}

// Sizer turns decisions into position intents.
type Sizer struct {
	cfg Config

	// OnSkip is called with a reason code when a decision sizes to nothing
	// (optional).
	OnSkip func(symbol, reason string)
}

// NewSizer creates a sizer, applying defaults for unset config fields.
func NewSizer(cfg Config) *Sizer {
	return &Sizer{cfg: cfg.withDefaults()}
}

func (s *Sizer) skip(symbol, reason string) {
	log.Printf("[sizing] %s skipped: %s", symbol, reason)
	if s.OnSkip != nil {
		s.OnSkip(symbol, reason)
	}
}

// Size produces a position intent for the decision, or nil when the trade
// should not be taken: zero Kelly, a stop too tight to size against, a
// violently volatile last bar, or a notional under the exchange minimum.
// window is the closed-candle window that produced the decision, used for
// the volatility filter.
func (s *Sizer) Size(d *model.Decision, window []model.Candle, balance float64) *model.PositionIntent {
	if d == nil || !d.Direction.Actionable() || balance <= 0 {
		return nil
	}
	if d.Entry <= 0 || d.StopLoss <= 0 {
		s.skip(d.Symbol, "missing price levels")
		return nil
	}

	if len(window) >= 2 {
		last := window[len(window)-1]
		tr := last.TrueRange(window[len(window)-2].Close)
		if last.Close > 0 && tr/last.Close > s.cfg.MaxBarVolatility {
			s.skip(d.Symbol, fmt.Sprintf("bar volatility %.2f%% over limit", tr/last.Close*100))
			return nil
		}
	}

	stopDist := d.Entry - d.StopLoss
	if d.Direction == model.Sell {
		stopDist = d.StopLoss - d.Entry
	}
	if stopDist < d.Entry*s.cfg.MinStopDistance {
		s.skip(d.Symbol, "stop distance below minimum")
		return nil
	}

	kelly := Kelly(s.cfg.WinRate, s.cfg.AvgWin, s.cfg.AvgLoss, s.cfg.MaxKelly, s.cfg.KellyFraction)
	if kelly <= 0 {
		s.skip(d.Symbol, "kelly sized to zero")
		return nil
	}

	riskAmount := kelly * balance
	if riskCap := s.cfg.MaxRiskPerTrade * balance; riskAmount > riskCap {
		riskAmount = riskCap
	}

	quantity := riskAmount / stopDist
	notional := quantity * d.Entry
	if notional < s.cfg.MinNotional {
		s.skip(d.Symbol, fmt.Sprintf("notional %.2f under exchange minimum", notional))
		return nil
	}

	return &model.PositionIntent{
		Symbol:     d.Symbol,
		Side:       d.Direction,
		Quantity:   quantity,
		Notional:   notional,
		Leverage:   s.cfg.Leverage,
		Entry:      d.Entry,
		StopLoss:   d.StopLoss,
		TakeProfit: d.TakeProfit,
		RiskAmount: riskAmount,
		Confidence: d.Confidence,
		Rationale:  fmt.Sprintf("kelly=%.4f risk=%.2f stop_dist=%.4f", kelly, riskAmount, stopDist),
	}
}
