package strategy

import (
	"fmt"
	"math"

	"github.com/gamboaalejandro/trading-bot/internal/model"
)

// Policy names a signal combination method.
type Policy string

const (
	// PolicyConsensus requires every registered strategy to agree on the
	// same tradeable direction.
	PolicyConsensus Policy = "consensus"
	// PolicyMajority requires strictly more than half of the registered
	// strategies to agree.
	PolicyMajority Policy = "majority"
	// PolicyWeighted sums signed confidences and trades when the net
	// conviction clears a threshold.
	PolicyWeighted Policy = "weighted"
	// PolicyAny takes the single most confident signal that clears its own
	// strategy's confidence floor.
	PolicyAny Policy = "any"
)

// ParsePolicy validates a policy name from configuration.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyConsensus, PolicyMajority, PolicyWeighted, PolicyAny:
		return p, nil
	default:
		return "", fmt.Errorf("unknown combination policy %q", s)
	}
}

const (
	// DefaultWeightedThreshold is the net conviction the weighted policy
	// requires when no threshold is configured.
	DefaultWeightedThreshold = 0.3
	// weightedTieEpsilon: when buy and sell conviction are this close the
	// bar is treated as conflicted and no decision is emitted.
	weightedTieEpsilon = 0.05
)

// Combiner merges the per-bar signals of all registered strategies into at
// most one Decision per symbol per bar. It is stateless across bars.
type Combiner struct {
	policy     Policy
	threshold  float64
	registered int
	floors     map[string]float64
}

// NewCombiner builds a combiner for the given policy over the engine's
// registered strategies. The strategy set fixes the denominator for the
// consensus and majority policies and the confidence floors for "any".
// weightedThreshold is the net conviction the weighted policy must clear;
// zero takes DefaultWeightedThreshold.
func NewCombiner(policy Policy, strategies []Strategy, weightedThreshold float64) *Combiner {
	if weightedThreshold == 0 {
		weightedThreshold = DefaultWeightedThreshold
	}
	floors := make(map[string]float64, len(strategies))
	for _, s := range strategies {
		floors[s.Name()] = s.ConfidenceFloor()
	}
	return &Combiner{
		policy:     policy,
		threshold:  weightedThreshold,
		registered: len(strategies),
		floors:     floors,
	}
}

// Policy returns the configured combination policy.
func (c *Combiner) Policy() Policy { return c.policy }

// Combine merges one bar's signals. A nil result means no trade this bar:
// nothing actionable, the vote failed, or conviction was conflicted.
// Strategies that emitted no signal simply do not vote; they still count
// toward the consensus and majority denominators.
func (c *Combiner) Combine(symbol string, signals []model.Signal) *model.Decision {
	var buys, sells []model.Signal
	for _, s := range signals {
		switch s.Direction {
		case model.Buy:
			buys = append(buys, s)
		case model.Sell:
			sells = append(sells, s)
		}
	}
	if len(buys) == 0 && len(sells) == 0 {
		return nil
	}

	switch c.policy {
	case PolicyConsensus:
		if len(buys) == c.registered {
			return c.agreement(symbol, model.Buy, buys)
		}
		if len(sells) == c.registered {
			return c.agreement(symbol, model.Sell, sells)
		}
		return nil

	case PolicyMajority:
		if 2*len(buys) > c.registered {
			return c.agreement(symbol, model.Buy, buys)
		}
		if 2*len(sells) > c.registered {
			return c.agreement(symbol, model.Sell, sells)
		}
		return nil

	case PolicyWeighted:
		return c.weighted(symbol, buys, sells)

	case PolicyAny:
		return c.mostConfident(symbol, append(buys, sells...))
	}
	return nil
}

// agreement builds a decision from signals that all share one direction:
// confidence is their mean, price levels their averages.
func (c *Combiner) agreement(symbol string, dir model.Direction, agreeing []model.Signal) *model.Decision {
	d := &model.Decision{Symbol: symbol, Direction: dir, Signals: agreeing}
	n := float64(len(agreeing))
	for _, s := range agreeing {
		d.Confidence += s.Confidence / n
		d.Entry += s.Entry / n
		d.StopLoss += s.StopLoss / n
		d.TakeProfit += s.TakeProfit / n
	}
	return d
}

// weighted nets signed confidences: buys add, sells subtract. Near-equal
// opposing conviction yields no decision rather than a coin flip.
func (c *Combiner) weighted(symbol string, buys, sells []model.Signal) *model.Decision {
	buySum, sellSum := 0.0, 0.0
	for _, s := range buys {
		buySum += s.Confidence
	}
	for _, s := range sells {
		sellSum += s.Confidence
	}
	if len(buys) > 0 && len(sells) > 0 && math.Abs(buySum-sellSum) < weightedTieEpsilon {
		return nil
	}

	net := buySum - sellSum
	if math.Abs(net) <= c.threshold {
		return nil
	}

	dir, winners := model.Buy, buys
	if net < 0 {
		dir, winners = model.Sell, sells
	}
	d := c.agreement(symbol, dir, winners)
	d.Confidence = math.Min(math.Abs(net), 1.0)
	return d
}

// mostConfident returns the single strongest signal that clears its own
// strategy's floor, promoted to a decision unchanged.
func (c *Combiner) mostConfident(symbol string, actionable []model.Signal) *model.Decision {
	var best *model.Signal
	for i := range actionable {
		s := &actionable[i]
		if s.Confidence < c.floors[s.Strategy] {
			continue
		}
		if best == nil || s.Confidence > best.Confidence {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	return &model.Decision{
		Symbol:     symbol,
		Direction:  best.Direction,
		Confidence: best.Confidence,
		Entry:      best.Entry,
		StopLoss:   best.StopLoss,
		TakeProfit: best.TakeProfit,
		Signals:    []model.Signal{*best},
	}
}
