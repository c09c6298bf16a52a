// Package strategy provides the pluggable signal generators and the engine
// that evaluates them over candle windows.
//
// A Strategy is a pure function of its input window plus the parameters it
// was constructed with — no mutable state between calls. Evaluations that
// lack sufficient history return no opinion, never an error.
package strategy

import (
	"fmt"
	"log"

	"github.com/gamboaalejandro/trading-bot/internal/model"
)

// Strategy is the interface all signal generators implement.
type Strategy interface {
	// Name returns the unique name of the strategy instance.
	Name() string

	// RequiredCandles returns the minimum window length the strategy needs
	// before it can hold an opinion.
	RequiredCandles() int

	// ConfidenceFloor returns the strategy's own minimum confidence,
	// used by the "any" combination policy.
	ConfidenceFloor() float64

	// Evaluate inspects a closed-candle window (oldest first) and returns a
	// signal, or nil when the strategy has no opinion. The window must not
	// be retained or mutated.
	Evaluate(window []model.Candle) (*model.Signal, error)
}

// Spec selects and parameterizes one strategy by name. Exactly the
// parameter block matching Name must be set; unknown names fail Build.
type Spec struct {
	Name          string               `json:"name"` // "momentum" or "mean_reversion"
	Momentum      *MomentumParams      `json:"momentum,omitempty"`
	MeanReversion *MeanReversionParams `json:"mean_reversion,omitempty"`
}

// Build constructs a strategy from its spec, applying defaults for unset
// parameters. Unknown strategy names are a configuration error.
func Build(spec Spec) (Strategy, error) {
	switch spec.Name {
	case "momentum":
		p := MomentumParams{}
		if spec.Momentum != nil {
			p = *spec.Momentum
		}
		return NewMomentum(p), nil
	case "mean_reversion":
		p := MeanReversionParams{}
		if spec.MeanReversion != nil {
			p = *spec.MeanReversion
		}
		return NewMeanReversion(p), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", spec.Name)
	}
}

// Engine evaluates a fixed set of strategies for one symbol. Each evaluation
// is independently fallible: a strategy that errors or panics is logged and
// excluded from that bar's output without disturbing the others.
type Engine struct {
	strategies []Strategy

	// OnStrategyError is called when a strategy fails on a bar (optional).
	OnStrategyError func(name string)
}

// NewEngine creates an engine over the given strategies. Order is preserved:
// signals are emitted in registration order.
func NewEngine(strategies ...Strategy) *Engine {
	return &Engine{strategies: strategies}
}

// Register appends a strategy to the engine.
func (e *Engine) Register(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// Strategies returns the registered strategies in order.
func (e *Engine) Strategies() []Strategy { return e.strategies }

// Evaluate runs every strategy over the window and collects their signals in
// registration order. No-opinion results are skipped silently; failures are
// logged and skipped.
func (e *Engine) Evaluate(window []model.Candle) []model.Signal {
	signals := make([]model.Signal, 0, len(e.strategies))
	for _, s := range e.strategies {
		sig, err := e.evaluateOne(s, window)
		if err != nil {
			log.Printf("[strategy] %s failed: %v", s.Name(), err)
			if e.OnStrategyError != nil {
				e.OnStrategyError(s.Name())
			}
			continue
		}
		if sig != nil {
			signals = append(signals, *sig)
		}
	}
	return signals
}

// evaluateOne isolates a single strategy call, converting panics to errors.
func (e *Engine) evaluateOne(s Strategy, window []model.Candle) (sig *model.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if len(window) < s.RequiredCandles() {
		return nil, nil // insufficient history is no opinion, not an error
	}
	return s.Evaluate(window)
}
