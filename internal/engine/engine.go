// Package engine wires the per-symbol trading pipeline: candle aggregation,
// strategy evaluation, signal combination, sizing, and the risk gate.
package engine

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/gamboaalejandro/trading-bot/internal/candle"
	"github.com/gamboaalejandro/trading-bot/internal/execution"
	"github.com/gamboaalejandro/trading-bot/internal/logger"
	"github.com/gamboaalejandro/trading-bot/internal/model"
	"github.com/gamboaalejandro/trading-bot/internal/risk"
	"github.com/gamboaalejandro/trading-bot/internal/sizing"
	"github.com/gamboaalejandro/trading-bot/internal/strategy"
)

const workerChanBuf = 1024

// SymbolConfig selects the strategies and combination policy for one symbol.
// MinConfidence is the symbol's decision floor; zero defers to the risk
// manager's global minimum. WeightedThreshold tunes the weighted policy;
// zero takes strategy.DefaultWeightedThreshold.
type SymbolConfig struct {
	Strategies        []strategy.Spec `json:"strategies"`
	Policy            string          `json:"policy"`
	MinConfidence     float64         `json:"min_confidence,omitempty"`
	WeightedThreshold float64         `json:"weighted_threshold,omitempty"`
}

// Config configures the engine.
type Config struct {
	Symbols        []string
	CandleInterval time.Duration
	WindowSize     int

	// Defaults apply to every symbol without an override.
	Defaults  SymbolConfig
	PerSymbol map[string]SymbolConfig
}

// Deps are the downstream stages shared by all symbol workers.
type Deps struct {
	Sizer    *sizing.Sizer
	Book     *risk.Manager
	Executor *execution.Paper
	Journal  *execution.Journal // may be nil
}

// Hooks observe the pipeline (all optional).
type Hooks struct {
	OnCandleClose   func(symbol string)
	OnLateTick      func(symbol string)
	OnSignal        func(strategyName string, dir model.Direction)
	OnStrategyError func(strategyName string)
	OnDecision      func(policy string, dir model.Direction)
	OnEvaluate      func(elapsed time.Duration)
}

// worker owns everything for one symbol. Workers never share mutable state;
// the risk manager is the only cross-symbol component and serializes itself.
type worker struct {
	symbol   string
	in       chan model.Tick
	agg      *candle.Aggregator
	eng      *strategy.Engine
	combiner *strategy.Combiner
	minConf  float64
}

// Engine routes ticks to per-symbol workers and drives decisions through
// sizing, risk, and execution.
type Engine struct {
	workers map[string]*worker
	deps    Deps
	hooks   Hooks
}

// New builds an engine for the configured symbols. Unknown strategy names or
// combination policies fail construction.
func New(cfg Config, deps Deps, hooks Hooks) (*Engine, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("engine: no symbols configured")
	}
	windowSize := cfg.WindowSize
	if windowSize == 0 {
		windowSize = candle.DefaultWindowSize
	}

	e := &Engine{workers: make(map[string]*worker, len(cfg.Symbols)), deps: deps, hooks: hooks}
	for _, symbol := range cfg.Symbols {
		sc := cfg.Defaults
		if override, ok := cfg.PerSymbol[symbol]; ok {
			sc = override
		}
		if len(sc.Strategies) == 0 {
			return nil, fmt.Errorf("engine: %s has no strategies", symbol)
		}
		policy, err := strategy.ParsePolicy(sc.Policy)
		if err != nil {
			return nil, fmt.Errorf("engine: %s: %w", symbol, err)
		}

		strategies := make([]strategy.Strategy, 0, len(sc.Strategies))
		for _, spec := range sc.Strategies {
			s, err := strategy.Build(spec)
			if err != nil {
				return nil, fmt.Errorf("engine: %s: %w", symbol, err)
			}
			strategies = append(strategies, s)
		}

		if sc.MinConfidence < 0 || sc.MinConfidence > 1 {
			return nil, fmt.Errorf("engine: %s: min_confidence %v outside [0,1]", symbol, sc.MinConfidence)
		}
		if sc.WeightedThreshold < 0 || sc.WeightedThreshold > 1 {
			return nil, fmt.Errorf("engine: %s: weighted_threshold %v outside [0,1]", symbol, sc.WeightedThreshold)
		}

		w := &worker{
			symbol:   symbol,
			in:       make(chan model.Tick, workerChanBuf),
			agg:      candle.NewAggregator(symbol, cfg.CandleInterval, windowSize),
			eng:      strategy.NewEngine(strategies...),
			combiner: strategy.NewCombiner(policy, strategies, sc.WeightedThreshold),
			minConf:  sc.MinConfidence,
		}
		w.eng.OnStrategyError = hooks.OnStrategyError
		if hooks.OnLateTick != nil {
			sym := symbol
			w.agg.OnDroppedTick = func() { hooks.OnLateTick(sym) }
		}
		e.workers[symbol] = w
	}
	return e, nil
}

// Run starts one goroutine per symbol and routes ticks until ctx is
// cancelled or tickCh closes. Ticks for unconfigured symbols are dropped.
func (e *Engine) Run(ctx context.Context, tickCh <-chan model.Tick) {
	var wg sync.WaitGroup
	for _, w := range e.workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			e.runWorker(w)
		}(w)
	}

	for {
		select {
		case <-ctx.Done():
			e.closeWorkers()
			wg.Wait()
			return
		case tick, ok := <-tickCh:
			if !ok {
				e.closeWorkers()
				wg.Wait()
				return
			}
			w, known := e.workers[tick.Symbol]
			if !known {
				continue
			}
			select {
			case w.in <- tick:
			default:
				log.Printf("[engine] %s worker saturated, tick dropped", tick.Symbol)
			}
		}
	}
}

func (e *Engine) closeWorkers() {
	for _, w := range e.workers {
		close(w.in)
	}
}

func (e *Engine) runWorker(w *worker) {
	log.Printf("[engine] worker started for %s", w.symbol)
	for tick := range w.in {
		if _, closed := w.agg.Apply(tick); closed {
			if e.hooks.OnCandleClose != nil {
				e.hooks.OnCandleClose(w.symbol)
			}
			e.onCandleClose(w)
		}
	}
	log.Printf("[engine] worker stopped for %s", w.symbol)
}

// onCandleClose runs the decision path over the freshly closed window.
func (e *Engine) onCandleClose(w *worker) {
	start := time.Now()
	defer func() {
		if e.hooks.OnEvaluate != nil {
			e.hooks.OnEvaluate(time.Since(start))
		}
	}()

	window := w.agg.Snapshot()
	signals := w.eng.Evaluate(window)
	if e.hooks.OnSignal != nil {
		for _, s := range signals {
			e.hooks.OnSignal(s.Strategy, s.Direction)
		}
	}

	decision := w.combiner.Combine(w.symbol, signals)
	if decision == nil {
		return
	}
	if e.hooks.OnDecision != nil {
		e.hooks.OnDecision(string(w.combiner.Policy()), decision.Direction)
	}
	if !decision.Actionable(w.minConf) {
		e.journalDecision(decision, "skipped", "below_confidence_floor")
		return
	}

	ctx := logger.WithTraceID(context.Background(), logger.GenerateTraceID(w.symbol, start))
	trace := logger.LogWithTrace(ctx)

	intent := e.deps.Sizer.Size(decision, window, e.deps.Book.Capital())
	if intent == nil {
		e.journalDecision(decision, "skipped", "sized_to_zero")
		return
	}

	if rej := e.deps.Book.Approve(intent); rej != nil {
		e.journalDecision(decision, "rejected", rej.Code)
		slog.Warn("intent rejected", append(trace,
			slog.String("symbol", w.symbol),
			slog.String("reason", rej.Code))...)
		return
	}
	e.journalDecision(decision, "approved", "")
	slog.Info("intent approved", append(trace,
		slog.String("symbol", w.symbol),
		slog.String("direction", string(decision.Direction)),
		slog.Float64("quantity", intent.Quantity),
		slog.Float64("risk", intent.RiskAmount))...)
	e.deps.Executor.Fill(intent)
}

func (e *Engine) journalDecision(d *model.Decision, verdict, reason string) {
	if e.deps.Journal == nil {
		return
	}
	if err := e.deps.Journal.RecordDecision(d, verdict, reason); err != nil {
		log.Printf("[engine] journal write failed: %v", err)
	}
}
