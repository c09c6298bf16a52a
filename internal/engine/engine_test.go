package engine

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gamboaalejandro/trading-bot/internal/execution"
	"github.com/gamboaalejandro/trading-bot/internal/model"
	"github.com/gamboaalejandro/trading-bot/internal/portfolio"
	"github.com/gamboaalejandro/trading-bot/internal/risk"
	"github.com/gamboaalejandro/trading-bot/internal/sizing"
	"github.com/gamboaalejandro/trading-bot/internal/strategy"
)

func momentumOnly() SymbolConfig {
	return SymbolConfig{
		Strategies: []strategy.Spec{{Name: "momentum"}},
		Policy:     "any",
	}
}

func testDeps(book *risk.Manager) Deps {
	return Deps{
		Sizer:    sizing.NewSizer(sizing.Config{WinRate: 0.6, AvgWin: 150, AvgLoss: 100}),
		Book:     book,
		Executor: execution.NewPaper(book, nil),
	}
}

// goldenCrossTicks slides the price down for 40 one-second bars, then
// recovers sharply: the fast EMA crosses the slow with RSI high.
func goldenCrossTicks(symbol string) []model.Tick {
	var ticks []model.Tick
	price := 100.0
	ts := int64(0)
	emit := func(p float64) {
		ticks = append(ticks, model.Tick{Symbol: symbol, Timestamp: ts, Last: p, Volume: 1})
		ts += 1000
	}
	for i := 0; i < 40; i++ {
		price -= 0.5
		emit(price)
	}
	for i := 0; i < 40; i++ {
		price += 1.5
		emit(price)
	}
	return ticks
}

func drive(t *testing.T, eng *Engine, ticks []model.Tick) {
	t.Helper()
	tickCh := make(chan model.Tick, len(ticks)+1)
	done := make(chan struct{})
	go func() {
		eng.Run(context.Background(), tickCh)
		close(done)
	}()
	for _, tk := range ticks {
		tickCh <- tk
	}
	close(tickCh)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not drain")
	}
}

func TestEngine_GoldenCrossOpensPosition(t *testing.T) {
	book := risk.NewManager(risk.Config{InitialCapital: 10000}, nil)
	eng, err := New(Config{
		Symbols:        []string{"BTC/USDT"},
		CandleInterval: time.Second,
		Defaults:       momentumOnly(),
	}, testDeps(book), Hooks{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	drive(t, eng, goldenCrossTicks("BTC/USDT"))

	pos, held := book.Position("BTC/USDT")
	if !held {
		t.Fatal("recovery never opened a position")
	}
	if pos.Side != model.Buy {
		t.Fatalf("side = %s, want BUY", pos.Side)
	}
	if pos.Status != portfolio.StatusOpen {
		t.Errorf("status = %s, want OPEN after paper fill", pos.Status)
	}
	stopDist := pos.Entry - pos.StopLoss
	if stopDist <= 0 {
		t.Fatalf("long stop %v not below entry %v", pos.StopLoss, pos.Entry)
	}
	// Momentum targets reward ratio 3 regardless of where the cross landed.
	if got := pos.TakeProfit - pos.Entry; got < stopDist*3-1e-6 || got > stopDist*3+1e-6 {
		t.Errorf("target distance = %v, want 3x stop distance %v", got, stopDist)
	}
	if book.Exposure() != pos.RiskAmount {
		t.Errorf("exposure %v != booked risk %v", book.Exposure(), pos.RiskAmount)
	}
}

func TestEngine_SymbolFloorVetoesWeakDecisions(t *testing.T) {
	book := risk.NewManager(risk.Config{InitialCapital: 10000}, nil)
	strict := momentumOnly()
	strict.MinConfidence = 0.95
	eng, err := New(Config{
		Symbols:        []string{"BTC/USDT"},
		CandleInterval: time.Second,
		Defaults:       strict,
	}, testDeps(book), Hooks{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	// The same series that opens a position under the default floor
	// (TestEngine_GoldenCrossOpensPosition) stays flat under 0.95.
	drive(t, eng, goldenCrossTicks("BTC/USDT"))

	if pos, held := book.Position("BTC/USDT"); held {
		t.Errorf("symbol floor let %+v through", pos)
	}
}

func TestEngine_ApprovalLogsTraceID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	book := risk.NewManager(risk.Config{InitialCapital: 10000}, nil)
	eng, err := New(Config{
		Symbols:        []string{"BTC/USDT"},
		CandleInterval: time.Second,
		Defaults:       momentumOnly(),
	}, testDeps(book), Hooks{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	drive(t, eng, goldenCrossTicks("BTC/USDT"))

	if _, held := book.Position("BTC/USDT"); !held {
		t.Fatal("recovery never opened a position")
	}
	out := buf.String()
	if !strings.Contains(out, `"msg":"intent approved"`) {
		t.Fatalf("approval not logged: %s", out)
	}
	if !strings.Contains(out, `"trace_id":"BTC/USDT-`) {
		t.Errorf("approval log missing symbol-keyed trace id: %s", out)
	}
}

func TestEngine_DowntrendStaysFlat(t *testing.T) {
	book := risk.NewManager(risk.Config{InitialCapital: 10000}, nil)
	eng, err := New(Config{
		Symbols:        []string{"BTC/USDT"},
		CandleInterval: time.Second,
		Defaults:       momentumOnly(),
	}, testDeps(book), Hooks{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	var ticks []model.Tick
	for i := 0; i < 80; i++ {
		ticks = append(ticks, model.Tick{Symbol: "BTC/USDT", Timestamp: int64(i) * 1000, Last: 200 - float64(i), Volume: 1})
	}
	drive(t, eng, ticks)

	if pos, held := book.Position("BTC/USDT"); held {
		t.Errorf("downtrend opened %+v", pos)
	}
}

func TestEngine_IgnoresUnknownSymbols(t *testing.T) {
	book := risk.NewManager(risk.Config{InitialCapital: 10000}, nil)
	eng, err := New(Config{
		Symbols:        []string{"BTC/USDT"},
		CandleInterval: time.Second,
		Defaults:       momentumOnly(),
	}, testDeps(book), Hooks{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	drive(t, eng, []model.Tick{{Symbol: "DOGE/USDT", Timestamp: 1000, Last: 0.1}})
}

func TestEngine_RejectsBadConfig(t *testing.T) {
	deps := testDeps(risk.NewManager(risk.Config{InitialCapital: 10000}, nil))

	if _, err := New(Config{CandleInterval: time.Second, Defaults: momentumOnly()}, deps, Hooks{}); err == nil {
		t.Error("no symbols must fail")
	}

	bad := momentumOnly()
	bad.Policy = "unanimous"
	if _, err := New(Config{
		Symbols: []string{"BTC/USDT"}, CandleInterval: time.Second, Defaults: bad,
	}, deps, Hooks{}); err == nil {
		t.Error("unknown policy must fail")
	}

	noStrats := SymbolConfig{Policy: "any"}
	if _, err := New(Config{
		Symbols: []string{"BTC/USDT"}, CandleInterval: time.Second, Defaults: noStrats,
	}, deps, Hooks{}); err == nil {
		t.Error("empty strategy list must fail")
	}

	tooConfident := momentumOnly()
	tooConfident.MinConfidence = 1.5
	if _, err := New(Config{
		Symbols: []string{"BTC/USDT"}, CandleInterval: time.Second, Defaults: tooConfident,
	}, deps, Hooks{}); err == nil {
		t.Error("min_confidence above 1 must fail")
	}

	negThreshold := momentumOnly()
	negThreshold.WeightedThreshold = -0.2
	if _, err := New(Config{
		Symbols: []string{"BTC/USDT"}, CandleInterval: time.Second, Defaults: negThreshold,
	}, deps, Hooks{}); err == nil {
		t.Error("negative weighted_threshold must fail")
	}
}
