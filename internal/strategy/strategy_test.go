package strategy

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/gamboaalejandro/trading-bot/internal/indicator"
	"github.com/gamboaalejandro/trading-bot/internal/model"
)

// candles builds a window from closes with a fixed 2-unit bar range.
func candles(closes []float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			Symbol: "BTC/USDT",
			Start:  time.Unix(int64(i)*60, 0),
			Open:   c, High: c + 1, Low: c - 1, Close: c,
			Volume: 10,
			Ticks:  1,
		}
	}
	return out
}

func TestMomentum_GoldenCrossEmitsBuyWithATRStops(t *testing.T) {
	// Decline long enough to pin the fast EMA under the slow, then a sharp
	// recovery that forces a cross while RSI sits above 50.
	closes := make([]float64, 0, 80)
	price := 100.0
	for i := 0; i < 40; i++ {
		price -= 0.5
		closes = append(closes, price)
	}
	for i := 0; i < 40; i++ {
		price += 1.5
		closes = append(closes, price)
	}

	m := NewMomentum(MomentumParams{})
	var sig *model.Signal
	var window []model.Candle
	for n := m.RequiredCandles(); n <= len(closes); n++ {
		w := candles(closes[:n])
		s, err := m.Evaluate(w)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if s != nil && s.Direction == model.Buy {
			sig, window = s, w
			break
		}
	}
	if sig == nil {
		t.Fatal("recovery never produced a BUY")
	}

	atr, ok := indicator.ATR(window, 14)
	if !ok {
		t.Fatal("ATR not ready on signal window")
	}
	wantStop := sig.Entry - atr*2.0
	if math.Abs(sig.StopLoss-wantStop) > 1e-9 {
		t.Errorf("stop = %v, want entry-2*ATR = %v", sig.StopLoss, wantStop)
	}
	wantTP := sig.Entry + (sig.Entry-sig.StopLoss)*3.0
	if math.Abs(sig.TakeProfit-wantTP) > 1e-9 {
		t.Errorf("take profit = %v, want %v", sig.TakeProfit, wantTP)
	}
	if sig.Confidence < 0.5 || sig.Confidence > 1.0 {
		t.Errorf("confidence = %v, want within [0.5, 1.0]", sig.Confidence)
	}
}

func TestMomentum_NeverBuysWithWeakRSI(t *testing.T) {
	// A steady decline keeps RSI under 50 on every bar, so no window may
	// produce a BUY no matter what the EMAs do.
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	m := NewMomentum(MomentumParams{})
	for n := m.RequiredCandles(); n <= len(closes); n++ {
		sig, err := m.Evaluate(candles(closes[:n]))
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if sig != nil && sig.Direction == model.Buy {
			t.Fatalf("BUY at window %d with falling prices", n)
		}
	}
}

func TestMomentum_NoSignalWithoutCrossEdge(t *testing.T) {
	// A long linear uptrend: the fast EMA crossed above the slow ages ago
	// and stays above. Being above is not the edge, so the final bar is
	// quiet even though trend and RSI both favor longs.
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	m := NewMomentum(MomentumParams{})
	sig, err := m.Evaluate(candles(closes))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig != nil {
		t.Errorf("expected no signal on established trend, got %s", sig.Direction)
	}
}

func TestMeanReversion_BuysLowerBandTouch(t *testing.T) {
	closes := make([]float64, 0, 25)
	for i := 0; i < 24; i++ {
		closes = append(closes, 100-0.1*float64(i))
	}
	closes = append(closes, 94) // crash through the lower band

	m := NewMeanReversion(MeanReversionParams{})
	window := candles(closes)
	sig, err := m.Evaluate(window)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig == nil || sig.Direction != model.Buy {
		t.Fatalf("signal = %+v, want BUY", sig)
	}

	middle, upper, lower, ok := indicator.Bollinger(indicator.Closes(window), 20, 2.0)
	if !ok {
		t.Fatal("bollinger not ready")
	}
	if closes[len(closes)-1] > lower {
		t.Fatalf("test setup: close %v not below lower band %v", closes[len(closes)-1], lower)
	}
	wantStop := lower - (upper-lower)/2
	if math.Abs(sig.StopLoss-wantStop) > 1e-9 {
		t.Errorf("stop = %v, want band minus half width = %v", sig.StopLoss, wantStop)
	}
	if math.Abs(sig.TakeProfit-middle) > 1e-9 {
		t.Errorf("take profit = %v, want middle band %v", sig.TakeProfit, middle)
	}
	if sig.TakeProfit <= sig.Entry {
		t.Errorf("reversion target %v not above entry %v", sig.TakeProfit, sig.Entry)
	}
}

func TestMeanReversion_QuietInsideBands(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
		if i%2 == 1 {
			closes[i] = 100.5
		}
	}
	m := NewMeanReversion(MeanReversionParams{})
	sig, err := m.Evaluate(candles(closes))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sig != nil {
		t.Errorf("expected no signal inside the bands, got %s", sig.Direction)
	}
}

// stub is a scriptable strategy for engine and combiner tests.
type stub struct {
	name   string
	floor  float64
	needed int
	sig    *model.Signal
	err    error
	panics bool
}

func (s *stub) Name() string             { return s.name }
func (s *stub) ConfidenceFloor() float64 { return s.floor }
func (s *stub) RequiredCandles() int     { return s.needed }
func (s *stub) Evaluate([]model.Candle) (*model.Signal, error) {
	if s.panics {
		panic("boom")
	}
	return s.sig, s.err
}

func TestEngine_IsolatesFailures(t *testing.T) {
	good := &stub{name: "good", sig: &model.Signal{
		Strategy: "good", Symbol: "BTC/USDT", Direction: model.Buy, Confidence: 0.7,
	}}
	panicky := &stub{name: "panicky", panics: true}
	failing := &stub{name: "failing", err: errors.New("window corrupted")}

	var failed []string
	eng := NewEngine(panicky, failing, good)
	eng.OnStrategyError = func(name string) { failed = append(failed, name) }

	signals := eng.Evaluate(candles([]float64{100}))
	if len(signals) != 1 || signals[0].Strategy != "good" {
		t.Fatalf("signals = %+v, want only the healthy strategy's", signals)
	}
	if len(failed) != 2 {
		t.Errorf("failure hooks = %v, want panicky and failing", failed)
	}
}

func TestEngine_InsufficientHistoryIsSilent(t *testing.T) {
	hungry := &stub{name: "hungry", needed: 50, sig: &model.Signal{Direction: model.Buy}}
	eng := NewEngine(hungry)
	eng.OnStrategyError = func(string) { t.Error("short history must not count as failure") }
	if got := eng.Evaluate(candles([]float64{100, 101})); len(got) != 0 {
		t.Errorf("signals = %+v, want none before warm-up", got)
	}
}
