package candle

import (
	"testing"
	"time"

	"github.com/gamboaalejandro/trading-bot/internal/model"
)

func tickAt(sec int64, price, vol float64) model.Tick {
	return model.Tick{Symbol: "BTC/USDT", Timestamp: sec * 1000, Last: price, Volume: vol}
}

func TestAggregator_BasicCandle(t *testing.T) {
	agg := NewAggregator("BTC/USDT", time.Minute, 100)

	base := int64(1700000040) // minute-aligned
	agg.Apply(tickAt(base, 50000, 10))
	agg.Apply(tickAt(base+10, 50500, 20))
	agg.Apply(tickAt(base+30, 49800, 5))

	// Next minute closes the first candle.
	closed, ok := agg.Apply(tickAt(base+60, 50100, 15))
	if !ok {
		t.Fatal("expected a closed candle on interval rollover")
	}
	if closed.Open != 50000 {
		t.Errorf("open = %v, want 50000", closed.Open)
	}
	if closed.High != 50500 {
		t.Errorf("high = %v, want 50500", closed.High)
	}
	if closed.Low != 49800 {
		t.Errorf("low = %v, want 49800", closed.Low)
	}
	if closed.Close != 49800 {
		t.Errorf("close = %v, want 49800", closed.Close)
	}
	if closed.Volume != 35 {
		t.Errorf("volume = %v, want 35", closed.Volume)
	}
	if closed.Ticks != 3 {
		t.Errorf("ticks = %d, want 3", closed.Ticks)
	}
	if !closed.Start.Equal(time.Unix(base, 0).UTC()) {
		t.Errorf("start = %v, want %v", closed.Start, time.Unix(base, 0).UTC())
	}
}

func TestAggregator_LateTickDropped(t *testing.T) {
	agg := NewAggregator("BTC/USDT", time.Minute, 100)
	dropped := 0
	agg.OnDroppedTick = func() { dropped++ }

	base := int64(1700000040)
	agg.Apply(tickAt(base, 50000, 1))
	agg.Apply(tickAt(base+60, 50100, 1)) // closes first, opens second

	// A tick from the already-closed interval must not rewind state.
	if _, ok := agg.Apply(tickAt(base+30, 40000, 99)); ok {
		t.Error("late tick must not close a candle")
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}

	open, _ := agg.OpenCandle()
	if open.Low == 40000 {
		t.Error("late tick leaked into the open candle")
	}
}

func TestAggregator_WindowBound(t *testing.T) {
	const bound = 5
	agg := NewAggregator("BTC/USDT", time.Minute, bound)

	base := int64(1700000040)
	for i := int64(0); i < 20; i++ {
		agg.Apply(tickAt(base+i*60, 100+float64(i), 1))
	}

	if n := agg.ClosedCount(); n != bound {
		t.Errorf("closed candles = %d, want %d (bound)", n, bound)
	}
	if _, ok := agg.OpenCandle(); !ok {
		t.Error("expected exactly one open candle")
	}

	// Window holds the most recent bars, oldest first.
	snap := agg.Snapshot()
	if len(snap) != bound {
		t.Fatalf("snapshot len = %d, want %d", len(snap), bound)
	}
	for i := 1; i < len(snap); i++ {
		if !snap[i].Start.After(snap[i-1].Start) {
			t.Errorf("snapshot not ordered at %d: %v !> %v", i, snap[i].Start, snap[i-1].Start)
		}
	}
	if snap[len(snap)-1].Open != 100+18 {
		t.Errorf("newest closed open = %v, want 118", snap[len(snap)-1].Open)
	}
}

func TestAggregator_SnapshotIsACopy(t *testing.T) {
	agg := NewAggregator("BTC/USDT", time.Minute, 10)
	base := int64(1700000040)
	agg.Apply(tickAt(base, 100, 1))
	agg.Apply(tickAt(base+60, 101, 1))

	snap := agg.Snapshot()
	snap[0].Close = -1

	if again := agg.Snapshot(); again[0].Close == -1 {
		t.Error("mutating a snapshot must not affect the live window")
	}
}

func TestAggregator_DeterministicReplay(t *testing.T) {
	run := func() []model.Candle {
		agg := NewAggregator("BTC/USDT", time.Minute, 100)
		base := int64(1700000040)
		prices := []float64{100, 102, 101, 99, 103, 98, 104, 100, 105, 97}
		for i, p := range prices {
			agg.Apply(tickAt(base+int64(i)*37, p, float64(i))) // uneven spacing across minutes
		}
		return agg.Snapshot()
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("replay lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("candle %d differs under replay: %+v vs %+v", i, a[i], b[i])
		}
	}
}
