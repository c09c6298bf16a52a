package bus

import (
	"context"
	"testing"
	"time"

	"github.com/gamboaalejandro/trading-bot/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := NewFanOut(10)
	out1 := fo.Subscribe()
	out2 := fo.Subscribe()

	input := make(chan model.Tick, 10)
	ctx, cancel := context.WithCancel(context.Background())
	go fo.Run(ctx, input)

	input <- model.Tick{Symbol: "BTC/USDT", Timestamp: 1700000000000, Last: 67000}
	time.Sleep(50 * time.Millisecond)

	select {
	case tk := <-out1:
		if tk.Symbol != "BTC/USDT" {
			t.Errorf("out1: expected BTC/USDT, got %s", tk.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("out1: timed out waiting for tick")
	}

	select {
	case tk := <-out2:
		if tk.Symbol != "BTC/USDT" {
			t.Errorf("out2: expected BTC/USDT, got %s", tk.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("out2: timed out waiting for tick")
	}

	cancel()
}

func TestFanOut_SlowConsumerDropsNotBlocks(t *testing.T) {
	fo := NewFanOut(1)
	drops := make(chan int, 10)
	fo.OnDrop = func(idx int) { drops <- idx }

	_ = fo.Subscribe() // never drained, capacity 1

	input := make(chan model.Tick, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	// First fills the buffer, second must be dropped for subscriber 0.
	input <- model.Tick{Symbol: "ETH/USDT", Last: 1}
	input <- model.Tick{Symbol: "ETH/USDT", Last: 2}

	select {
	case idx := <-drops:
		if idx != 0 {
			t.Errorf("expected drop for subscriber 0, got %d", idx)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for drop callback")
	}
}
