package execution

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/gamboaalejandro/trading-bot/internal/model"
	"github.com/gamboaalejandro/trading-bot/internal/risk"
)

func approve(t *testing.T, book *risk.Manager, side model.Direction, stop, target float64) *model.PositionIntent {
	t.Helper()
	intent := &model.PositionIntent{
		Symbol:     "BTC/USDT",
		Side:       side,
		Quantity:   0.1,
		Notional:   5000,
		Entry:      50000,
		StopLoss:   stop,
		TakeProfit: target,
		RiskAmount: 200,
		Confidence: 0.8,
	}
	if rej := book.Approve(intent); rej != nil {
		t.Fatalf("approve: %v", rej)
	}
	return intent
}

func tick(last float64) model.Tick {
	return model.Tick{Symbol: "BTC/USDT", Timestamp: 1700000000000, Last: last}
}

func TestPaper_StopLossClosesLong(t *testing.T) {
	book := risk.NewManager(risk.Config{InitialCapital: 10000}, nil)
	journal, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer journal.Close()

	paper := NewPaper(book, journal)
	var closedKind string
	paper.OnClose = func(_, kind string, _ float64) { closedKind = kind }

	paper.Fill(approve(t, book, model.Buy, 48000, 56000))

	paper.OnTick(tick(49000)) // between stop and target
	if _, held := book.Position("BTC/USDT"); !held {
		t.Fatal("position closed without touching a level")
	}

	paper.OnTick(tick(47500)) // gaps through the stop, exit at the stop price
	if _, held := book.Position("BTC/USDT"); held {
		t.Fatal("position still open after stop")
	}
	if closedKind != ExitStopLoss {
		t.Errorf("exit kind = %q, want stop_loss", closedKind)
	}
	if got := book.DailyPnL(); math.Abs(got-(-200)) > 1e-9 {
		t.Errorf("daily pnl = %v, want -200", got)
	}

	trades, err := journal.RecentTrades(10)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("journal rows = %d, want 1", len(trades))
	}
	if trades[0].Exit != 48000 || trades[0].ExitKind != ExitStopLoss {
		t.Errorf("journal row = %+v", trades[0])
	}
}

func TestPaper_TakeProfitClosesShort(t *testing.T) {
	book := risk.NewManager(risk.Config{InitialCapital: 10000}, nil)
	paper := NewPaper(book, nil)

	paper.Fill(approve(t, book, model.Sell, 52000, 47000))
	paper.OnTick(tick(46900))

	if _, held := book.Position("BTC/USDT"); held {
		t.Fatal("short still open after target")
	}
	// Short from 50000 to 47000 on 0.1 units.
	if got := book.DailyPnL(); math.Abs(got-300) > 1e-9 {
		t.Errorf("daily pnl = %v, want 300", got)
	}
}

func TestPaper_PendingPositionsIgnoreTicks(t *testing.T) {
	book := risk.NewManager(risk.Config{InitialCapital: 10000}, nil)
	paper := NewPaper(book, nil)

	approve(t, book, model.Buy, 48000, 56000) // never filled
	paper.OnTick(tick(40000))

	if _, held := book.Position("BTC/USDT"); !held {
		t.Error("pending reservation must not be stopped out")
	}
}

func TestJournal_RecordsDecisions(t *testing.T) {
	journal, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer journal.Close()

	d := &model.Decision{
		Symbol: "ETH/USDT", Direction: model.Buy, Confidence: 0.7,
		Entry: 3000, StopLoss: 2900, TakeProfit: 3300,
		Signals: []model.Signal{{Strategy: "momentum", Direction: model.Buy, Confidence: 0.7}},
	}
	if err := journal.RecordDecision(d, "rejected", "max_exposure"); err != nil {
		t.Fatalf("record decision: %v", err)
	}
}
