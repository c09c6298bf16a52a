// Package execution provides the paper trading executor and the SQLite
// audit journal. No real orders leave this process.
package execution

import (
	"context"
	"log"

	"github.com/gamboaalejandro/trading-bot/internal/model"
	"github.com/gamboaalejandro/trading-bot/internal/portfolio"
	"github.com/gamboaalejandro/trading-bot/internal/risk"
)

// Exit kinds recorded on closed trades.
const (
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
)

// Paper simulates execution against the live tick stream: approved intents
// fill instantly at their entry price, and open positions close when a tick
// crosses their stop or target. Realized P&L flows back into the risk
// manager's daily accounting.
type Paper struct {
	book    *risk.Manager
	journal *Journal

	// OnClose is called after a position exits (optional).
	OnClose func(symbol, exitKind string, pnl float64)
}

// NewPaper creates a paper executor over the risk manager's book.
// journal may be nil to skip the audit trail.
func NewPaper(book *risk.Manager, journal *Journal) *Paper {
	return &Paper{book: book, journal: journal}
}

// Fill confirms an approved intent as an open position. Paper fills are
// instant and slippage-free at the intent's entry price.
func (p *Paper) Fill(intent *model.PositionIntent) {
	p.book.MarkOpen(intent.Symbol)
	log.Printf("[paper] filled %s %s qty=%.6f @ %.4f stop=%.4f target=%.4f",
		intent.Side, intent.Symbol, intent.Quantity, intent.Entry, intent.StopLoss, intent.TakeProfit)
}

// OnTick checks the symbol's open position against the trade price and
// closes it when the stop or target is crossed. The stop wins when one
// tick gaps through both levels.
func (p *Paper) OnTick(tick model.Tick) {
	pos, ok := p.book.Position(tick.Symbol)
	if !ok || pos.Status != portfolio.StatusOpen {
		return
	}

	exitPrice, exitKind := 0.0, ""
	switch pos.Side {
	case model.Buy:
		if tick.Last <= pos.StopLoss {
			exitPrice, exitKind = pos.StopLoss, ExitStopLoss
		} else if pos.TakeProfit > 0 && tick.Last >= pos.TakeProfit {
			exitPrice, exitKind = pos.TakeProfit, ExitTakeProfit
		}
	case model.Sell:
		if tick.Last >= pos.StopLoss {
			exitPrice, exitKind = pos.StopLoss, ExitStopLoss
		} else if pos.TakeProfit > 0 && tick.Last <= pos.TakeProfit {
			exitPrice, exitKind = pos.TakeProfit, ExitTakeProfit
		}
	}
	if exitKind == "" {
		return
	}

	pnl := (exitPrice - pos.Entry) * pos.Quantity
	if pos.Side == model.Sell {
		pnl = -pnl
	}
	p.book.MarkClosed(pos.Symbol, pnl)
	log.Printf("[paper] closed %s via %s @ %.4f pnl=%.2f", pos.Symbol, exitKind, exitPrice, pnl)

	if p.journal != nil {
		if err := p.journal.RecordTrade(pos, exitPrice, pnl, exitKind); err != nil {
			log.Printf("[paper] journal write failed: %v", err)
		}
	}
	if p.OnClose != nil {
		p.OnClose(pos.Symbol, exitKind, pnl)
	}
}

// Run consumes ticks until ctx is cancelled or the channel closes.
func (p *Paper) Run(ctx context.Context, tickCh <-chan model.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-tickCh:
			if !ok {
				return
			}
			p.OnTick(tick)
		}
	}
}
