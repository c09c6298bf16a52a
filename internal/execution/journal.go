package execution

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gamboaalejandro/trading-bot/internal/model"
	"github.com/gamboaalejandro/trading-bot/internal/portfolio"
)

// Journal is a write-only audit trail in SQLite: every combined decision
// with its risk verdict, and every closed trade with its realized P&L.
// Nothing in the pipeline reads it back at runtime; state never recovers
// from it.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) the journal database in WAL mode.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS decisions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol      TEXT NOT NULL,
		direction   TEXT NOT NULL,
		confidence  REAL NOT NULL,
		entry       REAL NOT NULL,
		stop_loss   REAL NOT NULL,
		take_profit REAL NOT NULL,
		verdict     TEXT NOT NULL,
		reason      TEXT,
		signals     TEXT,
		decided_at  DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_symbol ON decisions(symbol);
	CREATE INDEX IF NOT EXISTS idx_decisions_verdict ON decisions(verdict);

	CREATE TABLE IF NOT EXISTS trades (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol     TEXT NOT NULL,
		side       TEXT NOT NULL,
		qty        REAL NOT NULL,
		entry      REAL NOT NULL,
		exit       REAL NOT NULL,
		pnl        REAL NOT NULL,
		exit_kind  TEXT NOT NULL,
		closed_at  DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	log.Printf("[journal] opened decision journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordDecision persists a combined decision and its risk verdict
// ("approved" or a rejection reason code).
func (j *Journal) RecordDecision(d *model.Decision, verdict, reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	signals, err := json.Marshal(d.Signals)
	if err != nil {
		return fmt.Errorf("journal marshal signals: %w", err)
	}
	_, err = j.db.Exec(
		`INSERT INTO decisions (symbol, direction, confidence, entry, stop_loss, take_profit, verdict, reason, signals, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Symbol,
		string(d.Direction),
		d.Confidence,
		d.Entry,
		d.StopLoss,
		d.TakeProfit,
		verdict,
		reason,
		string(signals),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// RecordTrade persists a closed position with its realized P&L.
// exitKind names what ended the trade: "stop_loss", "take_profit".
func (j *Journal) RecordTrade(pos portfolio.Position, exitPrice, pnl float64, exitKind string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO trades (symbol, side, qty, entry, exit, pnl, exit_kind, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pos.Symbol,
		string(pos.Side),
		pos.Quantity,
		pos.Entry,
		exitPrice,
		pnl,
		exitKind,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// TradeRecord is one row from the trades table.
type TradeRecord struct {
	ID       int64   `json:"id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Qty      float64 `json:"qty"`
	Entry    float64 `json:"entry"`
	Exit     float64 `json:"exit"`
	PnL      float64 `json:"pnl"`
	ExitKind string  `json:"exit_kind"`
	ClosedAt string  `json:"closed_at"`
}

// RecentTrades returns the last N closed trades, newest first. Offline
// analysis only.
func (j *Journal) RecentTrades(limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, symbol, side, qty, entry, exit, pnl, exit_kind, closed_at
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Side, &t.Qty, &t.Entry,
			&t.Exit, &t.PnL, &t.ExitKind, &t.ClosedAt); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
