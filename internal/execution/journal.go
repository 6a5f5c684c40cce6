package execution

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists trade fills to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		strategy    TEXT NOT NULL,
		side        TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		qty         REAL NOT NULL,
		price       REAL NOT NULL,
		slippage    REAL DEFAULT 0,
		reason      TEXT,
		filled_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_filled_at ON trades(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordFill persists a fill to the journal.
func (j *Journal) RecordFill(fill Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO trades (order_id, strategy, side, symbol, qty, price, slippage, reason, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fill.OrderID,
		fill.Order.Strategy,
		string(fill.Order.Side),
		fill.Order.Symbol,
		fill.FillQty,
		fill.FillPrice,
		fill.Slippage,
		fill.Order.Reason,
		fill.FilledAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// TradeRecord represents a row from the trades table.
type TradeRecord struct {
	ID       int64   `json:"id"`
	OrderID  string  `json:"order_id"`
	Strategy string  `json:"strategy"`
	Side     string  `json:"side"`
	Symbol   string  `json:"symbol"`
	Qty      float64 `json:"qty"`
	Price    float64 `json:"price"`
	Slippage float64 `json:"slippage"`
	Reason   string  `json:"reason"`
	FilledAt string  `json:"filled_at"`
}

// GetTrades returns the last N trades, newest first. An empty symbol
// matches every symbol.
func (j *Journal) GetTrades(symbol string, limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.Query(
		`SELECT id, order_id, strategy, side, symbol, qty, price, slippage, COALESCE(reason, ''), filled_at
		 FROM trades WHERE (? = '' OR symbol = ?) ORDER BY id DESC LIMIT ?`, symbol, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Strategy, &t.Side, &t.Symbol,
			&t.Qty, &t.Price, &t.Slippage, &t.Reason, &t.FilledAt); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
