package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/is42day/binance-trading-agent-sub000/internal/strategy"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for history queries and
// registry restore.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// HistoryQuery filters ReadHistory. Empty fields match everything.
type HistoryQuery struct {
	Strategy string
	Symbol   string
	Since    time.Time
	Limit    int // default 100
}

// ReadHistory returns the most recent matching performance records,
// ordered by timestamp ascending.
func (r *Reader) ReadHistory(q HistoryQuery) ([]strategy.PerformanceRecord, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	var since int64
	if !q.Since.IsZero() {
		since = q.Since.UnixMilli()
	}

	rows, err := r.db.Query(`
		SELECT strategy, symbol, signal, confidence, price, candle_count, indicators, ts
		FROM performance_records
		WHERE (? = '' OR strategy = ?) AND (? = '' OR symbol = ?) AND ts >= ?
		ORDER BY id DESC
		LIMIT ?
	`, q.Strategy, q.Strategy, q.Symbol, q.Symbol, since, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query performance_records: %w", err)
	}
	defer rows.Close()

	var recs []strategy.PerformanceRecord
	for rows.Next() {
		var (
			rec        strategy.PerformanceRecord
			signal     string
			indicators sql.NullString
			tsMillis   int64
		)
		if err := rows.Scan(&rec.Strategy, &rec.Symbol, &signal, &rec.Confidence, &rec.Price,
			&rec.CandleCount, &indicators, &tsMillis); err != nil {
			return nil, fmt.Errorf("sqlite scan performance_records: %w", err)
		}
		if rec.Signal, err = strategy.ParseSignalType(signal); err != nil {
			return nil, err
		}
		if indicators.Valid && indicators.String != "" && indicators.String != "null" {
			if err := json.Unmarshal([]byte(indicators.String), &rec.Indicators); err != nil {
				return nil, fmt.Errorf("unmarshal indicators: %w", err)
			}
		}
		rec.Timestamp = time.UnixMilli(tsMillis).UTC()
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// newest-first from the query; callers get chronological order
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// ReadLatestSnapshot loads the most recent strategy registry snapshot.
// It returns nil, nil when none has been saved.
func (r *Reader) ReadLatestSnapshot() ([]byte, error) {
	var data string
	err := r.db.QueryRow(`
		SELECT data FROM strategy_snapshots
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // no snapshot
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}
	return []byte(data), nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
