package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/is42day/binance-trading-agent-sub000/internal/strategy"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	keepSnapshots     = 10
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/agent.db"

	// OnCommit, if set, receives the duration of every committed batch.
	OnCommit func(n int, took time.Duration)
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db       *sql.DB
	onCommit func(n int, took time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db, onCommit: cfg.OnCommit}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS performance_records (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			strategy     TEXT    NOT NULL,
			symbol       TEXT    NOT NULL,
			signal       TEXT    NOT NULL,
			confidence   REAL    NOT NULL,
			price        REAL,
			candle_count INTEGER,
			indicators   TEXT,
			ts           INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_perf_strategy ON performance_records(strategy, ts);
		CREATE INDEX IF NOT EXISTS idx_perf_symbol ON performance_records(symbol, ts);

		CREATE TABLE IF NOT EXISTS strategy_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	return err
}

// Run reads performance records from recCh and inserts them in batched
// transactions. Flushes every batchSize records OR every flushDelay,
// whichever first. Blocks until ctx is cancelled or recCh is closed.
func (w *Writer) Run(ctx context.Context, recCh <-chan strategy.PerformanceRecord) {
	batch := make([]strategy.PerformanceRecord, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else if w.onCommit != nil {
			w.onCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case rec, ok := <-recCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch inserts a batch of records in a single transaction.
func (w *Writer) insertBatch(recs []strategy.PerformanceRecord) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO performance_records (strategy, symbol, signal, confidence, price, candle_count, indicators, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		ind, err := json.Marshal(r.Indicators)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal indicators: %w", err)
		}
		_, err = stmt.Exec(r.Strategy, r.Symbol, r.Signal.String(), r.Confidence, r.Price,
			r.CandleCount, string(ind), r.Timestamp.UnixMilli())
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// SaveSnapshot stores an exported strategy registry. Only the latest few
// snapshots are kept.
func (w *Writer) SaveSnapshot(data []byte) error {
	_, err := w.db.Exec(`INSERT INTO strategy_snapshots (data, created_at) VALUES (?, ?)`,
		string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	_, err = w.db.Exec(`DELETE FROM strategy_snapshots WHERE id NOT IN (SELECT id FROM strategy_snapshots ORDER BY id DESC LIMIT ?)`, keepSnapshots)
	if err != nil {
		log.Printf("[sqlite] prune snapshots warning: %v", err)
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
