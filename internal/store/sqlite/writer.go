package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"volatility-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // e.g. "data/analysis.db"
}

// Writer is a single-goroutine SQLite journal of emitted recommendations
// and trade settlements, with transaction batching.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS recommendations (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol       TEXT    NOT NULL,
			strategy     TEXT    NOT NULL,
			barrier      TEXT    NOT NULL,
			strength     REAL    NOT NULL,
			over_pct     REAL,
			under_pct    REAL,
			most_digit   INTEGER,
			current_digit INTEGER,
			reason       TEXT,
			created_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_rec_symbol_ts ON recommendations (symbol, created_at);

		CREATE TABLE IF NOT EXISTS settlements (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			contract_id  INTEGER NOT NULL,
			symbol       TEXT    NOT NULL,
			strategy     TEXT    NOT NULL,
			barrier      TEXT    NOT NULL,
			stake        TEXT    NOT NULL,
			profit       REAL    NOT NULL,
			exit_digit   INTEGER,
			won          INTEGER NOT NULL,
			settled_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_settle_symbol_ts ON settlements (symbol, settled_at);
	`)
	return err
}

// Run reads recommendations from recCh and inserts them in batched
// transactions. Flushes every batchSize rows OR every flushDelay,
// whichever comes first. Blocks until ctx is cancelled or recCh is closed.
func (w *Writer) Run(ctx context.Context, recCh <-chan model.Recommendation) {
	batch := make([]model.Recommendation, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d recommendations in %v", len(batch), time.Since(start))
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

func (w *Writer) insertBatch(recs []model.Recommendation) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO recommendations (symbol, strategy, barrier, strength, over_pct, under_pct, most_digit, current_digit, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, rec := range recs {
		_, err := stmt.Exec(rec.Symbol, string(rec.Strategy), rec.Barrier, rec.Strength,
			rec.OverPct, rec.UnderPct, rec.MostFrequentDigit, rec.CurrentDigit,
			rec.Reason, rec.CreatedAt.Unix())
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// InsertSettlement journals one settled contract.
func (w *Writer) InsertSettlement(s model.Settlement) error {
	won := 0
	if s.Profit > 0 {
		won = 1
	}
	_, err := w.db.Exec(`
		INSERT INTO settlements (contract_id, symbol, strategy, barrier, stake, profit, exit_digit, won, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ContractID, s.Symbol, string(s.Strategy), s.Barrier, s.Stake, s.Profit, s.ExitDigit, won, s.SettledAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlite insert settlement: %w", err)
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
