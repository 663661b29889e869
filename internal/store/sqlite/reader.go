package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"volatility-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to the journal for session restore and
// reporting.
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

// RecentRecommendations returns up to limit journaled recommendations,
// newest first.
func (r *Reader) RecentRecommendations(limit int) ([]model.Recommendation, error) {
	rows, err := r.db.Query(`
		SELECT symbol, strategy, barrier, strength, over_pct, under_pct, most_digit, current_digit, reason, created_at
		FROM recommendations
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query recommendations: %w", err)
	}
	defer rows.Close()

	var recs []model.Recommendation
	for rows.Next() {
		var rec model.Recommendation
		var strategy string
		var createdAt int64
		if err := rows.Scan(&rec.Symbol, &strategy, &rec.Barrier, &rec.Strength,
			&rec.OverPct, &rec.UnderPct, &rec.MostFrequentDigit, &rec.CurrentDigit,
			&rec.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite scan recommendation: %w", err)
		}
		rec.Strategy = model.Strategy(strategy)
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SessionPnL sums settlement profit and win/loss counts since the given time.
func (r *Reader) SessionPnL(since time.Time) (profit float64, wins, losses int, err error) {
	err = r.db.QueryRow(`
		SELECT COALESCE(SUM(profit), 0),
		       COALESCE(SUM(won), 0),
		       COALESCE(SUM(1 - won), 0)
		FROM settlements
		WHERE settled_at >= ?
	`, since.Unix()).Scan(&profit, &wins, &losses)
	if err != nil {
		err = fmt.Errorf("sqlite session pnl: %w", err)
	}
	return profit, wins, losses, err
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
