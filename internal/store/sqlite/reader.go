// Package sqlite persists daily OHLCV bars. The reader side serves history
// queries; the writer side belongs to the sync worker. The (symbol, date)
// primary key and the ORDER BY on every read guarantee the ordering and
// uniqueness the query engine relies on.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"cloud.google.com/go/civil"
	_ "github.com/mattn/go-sqlite3"

	"stock-historyv1/internal/model"
)

// Reader provides read-only access to the bar store.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// FetchBars returns the bars for a symbol within [start, end], both bounds
// inclusive, ordered by ascending date. An unknown symbol or an empty range
// yields a nil slice and no error.
func (r *Reader) FetchBars(ctx context.Context, symbol string, start, end civil.Date) ([]model.Bar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, date, open, high, low, close, volume
		FROM bars_daily
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, symbol, start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars_daily: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var dateStr string
		var volume sql.NullInt64
		if err := rows.Scan(&b.Symbol, &dateStr, &b.Open, &b.High, &b.Low, &b.Close, &volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars_daily: %w", err)
		}
		d, err := civil.ParseDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("sqlite parse date %q: %w", dateStr, err)
		}
		b.Date = d
		if volume.Valid {
			v := volume.Int64
			b.Volume = &v
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
