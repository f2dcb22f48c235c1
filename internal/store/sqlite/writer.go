package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/civil"
	_ "github.com/mattn/go-sqlite3"

	"stock-historyv1/internal/model"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/bars.db"
}

// Writer is the ingestion side of the bar store, used by the sync worker.
// Single-writer with transaction batching.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// NewWriter opens the database with WAL mode and initializes the schema.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
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
		CREATE TABLE IF NOT EXISTS bars_daily (
			symbol TEXT NOT NULL,
			date   TEXT NOT NULL,
			open   REAL NOT NULL,
			high   REAL NOT NULL,
			low    REAL NOT NULL,
			close  REAL NOT NULL,
			volume INTEGER,
			PRIMARY KEY (symbol, date)
		);

		CREATE TABLE IF NOT EXISTS sync_runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol      TEXT    NOT NULL,
			bars        INTEGER NOT NULL,
			ran_at      INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// UpsertBars inserts a batch of bars in a single transaction, replacing any
// existing (symbol, date) rows so a re-sync is idempotent.
func (w *Writer) UpsertBars(bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	start := time.Now()
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars_daily (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		var volume sql.NullInt64
		if b.Volume != nil {
			volume = sql.NullInt64{Int64: *b.Volume, Valid: true}
		}
		if _, err := stmt.Exec(b.Symbol, b.Date.String(), b.Open, b.High, b.Low, b.Close, volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert bar %s: %w", b.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	log.Printf("[sqlite] committed %d bars in %v", len(bars), time.Since(start))
	return nil
}

// LastBarDate returns the most recent stored bar date for a symbol.
// ok is false if no bars exist.
func (w *Writer) LastBarDate(symbol string) (d civil.Date, ok bool, err error) {
	var dateStr sql.NullString
	err = w.db.QueryRow(
		`SELECT MAX(date) FROM bars_daily WHERE symbol = ?`,
		symbol,
	).Scan(&dateStr)
	if err != nil {
		return civil.Date{}, false, fmt.Errorf("sqlite last bar date: %w", err)
	}
	if !dateStr.Valid {
		return civil.Date{}, false, nil
	}
	d, err = civil.ParseDate(dateStr.String)
	if err != nil {
		return civil.Date{}, false, fmt.Errorf("sqlite parse date %q: %w", dateStr.String, err)
	}
	return d, true, nil
}

// RecordSyncRun journals one completed sync for a symbol.
func (w *Writer) RecordSyncRun(symbol string, bars int) error {
	_, err := w.db.Exec(`INSERT INTO sync_runs (symbol, bars) VALUES (?, ?)`, symbol, bars)
	if err != nil {
		return fmt.Errorf("sqlite insert sync_run: %w", err)
	}

	// Prune the journal — keep the last 500 runs
	_, err = w.db.Exec(`DELETE FROM sync_runs WHERE id NOT IN (SELECT id FROM sync_runs ORDER BY ran_at DESC LIMIT 500)`)
	if err != nil {
		log.Printf("[sqlite] prune sync_runs warning: %v", err)
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
