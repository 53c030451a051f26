package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"stockwatch/internal/model"
	"stockwatch/internal/watchlist"
)

// SQLite persists quotes and alert events to a SQLite database.
type SQLite struct {
	db  *sql.DB
	log zerolog.Logger
	mu  sync.Mutex
}

// NewSQLite opens (or creates) the database and runs migrations.
func NewSQLite(dbPath string, log zerolog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so reads do not block the refresh loop's writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLite{db: db, log: log.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS quotes (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp      INTEGER NOT NULL,
			symbol         TEXT NOT NULL,
			price          REAL,
			open           REAL,
			high           REAL,
			low            REAL,
			previous_close REAL,
			volume         INTEGER,
			change         REAL,
			change_percent REAL,
			provider       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quotes_sym_ts ON quotes(symbol, timestamp)`,

		`CREATE TABLE IF NOT EXISTS alert_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			alert_id   TEXT NOT NULL,
			list_id    TEXT,
			symbol     TEXT NOT NULL,
			condition  TEXT,
			threshold  REAL,
			price      REAL,
			change_pct REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alert_events(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLite) RecordQuote(q *model.Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := q.Timestamp.Unix()
	if q.Timestamp.IsZero() {
		ts = time.Now().Unix()
	}
	_, err := r.db.Exec(`INSERT INTO quotes
		(timestamp, symbol, price, open, high, low, previous_close, volume,
		 change, change_percent, provider)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		ts, q.Symbol, q.CurrentPrice, q.OpenPrice, q.HighPrice, q.LowPrice,
		q.PreviousClose, q.Volume, q.DayChange, q.DayChangePercent, q.Provider,
	)
	return err
}

func (r *SQLite) RecordAlert(ev watchlist.AlertEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO alert_events
		(timestamp, alert_id, list_id, symbol, condition, threshold, price, change_pct)
		VALUES (?,?,?,?,?,?,?,?)`,
		ev.FiredAt.Unix(), ev.Alert.ID, ev.ListID, ev.Alert.Symbol,
		string(ev.Alert.Condition), ev.Alert.Threshold, ev.Price, ev.Change,
	)
	return err
}

func (r *SQLite) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
