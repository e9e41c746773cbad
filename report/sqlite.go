package report

import (
	"database/sql"
	"fmt"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
)

const createRuns = `
CREATE TABLE IF NOT EXISTS runs (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  suite       TEXT NOT NULL,
  kernel      TEXT NOT NULL,
  direction   TEXT NOT NULL,
  factor      TEXT NOT NULL,
  stride      TEXT NOT NULL,
  label       TEXT NOT NULL,
  follow_up   INTEGER NOT NULL,
  exit_code   INTEGER NOT NULL,
  timed_out   INTEGER NOT NULL,
  canceled    INTEGER NOT NULL,
  duration_ms INTEGER NOT NULL,
  peak_rss    INTEGER NOT NULL,
  succeeded   INTEGER NOT NULL,
  error       TEXT
);`

const insertRun = `
INSERT INTO runs (suite, kernel, direction, factor, stride, label, follow_up,
  exit_code, timed_out, canceled, duration_ms, peak_rss, succeeded, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteSink stores the results of a sweep in a SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens, and creates if needed, the database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open results db %s: %w", path, err)
	}

	if _, err := db.Exec(createRuns); err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs table in %s: %w", path, err)
	}

	return &SQLiteSink{db: db}, nil
}

// Save writes all results in one transaction.
func (s *SQLiteSink) Save(results []Result) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(insertRun)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range results {
		var errText sql.NullString
		if text := r.FailureText(); !r.Succeeded() && text != "" {
			errText = sql.NullString{String: text, Valid: true}
		}

		_, err := stmt.Exec(
			r.Kernel.Suite,
			r.Kernel.Name,
			r.Config.Direction,
			r.Config.Factor,
			r.Config.Stride,
			r.Label,
			r.FollowUp,
			r.Outcome.ExitCode,
			r.Outcome.TimedOut,
			r.Outcome.Canceled,
			r.Outcome.Duration.Milliseconds(),
			int64(r.Outcome.PeakRSS),
			r.Succeeded(),
			errText,
		)
		if err != nil {
			return fmt.Errorf("insert run %s %s: %w", r.Kernel.Name, r.Config, err)
		}
	}

	return tx.Commit()
}

// Close releases the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
