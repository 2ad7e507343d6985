package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	data        BLOB NOT NULL,
	updated_at  TEXT NOT NULL
);`

// SQLite stores runs in a single table. Compare-and-swap is a conditional
// UPDATE on the fingerprint column.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Writes serialise through one connection; sqlite would otherwise
	// answer concurrent writers with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func nowUTC() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func (s *SQLite) Save(ctx context.Context, runID, fingerprint string, data []byte) error {
	if err := validRunID(runID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, fingerprint, data, updated_at) VALUES(?, ?, ?, ?)
		 ON CONFLICT(run_id) DO NOTHING`,
		runID, fingerprint, data, nowUTC())
	if err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExists
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, runID string) (Record, error) {
	var (
		rec Record
		ts  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, fingerprint, data, updated_at FROM runs WHERE run_id = ?`, runID,
	).Scan(&rec.RunID, &rec.Fingerprint, &rec.Data, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}

func (s *SQLite) CompareAndSwap(ctx context.Context, runID, expected, fingerprint string, data []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET fingerprint = ?, data = ?, updated_at = ? WHERE run_id = ? AND fingerprint = ?`,
		fingerprint, data, nowUTC(), runID, expected)
	if err != nil {
		return fmt.Errorf("swap run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("swap run %s: %w", runID, err)
	}
	if n == 1 {
		return nil
	}
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE run_id = ?`, runID).Scan(&exists); err != nil {
		return fmt.Errorf("swap run %s: %w", runID, err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func (s *SQLite) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id FROM runs ORDER BY run_id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLite) Close() error { return s.db.Close() }
