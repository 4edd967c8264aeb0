// Package store persists registry snapshots in SQLite between runs.
//
// Records are stored in their fixed-width export encoding, one row each, so
// a snapshot written by one build loads in any other that shares the
// record layout.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"airwatch.klederson.com/internal/registry"
)

const (
	dirPermissions    = 0750
	filePermissions   = 0600
	msPerSecond       = 1000
	connectionTimeout = 5 * time.Second
)

// ErrCorrupt is returned when stored records do not match the expected
// layout for their kind.
var ErrCorrupt = errors.New("store: corrupt snapshot")

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	kind        TEXT PRIMARY KEY,
	record_size INTEGER NOT NULL,
	count       INTEGER NOT NULL,
	saved_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshot_records (
	kind   TEXT NOT NULL,
	seq    INTEGER NOT NULL,
	record BLOB NOT NULL,
	PRIMARY KEY (kind, seq)
);`

// Persister is what the sensor needs from a snapshot store.
type Persister interface {
	SaveSnapshot(ctx context.Context, kind registry.Kind, records [][]byte) error
	LoadSnapshot(ctx context.Context, kind registry.Kind) ([][]byte, error)
}

// SQLite is a Persister backed by a single SQLite file.
type SQLite struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string, busyTimeout int) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		path, busyTimeout*msPerSecond)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	_ = os.Chmod(path, filePermissions)

	return &SQLite{db: db, path: path, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

// SaveSnapshot replaces the stored snapshot of kind in one transaction.
func (s *SQLite) SaveSnapshot(ctx context.Context, kind registry.Kind, records [][]byte) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save %s: %w", kind, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM snapshot_records WHERE kind = ?`, kind.String()); err != nil {
		return fmt.Errorf("clear %s: %w", kind, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_records (kind, seq, record) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		if len(rec) != kind.RecordSize() {
			err = fmt.Errorf("%w: %s record %d is %d bytes", ErrCorrupt, kind, i, len(rec))
			return err
		}
		if _, err = stmt.ExecContext(ctx, kind.String(), i, rec); err != nil {
			return fmt.Errorf("insert %s record %d: %w", kind, i, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (kind, record_size, count, saved_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET record_size = excluded.record_size,
			count = excluded.count, saved_at = excluded.saved_at`,
		kind.String(), kind.RecordSize(), len(records), s.now().Unix())
	if err != nil {
		return fmt.Errorf("update %s header: %w", kind, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", kind, err)
	}
	return nil
}

// LoadSnapshot returns the stored records of kind in save order. A kind
// that was never saved yields no records and no error.
func (s *SQLite) LoadSnapshot(ctx context.Context, kind registry.Kind) ([][]byte, error) {
	var size, count int
	err := s.db.QueryRowContext(ctx,
		`SELECT record_size, count FROM snapshots WHERE kind = ?`, kind.String()).Scan(&size, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s header: %w", kind, err)
	}
	if size != kind.RecordSize() {
		return nil, fmt.Errorf("%w: %s stored with record size %d, want %d", ErrCorrupt, kind, size, kind.RecordSize())
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM snapshot_records WHERE kind = ? ORDER BY seq`, kind.String())
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", kind, err)
	}
	defer rows.Close()

	out := make([][]byte, 0, count)
	for rows.Next() {
		var rec []byte
		if err := rows.Scan(&rec); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", kind, err)
	}
	if len(out) != count {
		return nil, fmt.Errorf("%w: %s has %d records, header says %d", ErrCorrupt, kind, len(out), count)
	}
	return out, nil
}

// SavedAt reports when kind was last saved. ok is false if it never was.
func (s *SQLite) SavedAt(ctx context.Context, kind registry.Kind) (at time.Time, ok bool, err error) {
	var sec int64
	err = s.db.QueryRowContext(ctx, `SELECT saved_at FROM snapshots WHERE kind = ?`, kind.String()).Scan(&sec)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("saved_at %s: %w", kind, err)
	}
	return time.Unix(sec, 0), true, nil
}

// SaveAll writes a snapshot of every registry in set.
func SaveAll(ctx context.Context, p Persister, set *registry.Set) error {
	for _, k := range registry.Kinds {
		recs, err := set.Get(k).Encode()
		if err != nil {
			return fmt.Errorf("encode %s: %w", k, err)
		}
		if err := p.SaveSnapshot(ctx, k, recs); err != nil {
			return err
		}
	}
	return nil
}

// LoadAll restores every registry in set. On any failure all registries
// are reset to empty and the error is returned.
func LoadAll(ctx context.Context, p Persister, set *registry.Set) error {
	for _, k := range registry.Kinds {
		recs, err := p.LoadSnapshot(ctx, k)
		if err == nil {
			err = set.Get(k).Load(recs)
		}
		if err != nil {
			set.Clear()
			return fmt.Errorf("load %s: %w", k, err)
		}
	}
	return nil
}
