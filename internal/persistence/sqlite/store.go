// Package sqlite implements the local observation store used by the pulse CLI.
package sqlite

import (
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// currentSchemaVersion is the latest schema version.
const currentSchemaVersion = 1

// Entry is one locally recorded observation. Entries carry a synced flag so
// uploads can resume after partial pushes.
type Entry struct {
	ID         string
	RecordedAt time.Time
	Energy     int
	Focus      int
	Note       string
	ImageURL   string
	Synced     bool
	CreatedAt  time.Time
}

// Store wraps a SQLite database holding the local observation log.
type Store struct {
	db      *sql.DB
	entropy *rand.Rand
}

// Open opens or creates the database at the given path, creating the parent
// directory when missing. The schema is migrated on open.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// newID mints a ULID. IDs double as idempotency keys when entries are pushed
// to the service, so they must be unique per entry, not per content.
func (s *Store) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	version := 0
	row := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&version); err != nil {
		// No rows means version 0 (fresh database).
		version = 0
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
	}

	return nil
}

// migrateV1 creates the entries table and its indexes.
func (s *Store) migrateV1() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id          TEXT PRIMARY KEY,
			recorded_at TEXT NOT NULL,
			energy      INTEGER NOT NULL,
			focus       INTEGER NOT NULL,
			note        TEXT NOT NULL DEFAULT '',
			image_url   TEXT NOT NULL DEFAULT '',
			synced      INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_entries_recorded ON entries(recorded_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_synced ON entries(synced)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt[:40], err)
		}
	}

	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
		return err
	}

	return tx.Commit()
}

// Insert stores a new entry, assigning its ID and creation time. The stored
// entry is returned.
func (s *Store) Insert(entry Entry) (Entry, error) {
	entry.ID = s.newID()
	entry.CreatedAt = time.Now().UTC()
	entry.Synced = false

	_, err := s.db.Exec(
		`INSERT INTO entries (id, recorded_at, energy, focus, note, image_url, synced, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		entry.ID,
		entry.RecordedAt.UTC().Format(time.RFC3339Nano),
		entry.Energy,
		entry.Focus,
		entry.Note,
		entry.ImageURL,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	return entry, nil
}

// List returns entries newest-first. A non-positive limit returns everything.
func (s *Store) List(limit int) ([]Entry, error) {
	query := "SELECT id, recorded_at, energy, focus, note, image_url, synced, created_at FROM entries ORDER BY recorded_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Instants returns every recorded_at instant, unordered. This is the input
// the streak engine expects.
func (s *Store) Instants() ([]time.Time, error) {
	rows, err := s.db.Query("SELECT recorded_at FROM entries")
	if err != nil {
		return nil, fmt.Errorf("query instants: %w", err)
	}
	defer rows.Close()

	var instants []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at %q: %w", raw, err)
		}
		instants = append(instants, ts)
	}
	return instants, rows.Err()
}

// Unsynced returns entries not yet pushed to the service, oldest-first so
// uploads replay in recording order.
func (s *Store) Unsynced() ([]Entry, error) {
	rows, err := s.db.Query(
		"SELECT id, recorded_at, energy, focus, note, image_url, synced, created_at FROM entries WHERE synced = 0 ORDER BY recorded_at ASC")
	if err != nil {
		return nil, fmt.Errorf("list unsynced entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// MarkSynced flags an entry as pushed.
func (s *Store) MarkSynced(id string) error {
	if _, err := s.db.Exec("UPDATE entries SET synced = 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("mark entry synced: %w", err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			recordedAt string
			createdAt  string
			synced     int
		)
		if err := rows.Scan(&e.ID, &recordedAt, &e.Energy, &e.Focus, &e.Note, &e.ImageURL, &synced, &createdAt); err != nil {
			return nil, err
		}

		ts, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at %q: %w", recordedAt, err)
		}
		e.RecordedAt = ts

		if created, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = created
		}

		e.Synced = synced != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
