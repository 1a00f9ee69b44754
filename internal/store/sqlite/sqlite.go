// Package sqlite implements store.DocumentStore on a single SQLite file.
//
// Entries are rows keyed by (category, name) holding the source file's bytes.
// Mutations run inside one transaction begun on the first write; Save
// commits it and Close rolls back whatever was not saved. The database uses
// a rollback journal rather than WAL so the store remains a single file that
// can be snapshotted and restored byte for byte.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver" // registers the "sqlite3" database/sql driver
	_ "github.com/ncruces/go-sqlite3/embed"  // embeds the SQLite wasm build

	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/model"
	"github.com/klauern/blocksync/internal/store"
	"github.com/klauern/blocksync/internal/util"
)

const schemaVersion = "1"

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	category   TEXT NOT NULL,
	name       TEXT NOT NULL,
	content    BLOB NOT NULL,
	size       INTEGER NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	PRIMARY KEY (category, name)
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store implements store.DocumentStore using SQLite
type Store struct {
	db   *sql.DB
	tx   *sql.Tx
	path string

	// retry builds the policy used while the database is locked.
	retry  func() backoff.BackOff
	logger *slog.Logger
	now    func() time.Time
}

// Ensure Store implements DocumentStore
var _ store.DocumentStore = (*Store)(nil)

// New creates a closed SQLite store.
func New() *Store {
	return &Store{
		retry:  defaultRetry,
		logger: logging.Default(),
		now:    time.Now,
	}
}

func defaultRetry() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return b
}

// Create initializes an empty store file at path. It fails if the file exists.
func Create(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("store %q already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)`, schemaVersion); err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}
	return nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the staged transaction and reads on the same session.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA journal_mode = DELETE;
		PRAGMA busy_timeout = 5000;
		PRAGMA synchronous = FULL;
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	return db, nil
}

// Open opens an existing store file.
func (s *Store) Open(ctx context.Context, path string) error {
	if s.db != nil {
		return fmt.Errorf("store already open at %s", s.path)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", store.ErrStoreMissing, path)
		}
		return fmt.Errorf("failed to stat store: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return err
	}

	err = s.withRetry(ctx, "open", func() error {
		var version string
		return db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to read store %s: %w", path, err)
	}

	s.db = db
	s.path = path
	s.logger.Debug("store opened", logging.Path(path))
	return nil
}

func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	if s.db == nil {
		return nil, store.ErrNotOpen
	}
	if s.tx != nil {
		return s.tx, nil
	}
	var tx *sql.Tx
	err := s.withRetry(ctx, "begin", func() error {
		var err error
		tx, err = s.db.BeginTx(ctx, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return tx, nil
}

// querier returns the open transaction for reads when one exists so staged
// writes are visible.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) reader() (querier, error) {
	if s.db == nil {
		return nil, store.ErrNotOpen
	}
	if s.tx != nil {
		return s.tx, nil
	}
	return s.db, nil
}

// Add inserts or replaces an entry with the bytes of contentSource.
func (s *Store) Add(ctx context.Context, id model.Identity, contentSource string) error {
	// #nosec G304 - contentSource is a scanned entry file
	content, err := os.ReadFile(contentSource)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", contentSource, err)
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO entries (category, name, content, size, source, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.Category, id.Name, content, len(content), contentSource, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", id, err)
	}
	return nil
}

// Find reports whether an entry exists.
func (s *Store) Find(ctx context.Context, id model.Identity) (bool, error) {
	q, err := s.reader()
	if err != nil {
		return false, err
	}
	var one int
	err = q.QueryRowContext(ctx,
		`SELECT 1 FROM entries WHERE category = ? AND name = ?`, id.Category, id.Name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to find %s: %w", id, err)
	}
	return true, nil
}

// Remove deletes an entry.
func (s *Store) Remove(ctx context.Context, id model.Identity) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE category = ? AND name = ?`, id.Category, id.Name)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return nil
}

// Export writes an entry's content to outputPath.
func (s *Store) Export(ctx context.Context, id model.Identity, outputPath string) error {
	q, err := s.reader()
	if err != nil {
		return err
	}
	var content []byte
	err = q.QueryRowContext(ctx,
		`SELECT content FROM entries WHERE category = ? AND name = ?`, id.Category, id.Name).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", id, err)
	}
	// #nosec G306 - exported documents are meant to be shared
	if err := util.WriteFileAtomic(outputPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	return nil
}

// List returns entries under categoryPrefix, sorted by identity.
func (s *Store) List(ctx context.Context, categoryPrefix string) ([]store.Entry, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `SELECT category, name, size, source, updated_at FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []store.Entry
	for rows.Next() {
		var (
			e       store.Entry
			updated string
		)
		if err := rows.Scan(&e.Identity.Category, &e.Identity.Name, &e.Size, &e.Source, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if !store.MatchesCategory(e.Identity.Category, categoryPrefix) {
			continue
		}
		e.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Identity.Less(entries[j].Identity) })
	return entries, nil
}

// Save commits staged mutations. With nothing staged it is a no-op.
func (s *Store) Save(ctx context.Context) error {
	if s.db == nil {
		return store.ErrNotOpen
	}
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("failed to save store: %w", err)
	}
	s.logger.Debug("store saved", logging.Path(s.path))
	return nil
}

// Close rolls back unsaved mutations and closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the open store path.
func (s *Store) Path() string {
	return s.path
}

// withRetry retries op while SQLite reports the database as busy or locked.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if isBusy(err) {
			s.logger.Debug("store busy, retrying", logging.Operation(op), slog.Int("attempt", attempt))
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(s.retry(), ctx))
}

func isBusy(err error) bool {
	return errors.Is(err, sqlite3.BUSY) || errors.Is(err, sqlite3.LOCKED)
}
