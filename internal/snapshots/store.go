// Package snapshots persists normalized fact tables. Each snapshot is a
// write-once msgpack blob named by its id, indexed by a sqlite metadata table.
package snapshots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinodismyname/partnerlens/internal/facts"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

const (
	blobExt      = ".msgpack"
	metadataFile = "metadata.db"
)

var (
	// ErrNotFound is returned for unknown ids and for ids whose blob is gone.
	ErrNotFound = errors.New("snapshot not found")
	// ErrExists is returned when saving over an existing id.
	ErrExists = errors.New("snapshot already exists")
	// ErrInvalidID rejects ids that are empty or could escape the store directory.
	ErrInvalidID = errors.New("invalid snapshot id")
)

const schema = `CREATE TABLE IF NOT EXISTS snapshots (
	id             TEXT PRIMARY KEY,
	filename       TEXT NOT NULL,
	source         TEXT NOT NULL,
	processed_path TEXT NOT NULL,
	upload_date    TEXT NOT NULL,
	row_count      INTEGER NOT NULL DEFAULT 0
)`

// Meta describes one stored snapshot.
type Meta struct {
	ID            string `json:"fileId"`
	Filename      string `json:"filename"`
	Source        string `json:"source"`
	ProcessedPath string `json:"-"`
	UploadDate    string `json:"uploadDate"`
	Rows          int    `json:"rows"`
}

// Store is a directory of snapshot blobs plus their metadata database.
type Store struct {
	dir string
	db  *sql.DB
}

// Open prepares dir and its metadata database, creating both when absent.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, metadataFile)+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping metadata database: %w", err)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate metadata database: %w", err)
	}
	return &Store{dir: dir, db: db}, nil
}

// Close releases the metadata database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) blobPath(id string) string {
	return filepath.Join(s.dir, id+blobExt)
}

func checkID(id string) error {
	if id == "" || id != filepath.Base(id) || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return ErrInvalidID
	}
	return nil
}

// Save writes t under id and records meta. The blob is created exclusively;
// on any failure nothing is left behind.
func (s *Store) Save(ctx context.Context, id string, meta Meta, t *facts.Table) error {
	if err := checkID(id); err != nil {
		return err
	}
	payload, err := msgpack.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	path := s.blobPath(id)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("failed to create snapshot blob: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("failed to write snapshot blob: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to write snapshot blob: %w", err)
	}

	meta.ID, meta.ProcessedPath, meta.Rows = id, path, t.Len()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, filename, source, processed_path, upload_date, row_count) VALUES (?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.Filename, meta.Source, meta.ProcessedPath, meta.UploadDate, meta.Rows)
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to record snapshot metadata: %w", err)
	}
	return nil
}

// Get returns the metadata row for id.
func (s *Store) Get(ctx context.Context, id string) (Meta, error) {
	var m Meta
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, source, processed_path, upload_date, row_count FROM snapshots WHERE id = ?`, id,
	).Scan(&m.ID, &m.Filename, &m.Source, &m.ProcessedPath, &m.UploadDate, &m.Rows)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	if err != nil {
		return m, fmt.Errorf("failed to read snapshot metadata: %w", err)
	}
	return m, nil
}

// Load decodes the snapshot stored under id. A metadata row whose blob has
// disappeared is dropped and reported as ErrNotFound.
func (s *Store) Load(ctx context.Context, id string) (*facts.Table, error) {
	if err := checkID(id); err != nil {
		return nil, ErrNotFound
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	payload, err := os.ReadFile(m.ProcessedPath)
	if errors.Is(err, os.ErrNotExist) {
		_ = s.forget(ctx, id)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot blob: %w", err)
	}

	var t facts.Table
	if err := msgpack.Unmarshal(payload, &t); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	for i := range t.Records {
		t.Records[i].Date = t.Records[i].Date.UTC()
	}
	return &t, nil
}

// List returns every snapshot whose blob still exists, oldest first, and
// removes metadata rows whose blob is gone.
func (s *Store) List(ctx context.Context) ([]Meta, error) {
	present, _, err := s.sweep(ctx)
	return present, err
}

// Prune drops metadata rows whose blob is gone and reports how many.
func (s *Store) Prune(ctx context.Context) (int, error) {
	_, missing, err := s.sweep(ctx)
	return len(missing), err
}

func (s *Store) sweep(ctx context.Context) (present, missing []Meta, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, source, processed_path, upload_date, row_count FROM snapshots ORDER BY upload_date, id`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	var all []Meta
	for rows.Next() {
		var m Meta
		if err := rows.Scan(&m.ID, &m.Filename, &m.Source, &m.ProcessedPath, &m.UploadDate, &m.Rows); err != nil {
			_ = rows.Close()
			return nil, nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		all = append(all, m)
	}
	if err := rows.Close(); err != nil {
		return nil, nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	present = make([]Meta, 0, len(all))
	for _, m := range all {
		if _, statErr := os.Stat(m.ProcessedPath); errors.Is(statErr, os.ErrNotExist) {
			missing = append(missing, m)
			continue
		}
		present = append(present, m)
	}
	for _, m := range missing {
		if err := s.forget(ctx, m.ID); err != nil {
			return present, missing, err
		}
	}
	return present, missing, nil
}

// Delete removes the blob and metadata for id. Unknown ids are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := os.Remove(s.blobPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove snapshot blob: %w", err)
	}
	return s.forget(ctx, id)
}

func (s *Store) forget(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete snapshot metadata: %w", err)
	}
	return nil
}
