// Package sqlite provides an embedded SQLite overlay store for single-node
// deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/fruitsalade/docarchive/internal/overlay"
	"github.com/fruitsalade/docarchive/internal/retry"
)

// Store wraps a SQLite database holding the file_metadata table.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS file_metadata (
			path        TEXT PRIMARY KEY,
			is_selected INTEGER,
			file_type   TEXT,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create file_metadata: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetAll returns every stored overlay row.
func (s *Store) GetAll(ctx context.Context) ([]overlay.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, is_selected, file_type FROM file_metadata ORDER BY path`)
	if err != nil {
		return nil, classify(fmt.Errorf("query file_metadata: %w", err))
	}
	defer rows.Close()

	var records []overlay.Record
	for rows.Next() {
		var (
			r        overlay.Record
			selected sql.NullBool
			fileType sql.NullString
		)
		if err := rows.Scan(&r.Path, &selected, &fileType); err != nil {
			return nil, fmt.Errorf("scan file_metadata: %w", err)
		}
		if selected.Valid {
			v := selected.Bool
			r.IsSelected = &v
		}
		if fileType.Valid {
			v := overlay.FileType(fileType.String)
			r.FileType = &v
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Save upserts the fields set in patch.
func (s *Store) Save(ctx context.Context, path string, patch overlay.Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	var (
		selected sql.NullBool
		fileType sql.NullString
	)
	if patch.Selected != nil {
		selected = sql.NullBool{Bool: *patch.Selected, Valid: true}
	}
	if patch.Type != nil {
		fileType = sql.NullString{String: string(*patch.Type), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_metadata (path, is_selected, file_type, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (path) DO UPDATE SET
			is_selected = COALESCE(excluded.is_selected, file_metadata.is_selected),
			file_type   = COALESCE(excluded.file_type, file_metadata.file_type),
			updated_at  = CURRENT_TIMESTAMP`,
		path, selected, fileType)
	if err != nil {
		return classify(fmt.Errorf("upsert file_metadata: %w", err))
	}
	return nil
}

// classify marks lock contention as retryable.
func classify(err error) error {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return retry.Retryable(err)
		}
	}
	return err
}
