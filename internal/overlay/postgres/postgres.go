// Package postgres provides a PostgreSQL-backed overlay store.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/fruitsalade/docarchive/internal/logging"
	"github.com/fruitsalade/docarchive/internal/overlay"
	"github.com/fruitsalade/docarchive/internal/retry"
)

const schema = `
CREATE TABLE IF NOT EXISTS file_metadata (
	path        TEXT PRIMARY KEY,
	is_selected BOOLEAN,
	file_type   TEXT CHECK (file_type IN ('doc', 'image')),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Store is a PostgreSQL overlay store.
type Store struct {
	db *sql.DB
}

// New opens a connection pool and verifies it.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the file_metadata table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create file_metadata: %w", err)
	}
	logging.Debug("postgres overlay schema ready")
	return nil
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

// Save upserts the fields set in patch, leaving the others untouched.
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
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (path) DO UPDATE SET
			is_selected = COALESCE(EXCLUDED.is_selected, file_metadata.is_selected),
			file_type   = COALESCE(EXCLUDED.file_type, file_metadata.file_type),
			updated_at  = NOW()`,
		path, selected, fileType)
	if err != nil {
		logging.Debug("postgres overlay save failed", zap.String("path", path), zap.Error(err))
		return classify(fmt.Errorf("upsert file_metadata: %w", err))
	}
	return nil
}

// classify marks connection-level and serialization failures as retryable.
func classify(err error) error {
	if errors.Is(err, driver.ErrBadConn) {
		return retry.Retryable(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return retry.Retryable(err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			return retry.Retryable(err)
		}
	}
	return err
}
