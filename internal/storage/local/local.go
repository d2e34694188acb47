// Package local keeps archive objects as plain files under one directory:
// the public root that holds the manifest next to the PDF tree.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidKey is returned for keys that are empty or would resolve outside
// the root directory.
var ErrInvalidKey = errors.New("invalid object key")

// Config holds local filesystem backend settings.
type Config struct {
	RootPath string
	// CreateDirs creates the root and any missing parent directories on
	// write.
	CreateDirs bool
}

// Backend implements storage.Backend on a directory tree.
type Backend struct {
	root       string
	createDirs bool
}

// New opens the directory at cfg.RootPath.
func New(cfg Config) (*Backend, error) {
	if cfg.RootPath == "" {
		return nil, errors.New("local backend: root path required")
	}

	info, err := os.Stat(cfg.RootPath)
	switch {
	case errors.Is(err, os.ErrNotExist) && cfg.CreateDirs:
		if err := os.MkdirAll(cfg.RootPath, 0755); err != nil {
			return nil, fmt.Errorf("local backend: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("local backend: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("local backend: %s is not a directory", cfg.RootPath)
	}

	return &Backend{root: cfg.RootPath, createDirs: cfg.CreateDirs}, nil
}

// FullPath maps a key to its file path without validating it. Callers
// passing untrusted keys go through GetObject or PutObject instead.
func (b *Backend) FullPath(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(strings.TrimPrefix(key, "/")))
}

// resolve accepts manifest paths ("/data/a.pdf") as well as bare keys.
func (b *Backend) resolve(key string) (string, error) {
	rel := filepath.FromSlash(strings.TrimPrefix(key, "/"))
	if rel == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(b.root, rel), nil
}

// GetObject opens the file for key. Directories count as missing.
func (b *Backend) GetObject(_ context.Context, key string) (io.ReadCloser, int64, error) {
	p, err := b.resolve(key)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("open %s: %w", key, os.ErrNotExist)
	}
	return f, info.Size(), nil
}

// PutObject replaces the file for key through a temp file and rename, so a
// reader sees either the old manifest or the new one.
func (b *Backend) PutObject(_ context.Context, key string, body io.Reader, _ int64) (err error) {
	p, err := b.resolve(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if b.createDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".docarchive-*.tmp")
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, body); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err = tmp.Chmod(0644); err != nil {
		return fmt.Errorf("chmod %s: %w", key, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", key, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err = os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// ObjectExists reports whether a regular file exists for key.
func (b *Backend) ObjectExists(_ context.Context, key string) (bool, error) {
	p, err := b.resolve(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return !info.IsDir(), nil
}

// Type returns "local".
func (b *Backend) Type() string { return "local" }

// Close is a no-op.
func (b *Backend) Close() error { return nil }
