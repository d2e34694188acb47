// Package manifest builds, publishes and loads the archive manifest: a flat
// JSON array describing every PDF under the archive root.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fruitsalade/docarchive/internal/storage"
)

// RootDirectory is the directory value for files that sit directly under the
// archive root.
const RootDirectory = "root"

// ErrRootNotFound is returned by Build when the archive root does not exist.
var ErrRootNotFound = errors.New("archive root not found")

// FileEntry describes one PDF in the archive. Entries are immutable once built.
type FileEntry struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Directory string `json:"directory"`
	Size      int64  `json:"size"`
}

// Encode renders entries as the pretty-printed manifest document.
func Encode(entries []FileEntry) ([]byte, error) {
	if entries == nil {
		entries = []FileEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a manifest document.
func Decode(r io.Reader) ([]FileEntry, error) {
	var entries []FileEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if entries == nil {
		entries = []FileEntry{}
	}
	return entries, nil
}

// Publish serializes the full manifest and writes it to key in one
// replace-whole-object operation.
func Publish(ctx context.Context, backend storage.Backend, key string, entries []FileEntry) error {
	data, err := Encode(entries)
	if err != nil {
		return err
	}
	if err := backend.PutObject(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("publish manifest: %w", err)
	}
	return nil
}

// Source loads a manifest.
type Source interface {
	Load(ctx context.Context) ([]FileEntry, error)
}

// BackendSource reads the manifest object from a storage backend.
type BackendSource struct {
	Backend storage.Backend
	Key     string
}

// Load implements Source.
func (s BackendSource) Load(ctx context.Context) ([]FileEntry, error) {
	rc, _, err := s.Backend.GetObject(ctx, s.Key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Decode(rc)
}

// HTTPSource fetches the manifest with a plain GET.
type HTTPSource struct {
	Client *http.Client
	URL    string
}

// Load implements Source.
func (s HTTPSource) Load(ctx context.Context) ([]FileEntry, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build manifest request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch manifest: unexpected status %d", resp.StatusCode)
	}
	return Decode(resp.Body)
}

// Static is a Source over an in-memory entry list.
type Static []FileEntry

// Load implements Source.
func (s Static) Load(context.Context) ([]FileEntry, error) {
	return s, nil
}
