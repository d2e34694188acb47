package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fruitsalade/docarchive/internal/logging"
	"github.com/fruitsalade/docarchive/internal/manifest"
	"github.com/fruitsalade/docarchive/internal/metrics"
	"github.com/fruitsalade/docarchive/internal/storage"
)

// ManifestCache keeps the published manifest in memory, both as raw bytes
// for serving and decoded for computing views.
type ManifestCache struct {
	backend storage.Backend
	key     string

	mu       sync.RWMutex
	raw      []byte
	entries  []manifest.FileEntry
	loadedAt time.Time
	// onReload is called after each successful reload.
	onReload func(entries int)
}

// NewManifestCache creates a cache over key in backend. Call Reload to
// populate it.
func NewManifestCache(backend storage.Backend, key string) *ManifestCache {
	return &ManifestCache{backend: backend, key: key}
}

// Reload reads and decodes the manifest. On failure the previous contents
// are kept.
func (c *ManifestCache) Reload(ctx context.Context) error {
	rc, _, err := c.backend.GetObject(ctx, c.key)
	if err != nil {
		metrics.RecordManifestLoad(0, false)
		return fmt.Errorf("get manifest %s: %w", c.key, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		metrics.RecordManifestLoad(0, false)
		return fmt.Errorf("read manifest: %w", err)
	}
	entries, err := manifest.Decode(bytes.NewReader(raw))
	if err != nil {
		metrics.RecordManifestLoad(0, false)
		return err
	}

	c.mu.Lock()
	c.raw = raw
	c.entries = entries
	c.loadedAt = time.Now()
	cb := c.onReload
	c.mu.Unlock()

	metrics.RecordManifestLoad(len(entries), true)
	logging.Info("manifest cached", zap.String("key", c.key), zap.Int("entries", len(entries)))
	if cb != nil {
		cb(len(entries))
	}
	return nil
}

// Load returns the cached entries, loading them on first use. It satisfies
// manifest.Source.
func (c *ManifestCache) Load(ctx context.Context) ([]manifest.FileEntry, error) {
	c.mu.RLock()
	loaded := c.raw != nil
	entries := c.entries
	c.mu.RUnlock()
	if loaded {
		return entries, nil
	}

	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries, nil
}

// Raw returns the cached manifest bytes and when they were loaded.
func (c *ManifestCache) Raw() ([]byte, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.raw, c.loadedAt, c.raw != nil
}

// OnReload registers a callback run after each successful reload.
func (c *ManifestCache) OnReload(fn func(entries int)) {
	c.mu.Lock()
	c.onReload = fn
	c.mu.Unlock()
}

// Watch reloads the manifest whenever its file is rewritten. It only works
// for backends that expose local paths and returns immediately otherwise.
// The watcher stops when ctx is done.
func (c *ManifestCache) Watch(ctx context.Context) error {
	loc, ok := c.backend.(storage.Locator)
	if !ok {
		logging.Debug("manifest watch skipped, backend has no local paths",
			zap.String("backend", c.backend.Type()))
		return nil
	}
	target := filepath.Clean(loc.FullPath(c.key))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	// Watch the directory: atomic publishes replace the file by rename.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch manifest dir: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				if err := c.Reload(ctx); err != nil {
					logging.Warn("manifest hot reload failed", zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn("manifest watcher error", zap.Error(err))
			}
		}
	}()

	logging.Info("watching manifest", zap.String("path", target))
	return nil
}
