// Archive indexer
//
// Walks ARCHIVE_ROOT, collects every PDF and publishes the manifest
// (MANIFEST_KEY) through the configured storage backend. Takes no flags.
// Exits 1 without writing anything when the archive root is missing or the
// walk fails.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/docarchive/internal/config"
	"github.com/fruitsalade/docarchive/internal/logging"
	"github.com/fruitsalade/docarchive/internal/manifest"
	"github.com/fruitsalade/docarchive/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadIndexer()
	if err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		return 1
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		os.Stderr.WriteString("logging init error: " + err.Error() + "\n")
		return 1
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	builder := &manifest.Builder{
		ArchiveRoot: cfg.ArchiveRoot,
		PublicRoot:  cfg.PublicRoot,
	}
	entries, err := builder.Build(ctx)
	if err != nil {
		if errors.Is(err, manifest.ErrRootNotFound) {
			logging.Error("archive root does not exist", zap.String("root", cfg.ArchiveRoot))
		} else {
			logging.Error("index build failed", zap.Error(err))
		}
		return 1
	}

	backend, err := storage.NewBackendFromConfig(ctx, cfg.Storage, cfg.PublicRoot)
	if err != nil {
		logging.Error("storage backend init failed", zap.Error(err))
		return 1
	}
	defer backend.Close()

	if err := manifest.Publish(ctx, backend, cfg.ManifestKey, entries); err != nil {
		logging.Error("manifest write failed", zap.Error(err))
		return 1
	}

	logging.Info("manifest generated",
		zap.Int("files", len(entries)),
		zap.String("backend", backend.Type()),
		zap.String("key", cfg.ManifestKey),
		zap.Duration("duration", time.Since(start)))
	return 0
}
