// Archive server
//
// Features:
// - Serves the PDF manifest and the public archive tree
// - Metadata overlay store front (memory, PostgreSQL, SQLite, Redis)
// - Analysis links, computed archive views, hover previews
// - Optional bearer-token gate (HS256 JWT or OIDC)
// - Prometheus metrics & structured logging (zap)
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/docarchive/internal/analysis"
	"github.com/fruitsalade/docarchive/internal/api"
	"github.com/fruitsalade/docarchive/internal/auth"
	"github.com/fruitsalade/docarchive/internal/config"
	"github.com/fruitsalade/docarchive/internal/events"
	"github.com/fruitsalade/docarchive/internal/logging"
	"github.com/fruitsalade/docarchive/internal/metrics"
	"github.com/fruitsalade/docarchive/internal/overlay"
	"github.com/fruitsalade/docarchive/internal/overlay/postgres"
	"github.com/fruitsalade/docarchive/internal/overlay/redis"
	"github.com/fruitsalade/docarchive/internal/overlay/sqlite"
	"github.com/fruitsalade/docarchive/internal/preview"
	"github.com/fruitsalade/docarchive/internal/preview/poppler"
	"github.com/fruitsalade/docarchive/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("archive server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metadata overlay store
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logging.Fatal("metadata store init failed", zap.Error(err))
	}
	defer closeStore()
	logging.Info("metadata store ready", zap.String("backend", cfg.MetadataBackend))

	// Storage backend for the manifest and PDFs
	backend, err := storage.NewBackendFromConfig(ctx, cfg.Storage, cfg.PublicRoot)
	if err != nil {
		logging.Fatal("storage backend init failed", zap.Error(err))
	}
	defer backend.Close()

	manifestCache := api.NewManifestCache(backend, cfg.ManifestKey)
	if err := manifestCache.Reload(ctx); err != nil {
		logging.Warn("manifest not loaded at startup, serving empty archive", zap.Error(err))
	}
	if cfg.WatchManifest {
		if err := manifestCache.Watch(ctx); err != nil {
			logging.Error("manifest watch failed", zap.Error(err))
		}
	}

	// Analysis linkage
	links, err := analysis.LoadFile(cfg.AnalysisFile)
	if err != nil {
		logging.Fatal("analysis links load failed", zap.Error(err))
	}
	logging.Info("analysis links loaded", zap.Int("links", links.Len()))

	// Auth gate
	verifier, err := auth.NewVerifier(ctx, cfg.JWTSecret, cfg.OIDCIssuerURL, cfg.OIDCClientID)
	if err != nil {
		logging.Fatal("auth init failed", zap.Error(err))
	}
	if verifier == nil {
		logging.Warn("no JWT secret or OIDC issuer configured, API is open")
	}

	// Preview renderer
	loader := &poppler.Loader{
		Backend: backend,
		Command: cfg.PreviewRenderer,
		Timeout: cfg.PreviewTimeout,
	}
	if !loader.Available() {
		logging.Warn("preview renderer not found, previews will show placeholders",
			zap.String("command", cfg.PreviewRenderer))
	}
	previews, err := preview.NewCache(cfg.PreviewCacheSize)
	if err != nil {
		logging.Fatal("preview cache init failed", zap.Error(err))
	}

	broadcaster := events.NewBroadcaster()

	srv := api.NewServer(api.Deps{
		Manifest:    manifestCache,
		ManifestKey: cfg.ManifestKey,
		Store:       store,
		Analysis:    links,
		Loader:      loader,
		Previews:    previews,
		Verifier:    verifier,
		Events:      broadcaster,
		PublicRoot:  cfg.PublicRoot,
	})

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		httpServer.Shutdown(shutdownCtx)
		metricsServer.Close()
	}()

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("server error", zap.Error(err))
	}
	logging.Info("server stopped")
}

// openStore connects the configured metadata backend.
func openStore(ctx context.Context, cfg *config.Config) (overlay.Store, func(), error) {
	switch cfg.MetadataBackend {
	case "postgres":
		s, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return overlay.Instrument(s, "postgres"), func() { s.Close() }, nil

	case "sqlite":
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return overlay.Instrument(s, "sqlite"), func() { s.Close() }, nil

	case "redis":
		s, err := redis.New(redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return overlay.Instrument(s, "redis"), func() { s.Close() }, nil

	case "memory", "":
		logging.Warn("using in-memory metadata store, changes are lost on restart")
		return overlay.Instrument(overlay.NewMemoryStore(), "memory"), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown metadata backend %q", cfg.MetadataBackend)
	}
}
