// Package api provides the HTTP server: the manifest, the metadata store
// front, analysis links, computed archive views and hover previews.
package api

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/docarchive/internal/analysis"
	"github.com/fruitsalade/docarchive/internal/auth"
	"github.com/fruitsalade/docarchive/internal/events"
	"github.com/fruitsalade/docarchive/internal/logging"
	"github.com/fruitsalade/docarchive/internal/metrics"
	"github.com/fruitsalade/docarchive/internal/overlay"
	"github.com/fruitsalade/docarchive/internal/preview"
)

// Deps bundles the server's collaborators. Analysis, Loader, Previews,
// Verifier and Events may be nil.
type Deps struct {
	Manifest    *ManifestCache
	ManifestKey string
	Store       overlay.Store
	Analysis    *analysis.Set
	Loader      preview.Loader
	Previews    *preview.Cache
	Verifier    auth.Verifier
	Events      *events.Broadcaster
	PublicRoot  string
}

// Server is the HTTP server.
type Server struct {
	manifest    *ManifestCache
	manifestKey string
	store       overlay.Store
	analysis    *analysis.Set
	loader      preview.Loader
	previews    *preview.Cache
	verifier    auth.Verifier
	broadcaster *events.Broadcaster
	publicRoot  string
}

// NewServer creates a new server.
func NewServer(d Deps) *Server {
	s := &Server{
		manifest:    d.Manifest,
		manifestKey: strings.TrimPrefix(d.ManifestKey, "/"),
		store:       d.Store,
		analysis:    d.Analysis,
		loader:      d.Loader,
		previews:    d.Previews,
		verifier:    d.Verifier,
		broadcaster: d.Events,
		publicRoot:  d.PublicRoot,
	}
	if s.manifestKey == "" {
		s.manifestKey = "pdf-index.json"
	}
	if s.analysis == nil {
		s.analysis = analysis.NewSet(nil)
	}
	if s.manifest != nil {
		// A rebuilt index may point at rewritten PDFs.
		s.manifest.OnReload(func(n int) {
			if s.previews != nil {
				s.previews.Purge()
			}
			s.publishEvent(events.Event{Type: events.EventLoaded, Count: n})
		})
	}
	return s
}

// Handler returns the HTTP handler with logging, metrics and auth middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /"+s.manifestKey, s.handleManifest)

	if s.publicRoot != "" {
		if info, err := os.Stat(s.publicRoot); err == nil && info.IsDir() {
			mux.Handle("/", http.FileServer(http.Dir(s.publicRoot)))
		} else {
			logging.Warn("public root not served", zap.String("path", s.publicRoot))
		}
	}

	// Protected endpoints
	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/metadata", s.handleGetMetadata)
	protected.HandleFunc("PUT /api/metadata", s.handleSaveMetadata)
	protected.HandleFunc("GET /api/analysis", s.handleListAnalysis)
	protected.HandleFunc("GET /api/analysis/open", s.handleOpenAnalysis)
	protected.HandleFunc("GET /api/archive", s.handleArchive)
	protected.HandleFunc("GET /api/preview", s.handlePreview)
	protected.HandleFunc("GET /api/events", s.handleEvents)

	mux.Handle("/api/", auth.Middleware(s.verifier)(protected))

	return logging.Middleware(metrics.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.manifest != nil {
		if _, _, ok := s.manifest.Raw(); !ok {
			status = "degraded"
		}
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": status})
}

// ─── SSE Events ─────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		s.sendError(w, http.StatusNotFound, "events not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var types []string
	if v := r.URL.Query().Get("types"); v != "" {
		types = strings.Split(v, ",")
	}
	sub := s.broadcaster.Subscribe(types...)
	defer s.broadcaster.Unsubscribe(sub)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if err := event.WriteSSE(w); err != nil {
				logging.WithContext(ctx).Debug("event stream closed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) publishEvent(e events.Event) {
	if s.broadcaster != nil {
		s.broadcaster.Publish(e)
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	s.sendJSON(w, code, map[string]interface{}{
		"error": message,
		"code":  code,
	})
}
