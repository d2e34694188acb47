package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/docarchive/internal/analysis"
	"github.com/fruitsalade/docarchive/internal/archive"
	"github.com/fruitsalade/docarchive/internal/events"
	"github.com/fruitsalade/docarchive/internal/logging"
	"github.com/fruitsalade/docarchive/internal/metrics"
	"github.com/fruitsalade/docarchive/internal/overlay"
	"github.com/fruitsalade/docarchive/internal/preview"
	"github.com/fruitsalade/docarchive/internal/retry"
)

const maxPatchBody = 4 << 10

// ─── Manifest ───────────────────────────────────────────────────────────────

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	if s.manifest == nil {
		s.sendError(w, http.StatusNotFound, "manifest not configured")
		return
	}
	raw, loadedAt, ok := s.manifest.Raw()
	if !ok {
		if err := s.manifest.Reload(r.Context()); err != nil {
			logging.WithContext(r.Context()).Warn("manifest unavailable", zap.Error(err))
			s.sendError(w, http.StatusServiceUnavailable, "manifest unavailable")
			return
		}
		raw, loadedAt, _ = s.manifest.Raw()
	}
	w.Header().Set("Content-Type", "application/json")
	http.ServeContent(w, r, s.manifestKey, loadedAt, bytes.NewReader(raw))
}

// ─── Metadata ───────────────────────────────────────────────────────────────

func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.GetAll(r.Context())
	if err != nil {
		logging.WithContext(r.Context()).Error("metadata load failed", zap.Error(err))
		s.sendStoreError(w, err)
		return
	}
	if records == nil {
		records = []overlay.Record{}
	}
	s.sendJSON(w, http.StatusOK, records)
}

func (s *Server) handleSaveMetadata(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if !strings.HasPrefix(path, "/") {
		s.sendError(w, http.StatusBadRequest, "path must start with /")
		return
	}

	var patch overlay.Patch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPatchBody)).Decode(&patch); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := patch.Validate(); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.Save(r.Context(), path, patch); err != nil {
		metrics.RecordMetadataWrite(false)
		logging.WithContext(r.Context()).Error("metadata save failed",
			zap.String("path", path), zap.Error(err))
		s.sendStoreError(w, err)
		return
	}
	metrics.RecordMetadataWrite(true)

	s.publishEvent(events.Event{Type: events.EventToggle, Path: path})
	w.WriteHeader(http.StatusNoContent)
}

// sendStoreError maps transient store failures to 503 so clients retry.
func (s *Server) sendStoreError(w http.ResponseWriter, err error) {
	if retry.IsRetryable(err) {
		s.sendError(w, http.StatusServiceUnavailable, "metadata store unavailable")
		return
	}
	s.sendError(w, http.StatusInternalServerError, "metadata store error")
}

// ─── Analysis ───────────────────────────────────────────────────────────────

func (s *Server) handleListAnalysis(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.analysis.Links())
}

func (s *Server) handleOpenAnalysis(w http.ResponseWriter, r *http.Request) {
	target, err := s.analysis.Open(r.URL.Query().Get("path"))
	if errors.Is(err, analysis.ErrNoAnalysis) {
		s.sendError(w, http.StatusNotFound, "no analysis for path")
		return
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// ─── Archive view ───────────────────────────────────────────────────────────

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if s.manifest == nil {
		s.sendError(w, http.StatusNotFound, "manifest not configured")
		return
	}
	q := r.URL.Query()

	f := archive.DefaultFilter()
	f.Search = q.Get("search")
	if d := q.Get("directory"); d != "" {
		f.Directory = d
	}
	if t := q.Get("type"); t != "" {
		if err := archive.ValidateType(t); err != nil {
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Type = t
	}
	if h := q.Get("hide_completed"); h != "" {
		v, err := strconv.ParseBool(h)
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "invalid hide_completed")
			return
		}
		f.HideCompleted = v
	}
	if p := q.Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			s.sendError(w, http.StatusBadRequest, "invalid page")
			return
		}
		f.Page = n
	}

	// A manifest failure degrades to an empty view, like the browser does.
	entries, err := s.manifest.Load(r.Context())
	if err != nil {
		logging.WithContext(r.Context()).Warn("manifest unavailable, serving empty view", zap.Error(err))
	}

	ov := overlay.New()
	if records, err := s.store.GetAll(r.Context()); err != nil {
		logging.WithContext(r.Context()).Warn("metadata unavailable, using defaults", zap.Error(err))
	} else {
		ov.Hydrate(records)
	}

	view := archive.Compute(entries, ov, s.analysis, f)
	metrics.RecordViewComputation()
	s.sendJSON(w, http.StatusOK, view)
}

// ─── Preview ────────────────────────────────────────────────────────────────

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		s.sendError(w, http.StatusBadRequest, "path required")
		return
	}
	width := preview.DefaultWidth
	if v := q.Get("width"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.sendError(w, http.StatusBadRequest, "invalid width")
			return
		}
		width = min(n, preview.MaxWidth)
	}

	if s.previews != nil {
		if data, ok := s.previews.Get(path, width); ok {
			s.sendPNG(w, data, false)
			return
		}
	}

	start := time.Now()
	var (
		data        []byte
		placeholder bool
	)
	img, err := s.render(r, path, width)
	switch {
	case errors.Is(err, preview.ErrCancelled):
		metrics.RecordPreviewRender("cancelled", time.Since(start))
		return
	case err != nil:
		metrics.RecordPreviewRender("error", time.Since(start))
		logging.WithContext(r.Context()).Debug("preview failed",
			zap.String("path", path), zap.Error(err))
		img = preview.Placeholder(width)
		placeholder = true
	default:
		metrics.RecordPreviewRender("success", time.Since(start))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		s.sendError(w, http.StatusInternalServerError, "encode preview")
		return
	}
	data = buf.Bytes()
	if !placeholder && s.previews != nil {
		s.previews.Add(path, width, data)
	}
	s.sendPNG(w, data, placeholder)
}

func (s *Server) render(r *http.Request, path string, width int) (image.Image, error) {
	if s.loader == nil {
		return nil, errors.New("preview renderer not configured")
	}
	return preview.Render(r.Context(), s.loader, path, width)
}

func (s *Server) sendPNG(w http.ResponseWriter, data []byte, placeholder bool) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if placeholder {
		w.Header().Set("X-Preview-Placeholder", "true")
		w.Header().Set("Cache-Control", "no-store")
	} else {
		w.Header().Set("Cache-Control", "private, max-age=3600")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
