package httpstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fruitsalade/docarchive/internal/overlay"
	"github.com/fruitsalade/docarchive/internal/retry"
)

func TestGetAll(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/metadata" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"path":"/a.pdf","is_selected":true},{"path":"/IMAGES/b.pdf","file_type":"doc"}]`))
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL + "/", AuthToken: "tok"})
	recs, err := c.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].IsSelected == nil || !*recs[0].IsSelected {
		t.Error("expected /a.pdf selected")
	}
	if recs[1].FileType == nil || *recs[1].FileType != overlay.TypeDoc {
		t.Error("expected doc override on /IMAGES/b.pdf")
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("expected bearer token, got %q", gotAuth)
	}
}

func TestSave(t *testing.T) {
	var gotPath string
	var gotPatch overlay.Patch
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gotPath = r.URL.Query().Get("path")
		json.NewDecoder(r.Body).Decode(&gotPatch)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL})
	if err := c.Save(context.Background(), "/dir one/a&b.pdf", overlay.TypePatch(overlay.TypeImage)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if gotPath != "/dir one/a&b.pdf" {
		t.Errorf("path not escaped correctly: %q", gotPath)
	}
	if gotPatch.Type == nil || *gotPatch.Type != overlay.TypeImage || gotPatch.Selected != nil {
		t.Errorf("unexpected patch %+v", gotPatch)
	}
}

func TestStatusClassification(t *testing.T) {
	status := http.StatusServiceUnavailable
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{"error":"nope"}`))
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL})
	err := c.Save(context.Background(), "/a.pdf", overlay.SelectedPatch(true))
	if err == nil || !retry.IsRetryable(err) {
		t.Errorf("expected retryable error for 503, got %v", err)
	}

	status = http.StatusBadRequest
	err = c.Save(context.Background(), "/a.pdf", overlay.SelectedPatch(true))
	if err == nil || retry.IsRetryable(err) {
		t.Errorf("expected permanent error for 400, got %v", err)
	}
}

func TestSaveRejectsEmptyPatch(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	if err := c.Save(context.Background(), "/a.pdf", overlay.Patch{}); err == nil {
		t.Error("expected validation error")
	}
}
