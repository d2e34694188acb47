package manifest

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fruitsalade/docarchive/internal/storage/local"
)

func TestEncodeEmptyIsArray(t *testing.T) {
	data, err := Encode(nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("expected [], got %q", data)
	}
}

func TestEncodeIsPrettyPrinted(t *testing.T) {
	data, err := Encode([]FileEntry{{Name: "a.pdf", Path: "/a.pdf", Directory: RootDirectory, Size: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  {\n    \"name\": \"a.pdf\"") {
		t.Errorf("expected two-space indentation, got:\n%s", data)
	}
}

func TestPublishAndBackendSource(t *testing.T) {
	dir := t.TempDir()
	backend, err := local.New(local.Config{RootPath: dir, CreateDirs: true})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	in := []FileEntry{
		{Name: "a.pdf", Path: "/data/a.pdf", Directory: RootDirectory, Size: 10},
		{Name: "b.pdf", Path: "/data/x/b.pdf", Directory: "x", Size: 2048},
	}
	if err := Publish(ctx, backend, "pdf-index.json", in); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "pdf-index.json")); err != nil {
		t.Fatalf("manifest not written: %v", err)
	}

	out, err := BackendSource{Backend: backend, Key: "pdf-index.json"}.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 2 || out[1] != in[1] {
		t.Errorf("unexpected entries: %+v", out)
	}
}

func TestBackendSourceMissing(t *testing.T) {
	backend, _ := local.New(local.Config{RootPath: t.TempDir()})
	_, err := BackendSource{Backend: backend, Key: "pdf-index.json"}.Load(context.Background())
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pdf-index.json" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`[{"name":"a.pdf","path":"/a.pdf","directory":"root","size":1}]`))
	}))
	defer srv.Close()

	entries, err := HTTPSource{URL: srv.URL + "/pdf-index.json"}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 1 || entries[0].Directory != RootDirectory {
		t.Errorf("unexpected entries: %+v", entries)
	}

	if _, err := (HTTPSource{URL: srv.URL + "/missing.json"}).Load(context.Background()); err == nil {
		t.Error("expected error for 404")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode(strings.NewReader("{not json")); err == nil {
		t.Error("expected decode error")
	}
}
