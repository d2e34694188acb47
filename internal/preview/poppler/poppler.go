// Package poppler renders archive PDFs with poppler's pdftoppm. Documents
// are staged from a storage backend into a temp file.
package poppler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fruitsalade/docarchive/internal/preview"
	"github.com/fruitsalade/docarchive/internal/storage"
)

const defaultCommand = "pdftoppm"

// Loader stages PDFs from Backend and renders them with Command.
type Loader struct {
	Backend storage.Backend
	// Command is the pdftoppm binary (default "pdftoppm").
	Command string
	// TempDir holds staged documents (default os.TempDir()).
	TempDir string
	// Timeout bounds a single pdftoppm run (default 20s).
	Timeout time.Duration
}

// Available reports whether the renderer binary is on PATH.
func (l *Loader) Available() bool {
	_, err := exec.LookPath(l.command())
	return err == nil
}

func (l *Loader) command() string {
	if l.Command == "" {
		return defaultCommand
	}
	return l.Command
}

// Load copies the object for path into a temp file.
func (l *Loader) Load(ctx context.Context, path string) (preview.Document, error) {
	key := strings.TrimPrefix(path, "/")
	if key == "" || !strings.HasSuffix(strings.ToLower(key), ".pdf") {
		return nil, fmt.Errorf("not a pdf: %q", path)
	}

	rc, _, err := l.Backend.GetObject(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer rc.Close()

	f, err := os.CreateTemp(l.TempDir, "docarchive-preview-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("stage %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, err
	}

	return &document{loader: l, file: f.Name()}, nil
}

type document struct {
	loader *Loader
	file   string
}

func (d *document) Page(_ context.Context, n int) (preview.Page, error) {
	if n < 1 {
		return nil, fmt.Errorf("invalid page %d", n)
	}
	return &page{doc: d, n: n}, nil
}

// Close removes the staged file.
func (d *document) Close() error {
	err := os.Remove(d.file)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

type page struct {
	doc *document
	n   int
}

// Render runs pdftoppm for this page, scaled to width, and decodes the PNG.
func (p *page) Render(ctx context.Context, width int) (image.Image, error) {
	timeout := p.doc.loader.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outDir, err := os.MkdirTemp(p.doc.loader.TempDir, "docarchive-render-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(outDir)
	root := filepath.Join(outDir, "page")

	n := strconv.Itoa(p.n)
	cmd := exec.CommandContext(ctx, p.doc.loader.command(),
		"-f", n, "-l", n,
		"-png", "-singlefile",
		"-scale-to-x", strconv.Itoa(width), "-scale-to-y", "-1",
		p.doc.file, root)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.New("pdftoppm timeout")
		}
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	f, err := os.Open(root + ".png")
	if err != nil {
		return nil, fmt.Errorf("open rendered page: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode rendered page: %w", err)
	}
	return img, nil
}
