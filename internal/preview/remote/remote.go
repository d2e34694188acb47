// Package remote loads previews from a docarchive server's /api/preview
// endpoint, so a client can run the hover previewer without a local renderer.
package remote

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/fruitsalade/docarchive/internal/preview"
)

const previewPath = "/api/preview"

// ErrPlaceholder is returned when the server could not render the page and
// sent its placeholder card instead.
var ErrPlaceholder = errors.New("server sent placeholder")

// Loader implements preview.Loader over HTTP.
type Loader struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// New creates a loader for the server at baseURL. A nil client gets a
// 30 second timeout.
func New(baseURL, authToken string, client *http.Client) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Loader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		httpClient: client,
	}
}

// Load returns a handle for path. Nothing is fetched until the page is
// rendered, since the server renders at the requested width.
func (l *Loader) Load(_ context.Context, path string) (preview.Document, error) {
	if path == "" {
		return nil, errors.New("empty path")
	}
	return &document{loader: l, path: path}, nil
}

type document struct {
	loader *Loader
	path   string
}

func (d *document) Page(_ context.Context, n int) (preview.Page, error) {
	if n != 1 {
		return nil, fmt.Errorf("page %d: server previews the first page only", n)
	}
	return d, nil
}

func (d *document) Close() error { return nil }

// Render fetches the server's preview of the first page at width.
func (d *document) Render(ctx context.Context, width int) (image.Image, error) {
	q := url.Values{}
	q.Set("path", d.path)
	q.Set("width", strconv.Itoa(width))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.loader.baseURL+previewPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/png")
	if d.loader.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.loader.authToken)
	}

	resp, err := d.loader.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("preview %s: server returned %d", d.path, resp.StatusCode)
	}
	if resp.Header.Get("X-Preview-Placeholder") == "true" {
		return nil, ErrPlaceholder
	}

	img, err := imaging.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode preview %s: %w", d.path, err)
	}
	return img, nil
}
