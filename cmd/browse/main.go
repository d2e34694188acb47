// Terminal archive browser
//
// Loads the manifest, metadata overlay and analysis links from a running
// archive server and offers search, filtering, paging and toggles at a
// readline prompt. Toggles are written back in the background.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/docarchive/internal/analysis"
	"github.com/fruitsalade/docarchive/internal/archive"
	"github.com/fruitsalade/docarchive/internal/config"
	"github.com/fruitsalade/docarchive/internal/events"
	"github.com/fruitsalade/docarchive/internal/logging"
	"github.com/fruitsalade/docarchive/internal/manifest"
	"github.com/fruitsalade/docarchive/internal/overlay"
	"github.com/fruitsalade/docarchive/internal/overlay/httpstore"
	"github.com/fruitsalade/docarchive/internal/preview"
	"github.com/fruitsalade/docarchive/internal/preview/remote"
	"github.com/fruitsalade/docarchive/internal/retry"
)

func main() {
	cfg, err := config.LoadBrowse()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(2)
	}
	if err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: "stderr",
	}); err != nil {
		fmt.Fprintln(os.Stderr, "logging init error:", err)
		os.Exit(2)
	}
	defer logging.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	base := strings.TrimRight(cfg.ServerURL, "/")

	store := httpstore.New(httpstore.Config{BaseURL: base, AuthToken: cfg.AuthToken})
	writer := overlay.NewWriter(store, retry.DefaultConfig())

	links := analysis.NewClient(base, cfg.AuthToken, httpClient)
	if err := links.Refresh(ctx); err != nil {
		logging.Warn("analysis links unavailable", zap.Error(err))
	}

	bus := events.NewBroadcaster()
	browser := archive.NewBrowser(archive.Options{
		Linkage: links,
		Saver:   writer,
		Events:  bus,
	})

	repl := &REPL{browser: browser, out: os.Stdout}
	if err := repl.Open(cfg.HistoryFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer repl.Close()

	previewDir := cfg.PreviewDir
	if previewDir == "" {
		previewDir = filepath.Join(os.TempDir(), "docarchive-previews")
	}
	if err := os.MkdirAll(previewDir, 0755); err != nil {
		logging.Warn("previews disabled", zap.String("dir", previewDir), zap.Error(err))
	} else {
		sink := previewSink{dir: previewDir, out: repl.rl.Stdout()}
		repl.previewer = preview.NewPreviewer(remote.New(base, cfg.AuthToken, httpClient), cfg.PreviewWidth, sink.deliver)
	}

	loaded := bus.Subscribe(events.EventLoaded)
	go func() {
		for range loaded.C {
			repl.SetReady()
		}
	}()

	src := manifest.HTTPSource{Client: httpClient, URL: base + "/" + strings.TrimPrefix(cfg.ManifestKey, "/")}
	browser.Load(ctx, src, store)

	for {
		err := repl.REPL()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stdout, err.Error())
		}
	}

	bus.Unsubscribe(loaded)
	if repl.previewer != nil {
		repl.previewer.Dismiss()
	}
	cancel()
	writer.Flush()
}
