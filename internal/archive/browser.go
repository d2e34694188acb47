package archive

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/docarchive/internal/analysis"
	"github.com/fruitsalade/docarchive/internal/events"
	"github.com/fruitsalade/docarchive/internal/logging"
	"github.com/fruitsalade/docarchive/internal/manifest"
	"github.com/fruitsalade/docarchive/internal/metrics"
	"github.com/fruitsalade/docarchive/internal/overlay"
)

// Saver persists overlay patches without blocking the caller.
type Saver interface {
	Save(path string, patch overlay.Patch)
}

// Browser holds one session's archive state. Mutations apply locally and
// synchronously; persistence goes through the Saver in the background.
// All methods are safe for concurrent use.
type Browser struct {
	linkage analysis.Linkage
	saver   Saver
	bus     *events.Broadcaster

	mu      sync.Mutex
	entries []manifest.FileEntry
	loading bool
	overlay *overlay.Overlay
	filter  Filter
}

// Options configures a Browser. Every field is optional.
type Options struct {
	Linkage analysis.Linkage
	Saver   Saver
	Events  *events.Broadcaster
}

// NewBrowser creates a Browser in the loading state.
func NewBrowser(opts Options) *Browser {
	return &Browser{
		linkage: opts.Linkage,
		saver:   opts.Saver,
		bus:     opts.Events,
		loading: true,
		overlay: overlay.New(),
		filter:  DefaultFilter(),
	}
}

// Load fetches the manifest and the stored overlay concurrently. It returns
// immediately; the channel closes once both loads have finished. Either
// load may finish first. A nil store skips the overlay load.
func (b *Browser) Load(ctx context.Context, src manifest.Source, store overlay.Store) <-chan struct{} {
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.LoadEntries(ctx, src)
	}()

	if store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.LoadMetadata(ctx, store)
		}()
	}

	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// LoadEntries loads the manifest once. On failure the browser settles into
// an empty, non-loading state; the error is logged, not returned.
func (b *Browser) LoadEntries(ctx context.Context, src manifest.Source) {
	entries, err := src.Load(ctx)
	metrics.RecordManifestLoad(len(entries), err == nil)
	if err != nil {
		logging.Error("manifest load failed, no documents available", zap.Error(err))
		entries = nil
	}

	b.mu.Lock()
	b.entries = entries
	b.loading = false
	b.mu.Unlock()

	logging.Info("manifest loaded", zap.Int("entries", len(entries)))
	b.publish(events.Event{Type: events.EventLoaded, Count: len(entries)})
}

// LoadMetadata hydrates the overlay from store. On failure defaults stay in
// effect. Paths toggled before the load completes keep their local value.
func (b *Browser) LoadMetadata(ctx context.Context, store overlay.Store) {
	records, err := store.GetAll(ctx)
	if err != nil {
		logging.Warn("metadata load failed, using defaults", zap.Error(err))
		return
	}

	b.mu.Lock()
	b.overlay.Hydrate(records)
	b.mu.Unlock()

	logging.Debug("metadata loaded", zap.Int("records", len(records)))
	b.publish(events.Event{Type: events.EventMetadata, Count: len(records)})
}

// Loading reports whether the manifest load is still pending.
func (b *Browser) Loading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loading
}

// Filter returns the current filter state.
func (b *Browser) Filter() Filter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filter
}

// Metadata returns the effective metadata for path.
func (b *Browser) Metadata(path string) overlay.Metadata {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overlay.Effective(path)
}

// View computes the current derived view.
func (b *Browser) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()

	v := Compute(b.entries, b.overlay, b.linkage, b.filter)
	v.Loading = b.loading
	metrics.RecordViewComputation()
	return v
}

// SetSearchTerm sets the name search. A changed term returns to page 1.
func (b *Browser) SetSearchTerm(term string) {
	b.updateFilter(events.EventFilter, func(f *Filter) {
		if f.Search != term {
			f.Search = term
			f.Page = 1
		}
	})
}

// SetDirectoryFilter sets the directory filter ("all" or an exact directory).
// A changed directory returns to page 1.
func (b *Browser) SetDirectoryFilter(dir string) {
	if dir == "" {
		dir = All
	}
	b.updateFilter(events.EventFilter, func(f *Filter) {
		if f.Directory != dir {
			f.Directory = dir
			f.Page = 1
		}
	})
}

// SetTypeFilter sets the type filter. A changed type returns to page 1.
func (b *Browser) SetTypeFilter(t string) error {
	if err := ValidateType(t); err != nil {
		return err
	}
	b.updateFilter(events.EventFilter, func(f *Filter) {
		if f.Type != t {
			f.Type = t
			f.Page = 1
		}
	})
	return nil
}

// SetHideCompleted toggles hiding of analysed files. The page is kept.
func (b *Browser) SetHideCompleted(hide bool) {
	b.updateFilter(events.EventFilter, func(f *Filter) {
		f.HideCompleted = hide
	})
}

// SetPage moves to page n. Values below 1 select page 1.
func (b *Browser) SetPage(n int) {
	if n < 1 {
		n = 1
	}
	b.updateFilter(events.EventPage, func(f *Filter) {
		f.Page = n
	})
}

func (b *Browser) updateFilter(eventType string, fn func(*Filter)) {
	b.mu.Lock()
	fn(&b.filter)
	page := b.filter.Page
	b.mu.Unlock()

	b.publish(events.Event{Type: eventType, Page: page})
}

// ToggleSelection flips the selection flag for path and persists it in the
// background. The local change stands even if the write fails.
func (b *Browser) ToggleSelection(path string) overlay.Metadata {
	b.mu.Lock()
	m := b.overlay.ToggleSelected(path)
	b.mu.Unlock()

	b.persist(path, overlay.SelectedPatch(m.IsSelected))
	return m
}

// ToggleType flips the effective type for path between doc and image and
// persists it in the background.
func (b *Browser) ToggleType(path string) overlay.Metadata {
	b.mu.Lock()
	m := b.overlay.ToggleType(path)
	b.mu.Unlock()

	b.persist(path, overlay.TypePatch(m.FileType))
	return m
}

func (b *Browser) persist(path string, patch overlay.Patch) {
	if b.saver != nil {
		b.saver.Save(path, patch)
	}
	b.publish(events.Event{Type: events.EventToggle, Path: path})
}

// HasAnalysis reports whether path has an analysis.
func (b *Browser) HasAnalysis(path string) bool {
	return b.linkage != nil && b.linkage.Has(path)
}

// OpenAnalysis returns the analysis target for path.
func (b *Browser) OpenAnalysis(path string) (string, error) {
	if b.linkage == nil {
		return "", analysis.ErrNoAnalysis
	}
	return b.linkage.Open(path)
}

func (b *Browser) publish(e events.Event) {
	if b.bus != nil {
		b.bus.Publish(e)
	}
}
