package archive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fruitsalade/docarchive/internal/analysis"
	"github.com/fruitsalade/docarchive/internal/events"
	"github.com/fruitsalade/docarchive/internal/logging"
	"github.com/fruitsalade/docarchive/internal/manifest"
	"github.com/fruitsalade/docarchive/internal/overlay"
	"github.com/fruitsalade/docarchive/internal/retry"
)

func init() {
	logging.InitNop()
}

type recordingSaver struct {
	mu      sync.Mutex
	patches map[string][]overlay.Patch
}

func (s *recordingSaver) Save(path string, patch overlay.Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.patches == nil {
		s.patches = make(map[string][]overlay.Patch)
	}
	s.patches[path] = append(s.patches[path], patch)
}

func (s *recordingSaver) get(path string) []overlay.Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patches[path]
}

type failingSource struct{}

func (failingSource) Load(context.Context) ([]manifest.FileEntry, error) {
	return nil, errors.New("connection refused")
}

type failingStore struct{}

func (failingStore) GetAll(context.Context) ([]overlay.Record, error) {
	return nil, errors.New("store down")
}

func (failingStore) Save(context.Context, string, overlay.Patch) error {
	return errors.New("store down")
}

// gatedSource blocks Load until release is closed.
type gatedSource struct {
	entries []manifest.FileEntry
	release chan struct{}
}

func (s gatedSource) Load(ctx context.Context) ([]manifest.FileEntry, error) {
	select {
	case <-s.release:
		return s.entries, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("load did not finish")
	}
}

func loadedBrowser(t *testing.T, entries []manifest.FileEntry, opts Options) *Browser {
	t.Helper()
	b := NewBrowser(opts)
	waitDone(t, b.Load(context.Background(), manifest.Static(entries), nil))
	return b
}

func TestBrowserStartsLoading(t *testing.T) {
	b := NewBrowser(Options{})
	if !b.Loading() {
		t.Error("expected new browser to be loading")
	}
	v := b.View()
	if !v.Loading || len(v.Items) != 0 {
		t.Errorf("expected loading view with no items, got %+v", v)
	}
}

func TestBrowserManifestFailureSettlesEmpty(t *testing.T) {
	b := NewBrowser(Options{})
	waitDone(t, b.Load(context.Background(), failingSource{}, nil))

	v := b.View()
	if v.Loading {
		t.Error("expected loading to settle after manifest failure")
	}
	if len(v.Items) != 0 || v.TotalPages != 0 || len(v.DirectoryOptions) != 0 {
		t.Errorf("expected empty view, got %+v", v)
	}
}

func TestBrowserMetadataFailureUsesDefaults(t *testing.T) {
	entries := []manifest.FileEntry{entry("IMAGES/0001", "scan.pdf", 10)}
	b := NewBrowser(Options{})
	waitDone(t, b.Load(context.Background(), manifest.Static(entries), failingStore{}))

	v := b.View()
	if len(v.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(v.Items))
	}
	if v.Items[0].FileType != overlay.TypeImage {
		t.Errorf("expected image type, got %s", v.Items[0].FileType)
	}
	if v.Items[0].IsSelected {
		t.Error("expected item unselected")
	}
}

func TestBrowserMetadataMayArriveFirst(t *testing.T) {
	entries := []manifest.FileEntry{entry("VOL00001", "a.pdf", 10)}
	store := overlay.NewMemoryStore()
	if err := store.Save(context.Background(), entries[0].Path, overlay.SelectedPatch(true)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	bus := events.NewBroadcaster()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	src := gatedSource{entries: entries, release: make(chan struct{})}
	b := NewBrowser(Options{Events: bus})
	done := b.Load(context.Background(), src, store)

	select {
	case e := <-sub.C:
		if e.Type != events.EventMetadata {
			t.Fatalf("expected %s event, got %s", events.EventMetadata, e.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("metadata event not published")
	}
	if !b.Loading() {
		t.Error("expected browser still loading before manifest")
	}
	if !b.Metadata(entries[0].Path).IsSelected {
		t.Error("expected stored selection before manifest arrives")
	}

	close(src.release)
	waitDone(t, done)

	v := b.View()
	if len(v.Items) != 1 || !v.Items[0].IsSelected {
		t.Errorf("expected one selected item, got %+v", v.Items)
	}
}

func TestBrowserLocalToggleSurvivesLateHydrate(t *testing.T) {
	entries := []manifest.FileEntry{entry("VOL00001", "a.pdf", 10)}
	b := loadedBrowser(t, entries, Options{})

	b.ToggleSelection(entries[0].Path)

	store := overlay.NewMemoryStore()
	if err := store.Save(context.Background(), entries[0].Path, overlay.SelectedPatch(false)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	b.LoadMetadata(context.Background(), store)

	if !b.Metadata(entries[0].Path).IsSelected {
		t.Error("expected local toggle to win over late metadata")
	}
}

func TestFilterSettersResetPage(t *testing.T) {
	b := loadedBrowser(t, corpus(100), Options{})

	reset := []func(){
		func() { b.SetSearchTerm("EFTA") },
		func() { b.SetDirectoryFilter("VOL00001") },
		func() {
			if err := b.SetTypeFilter("doc"); err != nil {
				t.Fatalf("SetTypeFilter: %v", err)
			}
		},
	}
	for i, fn := range reset {
		b.SetPage(2)
		fn()
		if got := b.Filter().Page; got != 1 {
			t.Errorf("setter %d: expected page 1, got %d", i, got)
		}
	}

	b.SetDirectoryFilter(All)
	b.SetPage(2)
	b.SetHideCompleted(true)
	if got := b.Filter().Page; got != 2 {
		t.Errorf("expected hide toggle to keep page 2, got %d", got)
	}
	b.SetHideCompleted(false)
	if got := b.Filter().Page; got != 2 {
		t.Errorf("expected hide toggle to keep page 2, got %d", got)
	}
}

func TestFilterSettersKeepPageWhenUnchanged(t *testing.T) {
	b := loadedBrowser(t, corpus(100), Options{})
	b.SetSearchTerm("EFTA")
	b.SetDirectoryFilter("VOL00001")
	if err := b.SetTypeFilter("doc"); err != nil {
		t.Fatalf("SetTypeFilter: %v", err)
	}

	same := map[string]func(){
		"search":    func() { b.SetSearchTerm("EFTA") },
		"directory": func() { b.SetDirectoryFilter("VOL00001") },
		"type": func() {
			if err := b.SetTypeFilter("doc"); err != nil {
				t.Fatalf("SetTypeFilter: %v", err)
			}
		},
	}
	for name, fn := range same {
		b.SetPage(3)
		fn()
		if got := b.Filter().Page; got != 3 {
			t.Errorf("%s: expected page 3 kept, got %d", name, got)
		}
	}

	b.SetDirectoryFilter("")
	b.SetPage(3)
	b.SetDirectoryFilter(All)
	if got := b.Filter().Page; got != 3 {
		t.Errorf("expected empty and %q to be the same directory, got page %d", All, got)
	}
}

func TestSetTypeFilterRejectsUnknown(t *testing.T) {
	b := NewBrowser(Options{})
	b.SetPage(3)
	if err := b.SetTypeFilter("video"); err == nil {
		t.Error("expected error for unknown type")
	}
	f := b.Filter()
	if f.Page != 3 || f.Type != All {
		t.Errorf("expected filter untouched, got %+v", f)
	}
}

func TestSetPageClampsBelowOne(t *testing.T) {
	b := NewBrowser(Options{})
	b.SetPage(0)
	if got := b.Filter().Page; got != 1 {
		t.Errorf("expected page 1, got %d", got)
	}
}

func TestToggleSelectionTwiceRestores(t *testing.T) {
	saver := &recordingSaver{}
	entries := corpus(3)
	b := loadedBrowser(t, entries, Options{Saver: saver})
	p := entries[0].Path

	before := b.Metadata(p)
	if m := b.ToggleSelection(p); !m.IsSelected {
		t.Error("expected first toggle to select")
	}
	if m := b.ToggleSelection(p); m != before {
		t.Errorf("expected %+v after second toggle, got %+v", before, m)
	}
	if got := b.Metadata(p); got != before {
		t.Errorf("expected stored metadata %+v, got %+v", before, got)
	}

	patches := saver.get(p)
	if len(patches) != 2 {
		t.Fatalf("expected 2 patches, got %d", len(patches))
	}
	if !*patches[0].Selected || *patches[1].Selected {
		t.Errorf("expected true then false, got %v then %v", *patches[0].Selected, *patches[1].Selected)
	}
	if patches[0].Type != nil {
		t.Error("expected selection patch to leave type unset")
	}
}

func TestToggleTypeFlipsEffectiveType(t *testing.T) {
	saver := &recordingSaver{}
	entries := []manifest.FileEntry{entry("IMAGES/0001", "scan.pdf", 1)}
	b := loadedBrowser(t, entries, Options{Saver: saver})
	p := entries[0].Path

	if m := b.ToggleType(p); m.FileType != overlay.TypeDoc {
		t.Errorf("expected doc after toggle, got %s", m.FileType)
	}

	if err := b.SetTypeFilter("image"); err != nil {
		t.Fatal(err)
	}
	if n := len(b.View().Items); n != 0 {
		t.Errorf("expected no images, got %d", n)
	}
	if err := b.SetTypeFilter("doc"); err != nil {
		t.Fatal(err)
	}
	if n := len(b.View().Items); n != 1 {
		t.Errorf("expected 1 doc, got %d", n)
	}

	patches := saver.get(p)
	if len(patches) != 1 {
		t.Fatalf("expected 1 patch, got %d", len(patches))
	}
	if *patches[0].Type != overlay.TypeDoc {
		t.Errorf("expected doc patch, got %s", *patches[0].Type)
	}
}

func TestToggleSurvivesFailedWrite(t *testing.T) {
	w := overlay.NewWriter(failingStore{}, retry.Config{Attempts: 1})
	entries := corpus(1)
	b := loadedBrowser(t, entries, Options{Saver: w})

	b.ToggleSelection(entries[0].Path)
	w.Flush()

	if !b.Metadata(entries[0].Path).IsSelected {
		t.Error("expected selection to stand after failed write")
	}
}

func TestToggleWritesThroughWriter(t *testing.T) {
	store := overlay.NewMemoryStore()
	w := overlay.NewWriter(store, retry.DefaultConfig())
	entries := corpus(1)
	b := loadedBrowser(t, entries, Options{Saver: w})

	b.ToggleSelection(entries[0].Path)
	b.ToggleType(entries[0].Path)
	w.Flush()

	recs, err := store.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].IsSelected == nil || recs[0].FileType == nil {
		t.Errorf("expected both fields persisted, got %+v", recs[0])
	}
}

func TestAnalysisLinkage(t *testing.T) {
	entries := corpus(2)
	linkage := analysis.NewSet([]analysis.Link{{Path: entries[0].Path, Target: "/analysis/0"}})
	b := loadedBrowser(t, entries, Options{Linkage: linkage})

	if !b.HasAnalysis(entries[0].Path) {
		t.Error("expected analysis for first entry")
	}
	if b.HasAnalysis(entries[1].Path) {
		t.Error("expected no analysis for second entry")
	}

	target, err := b.OpenAnalysis(entries[0].Path)
	if err != nil {
		t.Fatalf("OpenAnalysis: %v", err)
	}
	if target != "/analysis/0" {
		t.Errorf("expected /analysis/0, got %s", target)
	}

	if _, err := NewBrowser(Options{}).OpenAnalysis(entries[0].Path); !errors.Is(err, analysis.ErrNoAnalysis) {
		t.Errorf("expected ErrNoAnalysis, got %v", err)
	}
}

func TestBrowserPublishesEvents(t *testing.T) {
	bus := events.NewBroadcaster()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	entries := corpus(2)
	b := loadedBrowser(t, entries, Options{Events: bus})
	b.SetSearchTerm("x")
	b.SetPage(2)
	b.ToggleSelection(entries[0].Path)

	var got []string
	for len(got) < 4 {
		select {
		case e := <-sub.C:
			got = append(got, e.Type)
		case <-time.After(time.Second):
			t.Fatalf("only received %v", got)
		}
	}
	want := []string{events.EventLoaded, events.EventFilter, events.EventPage, events.EventToggle}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}
