package overlay

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fruitsalade/docarchive/internal/metrics"
)

// MemoryStore is a process-local Store. Used when no external backend is
// configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// GetAll returns every stored record sorted by path.
func (s *MemoryStore) GetAll(context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Save merges patch into the record for path.
func (s *MemoryStore) Save(_ context.Context, path string, patch Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.records[path]
	r.Path = path
	if patch.Selected != nil {
		v := *patch.Selected
		r.IsSelected = &v
	}
	if patch.Type != nil {
		v := *patch.Type
		r.FileType = &v
	}
	s.records[path] = r
	return nil
}

// instrumented wraps a Store with operation timing.
type instrumented struct {
	Store
	backend string
}

// Instrument records store operation durations under the given backend label.
func Instrument(store Store, backend string) Store {
	return &instrumented{Store: store, backend: backend}
}

func (s *instrumented) GetAll(ctx context.Context) ([]Record, error) {
	start := time.Now()
	defer func() { metrics.RecordMetadataStoreOp(s.backend, "get_all", time.Since(start)) }()
	return s.Store.GetAll(ctx)
}

func (s *instrumented) Save(ctx context.Context, path string, patch Patch) error {
	start := time.Now()
	defer func() { metrics.RecordMetadataStoreOp(s.backend, "save", time.Since(start)) }()
	return s.Store.Save(ctx, path, patch)
}
