// Package analysis exposes the read-only set of archive files that have a
// downstream analysis artifact, and where that artifact lives.
package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

// ErrNoAnalysis is returned by Open for a path without an analysis.
var ErrNoAnalysis = errors.New("no analysis for path")

// Linkage answers which files have an analysis and opens it.
type Linkage interface {
	Has(path string) bool
	// Open returns the navigation target for the analysis of path.
	Open(path string) (string, error)
}

// Link pairs a manifest path with its analysis target.
type Link struct {
	Path   string `json:"path"`
	Target string `json:"target"`
}

// Set is an in-memory Linkage. The zero value is an empty set.
type Set struct {
	mu      sync.RWMutex
	targets map[string]string
}

// NewSet builds a Set from links. Later duplicates win.
func NewSet(links []Link) *Set {
	s := &Set{targets: make(map[string]string, len(links))}
	for _, l := range links {
		s.targets[l.Path] = l.Target
	}
	return s
}

// LoadFile reads a JSON array of links from path. An empty path yields an
// empty set.
func LoadFile(path string) (*Set, error) {
	if path == "" {
		return NewSet(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read analysis file: %w", err)
	}
	var links []Link
	if err := json.Unmarshal(data, &links); err != nil {
		return nil, fmt.Errorf("parse analysis file %s: %w", path, err)
	}
	return NewSet(links), nil
}

// Has reports whether path has an analysis.
func (s *Set) Has(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.targets[path]
	return ok
}

// Open returns the target for path or ErrNoAnalysis.
func (s *Set) Open(path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoAnalysis, path)
	}
	return t, nil
}

// Replace swaps the whole set.
func (s *Set) Replace(links []Link) {
	targets := make(map[string]string, len(links))
	for _, l := range links {
		targets[l.Path] = l.Target
	}
	s.mu.Lock()
	s.targets = targets
	s.mu.Unlock()
}

// Links returns every link sorted by path.
func (s *Set) Links() []Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Link, 0, len(s.targets))
	for p, t := range s.targets {
		out = append(out, Link{Path: p, Target: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Len returns the number of linked paths.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.targets)
}
