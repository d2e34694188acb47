// Package overlay holds the per-file user metadata layered over the
// immutable manifest: a selection flag and a doc/image classification.
//
// The overlay is sparse. A path without an entry resolves to defaults
// inferred from the path itself; stored entries override those defaults.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// FileType classifies a document.
type FileType string

const (
	TypeDoc   FileType = "doc"
	TypeImage FileType = "image"
)

// imagesSegment marks a directory whose files default to TypeImage.
const imagesSegment = "IMAGES"

// ErrInvalidType is returned when a file type string is not doc or image.
var ErrInvalidType = errors.New("invalid file type")

// ParseFileType validates s.
func ParseFileType(s string) (FileType, error) {
	switch FileType(s) {
	case TypeDoc, TypeImage:
		return FileType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

// Toggle flips doc and image.
func (t FileType) Toggle() FileType {
	if t == TypeImage {
		return TypeDoc
	}
	return TypeImage
}

// InferType returns the default type for a manifest path: image when any
// segment of its directory is IMAGES, doc otherwise.
func InferType(p string) FileType {
	for _, seg := range strings.Split(path.Dir(p), "/") {
		if seg == imagesSegment {
			return TypeImage
		}
	}
	return TypeDoc
}

// Metadata is the effective metadata for one file.
type Metadata struct {
	IsSelected bool     `json:"is_selected"`
	FileType   FileType `json:"file_type"`
}

// Defaults returns the metadata for a path with no stored entry.
func Defaults(p string) Metadata {
	return Metadata{FileType: InferType(p)}
}

// Apply returns m with the fields set in patch overwritten.
func (m Metadata) Apply(patch Patch) Metadata {
	if patch.Selected != nil {
		m.IsSelected = *patch.Selected
	}
	if patch.Type != nil {
		m.FileType = *patch.Type
	}
	return m
}

// Record is one stored overlay row. Absent fields fall back to defaults.
type Record struct {
	Path       string    `json:"path"`
	IsSelected *bool     `json:"is_selected,omitempty"`
	FileType   *FileType `json:"file_type,omitempty"`
}

// Patch is a partial update written to a Store.
type Patch struct {
	Selected *bool     `json:"selected,omitempty"`
	Type     *FileType `json:"type,omitempty"`
}

// SelectedPatch returns a patch that only sets the selection flag.
func SelectedPatch(selected bool) Patch {
	return Patch{Selected: &selected}
}

// TypePatch returns a patch that only sets the file type.
func TypePatch(t FileType) Patch {
	return Patch{Type: &t}
}

// Validate checks the patch carries at least one valid field.
func (p Patch) Validate() error {
	if p.Selected == nil && p.Type == nil {
		return errors.New("empty patch")
	}
	if p.Type != nil {
		if _, err := ParseFileType(string(*p.Type)); err != nil {
			return err
		}
	}
	return nil
}

// Store is the external key-value metadata store. Save is last-write-wins
// per path.
type Store interface {
	GetAll(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, path string, patch Patch) error
}

// Overlay is an in-memory path -> Metadata map with default resolution.
// It is not safe for concurrent use; callers serialize access.
type Overlay struct {
	entries map[string]Metadata
	// touched holds paths mutated locally, which hydration must not clobber.
	touched map[string]struct{}
}

// New returns an empty overlay.
func New() *Overlay {
	return &Overlay{
		entries: make(map[string]Metadata),
		touched: make(map[string]struct{}),
	}
}

// Hydrate merges stored records into the overlay. Paths already changed
// locally keep their local value, since that change is newer than anything
// the store returned.
func (o *Overlay) Hydrate(records []Record) {
	for _, r := range records {
		if _, ok := o.touched[r.Path]; ok {
			continue
		}
		m := Defaults(r.Path)
		if r.IsSelected != nil {
			m.IsSelected = *r.IsSelected
		}
		if r.FileType != nil {
			if t, err := ParseFileType(string(*r.FileType)); err == nil {
				m.FileType = t
			}
		}
		o.entries[r.Path] = m
	}
}

// Lookup returns the stored entry for path, if any.
func (o *Overlay) Lookup(p string) (Metadata, bool) {
	m, ok := o.entries[p]
	return m, ok
}

// Effective resolves path to its stored entry or its defaults.
func (o *Overlay) Effective(p string) Metadata {
	if m, ok := o.entries[p]; ok {
		return m
	}
	return Defaults(p)
}

// Set stores m for path as a local change.
func (o *Overlay) Set(p string, m Metadata) {
	o.entries[p] = m
	o.touched[p] = struct{}{}
}

// ToggleSelected flips the selection flag and returns the new metadata.
func (o *Overlay) ToggleSelected(p string) Metadata {
	m := o.Effective(p)
	m.IsSelected = !m.IsSelected
	o.Set(p, m)
	return m
}

// ToggleType flips the effective type and returns the new metadata.
func (o *Overlay) ToggleType(p string) Metadata {
	m := o.Effective(p)
	m.FileType = m.FileType.Toggle()
	o.Set(p, m)
	return m
}

// Len returns the number of stored entries.
func (o *Overlay) Len() int {
	return len(o.entries)
}
