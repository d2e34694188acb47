// Package archive is the in-memory archive browser: the loaded manifest, the
// metadata overlay, and the filter/search/pagination state, with a derived
// view recomputed from them on demand.
package archive

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fruitsalade/docarchive/internal/analysis"
	"github.com/fruitsalade/docarchive/internal/manifest"
	"github.com/fruitsalade/docarchive/internal/overlay"
)

// PageSize is the fixed number of items per page.
const PageSize = 24

// All is the filter value that matches every directory or type.
const All = "all"

// Filter is the user-controlled part of the browser state.
type Filter struct {
	Search        string `json:"search"`
	Directory     string `json:"directory"`
	Type          string `json:"type"`
	HideCompleted bool   `json:"hide_completed"`
	Page          int    `json:"page"`
}

// DefaultFilter matches everything and shows the first page.
func DefaultFilter() Filter {
	return Filter{Directory: All, Type: All, Page: 1}
}

// ValidateType checks t is "all", "doc" or "image".
func ValidateType(t string) error {
	if t == All {
		return nil
	}
	_, err := overlay.ParseFileType(t)
	return err
}

// Resolver returns the effective metadata for a path.
type Resolver interface {
	Effective(path string) overlay.Metadata
}

// Item is one row of a page.
type Item struct {
	manifest.FileEntry
	IsSelected  bool             `json:"is_selected"`
	FileType    overlay.FileType `json:"file_type"`
	HasAnalysis bool             `json:"has_analysis"`
	SizeLabel   string           `json:"size_label"`
}

// View is the derived state shown to the user.
type View struct {
	Loading          bool     `json:"loading"`
	Page             int      `json:"page"`
	TotalPages       int      `json:"total_pages"`
	TotalVisible     int      `json:"total_visible"`
	Items            []Item   `json:"items"`
	DirectoryOptions []string `json:"directory_options"`

	// Visible is the full filtered list, in manifest order.
	Visible []manifest.FileEntry `json:"-"`
}

// Compute derives the view for entries under f. It does not modify its
// inputs. A nil resolver uses inferred defaults; a nil linkage links nothing.
func Compute(entries []manifest.FileEntry, resolver Resolver, linkage analysis.Linkage, f Filter) View {
	effective := func(p string) overlay.Metadata {
		if resolver == nil {
			return overlay.Defaults(p)
		}
		return resolver.Effective(p)
	}
	linked := func(p string) bool {
		return linkage != nil && linkage.Has(p)
	}

	search := strings.ToLower(f.Search)
	visible := make([]manifest.FileEntry, 0, len(entries))
	for _, e := range entries {
		if search != "" && !strings.Contains(strings.ToLower(e.Name), search) {
			continue
		}
		if f.Directory != "" && f.Directory != All && e.Directory != f.Directory {
			continue
		}
		if f.Type != "" && f.Type != All && string(effective(e.Path).FileType) != f.Type {
			continue
		}
		if f.HideCompleted && linked(e.Path) {
			continue
		}
		visible = append(visible, e)
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * PageSize
	if start > len(visible) {
		start = len(visible)
	}
	end := start + PageSize
	if end > len(visible) {
		end = len(visible)
	}

	items := make([]Item, 0, end-start)
	for _, e := range visible[start:end] {
		m := effective(e.Path)
		items = append(items, Item{
			FileEntry:   e,
			IsSelected:  m.IsSelected,
			FileType:    m.FileType,
			HasAnalysis: linked(e.Path),
			SizeLabel:   FormatSize(e.Size),
		})
	}

	return View{
		Page:             page,
		TotalPages:       (len(visible) + PageSize - 1) / PageSize,
		TotalVisible:     len(visible),
		Items:            items,
		DirectoryOptions: DirectoryOptions(entries),
		Visible:          visible,
	}
}

// DirectoryOptions returns the sorted distinct directories across entries.
func DirectoryOptions(entries []manifest.FileEntry) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, e := range entries {
		if _, ok := seen[e.Directory]; ok {
			continue
		}
		seen[e.Directory] = struct{}{}
		out = append(out, e.Directory)
	}
	sort.Strings(out)
	return out
}

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatSize renders a byte count in base-1024 units with two decimals.
// Zero renders as "0 B".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	v := float64(bytes)
	i := 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", v, sizeUnits[i])
}
