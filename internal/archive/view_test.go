package archive

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/fruitsalade/docarchive/internal/analysis"
	"github.com/fruitsalade/docarchive/internal/manifest"
	"github.com/fruitsalade/docarchive/internal/overlay"
)

func entry(dir, name string, size int64) manifest.FileEntry {
	p := "/data/" + name
	if dir != manifest.RootDirectory {
		p = "/data/" + dir + "/" + name
	}
	return manifest.FileEntry{Name: name, Path: p, Directory: dir, Size: size}
}

// corpus builds n entries spread over three directories, one of them IMAGES.
func corpus(n int) []manifest.FileEntry {
	dirs := []string{"VOL00001", "IMAGES/0001", manifest.RootDirectory}
	out := make([]manifest.FileEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, entry(dirs[i%len(dirs)], fmt.Sprintf("EFTA%05d.pdf", i), int64(i*100)))
	}
	return out
}

func names(entries []manifest.FileEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func itemNames(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{1, "1.00 B"},
		{1023, "1023.00 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1048576, "1.00 MB"},
		{5 * 1024 * 1024 * 1024, "5.00 GB"},
		{2048 * 1024 * 1024 * 1024, "2048.00 GB"},
		{-5, "0 B"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestDirectoryOptionsIgnoreFilters(t *testing.T) {
	entries := corpus(50)
	want := []string{"IMAGES/0001", "VOL00001", "root"}

	filters := []Filter{
		DefaultFilter(),
		{Search: "EFTA00001", Directory: All, Type: All, Page: 1},
		{Search: "nothing-matches", Directory: All, Type: All, Page: 1},
		{Directory: "VOL00001", Type: "image", Page: 1},
		{Directory: All, Type: All, HideCompleted: true, Page: 1},
	}
	linkage := analysis.NewSet([]analysis.Link{{Path: entries[0].Path, Target: "x"}})
	for _, f := range filters {
		v := Compute(entries, nil, linkage, f)
		if !reflect.DeepEqual(v.DirectoryOptions, want) {
			t.Errorf("filter %+v: expected %v, got %v", f, want, v.DirectoryOptions)
		}
	}
}

func TestPaginationReconstructsVisible(t *testing.T) {
	for _, n := range []int{0, 1, 23, 24, 25, 48, 100} {
		entries := corpus(n)
		f := DefaultFilter()
		first := Compute(entries, nil, nil, f)

		wantPages := (len(first.Visible) + PageSize - 1) / PageSize
		if first.TotalPages != wantPages {
			t.Fatalf("n=%d: expected %d pages, got %d", n, wantPages, first.TotalPages)
		}

		var joined []manifest.FileEntry
		for p := 1; p <= first.TotalPages; p++ {
			f.Page = p
			v := Compute(entries, nil, nil, f)
			if len(v.Items) > PageSize {
				t.Errorf("n=%d page %d: %d items exceeds page size", n, p, len(v.Items))
			}
			for _, it := range v.Items {
				joined = append(joined, it.FileEntry)
			}
		}
		if n == 0 {
			if len(joined) != 0 || first.TotalPages != 0 {
				t.Errorf("expected no pages for empty corpus, got %d", first.TotalPages)
			}
			continue
		}
		if !reflect.DeepEqual(joined, first.Visible) {
			t.Errorf("n=%d: concatenated pages differ from visible list", n)
		}
	}
}

func TestPageBeyondEndIsEmpty(t *testing.T) {
	f := DefaultFilter()
	f.Page = 10
	v := Compute(corpus(30), nil, nil, f)
	if len(v.Items) != 0 {
		t.Errorf("expected no items, got %d", len(v.Items))
	}
	if v.TotalPages != 2 || v.Page != 10 {
		t.Errorf("expected page 10 of 2, got %d of %d", v.Page, v.TotalPages)
	}
}

func TestSearchIsCaseInsensitiveOnName(t *testing.T) {
	entries := []manifest.FileEntry{
		entry("VOL00001", "Report-Alpha.pdf", 1),
		entry("alpha", "other.pdf", 1),
		entry("VOL00001", "beta.PDF", 1),
	}
	f := DefaultFilter()
	f.Search = "ALPHA"
	v := Compute(entries, nil, nil, f)
	if got := names(v.Visible); !reflect.DeepEqual(got, []string{"Report-Alpha.pdf"}) {
		t.Errorf("expected only Report-Alpha.pdf, got %v", got)
	}
}

func TestTypeFilterUsesEffectiveType(t *testing.T) {
	entries := []manifest.FileEntry{
		entry("IMAGES/0001", "scan.pdf", 1),
		entry("VOL00001", "memo.pdf", 1),
		entry("VOL00001", "photo.pdf", 1),
	}
	o := overlay.New()
	o.Set(entries[2].Path, overlay.Metadata{FileType: overlay.TypeImage})

	f := DefaultFilter()
	f.Type = string(overlay.TypeImage)
	v := Compute(entries, o, nil, f)
	if got := names(v.Visible); !reflect.DeepEqual(got, []string{"scan.pdf", "photo.pdf"}) {
		t.Errorf("image filter: got %v", got)
	}

	f.Type = string(overlay.TypeDoc)
	v = Compute(entries, o, nil, f)
	if got := names(v.Visible); !reflect.DeepEqual(got, []string{"memo.pdf"}) {
		t.Errorf("doc filter: got %v", got)
	}
}

func TestDirectoryAndHideCompleted(t *testing.T) {
	entries := []manifest.FileEntry{
		entry(manifest.RootDirectory, "top.pdf", 1),
		entry("VOL00001", "a.pdf", 1),
		entry("VOL00001", "b.pdf", 1),
	}
	linkage := analysis.NewSet([]analysis.Link{{Path: entries[1].Path, Target: "/analysis/a"}})

	f := DefaultFilter()
	f.Directory = "VOL00001"
	v := Compute(entries, nil, linkage, f)
	if len(v.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(v.Items))
	}
	if !v.Items[0].HasAnalysis || v.Items[1].HasAnalysis {
		t.Errorf("expected analysis only on a.pdf, got %+v", v.Items)
	}

	f.HideCompleted = true
	v = Compute(entries, nil, linkage, f)
	if got := itemNames(v.Items); !reflect.DeepEqual(got, []string{"b.pdf"}) {
		t.Errorf("hide completed: got %v", got)
	}

	f.Directory = manifest.RootDirectory
	v = Compute(entries, nil, linkage, f)
	if got := itemNames(v.Items); !reflect.DeepEqual(got, []string{"top.pdf"}) {
		t.Errorf("root directory: got %v", got)
	}
}

func TestItemsCarryMetadataAndSizeLabel(t *testing.T) {
	entries := []manifest.FileEntry{entry("IMAGES/0001", "scan.pdf", 1536)}
	o := overlay.New()
	o.ToggleSelected(entries[0].Path)

	v := Compute(entries, o, nil, DefaultFilter())
	if len(v.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(v.Items))
	}
	it := v.Items[0]
	if !it.IsSelected || it.FileType != overlay.TypeImage || it.SizeLabel != "1.50 KB" {
		t.Errorf("unexpected item %+v", it)
	}
}

func TestComputeDoesNotMutateEntries(t *testing.T) {
	entries := corpus(5)
	before := append([]manifest.FileEntry(nil), entries...)
	f := DefaultFilter()
	f.Search = "3"
	Compute(entries, nil, nil, f)
	if !reflect.DeepEqual(entries, before) {
		t.Error("Compute reordered or modified its input")
	}
}

func TestValidateType(t *testing.T) {
	for _, v := range []string{"all", "doc", "image"} {
		if err := ValidateType(v); err != nil {
			t.Errorf("ValidateType(%q): %v", v, err)
		}
	}
	if err := ValidateType("video"); !errors.Is(err, overlay.ErrInvalidType) {
		t.Errorf("expected ErrInvalidType, got %v", err)
	}
}
