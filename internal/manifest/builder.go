package manifest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/docarchive/internal/logging"
	"github.com/fruitsalade/docarchive/internal/metrics"
)

// Builder walks an archive root and produces manifest entries.
type Builder struct {
	// ArchiveRoot is the directory that is scanned.
	ArchiveRoot string
	// PublicRoot is the directory URL paths are computed against. It is
	// normally an ancestor of ArchiveRoot.
	PublicRoot string
}

// IsPDF reports whether name has a .pdf extension, case-insensitively.
func IsPDF(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}

// Build walks the archive root depth-first and returns one entry per PDF,
// sorted by path. Symbolic links are followed, the root included. Any I/O
// error aborts the build.
func (b *Builder) Build(ctx context.Context) ([]FileEntry, error) {
	start := time.Now()

	archiveRoot, err := filepath.Abs(b.ArchiveRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve archive root: %w", err)
	}
	publicRoot, err := filepath.Abs(b.PublicRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve public root: %w", err)
	}

	info, err := os.Stat(archiveRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotFound, b.ArchiveRoot)
		}
		return nil, fmt.Errorf("stat archive root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("archive root %s is not a directory", b.ArchiveRoot)
	}

	entries := []FileEntry{}
	err = walk(ctx, archiveRoot, map[string]bool{}, func(p string, size int64) error {
		entry, err := newEntry(archiveRoot, publicRoot, p, size)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", b.ArchiveRoot, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	metrics.RecordIndexBuild(len(entries), time.Since(start))
	logging.Debug("archive walked",
		zap.String("root", archiveRoot),
		zap.Int("files", len(entries)),
		zap.Duration("duration", time.Since(start)))

	return entries, nil
}

// walk visits every regular PDF file below dir, following symbolic links to
// files and directories. p keeps the linked name, so paths stay under the
// archive root as it is served. A directory already open higher up the tree
// is skipped.
func walk(ctx context.Context, dir string, open map[string]bool, visit func(p string, size int64) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	if open[target] {
		logging.Warn("symlink loop skipped", zap.String("dir", dir), zap.String("target", target))
		return nil
	}
	open[target] = true
	defer delete(open, target)

	children, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}
	for _, d := range children {
		if err := ctx.Err(); err != nil {
			return err
		}
		link := d.Type()&fs.ModeSymlink != 0
		if !d.IsDir() && !link && !IsPDF(d.Name()) {
			continue
		}
		p := filepath.Join(dir, d.Name())
		fi, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		if fi.IsDir() {
			if link {
				logging.Debug("following symlinked directory", zap.String("dir", p))
			}
			if err := walk(ctx, p, open, visit); err != nil {
				return err
			}
			continue
		}
		if !fi.Mode().IsRegular() || !IsPDF(d.Name()) {
			continue
		}
		if err := visit(p, fi.Size()); err != nil {
			return err
		}
	}
	return nil
}

func newEntry(archiveRoot, publicRoot, p string, size int64) (FileEntry, error) {
	relPublic, err := filepath.Rel(publicRoot, p)
	if err != nil {
		return FileEntry{}, fmt.Errorf("relative path for %s: %w", p, err)
	}

	dir := RootDirectory
	parent := filepath.Dir(p)
	if parent != archiveRoot {
		relDir, err := filepath.Rel(archiveRoot, parent)
		if err != nil {
			return FileEntry{}, fmt.Errorf("relative directory for %s: %w", p, err)
		}
		dir = filepath.ToSlash(relDir)
	}

	return FileEntry{
		Name:      filepath.Base(p),
		Path:      "/" + filepath.ToSlash(relPublic),
		Directory: dir,
		Size:      size,
	}, nil
}
