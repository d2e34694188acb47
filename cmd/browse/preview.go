package main

import (
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/fruitsalade/docarchive/internal/preview"
)

// previewSink saves finished previews as PNG files in dir, one file per
// document name, and reports each one on out.
type previewSink struct {
	dir string
	out io.Writer
}

func (s previewSink) deliver(res preview.Result) {
	base := path.Base(res.Path)
	file := filepath.Join(s.dir, strings.TrimSuffix(base, path.Ext(base))+".png")
	if err := imaging.Save(res.Image, file); err != nil {
		fmt.Fprintf(s.out, "preview of %s failed: %v\n", res.Path, err)
		return
	}
	note := ""
	if res.Placeholder {
		note = " (unavailable, placeholder saved)"
	}
	fmt.Fprintf(s.out, "preview of %s saved to %s%s\n", res.Path, file, note)
}
