// Package preview renders the first page of an archive PDF into a
// fixed-width raster after a short hover dwell.
package preview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// DefaultWidth is the preview width in pixels.
	DefaultWidth = 300
	// MaxWidth bounds requested widths.
	MaxWidth = 1200

	placeholderText = "Preview unavailable"
)

// ErrCancelled is returned when a render is abandoned before completion.
var ErrCancelled = errors.New("preview cancelled")

// Loader opens a PDF by manifest path.
type Loader interface {
	Load(ctx context.Context, path string) (Document, error)
}

// Document is a loaded PDF. Close releases it.
type Document interface {
	Page(ctx context.Context, n int) (Page, error)
	Close() error
}

// Page is one page of a loaded document.
type Page interface {
	// Render rasterizes the page at roughly width pixels wide.
	Render(ctx context.Context, width int) (image.Image, error)
}

// Render loads path, renders its first page, and scales it to exactly width
// pixels wide. ctx is checked after every stage; a cancelled render returns
// ErrCancelled and the document is always closed.
func Render(ctx context.Context, loader Loader, path string, width int) (image.Image, error) {
	if width <= 0 {
		width = DefaultWidth
	}
	if width > MaxWidth {
		width = MaxWidth
	}
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	doc, err := loader.Load(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("load document: %w", err)
	}
	defer doc.Close()
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	page, err := doc.Page(ctx, 1)
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	if err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}

	img, err := page.Render(ctx, width)
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}

	return Fit(img, width), nil
}

// Fit scales img to width, preserving aspect ratio.
func Fit(img image.Image, width int) image.Image {
	if img.Bounds().Dx() == width {
		return img
	}
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}

// Placeholder draws the "preview unavailable" card at width.
func Placeholder(width int) image.Image {
	if width <= 0 {
		width = DefaultWidth
	}
	height := width * 4 / 3
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{0xf3, 0xf4, 0xf6, 0xff}}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{0x6b, 0x72, 0x80, 0xff}),
		Face: face,
	}
	textWidth := d.MeasureString(placeholderText).Ceil()
	x := (width - textWidth) / 2
	if x < 0 {
		x = 0
	}
	y := height/2 + face.Ascent/2
	d.Dot = fixed.P(x, y)
	d.DrawString(placeholderText)
	return img
}

// Position places a preview of size next to anchor inside viewport. It
// prefers the right of the anchor, then the left, then the left padding
// edge. Vertically it starts level with the anchor and is clamped so it never
// extends below the viewport.
func Position(anchor image.Rectangle, viewport, size image.Point, gap, padding int) image.Point {
	x := anchor.Max.X + gap
	if x+size.X > viewport.X-padding {
		x = anchor.Min.X - gap - size.X
		if x < padding {
			x = padding
		}
	}

	y := anchor.Min.Y
	if y+size.Y > viewport.Y-padding {
		y = viewport.Y - padding - size.Y
	}
	if y < padding {
		y = padding
	}
	return image.Pt(x, y)
}
