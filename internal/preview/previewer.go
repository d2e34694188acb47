package preview

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/docarchive/internal/logging"
	"github.com/fruitsalade/docarchive/internal/metrics"
)

// DwellDelay is how long a hover must last before rendering starts.
const DwellDelay = 200 * time.Millisecond

// Result is a finished preview.
type Result struct {
	Path  string
	Image image.Image
	// Placeholder is set when rendering failed and Image is the fallback.
	Placeholder bool
}

// Previewer runs at most one hover preview at a time. Show starts the dwell
// timer; Dismiss or another Show cancels whatever is pending or in flight.
type Previewer struct {
	loader   Loader
	width    int
	delay    time.Duration
	onResult func(Result)

	mu     sync.Mutex
	gen    uint64
	timer  *time.Timer
	cancel context.CancelFunc
}

// NewPreviewer creates a Previewer. onResult is called from a background
// goroutine with the Previewer's lock held and must not call Show or Dismiss.
func NewPreviewer(loader Loader, width int, onResult func(Result)) *Previewer {
	return &Previewer{
		loader:   loader,
		width:    width,
		delay:    DwellDelay,
		onResult: onResult,
	}
}

// Show schedules a preview of path after the dwell delay.
func (p *Previewer) Show(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.timer = time.AfterFunc(p.delay, func() { p.run(ctx, gen, path) })
}

// Dismiss cancels the pending or in-flight preview. No result is delivered
// for it.
func (p *Previewer) Dismiss() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.gen++
}

func (p *Previewer) stopLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Previewer) run(ctx context.Context, gen uint64, path string) {
	start := time.Now()
	img, err := Render(ctx, p.loader, path, p.width)
	res := Result{Path: path, Image: img}

	switch {
	case errors.Is(err, ErrCancelled):
		metrics.RecordPreviewRender("cancelled", time.Since(start))
		return
	case err != nil:
		logging.Debug("preview render failed", zap.String("path", path), zap.Error(err))
		metrics.RecordPreviewRender("error", time.Since(start))
		res.Image = Placeholder(p.width)
		res.Placeholder = true
	default:
		metrics.RecordPreviewRender("success", time.Since(start))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen || ctx.Err() != nil {
		return
	}
	p.timer = nil
	p.cancel()
	p.cancel = nil
	if p.onResult != nil {
		p.onResult(res)
	}
}
