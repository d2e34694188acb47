package overlay

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/docarchive/internal/logging"
	"github.com/fruitsalade/docarchive/internal/metrics"
	"github.com/fruitsalade/docarchive/internal/retry"
)

const defaultWriteTimeout = 30 * time.Second

// Writer persists overlay changes in the background. Save never blocks on
// the store and never reports failures to the caller; errors are logged and
// counted. Writes are unordered relative to each other.
type Writer struct {
	store   Store
	retry   retry.Config
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewWriter creates a Writer over store.
func NewWriter(store Store, cfg retry.Config) *Writer {
	return &Writer{
		store:   store,
		retry:   cfg,
		timeout: defaultWriteTimeout,
	}
}

// Save schedules patch to be written for path and returns immediately.
func (w *Writer) Save(path string, patch Patch) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		cfg := w.retry
		cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
			logging.Debug("metadata write retrying",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		}
		err := retry.Do(ctx, cfg, func() error {
			return w.store.Save(ctx, path, patch)
		})
		metrics.RecordMetadataWrite(err == nil)
		if err != nil {
			logging.Warn("metadata write failed",
				zap.String("path", path),
				zap.Error(err))
		}
	}()
}

// Flush waits for all scheduled writes to finish.
func (w *Writer) Flush() {
	w.wg.Wait()
}
