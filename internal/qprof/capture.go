package qprof

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"cnabd/internal/store"
)

// Capture produces diagnostic screenshots for a workflow session. Capture
// failures are logged and swallowed; diagnostics never affect workflow
// control flow.
type Capture struct {
	store  *store.Store
	dir    string
	logger *slog.Logger
}

func NewCapture(st *store.Store, dir string, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{store: st, dir: dir, logger: logger}
}

// Snapshot writes a numbered screenshot of the current page and records it
// against the file being processed.
func (c *Capture) Snapshot(ctx context.Context, fileID string, step int, label string) {
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		c.logger.Warn("screenshot capture failed",
			slog.String("file_id", fileID),
			slog.String("label", label),
			slog.String("error", err.Error()))
		return
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.logger.Warn("failed to create screenshot dir", slog.String("error", err.Error()))
		return
	}

	path := filepath.Join(c.dir, fmt.Sprintf("%s_%02d_%s.png", fileID, step, label))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		c.logger.Warn("failed to write screenshot",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}

	if err := c.store.AddSnapshot(fileID, step, label, path); err != nil {
		c.logger.Warn("failed to record snapshot",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()))
	}
}

// LiveCapture is a session-scoped handle over the continuously refreshed
// "live" screenshot. It is acquired at session start and must be stopped in
// the session's cleanup path.
type LiveCapture struct {
	path string
	stop chan struct{}
	once sync.Once
}

// StartLive begins overwriting a single live screenshot at the given interval
// until Stop is called or the browser context ends.
func (c *Capture) StartLive(ctx context.Context, fileID string, interval time.Duration) *LiveCapture {
	lc := &LiveCapture{
		path: filepath.Join(c.dir, fmt.Sprintf("live_%s.png", fileID)),
		stop: make(chan struct{}),
	}
	_ = os.MkdirAll(c.dir, 0o755)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-lc.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				var buf []byte
				if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
					continue
				}
				if err := os.WriteFile(lc.path, buf, 0o644); err != nil {
					c.logger.Debug("live screenshot write failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	return lc
}

// Path is where the live screenshot is being written.
func (lc *LiveCapture) Path() string {
	return lc.path
}

// Stop cancels the live capture. Safe to call more than once.
func (lc *LiveCapture) Stop() {
	lc.once.Do(func() { close(lc.stop) })
}
