// Package promote fetches pages with a cheap HTTP client first and retries
// through headless Chrome only when the static HTML looks like an
// unrendered client-side shell.
package promote

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/release-notes-watcher/internal/watcher"
)

// Detector decides whether a fetched page must be rendered.
type Detector interface {
	NeedsRender(page watcher.Page) bool
}

// Fetcher implements watcher.Fetcher over a static fetcher and a renderer.
type Fetcher struct {
	static   watcher.Fetcher
	renderer watcher.Fetcher
	detector Detector
	logger   *zap.Logger
}

// New builds a promoting fetcher. A nil detector uses NewHeuristic(0).
func New(static, renderer watcher.Fetcher, detector Detector, logger *zap.Logger) (*Fetcher, error) {
	if static == nil || renderer == nil {
		return nil, fmt.Errorf("static and renderer fetchers are required")
	}
	if detector == nil {
		detector = NewHeuristic(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{static: static, renderer: renderer, detector: detector, logger: logger}, nil
}

// Fetch fetches url statically and promotes to the renderer when the
// detector asks for it.
// Static fetch failures are returned as-is; the renderer is not tried.
func (f *Fetcher) Fetch(ctx context.Context, url string) (watcher.Page, error) {
	page, err := f.static.Fetch(ctx, url)
	if err != nil {
		return watcher.Page{}, err
	}
	if !f.detector.NeedsRender(page) {
		return page, nil
	}
	f.logger.Info("promoting fetch to headless renderer",
		zap.String("url", url),
		zap.Int("static_bytes", len(page.Body)),
	)
	rendered, err := f.renderer.Fetch(ctx, url)
	if err != nil {
		return watcher.Page{}, fmt.Errorf("headless render: %w", err)
	}
	return rendered, nil
}
