package promote

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/yacrawler/internal/crawler"
)

// Fetcher probes with one fetcher and re-fetches through another when the
// detector asks for it. A failed promotion falls back to the probed page.
type Fetcher struct {
	probe    crawler.Fetcher
	headless crawler.Fetcher
	detector Detector
	logger   *zap.Logger
}

// New wires the probe and headless fetchers.
func New(probe, headless crawler.Fetcher, detector Detector, logger *zap.Logger) (*Fetcher, error) {
	if probe == nil || headless == nil {
		return nil, errors.New("promote: probe and headless fetchers are required")
	}
	if detector == nil {
		detector = NewHeuristic(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{probe: probe, headless: headless, detector: detector, logger: logger}, nil
}

// Fetch implements crawler.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.Page, error) {
	page, err := f.probe.Fetch(ctx, request)
	if err != nil {
		return crawler.Page{}, err
	}
	if !f.detector.ShouldPromote(page) {
		return page, nil
	}
	f.logger.Debug("promoting to headless", zap.String("url", request.URL), zap.Int("depth", request.Depth))
	rendered, err := f.headless.Fetch(ctx, request)
	if err != nil {
		if ctx.Err() != nil {
			return crawler.Page{}, crawler.AsNetworkError(request.URL, err)
		}
		f.logger.Warn("headless fetch failed, keeping probe", zap.String("url", request.URL), zap.Error(err))
		return page, nil
	}
	return rendered, nil
}
