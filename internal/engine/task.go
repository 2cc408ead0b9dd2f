package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/yacrawler/internal/crawler"
)

// taskResult is the single report a task sends back to the dispatch loop.
type taskResult struct {
	id    uint64
	entry crawler.Entry

	fetched    bool
	statusCode int
	finalURL   string
	bytes      int64
	fetchDur   time.Duration
	fetchErr   error
	stageErr   error
	panicErr   error
	canceled   bool
	maxDepth   bool

	discovered int
	rejected   int
	enqueued   int
}

// execute runs the task lifecycle for one entry and always reports exactly
// once on r.done, even if a capability panics.
func (r *run) execute(ctx context.Context, id uint64, entry crawler.Entry) {
	res := taskResult{id: id, entry: entry}
	defer func() {
		if p := recover(); p != nil {
			res.panicErr = fmt.Errorf("task %s panicked: %v", entry.URL, p)
		}
		r.done <- res
	}()
	r.process(ctx, &res)
}

func (r *run) process(ctx context.Context, res *taskResult) {
	page, err := r.engine.fetcher.Fetch(ctx, crawler.NewFetchRequest(res.entry))
	if ctx.Err() != nil {
		res.canceled = true
		return
	}
	if err != nil {
		res.fetchErr = crawler.AsNetworkError(res.entry.URL, err)
		return
	}
	page.Entry = res.entry
	res.fetched = true
	res.statusCode = page.StatusCode
	res.finalURL = page.FinalURL
	res.bytes = int64(page.ContentLength())
	res.fetchDur = page.Duration

	if err := r.engine.pipeline.Process(ctx, page); err != nil {
		res.stageErr = err
	}
	if ctx.Err() != nil {
		res.canceled = true
		return
	}

	if res.entry.Depth >= r.maxDepth {
		res.maxDepth = true
		return
	}
	for _, link := range r.engine.discoverer.Discover(page) {
		res.discovered++
		canonical, ok := crawler.CanonicalURL(link)
		if !ok {
			res.rejected++
			continue
		}
		if r.frontier.TryEnqueue(canonical, res.entry.Depth+1) {
			res.enqueued++
		}
	}
}
