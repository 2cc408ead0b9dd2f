// Package engine runs breadth-first crawls. A single dispatch loop admits
// frontier entries as tasks while capacity remains, and re-evaluates only when
// a task reports completion, the run is canceled, or the drain timer fires.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/yacrawler/internal/clock/system"
	"github.com/JakeFAU/yacrawler/internal/crawler"
	"github.com/JakeFAU/yacrawler/internal/frontier"
	"github.com/JakeFAU/yacrawler/internal/id/uuid"
	"github.com/JakeFAU/yacrawler/internal/progress"
)

var (
	// ErrRunning is returned when Run is called while another run is active.
	ErrRunning = errors.New("engine: run already in progress")
	// ErrInvalidDepth is returned for a negative max depth.
	ErrInvalidDepth = errors.New("engine: max depth must be >= 0")
)

// Config bounds a crawl.
type Config struct {
	// MaxWorkers is the maximum number of tasks in flight.
	MaxWorkers int
	// MaxDepth is the default link depth; Run may override it per call.
	MaxDepth int
	// DrainTimeout bounds the wait for in-flight tasks after cancellation.
	// Zero waits for every task to report.
	DrainTimeout time.Duration
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max workers must be > 0, got %d", c.MaxWorkers)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max depth must be >= 0, got %d", c.MaxDepth)
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("drain timeout must be >= 0, got %s", c.DrainTimeout)
	}
	return nil
}

// Option customizes an Engine.
type Option func(*Engine)

// WithEmitter sends progress events to emitter.
func WithEmitter(emitter progress.Emitter) Option {
	return func(e *Engine) {
		if emitter != nil {
			e.emitter = emitter
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(clock crawler.Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithIDGenerator overrides how run ids are minted.
func WithIDGenerator(ids crawler.IDGenerator) Option {
	return func(e *Engine) {
		if ids != nil {
			e.ids = ids
		}
	}
}

// Summary reports what a run did.
type Summary struct {
	RunID         string        `json:"run_id"`
	SeedsAccepted int           `json:"seeds_accepted"`
	SeedsRejected int           `json:"seeds_rejected"`
	Admitted      int           `json:"admitted"`
	Fetched       int           `json:"fetched"`
	FetchFailures int           `json:"fetch_failures"`
	StageFailures int           `json:"stage_failures"`
	TaskPanics    int           `json:"task_panics"`
	Discovered    int           `json:"discovered"`
	Rejected      int           `json:"rejected"`
	Enqueued      int           `json:"enqueued"`
	PeakActive    int           `json:"peak_active"`
	Seen          int           `json:"seen"`
	Canceled      bool          `json:"canceled"`
	CanceledTasks int           `json:"canceled_tasks"`
	Abandoned     int           `json:"abandoned"`
	Duration      time.Duration `json:"duration_ns"`
}

// Snapshot is a point-in-time view of the engine, safe to take from any
// goroutine while a run is in progress.
type Snapshot struct {
	RunID   string `json:"run_id"`
	Running bool   `json:"running"`
	Active  int    `json:"active"`
	Backlog int    `json:"backlog"`
	Seen    int    `json:"seen"`
	Fetched int    `json:"fetched"`
	Failed  int    `json:"failed"`
}

// Engine crawls with a fixed set of capabilities. One Run may be active at a
// time.
type Engine struct {
	cfg        Config
	fetcher    crawler.Fetcher
	discoverer crawler.Discoverer
	pipeline   crawler.Pipeline
	logger     *zap.Logger
	emitter    progress.Emitter
	clock      crawler.Clock
	ids        crawler.IDGenerator

	running atomic.Bool

	mu       sync.RWMutex
	frontier *frontier.Frontier
	snap     Snapshot
}

// New validates cfg and returns an Engine.
func New(
	cfg Config,
	fetcher crawler.Fetcher,
	discoverer crawler.Discoverer,
	pipeline crawler.Pipeline,
	logger *zap.Logger,
	opts ...Option,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	switch {
	case fetcher == nil:
		return nil, errors.New("engine: fetcher is required")
	case discoverer == nil:
		return nil, errors.New("engine: discoverer is required")
	case pipeline == nil:
		return nil, errors.New("engine: pipeline is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:        cfg,
		fetcher:    fetcher,
		discoverer: discoverer,
		pipeline:   pipeline,
		logger:     logger.Named("engine"),
		emitter:    progress.Discard{},
		clock:      system.New(),
		ids:        uuid.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Snapshot returns the live state of the current or last run.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	snap := e.snap
	f := e.frontier
	e.mu.RUnlock()
	snap.Running = e.running.Load()
	if f != nil {
		snap.Backlog = f.Len()
		snap.Seen = f.SeenCount()
	}
	return snap
}

// Seen returns the sorted URLs enqueued by the current or last run.
func (e *Engine) Seen() []string {
	e.mu.RLock()
	f := e.frontier
	e.mu.RUnlock()
	if f == nil {
		return nil
	}
	return f.Seen()
}

// Run crawls from seeds down to maxDepth and blocks until the frontier is
// drained and no task is in flight, or until ctx is canceled. Invalid seeds
// are logged and skipped. Cancellation is reported through Summary.Canceled,
// not as an error.
func (e *Engine) Run(ctx context.Context, seeds []string, maxDepth int) (Summary, error) {
	if maxDepth < 0 {
		return Summary{}, ErrInvalidDepth
	}
	if !e.running.CompareAndSwap(false, true) {
		return Summary{}, ErrRunning
	}
	defer e.running.Store(false)

	runID, err := e.ids.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("engine: %w", err)
	}

	r := &run{
		engine:   e,
		id:       runID,
		maxDepth: maxDepth,
		frontier: frontier.New(),
		tracker:  newTracker(e.cfg.MaxWorkers),
		done:     make(chan taskResult, e.cfg.MaxWorkers),
		logger:   e.logger.With(zap.String("run_id", runID)),
		started:  e.clock.Now(),
	}
	r.summary.RunID = runID

	e.mu.Lock()
	e.frontier = r.frontier
	e.snap = Snapshot{RunID: runID}
	e.mu.Unlock()

	r.seed(seeds)
	r.logger.Info("crawl started",
		zap.Int("seeds", r.summary.SeedsAccepted),
		zap.Int("max_depth", maxDepth),
		zap.Int("max_workers", e.cfg.MaxWorkers),
	)
	r.emit(progress.Event{Stage: progress.StageRunStart})

	runCtx, cancel := context.WithCancel(crawler.WithRunID(ctx, runID))
	defer cancel()
	r.loop(runCtx)

	return r.finish(), nil
}

// run holds the state of a single Run call.
type run struct {
	engine   *Engine
	id       string
	maxDepth int
	frontier *frontier.Frontier
	tracker  *tracker
	done     chan taskResult
	logger   *zap.Logger
	started  time.Time
	canceled bool
	summary  Summary
}

func (r *run) seed(seeds []string) {
	for _, raw := range seeds {
		canonical, ok := crawler.CanonicalURL(raw)
		if !ok {
			r.summary.SeedsRejected++
			r.logger.Warn("invalid seed url", zap.String("url", raw))
			continue
		}
		if !r.frontier.TryEnqueue(canonical, 0) {
			r.summary.SeedsRejected++
			r.logger.Debug("duplicate seed url", zap.String("url", canonical))
			continue
		}
		r.summary.SeedsAccepted++
	}
}

// loop is the dispatch loop. It blocks on exactly one of a task completion,
// cancellation or the drain timer between admission rounds.
func (r *run) loop(ctx context.Context) {
	cancelCh := ctx.Done()
	var drain <-chan time.Time

	for {
		if !r.canceled {
			r.admit(ctx)
		}
		if r.tracker.activeCount() == 0 {
			return
		}
		select {
		case res := <-r.done:
			r.complete(res)
		case <-cancelCh:
			cancelCh = nil
			r.canceled = true
			r.logger.Info("crawl canceled, draining in-flight tasks",
				zap.Int("active", r.tracker.activeCount()),
				zap.Int("backlog", r.frontier.Len()),
			)
			if timeout := r.engine.cfg.DrainTimeout; timeout > 0 {
				timer := time.NewTimer(timeout)
				defer timer.Stop()
				drain = timer.C
			}
		case <-drain:
			abandoned := r.tracker.abandon()
			r.summary.Abandoned = len(abandoned)
			for _, entry := range abandoned {
				r.logger.Warn("abandoning task after drain timeout",
					zap.String("url", entry.URL),
					zap.Int("depth", entry.Depth),
				)
			}
			return
		}
	}
}

// admit starts tasks while there is capacity and backlog.
func (r *run) admit(ctx context.Context) {
	for r.tracker.hasCapacity() && !r.frontier.IsEmpty() {
		if ctx.Err() != nil {
			r.canceled = true
			return
		}
		entry, ok := r.frontier.Dequeue()
		if !ok {
			return
		}
		id := r.tracker.start(entry)
		r.summary.Admitted++
		r.logger.Debug("visiting", zap.String("url", entry.URL), zap.Int("depth", entry.Depth))
		r.emit(progress.Event{
			Stage: progress.StageTaskStart,
			URL:   entry.URL,
			Site:  crawler.SiteOf(entry.URL),
			Depth: entry.Depth,
		})
		go r.execute(ctx, id, entry)
	}
	r.publish()
}

// complete folds a task report into the run and releases its slot.
func (r *run) complete(res taskResult) {
	if _, ok := r.tracker.finish(res.id); !ok {
		return
	}
	entry := res.entry
	logger := r.logger.With(zap.String("url", entry.URL), zap.Int("depth", entry.Depth))
	base := progress.Event{URL: entry.URL, Site: crawler.SiteOf(entry.URL), Depth: entry.Depth}

	r.summary.Discovered += res.discovered
	r.summary.Rejected += res.rejected
	r.summary.Enqueued += res.enqueued

	switch {
	case res.panicErr != nil:
		r.summary.TaskPanics++
		logger.Error("task failed", zap.Error(res.panicErr))
		evt := base
		evt.Stage = progress.StageFetchError
		evt.Note = res.panicErr.Error()
		r.emit(evt)
	case res.fetchErr != nil:
		r.summary.FetchFailures++
		logger.Warn("fetch failed", zap.Error(res.fetchErr))
		evt := base
		evt.Stage = progress.StageFetchError
		evt.Note = res.fetchErr.Error()
		r.emit(evt)
	case res.fetched:
		r.summary.Fetched++
		logger.Debug("fetched",
			zap.Int("status", res.statusCode),
			zap.String("final_url", res.finalURL),
			zap.Int64("bytes", res.bytes),
			zap.Duration("duration", res.fetchDur),
		)
		evt := base
		evt.Stage = progress.StageFetchDone
		evt.StatusClass = progress.ClassifyStatus(res.statusCode)
		evt.Bytes = res.bytes
		evt.Dur = res.fetchDur
		evt.Enqueued = res.enqueued
		r.emit(evt)
	}

	if res.stageErr != nil {
		r.summary.StageFailures++
		stage := "pipeline"
		var stageErr *crawler.StageError
		if errors.As(res.stageErr, &stageErr) {
			stage = stageErr.Stage
		}
		logger.Warn("pipeline stage failed", zap.String("stage", stage), zap.Error(res.stageErr))
		evt := base
		evt.Stage = progress.StageStageError
		evt.PipelineStage = stage
		evt.Note = res.stageErr.Error()
		r.emit(evt)
	}

	switch {
	case res.canceled:
		r.summary.CanceledTasks++
		logger.Debug("task canceled, result discarded")
		evt := base
		evt.Stage = progress.StageTaskCanceled
		r.emit(evt)
	case res.maxDepth:
		logger.Debug("max depth reached, not discovering links")
	case res.fetched:
		logger.Debug("discovered links",
			zap.Int("discovered", res.discovered),
			zap.Int("rejected", res.rejected),
			zap.Int("enqueued", res.enqueued),
		)
	}
	r.publish()
}

// publish refreshes the snapshot served by Engine.Snapshot.
func (r *run) publish() {
	e := r.engine
	e.mu.Lock()
	e.snap.Active = r.tracker.activeCount()
	e.snap.Fetched = r.summary.Fetched
	e.snap.Failed = r.summary.FetchFailures + r.summary.TaskPanics
	e.mu.Unlock()
}

func (r *run) emit(evt progress.Event) {
	evt.RunID = r.id
	evt.TS = r.engine.clock.Now()
	evt.Active = r.tracker.activeCount()
	r.engine.emitter.Emit(evt)
}

func (r *run) finish() Summary {
	r.summary.PeakActive = r.tracker.peak
	r.summary.Seen = r.frontier.SeenCount()
	r.summary.Canceled = r.canceled
	r.summary.Duration = r.engine.clock.Now().Sub(r.started)
	if r.summary.Duration < 0 {
		r.summary.Duration = 0
	}
	r.publish()

	outcome := progress.OutcomeCompleted
	if r.canceled {
		outcome = progress.OutcomeCanceled
	}
	r.emit(progress.Event{Stage: progress.StageRunDone, Dur: r.summary.Duration, Note: outcome})

	s := r.summary
	r.logger.Info("crawl finished",
		zap.String("outcome", outcome),
		zap.Int("admitted", s.Admitted),
		zap.Int("fetched", s.Fetched),
		zap.Int("fetch_failures", s.FetchFailures),
		zap.Int("stage_failures", s.StageFailures),
		zap.Int("enqueued", s.Enqueued),
		zap.Int("seen", s.Seen),
		zap.Int("peak_active", s.PeakActive),
		zap.Int("abandoned", s.Abandoned),
		zap.Duration("duration", s.Duration),
	)
	return s
}
