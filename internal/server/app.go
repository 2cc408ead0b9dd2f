// Package server assembles a crawl from configuration: it builds the fetcher,
// discoverer, pipeline and backing stores, runs the engine, serves the ops API
// alongside it and shuts everything down in order.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/yacrawler/internal/api"
	"github.com/JakeFAU/yacrawler/internal/clock/system"
	"github.com/JakeFAU/yacrawler/internal/config"
	"github.com/JakeFAU/yacrawler/internal/crawler"
	"github.com/JakeFAU/yacrawler/internal/discover"
	"github.com/JakeFAU/yacrawler/internal/engine"
	collyfetcher "github.com/JakeFAU/yacrawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/yacrawler/internal/fetcher/headless"
	"github.com/JakeFAU/yacrawler/internal/fetcher/promote"
	"github.com/JakeFAU/yacrawler/internal/hash/sha256"
	"github.com/JakeFAU/yacrawler/internal/pipeline/stages"
	"github.com/JakeFAU/yacrawler/internal/progress"
	progresssinks "github.com/JakeFAU/yacrawler/internal/progress/sinks"
	kafkapublisher "github.com/JakeFAU/yacrawler/internal/publisher/kafka"
	memorypublisher "github.com/JakeFAU/yacrawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/yacrawler/internal/publisher/pubsub"
	"github.com/JakeFAU/yacrawler/internal/status"
	redisstatus "github.com/JakeFAU/yacrawler/internal/status/redis"
	gcsstorage "github.com/JakeFAU/yacrawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/yacrawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/yacrawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/yacrawler/internal/storage/postgres"
	"github.com/JakeFAU/yacrawler/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	engine   *engine.Engine
	hub      *progress.Hub
	statuses status.Store
	api      *api.Server
	stages   []string

	closeOnce sync.Once
	closers   []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Build creates the application's dependencies. On failure every resource
// opened so far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			app.closeResources(context.Background())
		}
	}()

	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app.logger.Info("building application dependencies")
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}
	app.onClose("tracer provider", tp.Shutdown)

	fetcher, err := app.setupFetcher()
	if err != nil {
		return nil, err
	}
	discoverer := app.setupDiscoverer()

	pipeline, err := app.setupPipeline(ctx)
	if err != nil {
		return nil, err
	}

	if err := app.setupStatus(ctx); err != nil {
		return nil, err
	}
	if err := app.setupProgress(); err != nil {
		return nil, err
	}

	app.engine, err = engine.New(
		engine.Config{
			MaxWorkers:   cfg.Crawler.MaxWorkers,
			MaxDepth:     cfg.Crawler.MaxDepth,
			DrainTimeout: cfg.Crawler.DrainTimeout(),
		},
		fetcher,
		discoverer,
		pipeline,
		logger,
		engine.WithEmitter(app.hub),
	)
	if err != nil {
		return nil, fmt.Errorf("engine init failed: %w", err)
	}

	if cfg.Server.Addr != "" {
		app.api = api.NewServer(api.Options{
			Engine:     app.engine,
			Statuses:   app.statuses,
			Gatherer:   app.registry,
			Registerer: app.registry,
			APIKey:     cfg.Server.APIKey,
			Logger:     logger.Named("api"),
		})
	}
	return app, nil
}

// Engine returns the crawl engine.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Registry returns the Prometheus registry carrying the crawl metrics.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Statuses returns the run status store.
func (a *App) Statuses() status.Store {
	return a.statuses
}

// Stages returns the resolved pipeline stage names.
func (a *App) Stages() []string {
	return append([]string(nil), a.stages...)
}

// API returns the ops API server, or nil when it is disabled.
func (a *App) API() *api.Server {
	return a.api
}

// Crawl runs one crawl from seeds while the ops server, if configured, serves
// requests. The server stops once the crawl returns.
func (a *App) Crawl(ctx context.Context, seeds []string, maxDepth int) (engine.Summary, error) {
	serveCtx, stopServe := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	if a.api != nil {
		a.api.SetReady(true)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := api.ListenAndServe(serveCtx, a.cfg.Server.Addr, a.api.Handler(), a.logger.Named("http")); err != nil {
				a.logger.Error("http server error", zap.Error(err))
			}
		}()
	}

	ctx, span := telemetry.Tracer().Start(ctx, "crawl")
	summary, err := a.engine.Run(ctx, seeds, maxDepth)
	if err != nil {
		span.RecordError(err)
	}
	span.End()

	stopServe()
	wg.Wait()
	if err != nil {
		return summary, fmt.Errorf("run crawl: %w", err)
	}
	return summary, nil
}

// Close flushes progress events and releases every resource. It is safe to
// call more than once.
func (a *App) Close(ctx context.Context) error {
	var err error
	a.closeOnce.Do(func() {
		err = a.closeResources(ctx)
		a.logger.Info("shutdown complete")
	})
	return err
}

func (a *App) closeResources(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) setupFetcher() (crawler.Fetcher, error) {
	cfg := a.cfg.Fetcher
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent:    a.cfg.Crawler.UserAgent,
		Timeout:      cfg.Timeout(),
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if cfg.Kind == config.FetcherColly {
		a.logger.Info("using colly fetcher", zap.String("user_agent", a.cfg.Crawler.UserAgent))
		return probe, nil
	}

	headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         a.cfg.Crawler.UserAgent,
		NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		SettleDelay:       time.Duration(cfg.Headless.SettleMillis) * time.Millisecond,
		ExecPath:          cfg.Headless.ExecPath,
	})
	if err != nil {
		return nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	a.onClose("headless fetcher", func(context.Context) error {
		headless.Close()
		return nil
	})
	if cfg.Kind == config.FetcherHeadless {
		a.logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		return headless, nil
	}

	detector := promote.NewHeuristic(cfg.Headless.PromotionThreshold)
	fetcher, err := promote.New(probe, headless, detector, a.logger.Named("promote"))
	if err != nil {
		return nil, fmt.Errorf("promoting fetcher init failed: %w", err)
	}
	a.logger.Info("using colly probe with headless promotion",
		zap.Int("max_parallel", cfg.Headless.MaxParallel),
		zap.Int("promotion_threshold", detector.BodyLengthThreshold),
	)
	return fetcher, nil
}

func (a *App) setupDiscoverer() crawler.Discoverer {
	if a.cfg.Discoverer.Kind == config.DiscovererHTML {
		a.logger.Info("using html discoverer", zap.Bool("same_host", a.cfg.Discoverer.SameHost))
		return discover.NewHTML(discover.WithSameHost(a.cfg.Discoverer.SameHost))
	}
	a.logger.Info("using regex discoverer")
	return discover.NewRegex()
}

func (a *App) setupPipeline(ctx context.Context) (crawler.Pipeline, error) {
	deps := stages.Deps{
		Hasher:     sha256.New(),
		Clock:      system.New(),
		BlobPrefix: a.cfg.Storage.Prefix,
		Topic:      a.cfg.Publisher.Topic,
	}
	var err error
	if a.cfg.HasStage(stages.NameBlob) {
		if deps.Blobs, err = a.setupStorage(ctx); err != nil {
			return nil, err
		}
	}
	if a.cfg.HasStage(stages.NamePostgres) {
		if deps.Records, err = a.setupDatabase(ctx); err != nil {
			return nil, err
		}
	}
	if a.cfg.HasStage(stages.NamePublish) {
		if deps.Publisher, err = a.setupPublisher(ctx); err != nil {
			return nil, err
		}
	}
	if a.cfg.HasStage(stages.NameJSONL) {
		writer, err := stages.OpenJSONL(a.cfg.Pipeline.Output.JSONLPath)
		if err != nil {
			return nil, err
		}
		a.onClose("jsonl output", func(context.Context) error { return writer.Close() })
		deps.JSONL = writer
	}

	pipeline, names, err := stages.Build(a.cfg.Pipeline.Stages, deps)
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}
	a.stages = names
	a.logger.Info("pipeline ready", zap.Strings("stages", names))
	return pipeline, nil
}

func (a *App) setupStorage(ctx context.Context) (crawler.BlobStore, error) {
	cfg := a.cfg.Storage
	switch cfg.Kind {
	case config.KindGCS:
		store, err := gcsstorage.Dial(ctx, gcsstorage.Config{Bucket: cfg.GCS.Bucket}, a.logger.Named("gcs"))
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.onClose("gcs client", func(context.Context) error { return store.Close() })
		a.logger.Info("using GCS storage backend", zap.String("bucket", cfg.GCS.Bucket))
		return store, nil
	case config.KindLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local storage backend", zap.String("path", cfg.Local.BaseDir))
		return store, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupDatabase(ctx context.Context) (crawler.RecordStore, error) {
	cfg := a.cfg.Database
	store, err := pgstore.NewPageStore(ctx, pgstore.Config{
		DSN:      cfg.DSN,
		Table:    cfg.Table,
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("page store init failed: %w", err)
	}
	a.onClose("page store", func(context.Context) error {
		store.Close()
		return nil
	})
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("page store schema: %w", err)
	}
	a.logger.Info("page store initialized", zap.String("table", cfg.Table))
	return store, nil
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	cfg := a.cfg.Publisher
	switch cfg.Kind {
	case config.KindPubSub:
		pub, err := gcppublisher.Dial(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.onClose("pubsub publisher", func(context.Context) error { return pub.Close() })
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.Topic),
		)
		return pub, nil
	case config.KindKafka:
		pub, err := kafkapublisher.New(cfg.Kafka.Brokers)
		if err != nil {
			return nil, fmt.Errorf("kafka publisher init failed: %w", err)
		}
		a.onClose("kafka publisher", func(context.Context) error { return pub.Close() })
		a.logger.Info("Kafka publisher initialized",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Topic),
		)
		return pub, nil
	default:
		a.logger.Warn("no publisher transport configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
}

func (a *App) setupStatus(ctx context.Context) error {
	cfg := a.cfg.Status
	if cfg.Kind != config.KindRedis {
		a.statuses = status.NewMemoryStore()
		return nil
	}
	store, err := redisstatus.New(ctx, redisstatus.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
		TTL:      cfg.Redis.TTL(),
	})
	if err != nil {
		return fmt.Errorf("redis status store init failed: %w", err)
	}
	a.onClose("redis status store", func(context.Context) error { return store.Close() })
	a.statuses = store
	a.logger.Info("using redis status store", zap.String("addr", cfg.Redis.Addr))
	return nil
}

func (a *App) setupProgress() error {
	promSink, err := progresssinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	cfg := a.cfg.Progress
	hubCfg := progress.Config{
		BufferSize:     cfg.BufferSize,
		MaxBatchEvents: cfg.BatchSize,
		MaxBatchWait:   time.Duration(cfg.FlushMillis) * time.Millisecond,
		SinkTimeout:    time.Duration(cfg.SinkTimeoutMs) * time.Millisecond,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg,
		progresssinks.NewLogSink(a.logger.Named("progress")),
		promSink,
		progresssinks.NewStatusSink(a.statuses, a.logger.Named("progress_status")),
	)
	a.logger.Debug("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}
