// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. YACRAWLER_CRAWLER_MAX_DEPTH.
const EnvPrefix = "YACRAWLER"

// Component kinds accepted by the config.
const (
	FetcherColly    = "colly"
	FetcherHeadless = "headless"
	// FetcherAuto probes with colly and promotes script-rendered pages to
	// headless Chrome.
	FetcherAuto = "auto"

	DiscovererRegex = "regex"
	DiscovererHTML  = "html"

	KindNone   = "none"
	KindMemory = "memory"
	KindLocal  = "local"
	KindGCS    = "gcs"
	KindPubSub = "pubsub"
	KindKafka  = "kafka"
	KindRedis  = "redis"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"`
	Discoverer DiscovererConfig `mapstructure:"discoverer"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Publisher  PublisherConfig  `mapstructure:"publisher"`
	Status     StatusConfig     `mapstructure:"status"`
	Progress   ProgressConfig   `mapstructure:"progress"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// CrawlerConfig governs the crawl engine.
type CrawlerConfig struct {
	Seeds               []string `mapstructure:"seeds"`
	MaxDepth            int      `mapstructure:"max_depth"`
	MaxWorkers          int      `mapstructure:"max_workers"`
	DrainTimeoutSeconds int      `mapstructure:"drain_timeout_seconds"`
	UserAgent           string   `mapstructure:"user_agent"`
}

// DrainTimeout converts the drain budget to a duration.
func (c CrawlerConfig) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutSeconds) * time.Second
}

// FetcherConfig selects and tunes the page fetcher.
type FetcherConfig struct {
	Kind           string         `mapstructure:"kind"`
	TimeoutSeconds int            `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int            `mapstructure:"max_body_bytes"`
	Headless       HeadlessConfig `mapstructure:"headless"`
}

// Timeout converts the request budget to a duration.
func (c FetcherConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// HeadlessConfig configures the chromedp fetcher.
type HeadlessConfig struct {
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	SettleMillis  int    `mapstructure:"settle_millis"`
	ExecPath      string `mapstructure:"exec_path"`
	// PromotionThreshold is the body size under which a script-heavy page is
	// re-fetched headless in auto mode.
	PromotionThreshold int `mapstructure:"promotion_threshold"`
}

// DiscovererConfig selects the link extractor.
type DiscovererConfig struct {
	Kind     string `mapstructure:"kind"`
	SameHost bool   `mapstructure:"same_host"`
}

// PipelineConfig lists the stages every fetched page runs through.
type PipelineConfig struct {
	Stages []string     `mapstructure:"stages"`
	Output OutputConfig `mapstructure:"output"`
}

// OutputConfig names local output files.
type OutputConfig struct {
	JSONLPath string `mapstructure:"jsonl_path"`
}

// StorageConfig selects where raw bodies go.
type StorageConfig struct {
	Kind   string             `mapstructure:"kind"`
	Prefix string             `mapstructure:"prefix"`
	Local  LocalStorageConfig `mapstructure:"local"`
	GCS    GCSStorageConfig   `mapstructure:"gcs"`
}

// LocalStorageConfig configures the filesystem blob store.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSStorageConfig configures the Cloud Storage blob store.
type GCSStorageConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// DatabaseConfig controls access to the page record table.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PublisherConfig selects the notification transport.
type PublisherConfig struct {
	Kind   string       `mapstructure:"kind"`
	Topic  string       `mapstructure:"topic"`
	PubSub PubSubConfig `mapstructure:"pubsub"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
}

// PubSubConfig holds Google Pub/Sub settings.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// KafkaConfig holds Kafka broker settings.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// StatusConfig selects where run status is kept.
type StatusConfig struct {
	Kind  string      `mapstructure:"kind"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the redis status store.
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	Prefix     string `mapstructure:"prefix"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// TTL converts the expiry to a duration.
func (c RedisConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// ProgressConfig tunes the progress event hub.
type ProgressConfig struct {
	BufferSize    int `mapstructure:"buffer_size"`
	BatchSize     int `mapstructure:"batch_size"`
	FlushMillis   int `mapstructure:"flush_millis"`
	SinkTimeoutMs int `mapstructure:"sink_timeout_ms"`
}

// ServerConfig controls the ops HTTP server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// APIKey guards the /v1 routes when set.
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.seeds", []string{})
	v.SetDefault("crawler.max_depth", 1)
	v.SetDefault("crawler.max_workers", 10)
	v.SetDefault("crawler.drain_timeout_seconds", 0)
	v.SetDefault("crawler.user_agent", "yacrawler/0.1")
	v.SetDefault("fetcher.kind", FetcherColly)
	v.SetDefault("fetcher.timeout_seconds", 30)
	v.SetDefault("fetcher.max_body_bytes", 10*1024*1024)
	v.SetDefault("fetcher.headless.max_parallel", 2)
	v.SetDefault("fetcher.headless.nav_timeout_seconds", 45)
	v.SetDefault("fetcher.headless.settle_millis", 500)
	v.SetDefault("fetcher.headless.promotion_threshold", 2048)
	v.SetDefault("discoverer.kind", DiscovererRegex)
	v.SetDefault("discoverer.same_host", false)
	v.SetDefault("pipeline.stages", []string{"record", "jsonl"})
	v.SetDefault("pipeline.output.jsonl_path", "output.jsonl")
	v.SetDefault("storage.kind", KindNone)
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("storage.local.base_dir", "data")
	v.SetDefault("database.table", "pages")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("publisher.kind", KindNone)
	v.SetDefault("publisher.topic", "pages")
	v.SetDefault("status.kind", KindMemory)
	v.SetDefault("status.redis.addr", "localhost:6379")
	v.SetDefault("status.redis.prefix", "yacrawler:run:")
	v.SetDefault("status.redis.ttl_seconds", 7*24*3600)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.batch_size", 512)
	v.SetDefault("progress.flush_millis", 250)
	v.SetDefault("progress.sink_timeout_ms", 5000)
	v.SetDefault("server.addr", "")
	v.SetDefault("server.api_key", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

func (c *Config) normalize() {
	lower := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	c.Fetcher.Kind = lower(c.Fetcher.Kind)
	c.Discoverer.Kind = lower(c.Discoverer.Kind)
	c.Storage.Kind = lower(c.Storage.Kind)
	c.Publisher.Kind = lower(c.Publisher.Kind)
	c.Status.Kind = lower(c.Status.Kind)
	c.Crawler.Seeds = lo.Compact(lo.Map(c.Crawler.Seeds, func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
	c.Pipeline.Stages = lo.Compact(lo.Map(c.Pipeline.Stages, func(s string, _ int) string {
		return lower(s)
	}))
}

// HasStage reports whether the pipeline includes the named stage.
func (c Config) HasStage(name string) bool {
	return lo.Contains(c.Pipeline.Stages, name)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if c.Crawler.MaxWorkers <= 0 {
		return fmt.Errorf("crawler.max_workers must be > 0")
	}
	if c.Crawler.DrainTimeoutSeconds < 0 {
		return fmt.Errorf("crawler.drain_timeout_seconds must be >= 0")
	}
	for _, seed := range c.Crawler.Seeds {
		if u, err := url.Parse(seed); err != nil || u.Host == "" {
			return fmt.Errorf("crawler.seeds: %q is not an absolute url", seed)
		}
	}
	if err := oneOf("fetcher.kind", c.Fetcher.Kind, FetcherColly, FetcherHeadless, FetcherAuto); err != nil {
		return err
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.timeout_seconds must be > 0")
	}
	if c.Fetcher.MaxBodyBytes < 0 {
		return fmt.Errorf("fetcher.max_body_bytes must be >= 0")
	}
	if c.Fetcher.Kind != FetcherColly && c.Fetcher.Headless.MaxParallel <= 0 {
		return fmt.Errorf("fetcher.headless.max_parallel must be > 0 when the headless fetcher is used")
	}
	if err := oneOf("discoverer.kind", c.Discoverer.Kind, DiscovererRegex, DiscovererHTML); err != nil {
		return err
	}
	if err := oneOf("storage.kind", c.Storage.Kind, KindNone, KindMemory, KindLocal, KindGCS); err != nil {
		return err
	}
	if c.Storage.Kind == KindGCS && c.Storage.GCS.Bucket == "" {
		return fmt.Errorf("storage.gcs.bucket is required when storage.kind is gcs")
	}
	if c.Storage.Kind == KindLocal && c.Storage.Local.BaseDir == "" {
		return fmt.Errorf("storage.local.base_dir is required when storage.kind is local")
	}
	if c.HasStage("blob") && c.Storage.Kind == KindNone {
		return fmt.Errorf("pipeline stage blob needs storage.kind")
	}
	if c.HasStage("postgres") && c.Database.DSN == "" {
		return fmt.Errorf("pipeline stage postgres needs database.dsn")
	}
	if c.HasStage("jsonl") && c.Pipeline.Output.JSONLPath == "" {
		return fmt.Errorf("pipeline stage jsonl needs pipeline.output.jsonl_path")
	}
	if err := oneOf("publisher.kind", c.Publisher.Kind, KindNone, KindMemory, KindPubSub, KindKafka); err != nil {
		return err
	}
	if c.HasStage("publish") && (c.Publisher.Kind == KindNone || c.Publisher.Topic == "") {
		return fmt.Errorf("pipeline stage publish needs publisher.kind and publisher.topic")
	}
	if c.Publisher.Kind == KindPubSub && c.Publisher.PubSub.ProjectID == "" {
		return fmt.Errorf("publisher.pubsub.project_id is required when publisher.kind is pubsub")
	}
	if c.Publisher.Kind == KindKafka && len(c.Publisher.Kafka.Brokers) == 0 {
		return fmt.Errorf("publisher.kafka.brokers is required when publisher.kind is kafka")
	}
	if err := oneOf("status.kind", c.Status.Kind, KindMemory, KindRedis); err != nil {
		return err
	}
	if c.Status.Kind == KindRedis && c.Status.Redis.Addr == "" {
		return fmt.Errorf("status.redis.addr is required when status.kind is redis")
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	if lo.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value)
}
