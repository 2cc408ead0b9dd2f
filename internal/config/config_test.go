package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Empty(t, cfg.Crawler.Seeds)
	require.Equal(t, 1, cfg.Crawler.MaxDepth)
	require.Equal(t, 10, cfg.Crawler.MaxWorkers)
	require.Zero(t, cfg.Crawler.DrainTimeout())
	require.Equal(t, FetcherColly, cfg.Fetcher.Kind)
	require.Equal(t, 30*time.Second, cfg.Fetcher.Timeout())
	require.Equal(t, DiscovererRegex, cfg.Discoverer.Kind)
	require.Equal(t, []string{"record", "jsonl"}, cfg.Pipeline.Stages)
	require.Equal(t, "output.jsonl", cfg.Pipeline.Output.JSONLPath)
	require.Equal(t, KindNone, cfg.Storage.Kind)
	require.Equal(t, KindNone, cfg.Publisher.Kind)
	require.Equal(t, KindMemory, cfg.Status.Kind)
	require.Equal(t, 7*24*time.Hour, cfg.Status.Redis.TTL())
	require.Empty(t, cfg.Server.Addr)
	require.Equal(t, "info", cfg.Logging.Level)
	require.True(t, cfg.HasStage("jsonl"))
	require.False(t, cfg.HasStage("blob"))
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
crawler:
  seeds: ["https://example.com", " https://example.org "]
  max_depth: 3
  max_workers: 4
  drain_timeout_seconds: 15
  user_agent: test-agent
fetcher:
  kind: Headless
  timeout_seconds: 10
  headless:
    max_parallel: 3
discoverer:
  kind: html
  same_host: true
pipeline:
  stages: [record, markdown, blob, postgres, publish]
storage:
  kind: gcs
  prefix: raw
  gcs:
    bucket: crawl-bucket
database:
  dsn: postgres://localhost/crawl
  table: crawl_pages
publisher:
  kind: kafka
  topic: pages
  kafka:
    brokers: ["localhost:9092"]
status:
  kind: redis
  redis:
    addr: redis:6379
    ttl_seconds: 60
server:
  addr: ":9090"
logging:
  development: true
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, []string{"https://example.com", "https://example.org"}, cfg.Crawler.Seeds)
	require.Equal(t, 3, cfg.Crawler.MaxDepth)
	require.Equal(t, 4, cfg.Crawler.MaxWorkers)
	require.Equal(t, 15*time.Second, cfg.Crawler.DrainTimeout())
	require.Equal(t, "test-agent", cfg.Crawler.UserAgent)
	require.Equal(t, FetcherHeadless, cfg.Fetcher.Kind)
	require.Equal(t, 3, cfg.Fetcher.Headless.MaxParallel)
	require.Equal(t, 45, cfg.Fetcher.Headless.NavTimeoutSec)
	require.True(t, cfg.Discoverer.SameHost)
	require.Equal(t, []string{"record", "markdown", "blob", "postgres", "publish"}, cfg.Pipeline.Stages)
	require.Equal(t, "crawl-bucket", cfg.Storage.GCS.Bucket)
	require.Equal(t, "crawl_pages", cfg.Database.Table)
	require.Equal(t, []string{"localhost:9092"}, cfg.Publisher.Kafka.Brokers)
	require.Equal(t, "redis:6379", cfg.Status.Redis.Addr)
	require.Equal(t, time.Minute, cfg.Status.Redis.TTL())
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.True(t, cfg.Logging.Development)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("YACRAWLER_CRAWLER_MAX_DEPTH", "5")
	t.Setenv("YACRAWLER_DISCOVERER_KIND", "html")
	t.Setenv("YACRAWLER_SERVER_ADDR", ":7070")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Crawler.MaxDepth)
	require.Equal(t, DiscovererHTML, cfg.Discoverer.Kind)
	require.Equal(t, ":7070", cfg.Server.Addr)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := map[string]func(*Config){
		"negative depth":     func(c *Config) { c.Crawler.MaxDepth = -1 },
		"no workers":         func(c *Config) { c.Crawler.MaxWorkers = 0 },
		"negative drain":     func(c *Config) { c.Crawler.DrainTimeoutSeconds = -1 },
		"relative seed":      func(c *Config) { c.Crawler.Seeds = []string{"/just/a/path"} },
		"unknown fetcher":    func(c *Config) { c.Fetcher.Kind = "curl" },
		"zero timeout":       func(c *Config) { c.Fetcher.TimeoutSeconds = 0 },
		"headless parallel":  func(c *Config) { c.Fetcher.Kind = FetcherHeadless; c.Fetcher.Headless.MaxParallel = 0 },
		"unknown discoverer": func(c *Config) { c.Discoverer.Kind = "xpath" },
		"gcs without bucket": func(c *Config) { c.Storage.Kind = KindGCS },
		"blob without store": func(c *Config) { c.Pipeline.Stages = []string{"record", "blob"} },
		"postgres no dsn":    func(c *Config) { c.Pipeline.Stages = []string{"postgres"} },
		"jsonl no path":      func(c *Config) { c.Pipeline.Output.JSONLPath = "" },
		"publish no kind":    func(c *Config) { c.Pipeline.Stages = []string{"publish"} },
		"pubsub no project":  func(c *Config) { c.Publisher.Kind = KindPubSub },
		"kafka no brokers":   func(c *Config) { c.Publisher.Kind = KindKafka },
		"unknown status":     func(c *Config) { c.Status.Kind = "etcd" },
		"redis no addr":      func(c *Config) { c.Status.Kind = KindRedis; c.Status.Redis.Addr = "" },
	}
	for name, mutate := range tests {
		cfg := valid()
		mutate(&cfg)
		require.Error(t, cfg.Validate(), name)
	}
	require.NoError(t, valid().Validate())
}
