package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/yacrawler/internal/config"
	"github.com/JakeFAU/yacrawler/internal/logging"
	"github.com/JakeFAU/yacrawler/internal/server"
)

const shutdownTimeout = 10 * time.Second

type crawlOptions struct {
	seeds      []string
	maxDepth   int
	maxWorkers int
}

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls from the given seeds",
		Long: `Runs one crawl from the seeds given with --seed (or crawler.seeds in the
config file). Prints a JSON summary of the run when it finishes. SIGINT and
SIGTERM cancel the crawl; pages already in flight are allowed to finish.`,
		Example: `  yacrawler crawl --seed https://example.com --max-depth 2 --max-workers 8`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.seeds, "seed", nil, "seed URL (repeatable)")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", 0, "maximum link depth from the seeds")
	cmd.Flags().IntVar(&opts.maxWorkers, "max-workers", 0, "maximum number of concurrent fetches")
	return cmd
}

func runCrawl(cmd *cobra.Command, opts *crawlOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if len(cfg.Crawler.Seeds) == 0 {
		return errors.New("at least one seed is required (--seed or crawler.seeds)")
	}

	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	restore := zap.ReplaceGlobals(logger)
	defer restore()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := server.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	summary, runErr := app.Crawl(ctx, cfg.Crawler.Seeds, cfg.Crawler.MaxDepth)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Close(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	if runErr != nil {
		return runErr
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// loadConfig reads the config file and environment, then applies flags that
// were set explicitly.
func loadConfig(cmd *cobra.Command, opts *crawlOptions) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("read --config: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Crawler.Seeds = opts.seeds
	}
	if flags.Changed("max-depth") {
		cfg.Crawler.MaxDepth = opts.maxDepth
	}
	if flags.Changed("max-workers") {
		cfg.Crawler.MaxWorkers = opts.maxWorkers
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}
