// Package cmd defines and implements the CLI commands for the yacrawler
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "yacrawler",
		Short: "A breadth-first web crawler with bounded concurrency.",
		Long: `yacrawler crawls outward from a set of seed URLs in breadth-first
order, visiting every URL at most once, never exceeding a configured link
depth and never running more than a configured number of fetches at a time.
Every fetched page runs through a configurable pipeline of stages.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newCrawlCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
