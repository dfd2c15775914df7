// Package main is the jw-news-reader-api entry point: a scheduled
// article harvester plus a read-only query API over the resulting
// cache.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "jw-news-reader-api",
	Short: "News aggregation backend for jw.org articles",
	Long: `jw-news-reader-api periodically harvests articles from configured news
sources (RSS feeds, XML sitemaps, HTML listing pages), reconciles them
into a deduplicated in-memory cache, and serves them over a small HTTP
API.

Run "serve" for the long-lived service, "harvest" for a single cycle,
or "extract" to convert one article page to reader-mode Markdown.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env file is fine; real environment variables win
		// over .env values either way.
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./config.yaml or /etc/jw-news-reader-api/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
