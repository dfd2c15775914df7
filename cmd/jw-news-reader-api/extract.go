package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwnews/jw-news-reader-api/internal/config"
	"github.com/jwnews/jw-news-reader-api/internal/extract"
	"github.com/jwnews/jw-news-reader-api/internal/logger"
	"github.com/jwnews/jw-news-reader-api/pkg/httpclient"
)

var extractCmd = &cobra.Command{
	Use:   "extract <url>",
	Short: "Convert one article page to reader-mode Markdown",
	Long: `Extract fetches a single article page from an allowed host and prints
its reader-mode Markdown rendition. With --json the full extraction
result (markdown, title, source URL, images) is printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().Bool("json", false, "print the full extraction result as JSON")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ex := extract.New(httpclient.NewRestyClient(cfg.Extract.Timeout), log, extract.Options{
		AllowedHosts: cfg.Extract.AllowedHosts,
		Timeout:      cfg.Extract.Timeout,
		UserAgent:    cfg.Extract.UserAgent,
		MaxBodyBytes: cfg.Extract.MaxBodyBytes,
	})

	res, err := ex.Extract(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Markdown)
	return nil
}
