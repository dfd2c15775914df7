package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/jwnews/jw-news-reader-api/internal/api"
	"github.com/jwnews/jw-news-reader-api/internal/config"
	"github.com/jwnews/jw-news-reader-api/internal/enrich"
	"github.com/jwnews/jw-news-reader-api/internal/extract"
	"github.com/jwnews/jw-news-reader-api/internal/logger"
	"github.com/jwnews/jw-news-reader-api/internal/scheduler"
	"github.com/jwnews/jw-news-reader-api/internal/store"
	"github.com/jwnews/jw-news-reader-api/pkg/httpclient"
	"github.com/jwnews/jw-news-reader-api/pkg/publishers"
	"github.com/jwnews/jw-news-reader-api/pkg/sources"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the harvester and the query API",
	Long: `Serve starts the scheduled harvester and the HTTP API in one process.
Harvest cycles run on the configured cron cadence; the API only reads
from the article cache and never triggers fetches of its own.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	sched, st, srcs, err := buildHarvester(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}

	extractor := extract.New(httpclient.NewRestyClient(cfg.Extract.Timeout), log, extract.Options{
		AllowedHosts: cfg.Extract.AllowedHosts,
		Timeout:      cfg.Extract.Timeout,
		UserAgent:    cfg.Extract.UserAgent,
		MaxBodyBytes: cfg.Extract.MaxBodyBytes,
	})

	var middleware []gin.HandlerFunc
	if cfg.Server.BasicAuthUser != "" && cfg.Server.BasicAuthPass != "" {
		middleware = append(middleware, api.BasicAuth(cfg.Server.BasicAuthUser, cfg.Server.BasicAuthPass))
	}

	router := api.NewRouter(cfg.Server.Mode, api.NewServer(st, sched, extractor), middleware...)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	sched.Start()
	log.InfoObj("service started", "startup", map[string]any{
		"port":    cfg.Server.Port,
		"sources": len(srcs),
		"version": version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		sched.Stop()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.InfoObj("shutting down", "shutdown", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WarnObj("http shutdown incomplete", "shutdown_error", map[string]any{
			"error": err.Error(),
		})
	}
	sched.Stop()

	if err := st.SaveFile(cfg.Store.SnapshotPath); err != nil {
		log.ErrorObj("final snapshot failed", "snapshot_error", map[string]any{
			"path":  cfg.Store.SnapshotPath,
			"error": err.Error(),
		})
	}
	return nil
}

// buildHarvester wires the full harvest pipeline: source adapters,
// cache restored from its snapshot, optional enrichment and publishers,
// and the scheduler on top.
func buildHarvester(ctx context.Context, cfg *config.Config, log logger.Logger) (*scheduler.Scheduler, *store.Store, []sources.Source, error) {
	srcs, err := sources.LoadFile(cfg.SourcesFile)
	if err != nil {
		return nil, nil, nil, err
	}

	client := httpclient.NewRestyClient(cfg.Scheduler.SourceTimeout)
	registry := sources.DefaultRegistry(client)

	st := store.New()
	if restored, err := st.LoadFile(cfg.Store.SnapshotPath); err != nil {
		// A broken snapshot means a cold cache, not a dead service.
		log.WarnObj("snapshot restore failed", "snapshot_error", map[string]any{
			"path":  cfg.Store.SnapshotPath,
			"error": err.Error(),
		})
	} else if restored > 0 {
		log.InfoObj("article cache restored", "snapshot_restore", map[string]any{
			"path":     cfg.Store.SnapshotPath,
			"articles": restored,
		})
	}

	pubs, err := buildPublishers(ctx, cfg.PublishersFile, log)
	if err != nil {
		return nil, nil, nil, err
	}

	var enricher scheduler.Enricher
	if cfg.Enrich.Enabled {
		enricher = enrich.New(client, log, enrich.Options{
			Workers:      cfg.Enrich.Workers,
			Timeout:      cfg.Enrich.Timeout,
			RequestDelay: cfg.Enrich.RequestDelay,
			MaxPerCycle:  cfg.Enrich.MaxPerCycle,
		})
	}

	sched, err := scheduler.New(
		scheduler.Deps{
			Registry:   registry,
			Sources:    srcs,
			Store:      st,
			Enricher:   enricher,
			Publishers: pubs,
			Log:        log,
		},
		scheduler.Options{
			CronSpec:         cfg.Scheduler.CronSpec,
			StartupDelay:     cfg.Scheduler.StartupDelay,
			SourceTimeout:    cfg.Scheduler.SourceTimeout,
			Concurrency:      cfg.Scheduler.Concurrency,
			FailureThreshold: cfg.Scheduler.FailureThreshold,
			BackoffBase:      cfg.Scheduler.BackoffBase,
			BackoffCap:       cfg.Scheduler.BackoffCap,
			Retention:        cfg.Scheduler.Retention,
			SnapshotPath:     cfg.Store.SnapshotPath,
		},
	)
	if err != nil {
		return nil, nil, nil, err
	}

	return sched, st, srcs, nil
}

func buildPublishers(ctx context.Context, path string, log publishers.Logger) ([]publishers.Publisher, error) {
	if path == "" {
		return nil, nil
	}
	reg, err := publishers.LoadRegistry(path)
	if err != nil {
		return nil, err
	}
	return publishers.BuildAll(ctx, publishers.DefaultRegistry(), reg.Enabled(), log)
}
