// Package main is the entry point for the lakerunner server binary.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lakerunner/internal/api"
	"lakerunner/internal/config"
	"lakerunner/internal/domain"
	"lakerunner/internal/engine"
	"lakerunner/internal/jobs"
	"lakerunner/internal/schema"
	"lakerunner/internal/store"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "lakerunner",
		Short:         "SQL query orchestration service",
		Long:          "Asynchronous SQL query orchestration over embedded DuckDB and networked ClickHouse engines, with a versioned schema registry.",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var handler slog.Handler
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	// Metadata stores: SQLite when a path is configured, in-memory otherwise.
	var (
		jobStore    domain.JobStore
		schemaStore domain.SchemaStore
	)
	if cfg.MetaDBPath != "" {
		writeDB, readDB, err := store.OpenSQLitePair(cfg.MetaDBPath, 0)
		if err != nil {
			return fmt.Errorf("open metastore: %w", err)
		}
		defer writeDB.Close()
		defer readDB.Close()
		if err := store.RunMigrations(writeDB); err != nil {
			return fmt.Errorf("migrate metastore: %w", err)
		}
		jobStore = store.NewSQLiteJobStore(writeDB, readDB)
		schemaStore = store.NewSQLiteSchemaStore(writeDB, readDB)
		logger.Info("metastore opened", "path", cfg.MetaDBPath)
	} else {
		jobStore = store.NewMemoryJobStore()
		schemaStore = store.NewMemorySchemaStore()
	}

	// Engine adapters.
	duck, err := engine.OpenDuckDB(cfg.DuckDBPath, logger)
	if err != nil {
		return fmt.Errorf("open duckdb: %w", err)
	}
	adapters := []engine.Adapter{duck}

	if cfg.ClickHouse.Enabled() {
		ch, err := engine.OpenClickHouse(engine.ClickHouseOptions{
			Addr:           cfg.ClickHouse.Addr,
			Database:       cfg.ClickHouse.Database,
			Username:       cfg.ClickHouse.Username,
			Password:       cfg.ClickHouse.Password,
			MaxConcurrency: cfg.ClickHouse.MaxConcurrency,
		}, logger)
		if err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		adapters = append(adapters, ch)
	}

	registry := engine.NewRegistry(adapters...)
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Error("closing engine adapters", "error", err)
		}
	}()

	manager := jobs.NewManager(jobStore, registry, jobs.Options{CancelGrace: cfg.CancelGrace}, logger)
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start job manager: %w", err)
	}

	var dialects []string
	for _, d := range registry.Descriptors() {
		dialects = append(dialects, d.ID)
	}
	schemas := schema.NewRegistry(schemaStore, dialects, logger)

	janitor := store.NewJanitor(jobStore, cfg.RetentionTTL, cfg.RetentionSchedule, logger)
	if err := janitor.Start(); err != nil {
		return fmt.Errorf("start retention janitor: %w", err)
	}
	defer janitor.Stop()

	h := api.NewHandler(manager, schemas, registry, logger)
	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: h.Router(api.RouterConfig{
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			RateLimitRPS:       cfg.RateLimitRPS,
			RateLimitBurst:     cfg.RateLimitBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr, "env", cfg.Env, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("job manager shutdown", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}
