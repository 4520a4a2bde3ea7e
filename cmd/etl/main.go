package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/weather-feature-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/weather-feature-etl/internal/adapter/kafka"
	"github.com/couchcryptid/weather-feature-etl/internal/adapter/kma"
	"github.com/couchcryptid/weather-feature-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/weather-feature-etl/internal/config"
	"github.com/couchcryptid/weather-feature-etl/internal/observability"
	"github.com/couchcryptid/weather-feature-etl/internal/pipeline"
	"github.com/couchcryptid/weather-feature-etl/internal/reference"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ref, err := reference.Load(cfg.ReferencePath)
	if err != nil {
		logger.Error("failed to load reference tables", "path", cfg.ReferencePath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := kma.NewClient(cfg, metrics, logger)
	fetcher := kma.NewFetcher(kma.NewCachedClient(client, cfg.KMACacheSize), logger)
	writer := kafkaadapter.NewWriter(cfg, logger)

	opts := []pipeline.Option{
		pipeline.WithSchedule(pipeline.Schedule{
			Offset:     cfg.ScheduleOffset,
			Lag:        cfg.TickLag,
			RunOnStart: cfg.RunOnStart,
		}),
	}

	// Optional local archive of raw blobs and feature batches.
	var loader pipeline.BatchLoader = writer
	var archive httpadapter.Archive
	var store *sqlite.Store
	var readiness pipeline.Readiness
	if cfg.ArchivePath != "" {
		store, err = sqlite.Open(ctx, cfg.ArchivePath, logger)
		if err != nil {
			logger.Error("failed to open archive", "path", cfg.ArchivePath, "error", err)
			os.Exit(1)
		}
		loader = pipeline.FanOut{store, writer}
		archive = store
		readiness = append(readiness, store)
		opts = append(opts, pipeline.WithArchiver(store))
		logger.Info("archive enabled", "path", cfg.ArchivePath)
	} else {
		logger.Info("archive disabled")
	}

	p := pipeline.New(fetcher, pipeline.NewBuilder(ref), loader, logger, metrics, opts...)

	readiness = append(pipeline.Readiness{p}, readiness...)
	srv := httpadapter.NewServer(cfg.HTTPAddr, readiness, archive, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("archive close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
