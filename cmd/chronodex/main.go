package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/chronodex/internal/config"
	dbRedis "github.com/kailas-cloud/chronodex/internal/db/redis"
	"github.com/kailas-cloud/chronodex/internal/ingest"
	logpkg "github.com/kailas-cloud/chronodex/internal/logger"
	"github.com/kailas-cloud/chronodex/internal/metrics"
	"github.com/kailas-cloud/chronodex/internal/registry"
	chiTransport "github.com/kailas-cloud/chronodex/internal/transport/chi"
	"github.com/kailas-cloud/chronodex/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting chronodex ingest gateway",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	metrics.RegisterIngestMetrics()

	specs := registry.New(store)
	sink := ingest.NewStoreSink(store, "chronodex", logger)
	ingestSvc := ingest.NewService(specs, sink, ingest.Config{
		MaxBatchSize:    cfg.Ingest.MaxBatchSize,
		MaxBufferedRows: cfg.Ingest.MaxBufferedRows,
		FlushInterval:   time.Duration(cfg.Ingest.FlushIntervalSec) * time.Second,
	}, logger)

	flushCtx, stopFlusher := context.WithCancel(ctx)
	flusherDone := make(chan struct{})
	go func() {
		defer close(flusherDone)
		ingestSvc.Run(flushCtx)
	}()

	server := chiTransport.NewServer(specs, ingestSvc, store, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(server.RequestLogger)
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	// Stop the flusher last; its exit path performs the final flush.
	stopFlusher()
	select {
	case <-flusherDone:
	case <-shutdownCtx.Done():
		logger.Error("Timed out waiting for final flush")
	}

	logger.Info("Shutdown complete")
}
