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

	"go.uber.org/zap"

	"github.com/kailas-cloud/cvcontext/internal/app"
	"github.com/kailas-cloud/cvcontext/internal/config"
	logpkg "github.com/kailas-cloud/cvcontext/internal/logger"
	"github.com/kailas-cloud/cvcontext/internal/metrics"
	chiTransport "github.com/kailas-cloud/cvcontext/internal/transport/chi"
	"github.com/kailas-cloud/cvcontext/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logpkg.NewLogger(env, logpkg.Options{
		Level:  cfg.Logging.Level,
		Fields: map[string]string{"service": "cvcontext", "version": version.Version},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, env, cfg, logger)
	stop()

	if err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// run serves until ctx is cancelled, then drains HTTP and closes the runtime.
func run(ctx context.Context, env string, cfg config.Config, logger *zap.Logger) error {
	logger.Info("Starting cvcontext API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_target", cfg.Store.Target),
		zap.String("default_model", cfg.Embedding.DefaultModel),
		zap.String("default_collection", cfg.Retrieval.DefaultCollection),
	)

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()
	metrics.RegisterWorkerMetrics()
	metrics.RegisterHTTPMetrics()

	// every cache lives in rt, nothing in package globals
	rt := app.New(cfg, logger)
	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}
	shutdown := time.Duration(cfg.HTTP.ShutdownSec) * time.Second
	defer func() {
		if err := rt.Close(shutdown); err != nil {
			logger.Error("Error closing runtime", zap.Error(err))
		}
	}()

	if cfg.Retrieval.PrewarmOnStart {
		prewarm(ctx, rt, time.Duration(cfg.Store.ReadinessTimeout)*time.Second+time.Minute, logger)
	}

	server := chiTransport.NewServer(chiTransport.Deps{
		Fetcher:     rt.Fetcher,
		Collections: rt,
		Ingest:      rt.Ingest,
		Sections:    rt.Sections,
		Admin:       rt,
		Health:      rt.Health,
		Prewarmed:   rt.Prewarm.Prewarmed,
	}, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           chiTransport.NewRouter(server, cfg.Auth.APIKeys, logger),
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdown)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// prewarm loads the default models before the listener opens. A failure is
// logged and the server still starts; requests fall back to lazy loading.
func prewarm(ctx context.Context, rt *app.Runtime, timeout time.Duration, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := rt.PrewarmDefaults(ctx); err != nil {
		logger.Error("Prewarm on start failed", zap.Error(err))
		return
	}
	logger.Info("Prewarm on start completed", zap.Duration("duration", time.Since(start)))
}
