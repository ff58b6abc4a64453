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
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig(os.LookupEnv)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a.checkDatabase(ctx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	logger.Info("server listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("db_addr", cfg.DB.dsnConfig().Addr()),
		zap.Int("pool_capacity", cfg.DB.PoolCapacity),
		zap.Duration("acquire_timeout", cfg.DB.AcquireTimeout),
	)
	logger.Info("rate limit",
		zap.Bool("enabled", cfg.RateLimit.Enabled),
		zap.String("algorithm", cfg.RateLimit.Algorithm),
		zap.String("store", cfg.RateLimit.Store),
		zap.Int("max", cfg.RateLimit.Max),
		zap.Duration("window", cfg.RateLimit.Window),
		zap.String("stats_backend", cfg.Stats.Backend),
		zap.Int("concurrency_max", cfg.Concurrency.Max),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// primeiro drena os requests em voo, depois as conexões do pool
		httpErr := srv.Shutdown(shutdownCtx)
		poolErr := a.Close(shutdownCtx)
		return errors.Join(httpErr, poolErr)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
