package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"dbconn-gateway/dbconn"
	"dbconn-gateway/dbconn/application"
	"dbconn-gateway/dbconn/infra"
	"dbconn-gateway/internal/metrics"
	"dbconn-gateway/middleware/ratelimit"
	rldomain "dbconn-gateway/middleware/ratelimit/domain"
	rlinfra "dbconn-gateway/middleware/ratelimit/infra"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const metricsNamespace = "dbconn"

// app é o grafo de dependências do processo.
type app struct {
	handler http.Handler
	pool    *infra.Pool
	redis   *redis.Client
	logger  *zap.Logger
}

// buildApp monta pool, limiter, stats e rotas. ctx controla os janitors.
func buildApp(ctx context.Context, cfg config, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger}

	factory, err := infra.NewFactoryFromDSN(cfg.DB.dsnConfig(), infra.WithFactoryLogger(logger))
	if err != nil {
		return nil, err
	}
	pool, err := infra.NewPool(factory, cfg.DB.PoolCapacity,
		infra.WithAcquireTimeout(cfg.DB.AcquireTimeout),
		infra.WithIdleTimeout(cfg.DB.IdleTimeout),
		infra.WithPoolLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	a.pool = pool

	collector := metrics.NewCollector(metricsNamespace, logger)
	if err := collector.RegisterPool(metricsNamespace, "main", pool.Stats); err != nil {
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	if cfg.needsRedis() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := a.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = a.redis.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
	}

	limiter, err := a.newLimiter(ctx, cfg.RateLimit)
	if err != nil {
		a.closeRedis()
		return nil, err
	}

	stats := rlinfra.MultiStats{collector}
	switch cfg.Stats.Backend {
	case backendMemory:
		stats = append(stats, rlinfra.NewMemoryStatsStore(rlinfra.WithTrackKeys(cfg.Stats.TrackKeys)))
	case backendRedis:
		stats = append(stats, rlinfra.NewRedisStatsStore(a.redis,
			rlinfra.WithStatsPrefix(cfg.Stats.Prefix),
			rlinfra.WithStatsTTL(cfg.Stats.TTL),
			rlinfra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		))
	}

	handlers := &dbconn.Handlers{
		Strategies: application.Strategies{Factory: factory, Pool: pool, Logger: logger},
		Executor:   application.Executor{Pool: pool},
		Query:      cfg.DB.UsersQuery,
		Logger:     logger.With(zap.String("component", "handlers")),
		Observer:   collector,
	}

	rl := ratelimit.Options{
		Limiter:             limiter,
		Stats:               stats,
		KeyHeader:           cfg.RateLimit.KeyHeader,
		TrustXForwardedFor:  cfg.RateLimit.TrustXFF,
		RejectStatus:        cfg.RateLimit.Status,
		Message:             cfg.RateLimit.Message,
		FailOpen:            cfg.RateLimit.FailOpen,
		AddRateLimitHeaders: cfg.RateLimit.AddHeaders,
		Logger:              logger,
	}

	a.handler = newRouter(routerDeps{
		logger:      logger,
		handlers:    handlers,
		pool:        pool,
		metrics:     collector,
		rateLimit:   rl,
		rateEnabled: cfg.RateLimit.Enabled,
		concurrency: ratelimit.ConcurrencyOptions{
			Max:            cfg.Concurrency.Max,
			AcquireTimeout: cfg.Concurrency.Timeout,
			Logger:         logger,
		},
	})
	return a, nil
}

func (a *app) newLimiter(ctx context.Context, cfg rateLimitConfig) (rldomain.Limiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch {
	case cfg.Algorithm == algoTokenBucket:
		s := rlinfra.NewTokenBucketForWindow(cfg.Max, cfg.Window)
		s.StartJanitor(ctx)
		return s, nil

	case cfg.Store == backendRedis:
		s, err := rlinfra.NewRedisWindowStore(a.redis, cfg.Max, cfg.Window)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		s, err := rlinfra.NewFixedWindowStore(cfg.Max, cfg.Window)
		if err != nil {
			return nil, err
		}
		s.StartJanitor(ctx)
		return s, nil
	}
}

// checkDatabase abre (e devolve ao pool) uma conexão para avisar cedo se o
// banco estiver fora. Não impede a subida.
func (a *app) checkDatabase(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	lease, err := a.pool.Acquire(ctx)
	if err != nil {
		a.logger.Warn("database not reachable at startup", zap.Error(err))
		return
	}
	defer lease.Release()

	if err := lease.Conn().Ping(ctx); err != nil {
		if l, ok := lease.(*infra.Lease); ok {
			l.MarkBroken()
		}
		a.logger.Warn("database ping failed", zap.Error(err))
		return
	}
	a.logger.Info("database reachable", zap.Uint64("conn_id", lease.Conn().ID()))
}

// Close drena o pool e fecha o Redis. Chamar depois do HTTP parar.
func (a *app) Close(ctx context.Context) error {
	err := a.pool.Close(ctx)
	return errors.Join(err, a.closeRedis())
}

func (a *app) closeRedis() error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}
