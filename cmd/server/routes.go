package main

import (
	"net/http"

	"dbconn-gateway/dbconn"
	"dbconn-gateway/dbconn/domain"
	"dbconn-gateway/internal/httpx"
	"dbconn-gateway/internal/metrics"
	"dbconn-gateway/middleware/httplog"
	"dbconn-gateway/middleware/ratelimit"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type routerDeps struct {
	logger      *zap.Logger
	handlers    *dbconn.Handlers
	pool        domain.Pool
	metrics     *metrics.Collector
	rateLimit   ratelimit.Options
	rateEnabled bool
	concurrency ratelimit.ConcurrencyOptions
}

// newRouter monta as rotas. /healthz e /metrics ficam fora do rate limit.
func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		httplog.RequestID(),
		httplog.Recovery(d.logger),
		httplog.ResponseTime(),
		httplog.AccessLog(d.logger),
	)
	if d.metrics != nil {
		r.Use(httplog.Metrics(d.metrics))
		r.Method(http.MethodGet, "/metrics", d.metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if d.pool != nil {
			body["pool"] = d.pool.Stats()
		}
		_ = httpx.WriteJSON(w, http.StatusOK, body)
	})

	r.Group(func(r chi.Router) {
		if d.rateEnabled {
			r.Use(ratelimit.Middleware(d.rateLimit))
		}
		r.Use(ratelimit.ConcurrencyMiddleware(d.concurrency))
		d.handlers.Register(r)
	})
	return r
}
