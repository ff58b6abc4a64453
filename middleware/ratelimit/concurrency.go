package ratelimit

import (
	"errors"
	"net/http"
	"time"

	"dbconn-gateway/internal/httpx"
	"dbconn-gateway/middleware/ratelimit/application"
	"dbconn-gateway/middleware/ratelimit/domain"
	"dbconn-gateway/middleware/ratelimit/infra"

	"go.uber.org/zap"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	Logger         *zap.Logger
}

// ConcurrencyMiddleware limita requisições em voo. Max <= 0 desliga.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				if !errors.Is(err, domain.ErrNoSlot) {
					// cliente desistiu; não há a quem responder
					return
				}
				opts.Logger.Debug("concurrency limit reached", zap.Int("max", opts.Max), zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", "1")
				_ = httpx.WriteJSON(w, opts.RejectStatus, httpx.ErrorBody{Error: http.StatusText(opts.RejectStatus), Details: err.Error()})
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
