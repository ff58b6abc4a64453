package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"dbconn-gateway/internal/httpx"
	"dbconn-gateway/middleware/ratelimit/application"
	"dbconn-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

const (
	DefaultMax    = 20
	DefaultWindow = time.Minute

	rejectError      = "Too many requests"
	unavailableError = "Rate limiter unavailable"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	Limiter            domain.Limiter
	Stats              domain.StatsStore
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	RejectStatus       int
	// RetryAfter é usado quando o limiter não sugere um valor.
	RetryAfter time.Duration
	// Message vai no campo "message" do corpo 429.
	Message  string
	FailOpen bool

	AddRateLimitHeaders bool
	Logger              *zap.Logger
	Now                 func() time.Time
}

// LimitMessage monta a mensagem padrão de rejeição.
func LimitMessage(max int, window time.Duration) string {
	if window == time.Minute {
		return fmt.Sprintf("Too many requests. Maximum %d requests per minute.", max)
	}
	return fmt.Sprintf("Too many requests. Maximum %d requests per %s.", max, window)
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Middleware aplica o limiter antes do próximo handler. Requisição rejeitada
// nunca chega ao handler: responde RejectStatus com {error, message}.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Message == "" {
		opts.Message = LimitMessage(DefaultMax, DefaultWindow)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger.With(zap.String("component", "ratelimit"))

	svc := application.Service{
		Limiter:    opts.Limiter,
		RetryAfter: opts.RetryAfter,
		FailOpen:   opts.FailOpen,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := domain.Key(opts.KeyFn(r))

			dec, err := svc.Decide(r.Context(), key)
			if err != nil {
				log.Warn("limiter failed",
					zap.String("key", string(key)),
					zap.Bool("fail_open", opts.FailOpen),
					zap.Error(err),
				)
				if !dec.Allowed {
					_ = httpx.WriteJSON(w, http.StatusInternalServerError, httpx.ErrorBody{Error: unavailableError, Details: err.Error()})
					return
				}
			}

			if opts.Stats != nil {
				ev := domain.StatsEvent{
					Key:     key,
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      opts.Now(),
				}
				if err := opts.Stats.Record(r.Context(), ev); err != nil {
					log.Debug("record stats failed", zap.Error(err))
				}
			}

			if opts.AddRateLimitHeaders && dec.Limit > 0 {
				h := w.Header()
				h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
				h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
				if !dec.ResetAt.IsZero() {
					h.Set("X-RateLimit-Reset", formatInt64(resetEpoch(dec.ResetAt)))
				}
			}

			if !dec.Allowed {
				w.Header().Set("Retry-After", formatInt64(retryAfterSeconds(dec.RetryAfter)))
				log.Debug("request rejected",
					zap.String("key", string(key)),
					zap.String("path", r.URL.Path),
					zap.Duration("retry_after", dec.RetryAfter),
				)
				_ = httpx.WriteJSON(w, opts.RejectStatus, httpx.ErrorBody{Error: rejectError, Message: opts.Message})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
