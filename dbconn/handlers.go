// Package dbconn expõe as três estratégias de conexão como rotas HTTP.
//
//	GET /normal  conexão avulsa da factory, fechada ao fim do request
//	GET /pool    lease manual do pool, devolvido ao fim do request
//	GET /pool2   execução automática (acquire -> query -> release)
//
// Sucesso responde 200 com o array de linhas; falha responde 500 com
// {error, details}. Pool esgotado responde 503 com Retry-After.
package dbconn

import (
	"errors"
	"net/http"
	"time"

	"dbconn-gateway/dbconn/application"
	"dbconn-gateway/dbconn/domain"
	"dbconn-gateway/internal/httpx"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	StrategyNormal = "normal"
	StrategyPool   = "pool"
	StrategyPool2  = "pool2"

	DefaultUsersQuery = "SELECT * FROM user"
)

// QueryObserver recebe a duração e o resultado de cada query (ex.: métricas).
type QueryObserver interface {
	ObserveQuery(strategy string, d time.Duration, err error)
}

type Handlers struct {
	Strategies application.Strategies
	Executor   application.Executor

	// Query é a query fixa executada pelas três rotas.
	Query    string
	Logger   *zap.Logger
	Observer QueryObserver
}

// Register monta as rotas em r.
func (h *Handlers) Register(r chi.Router) {
	r.Get("/normal", h.Normal)
	r.Get("/pool", h.Pool)
	r.Get("/pool2", h.Pool2)
}

func (h *Handlers) Normal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var rows domain.Rows
	err := h.Strategies.WithConn(ctx, func(conn domain.Conn) error {
		var err error
		rows, err = conn.Query(ctx, h.query())
		return err
	})
	h.respond(w, r, StrategyNormal, "Failed to load user due to database error.", start, rows, err)
}

func (h *Handlers) Pool(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var rows domain.Rows
	err := h.Strategies.WithLease(ctx, func(lease domain.Lease) error {
		var err error
		rows, err = lease.Query(ctx, h.query())
		return err
	})
	h.respond(w, r, StrategyPool, "Failed to load users due to database error.", start, rows, err)
}

func (h *Handlers) Pool2(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rows, err := h.Executor.Run(r.Context(), h.query())
	h.respond(w, r, StrategyPool2, "Failed to load user due to database error.", start, rows, err)
}

func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, strategy, msg string, start time.Time, rows domain.Rows, err error) {
	if h.Observer != nil {
		h.Observer.ObserveQuery(strategy, time.Since(start), err)
	}

	if err == nil {
		if rows == nil {
			rows = domain.Rows{}
		}
		_ = httpx.WriteJSON(w, http.StatusOK, rows)
		return
	}

	status := http.StatusInternalServerError
	if errors.Is(err, domain.ErrPoolExhausted) {
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	}

	h.logger().Error("database error",
		zap.String("strategy", strategy),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Bool("conn_fatal", domain.IsConnFatal(err)),
		zap.Error(err),
	)
	_ = httpx.WriteJSON(w, status, httpx.ErrorBody{Error: msg, Details: err.Error()})
}

func (h *Handlers) query() string {
	if h.Query == "" {
		return DefaultUsersQuery
	}
	return h.Query
}

func (h *Handlers) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
