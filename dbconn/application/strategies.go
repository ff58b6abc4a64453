package application

import (
	"context"
	"errors"

	"dbconn-gateway/dbconn/domain"

	"go.uber.org/zap"
)

// Strategies agrupa a factory (conexão avulsa) e o pool (lease manual).
type Strategies struct {
	Factory domain.Factory
	Pool    domain.Pool
	Logger  *zap.Logger
}

var errNoFactory = errors.New("dbconn: no connection factory configured")
var errNoPool = errors.New("dbconn: no connection pool configured")

// WithConn abre uma conexão exclusiva, roda fn e fecha a conexão.
// Erro no Close é apenas logado; o resultado de fn prevalece.
func (s Strategies) WithConn(ctx context.Context, fn func(domain.Conn) error) error {
	if s.Factory == nil {
		return errNoFactory
	}
	conn, err := s.Factory.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			s.logger().Warn("close connection failed", zap.Uint64("conn_id", conn.ID()), zap.Error(cerr))
		}
	}()

	return fn(conn)
}

// WithLease adquire um lease, roda fn e devolve o lease.
func (s Strategies) WithLease(ctx context.Context, fn func(domain.Lease) error) error {
	if s.Pool == nil {
		return errNoPool
	}
	lease, err := s.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	return fn(lease)
}

func (s Strategies) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Executor é a API de execução automática: acquire -> query -> release.
type Executor struct {
	Pool domain.Pool
}

func (e Executor) Run(ctx context.Context, query string, args ...any) (domain.Rows, error) {
	if e.Pool == nil {
		return nil, errNoPool
	}
	return e.Pool.Execute(ctx, query, args...)
}
