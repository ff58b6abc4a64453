package infra

import (
	"context"
	"database/sql"
	"sync/atomic"

	"dbconn-gateway/dbconn/domain"

	"go.uber.org/zap"
)

// SQLFactory abre uma sessão nova e exclusiva a cada Open.
//
// Não há cache, limite nem retry: erro de transporte ou autenticação volta como
// *domain.ConnectionError para quem chamou.
type SQLFactory struct {
	driverName string
	dsn        string
	addr       string
	classify   func(error) bool
	logger     *zap.Logger

	seq atomic.Uint64
}

var _ domain.Factory = (*SQLFactory)(nil)

type FactoryOption func(*SQLFactory)

func WithClassifier(fn func(error) bool) FactoryOption {
	return func(f *SQLFactory) { f.classify = fn }
}

func WithFactoryLogger(l *zap.Logger) FactoryOption {
	return func(f *SQLFactory) { f.logger = l }
}

func NewSQLFactory(driverName, dsn, addr string, opts ...FactoryOption) *SQLFactory {
	f := &SQLFactory{
		driverName: driverName,
		dsn:        dsn,
		addr:       addr,
		classify:   IsFatalError,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	f.logger = f.logger.With(zap.String("component", "db_factory"))
	return f
}

// NewFactoryFromDSN monta driver e DSN a partir de cfg.
func NewFactoryFromDSN(cfg DSNConfig, opts ...FactoryOption) (*SQLFactory, error) {
	driverName, err := cfg.DriverName()
	if err != nil {
		return nil, err
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	return NewSQLFactory(driverName, dsn, cfg.Addr(), opts...), nil
}

func (f *SQLFactory) Open(ctx context.Context) (domain.Conn, error) {
	db, err := sql.Open(f.driverName, f.dsn)
	if err != nil {
		return nil, &domain.ConnectionError{Addr: f.addr, Err: err}
	}

	conn, err := NewSQLConn(ctx, f.seq.Add(1), db, f.classify)
	if err != nil {
		f.logger.Debug("connection failed", zap.String("addr", f.addr), zap.Error(err))
		return nil, &domain.ConnectionError{Addr: f.addr, Err: err}
	}

	f.logger.Debug("connection opened", zap.Uint64("conn_id", conn.ID()), zap.String("addr", f.addr))
	return conn, nil
}
