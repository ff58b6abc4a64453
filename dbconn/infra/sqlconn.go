package infra

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"

	"dbconn-gateway/dbconn/domain"
)

// SQLConn fixa uma única sessão de um *sql.DB exclusivo.
//
// O *sql.DB pertence à conexão e é fechado junto com ela, então uma SQLConn
// equivale a exatamente uma sessão de rede.
type SQLConn struct {
	id       uint64
	db       *sql.DB
	conn     *sql.Conn
	classify func(error) bool
	closed   atomic.Bool
}

var _ domain.Conn = (*SQLConn)(nil)

// NewSQLConn limita db a uma conexão e estabelece a sessão.
// Em caso de erro, db é fechado.
func NewSQLConn(ctx context.Context, id uint64, db *sql.DB, classify func(error) bool) (*SQLConn, error) {
	if classify == nil {
		classify = IsFatalError
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLConn{id: id, db: db, conn: conn, classify: classify}, nil
}

func (c *SQLConn) ID() uint64 { return c.id }

func (c *SQLConn) Query(ctx context.Context, query string, args ...any) (domain.Rows, error) {
	if c.closed.Load() {
		return nil, &domain.QueryError{Query: query, Err: domain.ErrConnClosed, Fatal: true}
	}

	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, c.queryError(query, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, c.queryError(query, err)
	}
	return out, nil
}

func (c *SQLConn) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return domain.ErrConnClosed
	}
	return c.conn.PingContext(ctx)
}

// Close encerra a sessão. Chamadas repetidas não fazem nada.
func (c *SQLConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.conn.Close()
	if errors.Is(err, sql.ErrConnDone) {
		err = nil
	}
	return errors.Join(err, c.db.Close())
}

func (c *SQLConn) queryError(query string, err error) error {
	return &domain.QueryError{Query: query, Err: err, Fatal: c.classify(err)}
}
