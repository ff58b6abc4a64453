package infra

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"dbconn-gateway/dbconn/domain"
)

type fakeConn struct {
	id     uint64
	closed atomic.Bool
	// queryErr, se definido, é devolvido por toda Query.
	queryErr error
}

func (c *fakeConn) ID() uint64 { return c.id }

func (c *fakeConn) Query(_ context.Context, query string, _ ...any) (domain.Rows, error) {
	if c.closed.Load() {
		return nil, &domain.QueryError{Query: query, Err: domain.ErrConnClosed, Fatal: true}
	}
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return domain.Rows{{"conn_id": c.id}}, nil
}

func (c *fakeConn) Ping(context.Context) error {
	if c.closed.Load() {
		return domain.ErrConnClosed
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeFactory struct {
	mu    sync.Mutex
	seq   uint64
	conns []*fakeConn
	// failNext faz os próximos N Open falharem.
	failNext int
	// block, se não nil, segura Open até ser fechado.
	block chan struct{}
}

var errDialRefused = errors.New("dial tcp 127.0.0.1:3308: connect: connection refused")

func (f *fakeFactory) Open(ctx context.Context) (domain.Conn, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, &domain.ConnectionError{Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return nil, &domain.ConnectionError{Addr: "127.0.0.1:3308", Err: errDialRefused}
	}
	f.seq++
	c := &fakeConn{id: f.seq}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeFactory) opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeFactory) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.conns {
		if c.closed.Load() {
			n++
		}
	}
	return n
}
