package infra

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dbconn-gateway/dbconn/domain"

	"go.uber.org/zap"
)

// Pool é um pool limitado de conexões reutilizáveis.
//
// Invariante: idle + leased + opening <= capacity, sempre. Quando não há
// conexão livre nem capacidade, quem chama entra numa fila FIFO e recebe
// diretamente a conexão devolvida (ou a vaga liberada) pelo próximo Release.
type Pool struct {
	factory        domain.Factory
	capacity       int
	acquireTimeout time.Duration
	idleTimeout    time.Duration
	now            func() time.Time
	logger         *zap.Logger

	mu      sync.Mutex
	idle    []idleConn // LIFO: a mais recente sai primeiro
	leased  int
	opening int
	waiters []chan grant
	closed  bool

	drained       chan struct{}
	drainedClosed bool

	acquired  uint64
	created   uint64
	discarded uint64
	timeouts  uint64
	waited    time.Duration
}

var _ domain.Pool = (*Pool)(nil)

type idleConn struct {
	conn  domain.Conn
	since time.Time
}

// grant é o que um waiter recebe: uma conexão pronta ou, com conn nil,
// uma vaga já reservada (opening) para discar uma conexão nova.
type grant struct {
	conn domain.Conn
}

type PoolOption func(*Pool)

// WithAcquireTimeout define quanto Acquire espera por uma conexão. 0 desliga o timeout.
func WithAcquireTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.acquireTimeout = d }
}

// WithIdleTimeout descarta conexões ociosas há mais que d. 0 mantém para sempre.
func WithIdleTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.idleTimeout = d }
}

func WithPoolLogger(l *zap.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// WithPoolClock troca o relógio (testes).
func WithPoolClock(now func() time.Time) PoolOption {
	return func(p *Pool) { p.now = now }
}

func NewPool(factory domain.Factory, capacity int, opts ...PoolOption) (*Pool, error) {
	if factory == nil {
		return nil, errors.New("dbconn: pool requires a factory")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("dbconn: pool capacity must be positive, got %d", capacity)
	}

	p := &Pool{
		factory:        factory,
		capacity:       capacity,
		acquireTimeout: 5 * time.Second,
		now:            time.Now,
		logger:         zap.NewNop(),
		drained:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.acquireTimeout < 0 || p.idleTimeout < 0 {
		return nil, errors.New("dbconn: pool timeouts must not be negative")
	}
	p.logger = p.logger.With(zap.String("component", "db_pool"))
	return p, nil
}

func (p *Pool) Capacity() int { return p.capacity }

// Acquire entrega um lease. Sem conexão disponível dentro do timeout de
// aquisição, retorna um erro que satisfaz errors.Is(err, domain.ErrPoolExhausted).
func (p *Pool) Acquire(ctx context.Context) (domain.Lease, error) {
	conn, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Lease{pool: p, conn: conn}, nil
}

// Execute faz acquire -> query -> release. O release acontece em todos os caminhos.
func (p *Pool) Execute(ctx context.Context, query string, args ...any) (domain.Rows, error) {
	l, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer l.Release()

	return l.Query(ctx, query, args...)
}

func (p *Pool) acquire(parent context.Context) (domain.Conn, error) {
	ctx := parent
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, p.acquireTimeout)
		defer cancel()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, domain.ErrPoolClosed
	}

	var stale []domain.Conn
	for len(p.idle) > 0 {
		n := len(p.idle) - 1
		ic := p.idle[n]
		p.idle = p.idle[:n]

		if p.idleTimeout > 0 && p.now().Sub(ic.since) > p.idleTimeout {
			p.discarded++
			stale = append(stale, ic.conn)
			continue
		}

		p.leased++
		p.acquired++
		p.mu.Unlock()
		p.closeAll(stale, "idle timeout")
		return ic.conn, nil
	}

	if p.totalLocked() < p.capacity {
		p.opening++
		p.mu.Unlock()
		p.closeAll(stale, "idle timeout")
		return p.dial(ctx)
	}

	w := make(chan grant, 1)
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()
	p.closeAll(stale, "idle timeout")

	start := p.now()
	select {
	case g, ok := <-w:
		p.addWait(p.now().Sub(start))
		if !ok {
			return nil, domain.ErrPoolClosed
		}
		if g.conn != nil {
			return g.conn, nil
		}
		return p.dial(ctx)

	case <-ctx.Done():
	}

	p.mu.Lock()
	if p.removeWaiterLocked(w) {
		p.timeouts++
		p.waited += p.now().Sub(start)
		p.mu.Unlock()

		if err := parent.Err(); err != nil {
			return nil, err
		}
		p.logger.Warn("pool exhausted",
			zap.Int("capacity", p.capacity),
			zap.Duration("acquire_timeout", p.acquireTimeout),
		)
		return nil, fmt.Errorf("%w after %s", domain.ErrPoolExhausted, p.acquireTimeout)
	}
	p.mu.Unlock()

	// o grant chegou junto com o timeout: já está no buffer (ou o canal foi fechado)
	g, ok := <-w
	p.addWait(p.now().Sub(start))
	if !ok {
		return nil, domain.ErrPoolClosed
	}
	if g.conn != nil {
		return g.conn, nil
	}

	p.mu.Lock()
	p.opening--
	p.timeouts++
	p.handoffLocked()
	p.signalDrainLocked()
	p.mu.Unlock()

	if err := parent.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w after %s", domain.ErrPoolExhausted, p.acquireTimeout)
}

// dial abre uma conexão numa vaga já reservada em opening.
func (p *Pool) dial(ctx context.Context) (domain.Conn, error) {
	conn, err := p.factory.Open(ctx)

	p.mu.Lock()
	p.opening--
	if err != nil {
		p.handoffLocked()
		p.signalDrainLocked()
		p.mu.Unlock()

		if !domain.IsConnectionError(err) {
			err = &domain.ConnectionError{Err: err}
		}
		return nil, err
	}
	if p.closed {
		p.signalDrainLocked()
		p.mu.Unlock()
		_ = conn.Close()
		return nil, domain.ErrPoolClosed
	}
	p.leased++
	p.created++
	p.acquired++
	p.mu.Unlock()

	p.logger.Debug("connection created", zap.Uint64("conn_id", conn.ID()))
	return conn, nil
}

// put devolve a conexão de um lease. healthy=false descarta a conexão e
// libera a vaga para o próximo da fila.
func (p *Pool) put(conn domain.Conn, healthy bool) {
	p.mu.Lock()
	p.leased--

	if p.closed || !healthy {
		if !healthy {
			p.discarded++
			p.handoffLocked()
		}
		p.signalDrainLocked()
		p.mu.Unlock()

		reason := "pool closed"
		if !healthy {
			reason = reasonFatal
		}
		p.closeAll([]domain.Conn{conn}, reason)
		return
	}

	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.leased++
		p.acquired++
		w <- grant{conn: conn}
		p.mu.Unlock()
		return
	}

	p.idle = append(p.idle, idleConn{conn: conn, since: p.now()})
	p.mu.Unlock()
}

// handoffLocked passa uma vaga livre ao primeiro waiter, que vai discar.
func (p *Pool) handoffLocked() {
	if p.closed || len(p.waiters) == 0 {
		return
	}
	w := p.waiters[0]
	p.waiters = p.waiters[1:]
	p.opening++
	w <- grant{}
}

func (p *Pool) removeWaiterLocked(w chan grant) bool {
	for i, c := range p.waiters {
		if c == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Pool) signalDrainLocked() {
	if p.closed && p.leased == 0 && p.opening == 0 && !p.drainedClosed {
		p.drainedClosed = true
		close(p.drained)
	}
}

func (p *Pool) totalLocked() int {
	return len(p.idle) + p.leased + p.opening
}

func (p *Pool) addWait(d time.Duration) {
	p.mu.Lock()
	p.waited += d
	p.mu.Unlock()
}

const reasonFatal = "fatal error"

func (p *Pool) closeAll(conns []domain.Conn, reason string) {
	for _, c := range conns {
		if err := c.Close(); err != nil {
			p.logger.Warn("close connection failed", zap.Uint64("conn_id", c.ID()), zap.Error(err))
			continue
		}
		if reason == reasonFatal {
			p.logger.Warn("connection discarded", zap.Uint64("conn_id", c.ID()), zap.String("reason", reason))
			continue
		}
		p.logger.Debug("connection discarded", zap.Uint64("conn_id", c.ID()), zap.String("reason", reason))
	}
}

// Close fecha o pool: waiters recebem ErrPoolClosed, conexões ociosas são
// fechadas e Close espera os leases ativos voltarem (ou ctx encerrar).
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	var idle []domain.Conn
	if !p.closed {
		p.closed = true
		for _, w := range p.waiters {
			close(w)
		}
		p.waiters = nil
		for _, ic := range p.idle {
			idle = append(idle, ic.conn)
		}
		p.idle = nil
		p.signalDrainLocked()
	}
	p.mu.Unlock()

	var errs []error
	for _, c := range idle {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	select {
	case <-p.drained:
		return errors.Join(errs...)
	case <-ctx.Done():
		return errors.Join(append(errs, fmt.Errorf("dbconn: pool drain: %w", ctx.Err()))...)
	}
}

func (p *Pool) Stats() domain.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return domain.PoolStats{
		Capacity:        p.capacity,
		Idle:            len(p.idle),
		Leased:          p.leased,
		Opening:         p.opening,
		Waiters:         len(p.waiters),
		Acquired:        p.acquired,
		Created:         p.created,
		Discarded:       p.discarded,
		AcquireTimeouts: p.timeouts,
		WaitDuration:    p.waited,
	}
}

// Lease é a posse de uma conexão do Pool até Release.
//
// Queries feitas pelo próprio lease que falham com erro fatal marcam a
// conexão para descarte. Quem usa Conn() direto deve chamar MarkBroken.
type Lease struct {
	pool     *Pool
	conn     domain.Conn
	broken   atomic.Bool
	released atomic.Bool
}

var _ domain.Lease = (*Lease)(nil)

func (l *Lease) Conn() domain.Conn { return l.conn }

func (l *Lease) Query(ctx context.Context, query string, args ...any) (domain.Rows, error) {
	rows, err := l.conn.Query(ctx, query, args...)
	if domain.IsConnFatal(err) {
		l.broken.Store(true)
	}
	return rows, err
}

// MarkBroken faz o Release descartar a conexão em vez de devolvê-la.
func (l *Lease) MarkBroken() { l.broken.Store(true) }

// Release devolve a conexão ao pool. Chamar duas vezes é bug e causa panic.
func (l *Lease) Release() {
	if !l.released.CompareAndSwap(false, true) {
		panic("dbconn: lease released twice")
	}
	l.pool.put(l.conn, !l.broken.Load())
}
