package infra

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dbconn-gateway/dbconn/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestPool(t *testing.T, f domain.Factory, capacity int, opts ...PoolOption) *Pool {
	t.Helper()
	p, err := NewPool(f, capacity, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Close(ctx)
	})
	return p
}

func TestNewPool_RejectsInvalidConfig(t *testing.T) {
	_, err := NewPool(nil, 1)
	assert.Error(t, err)

	_, err = NewPool(&fakeFactory{}, 0)
	assert.Error(t, err)

	_, err = NewPool(&fakeFactory{}, 1, WithAcquireTimeout(-time.Second))
	assert.Error(t, err)
}

func TestPool_ReusesReleasedConnection(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, 2)

	l1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	id := l1.Conn().ID()
	l1.Release()

	l2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer l2.Release()

	assert.Equal(t, id, l2.Conn().ID())
	assert.Equal(t, 1, f.opened())
}

func TestPool_NeverExceedsCapacity(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, 3, WithAcquireTimeout(2*time.Second))

	var (
		mu      sync.Mutex
		current int
		peak    int
	)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 30; i++ {
		g.Go(func() error {
			l, err := p.Acquire(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
			l.Release()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.LessOrEqual(t, peak, 3)
	assert.LessOrEqual(t, f.opened(), 3)

	st := p.Stats()
	assert.Equal(t, 0, st.Leased)
	assert.Equal(t, 0, st.Waiters)
	assert.Equal(t, uint64(30), st.Acquired)
}

func TestPool_ExhaustedAfterAcquireTimeout(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, 5, WithAcquireTimeout(30*time.Millisecond))

	leases := make([]domain.Lease, 0, 5)
	for i := 0; i < 5; i++ {
		l, err := p.Acquire(context.Background())
		require.NoError(t, err)
		leases = append(leases, l)
	}

	start := time.Now()
	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPoolExhausted), "got %v", err)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	st := p.Stats()
	assert.Equal(t, uint64(1), st.AcquireTimeouts)
	assert.Equal(t, 0, st.Waiters)

	for _, l := range leases {
		l.Release()
	}

	l, err := p.Acquire(context.Background())
	require.NoError(t, err)
	l.Release()
}

func TestPool_WaiterReceivesReleasedConnection(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, 1, WithAcquireTimeout(time.Second))

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	got := make(chan domain.Lease, 1)
	go func() {
		l, err := p.Acquire(context.Background())
		if err == nil {
			got <- l
		}
		close(got)
	}()

	require.Eventually(t, func() bool { return p.Stats().Waiters == 1 }, time.Second, time.Millisecond)
	id := held.Conn().ID()
	held.Release()

	l, ok := <-got
	require.True(t, ok, "waiter did not get a lease")
	assert.Equal(t, id, l.Conn().ID())
	l.Release()
	assert.Equal(t, 1, f.opened())
}

func TestPool_WaitersServedInFIFOOrder(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, 1, WithAcquireTimeout(time.Second))

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	order := make(chan int, 3)
	for i := 0; i < 3; i++ {
		go func() {
			l, err := p.Acquire(context.Background())
			if err != nil {
				return
			}
			order <- i
			l.Release()
		}()
		require.Eventually(t, func() bool { return p.Stats().Waiters == i+1 }, time.Second, time.Millisecond)
	}

	held.Release()
	for want := 0; want < 3; want++ {
		select {
		case got := <-order:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("waiter %d was never served", want)
		}
	}
}

func TestPool_FatalErrorDiscardsConnection(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, 1)

	l, err := p.Acquire(context.Background())
	require.NoError(t, err)
	first := l.Conn().(*fakeConn)
	first.queryErr = &domain.QueryError{Query: "SELECT 1", Err: errors.New("invalid connection"), Fatal: true}

	_, err = l.Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	l.Release()

	assert.True(t, first.closed.Load())
	assert.Equal(t, uint64(1), p.Stats().Discarded)

	l2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer l2.Release()
	assert.NotEqual(t, first.ID(), l2.Conn().ID())
}

func TestPool_QueryErrorKeepsConnection(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, 1)

	l, err := p.Acquire(context.Background())
	require.NoError(t, err)
	c := l.Conn().(*fakeConn)
	c.queryErr = &domain.QueryError{Query: "SELEC 1", Err: errors.New("You have an error in your SQL syntax")}

	_, err = l.Query(context.Background(), "SELEC 1")
	require.Error(t, err)
	l.Release()

	assert.False(t, c.closed.Load())
	st := p.Stats()
	assert.Equal(t, 1, st.Idle)
	assert.Equal(t, uint64(0), st.Discarded)
}

func TestPool_MarkBrokenDiscards(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, 1)

	dl, err := p.Acquire(context.Background())
	require.NoError(t, err)
	l := dl.(*Lease)
	l.MarkBroken()
	l.Release()

	assert.Equal(t, 1, f.closedCount())
	assert.Equal(t, 0, p.Stats().Idle)
}

func TestPool_DoubleReleasePanics(t *testing.T) {
	p := newTestPool(t, &fakeFactory{}, 1)

	l, err := p.Acquire(context.Background())
	require.NoError(t, err)
	l.Release()

	assert.PanicsWithValue(t, "dbconn: lease released twice", func() { l.Release() })
	assert.Equal(t, 0, p.Stats().Leased)
}

func TestPool_DialFailureFreesSlot(t *testing.T) {
	f := &fakeFactory{failNext: 1}
	p := newTestPool(t, f, 1)

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsConnectionError(err))
	assert.Equal(t, 0, p.Stats().Opening)

	l, err := p.Acquire(context.Background())
	require.NoError(t, err)
	l.Release()
}

func TestPool_DialFailureHandsSlotToWaiter(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, 1, WithAcquireTimeout(time.Second))

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		l, err := p.Acquire(context.Background())
		if err == nil {
			l.Release()
		}
		done <- err
	}()
	require.Eventually(t, func() bool { return p.Stats().Waiters == 1 }, time.Second, time.Millisecond)

	// a conexão segurada quebra; o waiter recebe a vaga e disca uma nova
	held.(*Lease).MarkBroken()
	held.Release()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter never completed")
	}
	assert.Equal(t, 2, f.opened())
}

func TestPool_IdleTimeoutDiscardsStaleConnection(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	f := &fakeFactory{}
	p := newTestPool(t, f, 1, WithIdleTimeout(time.Minute), WithPoolClock(clock))

	l, err := p.Acquire(context.Background())
	require.NoError(t, err)
	l.Release()

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	l, err = p.Acquire(context.Background())
	require.NoError(t, err)
	defer l.Release()

	assert.Equal(t, uint64(2), l.Conn().ID())
	assert.Equal(t, 1, f.closedCount())
}

func TestPool_ExecuteReleasesOnError(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, 1)

	rows, err := p.Execute(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	f.conns[0].queryErr = &domain.QueryError{Query: "SELECT nope", Err: errors.New("Unknown column 'nope'")}
	_, err = p.Execute(context.Background(), "SELECT nope")
	require.Error(t, err)

	st := p.Stats()
	assert.Equal(t, 0, st.Leased)
	assert.Equal(t, 1, st.Idle)
}

func TestPool_CloseWakesWaitersAndDrains(t *testing.T) {
	f := &fakeFactory{}
	p, err := NewPool(f, 1, WithAcquireTimeout(5*time.Second))
	require.NoError(t, err)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	waiterErr := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		waiterErr <- err
	}()
	require.Eventually(t, func() bool { return p.Stats().Waiters == 1 }, time.Second, time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- p.Close(context.Background()) }()

	select {
	case err := <-waiterErr:
		assert.ErrorIs(t, err, domain.ErrPoolClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by Close")
	}

	select {
	case <-closed:
		t.Fatal("Close returned before the lease was released")
	case <-time.After(20 * time.Millisecond):
	}

	held.Release()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not return after drain")
	}
	assert.Equal(t, 1, f.closedCount())

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, domain.ErrPoolClosed)
}

func TestPool_CloseHonoursContext(t *testing.T) {
	p, err := NewPool(&fakeFactory{}, 1)
	require.NoError(t, err)

	l, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = p.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	l.Release()
}

func TestPool_CallerCancellationIsNotExhaustion(t *testing.T) {
	p := newTestPool(t, &fakeFactory{}, 1, WithAcquireTimeout(time.Second))

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrPoolExhausted))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
