package dbconn

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dbconn-gateway/dbconn/application"
	"dbconn-gateway/dbconn/domain"
	"dbconn-gateway/dbconn/infra"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls map[string]int
	errs  int
}

func (o *recordingObserver) ObserveQuery(strategy string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = map[string]int{}
	}
	o.calls[strategy]++
	if err != nil {
		o.errs++
	}
}

type fixture struct {
	router http.Handler
	pool   *infra.Pool
	obs    *recordingObserver
}

func newFixture(t *testing.T, query string, capacity int) fixture {
	t.Helper()

	cfg := infra.DSNConfig{Driver: infra.DriverSQLite, Database: filepath.Join(t.TempDir(), "aliconcon.db")}
	dsn, err := cfg.DSN()
	require.NoError(t, err)
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE user (id INTEGER PRIMARY KEY, name TEXT NOT NULL)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO user (id, name) VALUES (1, 'ana'), (2, 'bia')")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	factory, err := infra.NewFactoryFromDSN(cfg)
	require.NoError(t, err)
	pool, err := infra.NewPool(factory, capacity, infra.WithAcquireTimeout(200*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close(context.Background()) })

	obs := &recordingObserver{}
	h := &Handlers{
		Strategies: application.Strategies{Factory: factory, Pool: pool},
		Executor:   application.Executor{Pool: pool},
		Query:      query,
		Observer:   obs,
	}
	r := chi.NewRouter()
	h.Register(r)
	return fixture{router: r, pool: pool, obs: obs}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandlers_AllStrategiesReturnRows(t *testing.T) {
	fx := newFixture(t, "SELECT * FROM user ORDER BY id", 2)

	for _, path := range []string{"/normal", "/pool", "/pool2"} {
		t.Run(path, func(t *testing.T) {
			rec := get(t, fx.router, path)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var rows []map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
			assert.Equal(t, []map[string]any{
				{"id": float64(1), "name": "ana"},
				{"id": float64(2), "name": "bia"},
			}, rows)
		})
	}

	st := fx.pool.Stats()
	assert.Equal(t, 0, st.Leased)
	assert.Equal(t, 1, st.Idle)
	assert.Equal(t, map[string]int{StrategyNormal: 1, StrategyPool: 1, StrategyPool2: 1}, fx.obs.calls)
}

func TestHandlers_QueryErrorBody(t *testing.T) {
	fx := newFixture(t, "SELECT * FROM missing_table", 2)

	cases := map[string]string{
		"/normal": "Failed to load user due to database error.",
		"/pool":   "Failed to load users due to database error.",
		"/pool2":  "Failed to load user due to database error.",
	}
	for path, msg := range cases {
		t.Run(path, func(t *testing.T) {
			rec := get(t, fx.router, path)
			require.Equal(t, http.StatusInternalServerError, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, msg, body["error"])
			assert.Contains(t, body["details"], "missing_table")
		})
	}
	assert.Equal(t, 3, fx.obs.errs)
}

// Erro de sintaxe devolve a conexão ao pool: capacity+1 requests seguidos não esgotam.
func TestHandlers_SyntaxErrorDoesNotLeakLeases(t *testing.T) {
	const capacity = 3
	fx := newFixture(t, "SELEC * FROM user", capacity)

	for i := 0; i < capacity+1; i++ {
		for _, path := range []string{"/pool", "/pool2"} {
			rec := get(t, fx.router, path)
			require.Equal(t, http.StatusInternalServerError, rec.Code, "request %d to %s", i, path)
		}
	}

	st := fx.pool.Stats()
	assert.Equal(t, 0, st.Leased)
	assert.Equal(t, uint64(0), st.AcquireTimeouts)
	assert.LessOrEqual(t, st.Idle, capacity)
}

func TestHandlers_Pool2SteadyStateIdle(t *testing.T) {
	fx := newFixture(t, "", 2)

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, get(t, fx.router, "/pool2").Code)
		st := fx.pool.Stats()
		assert.Equal(t, 0, st.Leased)
		assert.Equal(t, 1, st.Idle)
	}
}

type exhaustedPool struct{}

func (exhaustedPool) Acquire(context.Context) (domain.Lease, error) {
	return nil, errors.New("connection pool exhausted after 5s")
}

func (exhaustedPool) Execute(context.Context, string, ...any) (domain.Rows, error) {
	return nil, domain.ErrPoolExhausted
}

func (exhaustedPool) Stats() domain.PoolStats { return domain.PoolStats{} }

func TestHandlers_PoolExhaustedIs503(t *testing.T) {
	h := &Handlers{Executor: application.Executor{Pool: exhaustedPool{}}}
	r := chi.NewRouter()
	h.Register(r)

	rec := get(t, r, "/pool2")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Failed to load user due to database error.", body["error"])
	assert.Equal(t, domain.ErrPoolExhausted.Error(), body["details"])
}

func TestHandlers_ConnectionErrorIs500(t *testing.T) {
	h := &Handlers{Strategies: application.Strategies{Factory: failingFactory{}}}
	r := chi.NewRouter()
	h.Register(r)

	rec := get(t, r, "/normal")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

type failingFactory struct{}

func (failingFactory) Open(context.Context) (domain.Conn, error) {
	return nil, &domain.ConnectionError{Addr: "localhost:3308", Err: errors.New("connect: connection refused")}
}
