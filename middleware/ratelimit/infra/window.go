package infra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dbconn-gateway/middleware/ratelimit/domain"
)

// FixedWindowStore é um rate limiter de janela fixa por chave, em memória.
//
// A janela de uma chave começa na primeira requisição e dura `window`.
// A contagem zera na primeira requisição depois do fim (reset-on-read), então
// nenhuma goroutine é necessária; o janitor só libera memória de chaves paradas.
// Um burst na virada da janela pode admitir até ~2x max.
type FixedWindowStore struct {
	mu      sync.Mutex
	windows map[domain.Key]*fixedWindow

	max          int
	window       time.Duration
	now          func() time.Time
	cleanupEvery time.Duration
}

type fixedWindow struct {
	start time.Time
	count int
}

var _ domain.Limiter = (*FixedWindowStore)(nil)

type WindowOption func(*FixedWindowStore)

// WithClock troca o relógio (testes).
func WithClock(now func() time.Time) WindowOption {
	return func(s *FixedWindowStore) { s.now = now }
}

func WithWindowCleanupEvery(d time.Duration) WindowOption {
	return func(s *FixedWindowStore) { s.cleanupEvery = d }
}

func NewFixedWindowStore(max int, window time.Duration, opts ...WindowOption) (*FixedWindowStore, error) {
	if max <= 0 {
		return nil, fmt.Errorf("ratelimit: max must be positive, got %d", max)
	}
	if window <= 0 {
		return nil, fmt.Errorf("ratelimit: window must be positive, got %s", window)
	}

	s := &FixedWindowStore{
		windows:      make(map[domain.Key]*fixedWindow),
		max:          max,
		window:       window,
		now:          time.Now,
		cleanupEvery: window,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *FixedWindowStore) Max() int              { return s.max }
func (s *FixedWindowStore) Window() time.Duration { return s.window }

// Admit implementa domain.Limiter. Nunca retorna erro.
func (s *FixedWindowStore) Admit(_ context.Context, key domain.Key) (domain.Decision, error) {
	now := s.now()

	s.mu.Lock()
	w, ok := s.windows[key]
	if !ok {
		w = &fixedWindow{start: now}
		s.windows[key] = w
	}
	if !now.Before(w.start.Add(s.window)) {
		w.start = now
		w.count = 0
	}
	w.count++
	count, resetAt := w.count, w.start.Add(s.window)
	s.mu.Unlock()

	return decide(s.max, count, resetAt, now), nil
}

// Cleanup remove janelas já encerradas.
func (s *FixedWindowStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, w := range s.windows {
		if !now.Before(w.start.Add(s.window)) {
			delete(s.windows, k)
		}
	}
}

// Len é o número de chaves com janela em memória.
func (s *FixedWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// StartJanitor inicia uma goroutine que limpa janelas encerradas periodicamente.
// Pare cancelando o contexto.
func (s *FixedWindowStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}
