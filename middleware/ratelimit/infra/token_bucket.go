package infra

import (
	"context"
	"math"
	"sync"
	"time"

	"dbconn-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// TokenBucketStore é um limiter alternativo baseado em token-bucket
// (x/time/rate) com cache por chave e limpeza periódica.
type TokenBucketStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*bucketEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

var _ domain.Limiter = (*TokenBucketStore)(nil)

type BucketOption func(*TokenBucketStore)

func WithIdleTTL(d time.Duration) BucketOption {
	return func(s *TokenBucketStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) BucketOption {
	return func(s *TokenBucketStore) { s.cleanupEvery = d }
}

func WithBucketClock(now func() time.Time) BucketOption {
	return func(s *TokenBucketStore) { s.now = now }
}

func NewTokenBucketStore(rps float64, burst int, opts ...BucketOption) *TokenBucketStore {
	s := &TokenBucketStore{
		entries:      make(map[domain.Key]*bucketEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewTokenBucketForWindow converte "max por janela" em rps com burst = max.
func NewTokenBucketForWindow(max int, window time.Duration, opts ...BucketOption) *TokenBucketStore {
	return NewTokenBucketStore(float64(max)/window.Seconds(), max, opts...)
}

func (s *TokenBucketStore) RPS() float64 { return float64(s.rps) }
func (s *TokenBucketStore) Burst() int   { return s.burst }

func (s *TokenBucketStore) Admit(_ context.Context, key domain.Key) (domain.Decision, error) {
	now := s.now()
	lim := s.limiter(key, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return domain.Decision{Allowed: false, Limit: s.burst}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return domain.Decision{
			Allowed:    false,
			Limit:      s.burst,
			ResetAt:    now.Add(delay),
			RetryAfter: delay,
		}, nil
	}

	tokens := lim.TokensAt(now)
	dec := domain.Decision{
		Allowed:   true,
		Limit:     s.burst,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		ResetAt:   now,
	}
	// quando o bucket volta a ficar cheio
	if missing := float64(s.burst) - tokens; missing > 0 && s.rps > 0 {
		dec.ResetAt = now.Add(time.Duration(missing / float64(s.rps) * float64(time.Second)))
	}
	return dec, nil
}

func (s *TokenBucketStore) limiter(key domain.Key, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &bucketEntry{lim: lim, lastSeen: now}
	return lim
}

func (s *TokenBucketStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

func (s *TokenBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *TokenBucketStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}
