package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dbconn-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// INCR e PEXPIRE no mesmo script: a primeira requisição da janela define o TTL,
// as seguintes só leem o que falta.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisWindowStore é a janela fixa compartilhada entre instâncias via Redis.
type RedisWindowStore struct {
	rdb    redis.Scripter
	prefix string
	max    int
	window time.Duration
	now    func() time.Time
}

var _ domain.Limiter = (*RedisWindowStore)(nil)

type RedisWindowOption func(*RedisWindowStore)

func WithWindowPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithRedisClock(now func() time.Time) RedisWindowOption {
	return func(s *RedisWindowStore) { s.now = now }
}

func NewRedisWindowStore(rdb redis.Scripter, max int, window time.Duration, opts ...RedisWindowOption) (*RedisWindowStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("ratelimit: redis client is required")
	}
	if max <= 0 {
		return nil, fmt.Errorf("ratelimit: max must be positive, got %d", max)
	}
	if window < time.Millisecond {
		return nil, fmt.Errorf("ratelimit: window must be at least 1ms, got %s", window)
	}

	s := &RedisWindowStore{
		rdb:    rdb,
		prefix: "ratelimit:window",
		max:    max,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisWindowStore) Max() int              { return s.max }
func (s *RedisWindowStore) Window() time.Duration { return s.window }

func (s *RedisWindowStore) Admit(ctx context.Context, key domain.Key) (domain.Decision, error) {
	res, err := fixedWindowScript.Run(ctx, s.rdb, []string{s.prefix + ":" + string(key)}, s.window.Milliseconds()).Int64Slice()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("ratelimit: redis window: %w", err)
	}
	if len(res) != 2 {
		return domain.Decision{}, fmt.Errorf("ratelimit: redis window: unexpected reply %v", res)
	}

	now := s.now()
	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	return decide(s.max, int(count), now.Add(ttl), now), nil
}
