package infra

import (
	"time"

	"dbconn-gateway/middleware/ratelimit/domain"
)

// decide monta a Decision de uma janela fixa que já contou a requisição atual.
func decide(max, count int, resetAt, now time.Time) domain.Decision {
	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}
	dec := domain.Decision{
		Allowed:   count <= max,
		Limit:     max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !dec.Allowed {
		dec.RetryAfter = resetAt.Sub(now)
	}
	return dec
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
type DoneContext interface {
	Done() <-chan struct{}
}

// startJanitor roda cleanup a cada every até ctx encerrar.
func startJanitor(ctx DoneContext, every time.Duration, cleanup func()) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				cleanup()
			}
		}
	}()
}
