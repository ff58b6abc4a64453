package application

import (
	"context"
	"time"

	"dbconn-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Limiter domain.Limiter
	// RetryAfter é usado quando o limiter bloqueia sem sugerir um valor.
	RetryAfter time.Duration
	// FailOpen admite a requisição quando o limiter falha.
	FailOpen bool
}

// Decide retorna a decisão para key. O erro do limiter é sempre devolvido
// para ser logado; com FailOpen a decisão vem como admitida.
func (s Service) Decide(ctx context.Context, key domain.Key) (domain.Decision, error) {
	if s.Limiter == nil {
		return domain.Decision{Allowed: true}, nil
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	dec, err := s.Limiter.Admit(ctx, key)
	if err != nil {
		return domain.Decision{Allowed: s.FailOpen}, err
	}
	if !dec.Allowed && dec.RetryAfter <= 0 {
		dec.RetryAfter = s.RetryAfter
	}
	return dec, nil
}
