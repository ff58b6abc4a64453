package application

import (
	"context"
	"fmt"
	"time"

	"dbconn-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
//   - AcquireTimeout <= 0: espera até ctx encerrar.
//   - AcquireTimeout > 0: estourar o timeout retorna domain.ErrNoSlot.
//
// Cancelamento do próprio ctx volta como ctx.Err(), não como ErrNoSlot.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	if s.AcquireTimeout <= 0 {
		return s.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()

	release, err := s.Pool.Acquire(acqCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", domain.ErrNoSlot, s.AcquireTimeout)
	}
	return release, nil
}
