package infra

import (
	"context"
	"sync"

	"dbconn-gateway/middleware/ratelimit/domain"
)

// ChanPool é um semáforo baseado em channel com capacidade fixa.
type ChanPool struct {
	sem chan struct{}
}

var _ domain.SlotPool = (*ChanPool)(nil)

func NewChanPool(max int) *ChanPool {
	return &ChanPool{sem: make(chan struct{}, max)}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), error) {
	select {
	case p.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-p.sem }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *ChanPool) InFlight() int { return len(p.sem) }
func (p *ChanPool) Capacity() int { return cap(p.sem) }
