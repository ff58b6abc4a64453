package domain

import (
	"context"
	"time"
)

// StatsEvent é uma decisão do limiter, registrada depois de respondida.
// Guardar Key por cliente multiplica chaves no Redis e séries no Prometheus;
// os stores só fazem isso quando pedido.
type StatsEvent struct {
	Key     Key
	Allowed bool

	Method string
	Path   string

	At time.Time
}

// StatsStore recebe eventos de decisão. Falhas não afetam a resposta.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
