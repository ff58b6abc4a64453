package domain

import (
	"context"
	"time"
)

// Lease é a posse temporária de uma conexão do pool.
//
// Ciclo: adquirido -> usado (zero ou mais queries) -> Release.
// Release deve ser chamado exatamente uma vez; chamar duas vezes é uso
// indevido fatal (panic).
type Lease interface {
	Querier
	Conn() Conn
	Release()
}

// Pool entrega leases de um conjunto limitado de conexões reutilizáveis.
type Pool interface {
	// Acquire bloqueia até haver conexão livre, capacidade para abrir uma nova,
	// ou até o timeout de aquisição / ctx. No timeout retorna ErrPoolExhausted.
	Acquire(ctx context.Context) (Lease, error)
	// Execute faz acquire -> query -> release como uma unidade.
	Execute(ctx context.Context, query string, args ...any) (Rows, error)
	Stats() PoolStats
}

// PoolStats é um retrato do pool num instante.
type PoolStats struct {
	Capacity int `json:"capacity"`
	Idle     int `json:"idle"`
	Leased   int `json:"leased"`
	Opening  int `json:"opening"`
	Waiters  int `json:"waiters"`

	Acquired        uint64        `json:"acquired_total"`
	Created         uint64        `json:"created_total"`
	Discarded       uint64        `json:"discarded_total"`
	AcquireTimeouts uint64        `json:"acquire_timeouts_total"`
	WaitDuration    time.Duration `json:"wait_duration"`
}
