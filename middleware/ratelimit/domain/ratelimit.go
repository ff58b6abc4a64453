package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

// Key identifica o cliente contado (IP, header, ou uma chave global).
type Key string

// Limiter decide se a requisição de uma chave é admitida agora.
//
// Cada chamada conta como uma requisição. Leitura, incremento e comparação
// são atômicos por chave. Erro significa que o estado não pôde ser consultado
// (ex: Redis fora); a política para esse caso fica na camada application.
type Limiter interface {
	Admit(ctx context.Context, key Key) (Decision, error)
}

type Decision struct {
	Allowed bool

	// Limit é o máximo de requisições por janela; Remaining quantas ainda cabem.
	Limit     int
	Remaining int
	// ResetAt é quando a janela atual termina.
	ResetAt time.Time

	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
