package domain

import (
	"context"
	"errors"
)

// ErrNoSlot indica que nenhuma vaga ficou livre dentro do timeout.
var ErrNoSlot = errors.New("no free slot")

// SlotPool representa um recurso com capacidade finita (ex: requisições em voo).
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar (retornando ctx.Err()).
// O release retornado pode ser chamado mais de uma vez; só a primeira chamada libera.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), err error)
}
