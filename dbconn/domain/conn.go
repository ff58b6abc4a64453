package domain

import "context"

// Row é uma linha já decodificada (coluna -> valor), pronta para JSON.
type Row map[string]any

// Rows é o resultado de uma query. Nunca é nil quando não há erro.
type Rows []Row

// Querier executa uma query e devolve as linhas decodificadas.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// Conn é uma sessão viva com o banco.
//
// Depois de Close a conexão não pode ser reutilizada: Query retorna um
// *QueryError fatal embrulhando ErrConnClosed.
type Conn interface {
	Querier
	ID() uint64
	Ping(ctx context.Context) error
	Close() error
}

// Factory abre uma conexão nova e exclusiva a cada chamada.
// Não há cache nem limite; quem chama é dono da conexão e deve fechá-la.
type Factory interface {
	Open(ctx context.Context) (Conn, error)
}
