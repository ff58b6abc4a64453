package domain

import "errors"

var (
	// ErrPoolExhausted: nenhuma conexão ficou disponível dentro do timeout de aquisição.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	ErrPoolClosed    = errors.New("connection pool is closed")
	ErrConnClosed    = errors.New("connection is closed")
)

// ConnectionError indica falha ao estabelecer uma sessão (transporte ou autenticação).
// Nunca é repetido internamente.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return "database connection failed: " + e.Err.Error()
	}
	return "database connection to " + e.Addr + " failed: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError indica que o banco rejeitou ou falhou uma query.
//
// Fatal marca erros que corrompem a própria conexão (sessão quebrada, EOF,
// conexão fechada). Conexões com erro fatal são descartadas no release; as
// demais voltam para o pool.
type QueryError struct {
	Query string
	Err   error
	Fatal bool
}

// Error devolve só a mensagem do banco; é ela que vai em "details" na resposta.
func (e *QueryError) Error() string { return e.Err.Error() }

func (e *QueryError) Unwrap() error { return e.Err }

// IsConnFatal informa se err carrega um QueryError marcado como fatal.
func IsConnFatal(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Fatal
}

// IsConnectionError informa se err vem de falha ao abrir sessão.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
