package infra

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"dbconn-gateway/dbconn/domain"

	"github.com/go-sql-driver/mysql"
)

// IsFatalError diz se err deixou a sessão inutilizável.
//
// Erros do servidor (sintaxe, constraint, permissão) não são fatais: a sessão
// continua válida e volta para o pool. Erros de transporte, EOF, conexão
// fechada e cancelamento no meio da query são fatais.
func IsFatalError(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return false
	}

	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, domain.ErrConnClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// drivers que só expõem a mensagem
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "bad connection")
}
