package infra

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registra o driver "pgx"
	_ "modernc.org/sqlite"             // registra o driver "sqlite"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DSNConfig é a configuração fixa usada por toda conexão aberta pela factory.
type DSNConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	// Database é o nome do schema; no SQLite é o caminho do arquivo.
	Database string

	MultiStatements bool
	// InsecureAuth habilita o handshake antigo de senha do MySQL.
	InsecureAuth   bool
	ConnectTimeout time.Duration
}

// Addr identifica o destino em logs e erros (nunca inclui senha).
func (c DSNConfig) Addr() string {
	if c.Driver == DriverSQLite {
		return c.Database
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DriverName devolve o nome registrado em database/sql.
func (c DSNConfig) DriverName() (string, error) {
	switch strings.ToLower(c.Driver) {
	case DriverMySQL:
		return "mysql", nil
	case DriverPostgres:
		return "pgx", nil
	case DriverSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q (supported: mysql, postgres, sqlite)", c.Driver)
	}
}

func (c DSNConfig) DSN() (string, error) {
	switch strings.ToLower(c.Driver) {
	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = c.Addr()
		mc.DBName = c.Database
		mc.MultiStatements = c.MultiStatements
		mc.AllowOldPasswords = c.InsecureAuth
		mc.Timeout = c.ConnectTimeout
		return mc.FormatDSN(), nil

	case DriverPostgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.User, c.Password),
			Host:   c.Addr(),
			Path:   "/" + c.Database,
		}
		q := url.Values{}
		if c.ConnectTimeout > 0 {
			q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
		}
		// o protocolo simples aceita múltiplos statements por query
		if c.MultiStatements {
			q.Set("default_query_exec_mode", "simple_protocol")
		}
		u.RawQuery = q.Encode()
		return u.String(), nil

	case DriverSQLite:
		if c.Database == "" {
			return "", fmt.Errorf("sqlite requires a database file path")
		}
		return c.Database + "?_pragma=busy_timeout(5000)", nil

	default:
		_, err := c.DriverName()
		return "", err
	}
}
