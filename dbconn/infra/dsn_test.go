package infra

import (
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSNConfig_MySQL(t *testing.T) {
	cfg := DSNConfig{
		Driver:          DriverMySQL,
		Host:            "localhost",
		Port:            3308,
		User:            "testuser",
		Password:        "testpass",
		Database:        "aliconcon",
		MultiStatements: true,
		InsecureAuth:    true,
		ConnectTimeout:  5 * time.Second,
	}

	name, err := cfg.DriverName()
	require.NoError(t, err)
	assert.Equal(t, "mysql", name)
	assert.Equal(t, "localhost:3308", cfg.Addr())

	dsn, err := cfg.DSN()
	require.NoError(t, err)
	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "testuser", parsed.User)
	assert.Equal(t, "testpass", parsed.Passwd)
	assert.Equal(t, "localhost:3308", parsed.Addr)
	assert.Equal(t, "aliconcon", parsed.DBName)
	assert.True(t, parsed.MultiStatements)
	assert.True(t, parsed.AllowOldPasswords)
	assert.Equal(t, 5*time.Second, parsed.Timeout)
}

func TestDSNConfig_Postgres(t *testing.T) {
	cfg := DSNConfig{Driver: "Postgres", Host: "db", Port: 5432, User: "u", Password: "p", Database: "aliconcon", MultiStatements: true, ConnectTimeout: 3 * time.Second}

	name, err := cfg.DriverName()
	require.NoError(t, err)
	assert.Equal(t, "pgx", name)

	dsn, err := cfg.DSN()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "postgres://u:p@db:5432/aliconcon?"))
	assert.Contains(t, dsn, "connect_timeout=3")
	assert.Contains(t, dsn, "default_query_exec_mode=simple_protocol")
}

func TestDSNConfig_SQLiteRequiresPath(t *testing.T) {
	_, err := DSNConfig{Driver: DriverSQLite}.DSN()
	assert.Error(t, err)
}

func TestDSNConfig_UnknownDriver(t *testing.T) {
	_, err := DSNConfig{Driver: "oracle"}.DriverName()
	assert.Error(t, err)
	_, err = DSNConfig{Driver: "oracle"}.DSN()
	assert.Error(t, err)
}
