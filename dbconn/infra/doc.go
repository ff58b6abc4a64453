// Package infra contém as implementações concretas dos contratos de dbconn/domain.
//
//   - SQLFactory: abre uma sessão exclusiva por chamada (database/sql limitado a 1 conexão)
//   - SQLConn: sessão fixa sobre *sql.Conn com decodificação de linhas para JSON
//   - Pool / Lease: pool limitado com fila FIFO de espera e timeout de aquisição
//   - DSNConfig: monta o DSN de MySQL (go-sql-driver), Postgres (pgx) ou SQLite (modernc)
package infra
