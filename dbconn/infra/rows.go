package infra

import (
	"database/sql"
	"strconv"
	"strings"

	"dbconn-gateway/dbconn/domain"
)

func scanRows(rows *sql.Rows) (domain.Rows, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	typeNames := make([]string, len(cols))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, t := range types {
			typeNames[i] = strings.ToUpper(t.DatabaseTypeName())
		}
	}

	out := make(domain.Rows, 0)
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for rows.Next() {
		for i := range vals {
			vals[i] = nil
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(domain.Row, len(cols))
		for i, col := range cols {
			row[col] = decodeValue(vals[i], typeNames[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// decodeValue converte os []byte do protocolo texto do MySQL em string ou número.
func decodeValue(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	s := string(b)

	switch dbType {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case "UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT", "UNSIGNED INT", "UNSIGNED BIGINT":
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n
		}
	case "FLOAT", "DOUBLE", "REAL":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}
