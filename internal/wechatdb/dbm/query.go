package dbm

import (
	"context"
	"database/sql"
	"strings"

	"github.com/takeaway1/wxchat/internal/errors"
	"github.com/takeaway1/wxchat/internal/model"
)

var readOnlyPrefixes = []string{"select", "with", "pragma", "explain"}

// IsReadOnly 只允许单条查询语句
func IsReadOnly(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	q = strings.TrimSuffix(q, ";")
	if strings.Contains(q, ";") {
		return false
	}
	for _, p := range readOnlyPrefixes {
		if strings.HasPrefix(q, p) {
			return true
		}
	}
	return false
}

// QuoteIdent SQLite 标识符转义
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func tableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	result, err := queryResult(ctx, db, "PRAGMA table_info("+QuoteIdent(table)+")")
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, c := range result.Columns {
		if c == "name" {
			idx = i
			break
		}
	}
	columns := make([]string, 0, len(result.Rows))
	if idx < 0 {
		return columns, nil
	}
	for _, row := range result.Rows {
		if name, ok := row[idx].(string); ok {
			columns = append(columns, name)
		}
	}
	return columns, nil
}

func queryResult(ctx context.Context, db *sql.DB, query string, args ...any) (*model.QueryResult, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.QueryFailed(query, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.QueryFailed(query, err)
	}
	result := &model.QueryResult{Columns: columns, Rows: make([]model.RawRow, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.ScanRowFailed(err)
		}
		result.Rows = append(result.Rows, model.RawRow(values))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.QueryFailed(query, err)
	}
	return result, nil
}
