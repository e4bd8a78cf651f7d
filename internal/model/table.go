package model

// TableInfo 由数据库层提供，核心逻辑只读
type TableInfo struct {
	Name     string   `json:"name"`
	Columns  []string `json:"columns"`
	RowCount *int64   `json:"rowCount,omitempty"`
}

// RawRow 是一行无 schema 的数据，元素为 string / int64 / float64 / []byte / time.Time / nil
type RawRow []any

type QueryResult struct {
	Columns   []string `json:"columns"`
	Rows      []RawRow `json:"rows"`
	TotalRows int      `json:"totalRows"`
}
