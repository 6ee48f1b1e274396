package dialect

import (
	"context"
	"strings"
)

// Dialect names for external usage.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite3"
	Postgres = "postgres"
)

// Normalize maps common aliases of a dialect name to its canonical constant.
func Normalize(name string) string {
	switch n := strings.ToLower(name); {
	case strings.HasPrefix(n, "sqlite"):
		return SQLite
	case strings.HasPrefix(n, "postgres"), n == "pgx", n == "pg":
		return Postgres
	case strings.HasPrefix(n, "mysql"), n == "mariadb":
		return MySQL
	default:
		return n
	}
}

// Pool hands out exclusive connections.
type Pool interface {
	// Conn acquires a connection. The caller must Release it on every path.
	Conn(ctx context.Context) (Conn, error)
	// Active returns the number of connections currently acquired.
	Active() int
	// Dialect returns the dialect name of the pool.
	Dialect() string
}

// Conn is an exclusive connection acquired from a Pool.
type Conn interface {
	// Run executes a statement that returns no rows.
	Run(ctx context.Context, query string, args ...any) error
	// Prepare prepares a statement on the connection.
	Prepare(ctx context.Context, query string) (Stmt, error)
	// Changes returns the number of rows affected by the last Run.
	Changes(ctx context.Context) (int64, error)
	// LastInsertID returns the id generated by the last Run, if the engine
	// reports one.
	LastInsertID(ctx context.Context) (int64, error)
	// Release returns the connection to its pool. Release is idempotent.
	Release()
}

// Stmt is a prepared statement bound to one connection.
type Stmt interface {
	// Get returns the first row, or nil when the result is empty.
	Get(ctx context.Context, args ...any) (*Row, error)
	// All returns all rows.
	All(ctx context.Context, args ...any) (*Rows, error)
	// Release closes the statement.
	Release()
}

// Row is one result row with values in column order.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value of the named column.
func (r *Row) Get(name string) (any, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map returns the row as a column-to-value map.
func (r *Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return m
}

// Rows is a fully read result set.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Len returns the number of rows.
func (r *Rows) Len() int { return len(r.Values) }

// Row returns the i-th row.
func (r *Rows) Row(i int) *Row {
	return &Row{Columns: r.Columns, Values: r.Values[i]}
}
