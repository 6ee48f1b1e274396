package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/syssam/relmap/dialect"

	// Drivers selected by DriverName.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// validIdentifierRe validates SQL identifiers (alphanumeric, underscores, dots for schema.name)
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// isValidIdentifier checks if the string is a valid SQL identifier.
func isValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// escapeStringValue escapes a string value for safe use in SQL.
// It escapes both single quotes (by doubling) and backslashes (for MySQL compatibility).
func escapeStringValue(s string) string {
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", "''")
	return s
}

// DriverName returns the database/sql driver registered for the dialect.
func DriverName(name string) string {
	switch dialect.Normalize(name) {
	case dialect.Postgres:
		return "pgx"
	case dialect.SQLite:
		return "sqlite"
	case dialect.MySQL:
		return "mysql"
	default:
		return name
	}
}

// Pool is a dialect.Pool backed by a database/sql DB.
type Pool struct {
	db      *sql.DB
	dialect string
	sem     *semaphore.Weighted
	active  atomic.Int64
	log     *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithMaxConns bounds the number of connections that can be acquired at once.
// Conn blocks until a slot is free or the context is done.
func WithMaxConns(n int64) Option {
	return func(p *Pool) {
		if n > 0 {
			p.sem = semaphore.NewWeighted(n)
			p.db.SetMaxOpenConns(int(n))
		}
	}
}

// WithLogger sets the logger used for connection lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		p.log = l
	}
}

// Open opens a database for the dialect and wraps it with a Pool. The driver
// is picked by DriverName: pgx for PostgreSQL, go-sql-driver for MySQL and
// modernc for SQLite.
func Open(name, source string, opts ...Option) (*Pool, error) {
	db, err := sql.Open(DriverName(name), source)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: open %s: %w", name, err)
	}
	return OpenDB(name, db, opts...), nil
}

// OpenDB wraps the given database/sql.DB with a Pool.
func OpenDB(name string, db *sql.DB, opts ...Option) *Pool {
	p := &Pool{
		db:      db,
		dialect: dialect.Normalize(name),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DB returns the underlying *sql.DB instance.
func (p *Pool) DB() *sql.DB { return p.db }

// Dialect implements dialect.Pool.
func (p *Pool) Dialect() string { return p.dialect }

// Active implements dialect.Pool.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Close closes the underlying database.
func (p *Pool) Close() error { return p.db.Close() }

// Conn implements dialect.Pool. Session variables attached to the context
// with WithVar are set on the connection and reset on release.
func (p *Pool) Conn(ctx context.Context) (dialect.Conn, error) {
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("dialect/sql: acquire connection: %w", err)
		}
	}
	conn, err := p.db.Conn(ctx)
	if err != nil {
		p.releaseSlot()
		return nil, fmt.Errorf("dialect/sql: acquire connection: %w", err)
	}
	c := &Conn{conn: conn, pool: p}
	p.active.Add(1)
	if err := c.setVars(ctx); err != nil {
		c.Release()
		return nil, fmt.Errorf("dialect/sql: set session vars: %w", err)
	}
	return c, nil
}

func (p *Pool) releaseSlot() {
	if p.sem != nil {
		p.sem.Release(1)
	}
}

// ctxVarsKey is the key used for attaching and reading the context variables.
type ctxVarsKey struct{}

// sessionVars holds sessions variables to set on every acquired connection.
type sessionVars struct {
	vars []struct{ k, v string }
}

// WithVar returns a new context that holds the session variable to be set on
// the connections acquired with it.
func WithVar(ctx context.Context, name, value string) context.Context {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	sv.vars = append(sv.vars[:len(sv.vars):len(sv.vars)], struct {
		k, v string
	}{
		k: name,
		v: value,
	})
	return context.WithValue(ctx, ctxVarsKey{}, sv)
}

// VarFromContext returns the session variable value from the context.
func VarFromContext(ctx context.Context, name string) (string, bool) {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	for i := len(sv.vars) - 1; i >= 0; i-- {
		if sv.vars[i].k == name {
			return sv.vars[i].v, true
		}
	}
	return "", false
}

// WithIntVar calls WithVar with the string representation of the value.
func WithIntVar(ctx context.Context, name string, value int) context.Context {
	return WithVar(ctx, name, strconv.Itoa(value))
}

// Conn is a dialect.Conn over a single database/sql connection.
type Conn struct {
	conn  *sql.Conn
	pool  *Pool
	last  sql.Result
	reset []string
	once  sync.Once
}

func (c *Conn) setVars(ctx context.Context) error {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	seen := make(map[string]struct{}, len(sv.vars))
	for _, s := range sv.vars {
		if !isValidIdentifier(s.k) {
			return fmt.Errorf("invalid session variable name: %q", s.k)
		}
		if _, ok := seen[s.k]; !ok {
			switch c.pool.dialect {
			case dialect.Postgres:
				c.reset = append(c.reset, fmt.Sprintf("RESET %s", s.k))
			case dialect.MySQL:
				c.reset = append(c.reset, fmt.Sprintf("SET %s = NULL", s.k))
			}
			seen[s.k] = struct{}{}
		}
		if _, err := c.conn.ExecContext(ctx, setVarQuery(c.pool.dialect, s.k, s.v)); err != nil {
			return err
		}
	}
	return nil
}

// setVarQuery returns the statement setting a session variable. SQLite has
// no session variables and takes the name as a PRAGMA, which stays in effect
// for the lifetime of the connection.
func setVarQuery(name, key, value string) string {
	if name == dialect.SQLite {
		return fmt.Sprintf("PRAGMA %s = '%s'", key, escapeStringValue(value))
	}
	return fmt.Sprintf("SET %s = '%s'", key, escapeStringValue(value))
}

// Run implements dialect.Conn.
func (c *Conn) Run(ctx context.Context, query string, args ...any) error {
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec: %w", err)
	}
	c.last = res
	return nil
}

// Changes implements dialect.Conn.
func (c *Conn) Changes(context.Context) (int64, error) {
	if c.last == nil {
		return 0, nil
	}
	n, err := c.last.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("dialect/sql: rows affected: %w", err)
	}
	return n, nil
}

// LastInsertID implements dialect.Conn.
func (c *Conn) LastInsertID(context.Context) (int64, error) {
	if c.last == nil {
		return 0, errors.New("dialect/sql: no statement executed")
	}
	id, err := c.last.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("dialect/sql: last insert id: %w", err)
	}
	return id, nil
}

// Prepare implements dialect.Conn.
func (c *Conn) Prepare(ctx context.Context, query string) (dialect.Stmt, error) {
	stmt, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: prepare: %w", err)
	}
	return &Stmt{stmt: stmt}, nil
}

// Release implements dialect.Conn. Session variables are reset with a
// background context so cleanup completes even if the caller's context was
// canceled.
func (c *Conn) Release() {
	c.once.Do(func() {
		if len(c.reset) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			for _, q := range c.reset {
				if _, err := c.conn.ExecContext(ctx, q); err != nil {
					c.pool.log.Warn("reset session variable", "query", q, "error", err)
					break
				}
			}
			cancel()
		}
		if err := c.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			c.pool.log.Warn("release connection", "error", err)
		}
		c.pool.active.Add(-1)
		c.pool.releaseSlot()
	})
}

// Stmt is a dialect.Stmt over a prepared database/sql statement.
type Stmt struct {
	stmt *sql.Stmt
}

// Get implements dialect.Stmt.
func (s *Stmt) Get(ctx context.Context, args ...any) (*dialect.Row, error) {
	rows, err := s.query(ctx, 1, args)
	if err != nil {
		return nil, err
	}
	if rows.Len() == 0 {
		return nil, nil
	}
	return rows.Row(0), nil
}

// All implements dialect.Stmt.
func (s *Stmt) All(ctx context.Context, args ...any) (*dialect.Rows, error) {
	return s.query(ctx, -1, args)
}

// Release implements dialect.Stmt.
func (s *Stmt) Release() { _ = s.stmt.Close() }

func (s *Stmt) query(ctx context.Context, limit int, args []any) (*dialect.Rows, error) {
	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: query: %w", err)
	}
	defer rows.Close()
	return ScanRows(rows, limit)
}

// ScanRows reads up to limit rows (all rows for a negative limit) into memory.
// Byte slices are copied since the driver may reuse them.
func ScanRows(rows ColumnScanner, limit int) (*dialect.Rows, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: columns: %w", err)
	}
	out := &dialect.Rows{Columns: columns}
	for (limit < 0 || len(out.Values) < limit) && rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("dialect/sql: scan: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = append([]byte(nil), b...)
			}
		}
		out.Values = append(out.Values, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dialect/sql: rows: %w", err)
	}
	return out, nil
}

// ColumnScanner is the interface that wraps the standard
// sql.Rows methods used for scanning database rows.
type ColumnScanner interface {
	Close() error
	Columns() ([]string, error)
	Err() error
	Next() bool
	Scan(dest ...any) error
}

var (
	_ dialect.Pool = (*Pool)(nil)
	_ dialect.Conn = (*Conn)(nil)
	_ dialect.Stmt = (*Stmt)(nil)
)
