package sql

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relmap/dialect"
)

func TestWithVars(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	pool := OpenDB(dialect.Postgres, db)

	mock.ExpectExec("SET foo = 'bar'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET foo = 'baz'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO users DEFAULT VALUES").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("RESET foo").WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := WithVar(WithVar(context.Background(), "foo", "bar"), "foo", "baz")
	v, ok := VarFromContext(ctx, "foo")
	require.True(t, ok)
	assert.Equal(t, "baz", v)

	conn, err := pool.Conn(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Run(ctx, "INSERT INTO users DEFAULT VALUES"))
	conn.Release()
	conn.Release()
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Zero(t, pool.Active())
}

func TestWithVarsSQLite(t *testing.T) {
	pool, err := Open(dialect.SQLite, "file:"+filepath.Join(t.TempDir(), "vars.db"))
	require.NoError(t, err)
	defer pool.Close()

	ctx := WithIntVar(context.Background(), "busy_timeout", 1234)
	conn, err := pool.Conn(ctx)
	require.NoError(t, err)
	defer conn.Release()
	stmt, err := conn.Prepare(ctx, "PRAGMA busy_timeout")
	require.NoError(t, err)
	defer stmt.Release()
	row, err := stmt.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.EqualValues(t, 1234, row.Values[0])
}

func TestWithVarsInvalidIdentifier(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	pool := OpenDB(dialect.Postgres, db)

	_, err = pool.Conn(WithVar(context.Background(), "foo; DROP TABLE users; --", "bar"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session variable name")
	assert.Zero(t, pool.Active())
}

func TestWithVarsEscapedValue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	pool := OpenDB(dialect.MySQL, db)

	mock.ExpectExec("SET foo = 'it''s escaped'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET foo = NULL").WillReturnResult(sqlmock.NewResult(0, 0))

	conn, err := pool.Conn(WithVar(context.Background(), "foo", "it's escaped"))
	require.NoError(t, err)
	conn.Release()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenDB(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
		want    string
		driver  string
	}{
		{"Postgres", "postgres", dialect.Postgres, "pgx"},
		{"PGX", "pgx", dialect.Postgres, "pgx"},
		{"MySQL", "mysql", dialect.MySQL, "mysql"},
		{"SQLite", "sqlite", dialect.SQLite, "sqlite"},
		{"SQLite3", "sqlite3", dialect.SQLite, "sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			pool := OpenDB(tt.dialect, db)
			assert.Equal(t, tt.want, pool.Dialect())
			assert.Same(t, db, pool.DB())
			assert.Equal(t, tt.driver, DriverName(tt.dialect))
		})
	}
}

func TestConnRunAndChanges(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	pool := OpenDB(dialect.Postgres, db)
	ctx := context.Background()

	conn, err := pool.Conn(ctx)
	require.NoError(t, err)
	defer conn.Release()
	assert.Equal(t, 1, pool.Active())

	n, err := conn.Changes(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = conn.LastInsertID(ctx)
	require.Error(t, err)

	mock.ExpectExec(`UPDATE users SET name = \$1 WHERE id = \$2`).
		WithArgs("Alice", 1).
		WillReturnResult(sqlmock.NewResult(7, 3))
	require.NoError(t, conn.Run(ctx, "UPDATE users SET name = $1 WHERE id = $2", "Alice", 1))

	n, err = conn.Changes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	id, err := conn.LastInsertID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	mock.ExpectExec("DELETE").WillReturnError(errors.New("constraint violation"))
	err = conn.Run(ctx, "DELETE FROM users")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dialect/sql: exec")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStmtGetAndAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	pool := OpenDB(dialect.SQLite, db)
	ctx := context.Background()

	conn, err := pool.Conn(ctx)
	require.NoError(t, err)
	defer conn.Release()

	mock.ExpectPrepare("SELECT id, name FROM users").
		ExpectQuery().
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "Alice").
			AddRow(2, nil))
	stmt, err := conn.Prepare(ctx, "SELECT id, name FROM users")
	require.NoError(t, err)
	rows, err := stmt.All(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, rows.Len())
	assert.Equal(t, []string{"id", "name"}, rows.Columns)
	name, ok := rows.Row(1).Get("name")
	assert.True(t, ok)
	assert.Nil(t, name)
	stmt.Release()

	mock.ExpectPrepare(`SELECT name FROM users WHERE id = \?`).
		ExpectQuery().
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	stmt, err = conn.Prepare(ctx, "SELECT name FROM users WHERE id = ?")
	require.NoError(t, err)
	row, err := stmt.Get(ctx, 9)
	require.NoError(t, err)
	assert.Nil(t, row)
	stmt.Release()

	mock.ExpectPrepare("SELECT name").
		ExpectQuery().
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow([]byte("Bob")).AddRow("Carol"))
	stmt, err = conn.Prepare(ctx, "SELECT name FROM users")
	require.NoError(t, err)
	row, err = stmt.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, map[string]any{"name": []byte("Bob")}, row.Map())
	stmt.Release()

	mock.ExpectPrepare("SELECT broken").WillReturnError(errors.New("syntax error"))
	_, err = conn.Prepare(ctx, "SELECT broken")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaxConns(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	pool := OpenDB(dialect.Postgres, db, WithMaxConns(1))

	conn, err := pool.Conn(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Conn(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, pool.Active())

	conn.Release()
	conn, err = pool.Conn(context.Background())
	require.NoError(t, err)
	conn.Release()
	assert.Zero(t, pool.Active())
}

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"valid_simple", "foo", true},
		{"valid_with_underscore", "foo_bar", true},
		{"valid_with_dot", "schema.table", true},
		{"invalid_empty", "", false},
		{"invalid_starting_number", "123foo", false},
		{"invalid_with_quote", "foo'bar", false},
		{"invalid_with_semicolon", "foo;DROP TABLE", false},
		{"invalid_too_long", string(make([]byte, 129)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isValidIdentifier(tt.input))
		})
	}
}

func TestEscapeStringValue(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no_escaping_needed", "hello", "hello"},
		{"single_quote", "it's", "it''s"},
		{"backslash", `path\to\file`, `path\\to\\file`},
		{"sql_injection_attempt", "'; DROP TABLE users; --", "''; DROP TABLE users; --"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, escapeStringValue(tt.input))
		})
	}
}
