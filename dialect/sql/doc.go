// Package sql implements the dialect connection contract on top of
// database/sql.
//
// Open picks the driver for the dialect: pgx for PostgreSQL,
// go-sql-driver/mysql for MySQL and modernc.org/sqlite for SQLite.
//
//	pool, err := sql.Open(dialect.SQLite, "file:app.db?_pragma=foreign_keys(1)",
//	    sql.WithMaxConns(4),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
//
//	conn, err := pool.Conn(ctx)
//	if err != nil {
//	    return err
//	}
//	defer conn.Release()
//
// # Session Variables
//
// Variables attached to the context with WithVar are set on every connection
// acquired with that context and reset when the connection is released:
//
//	ctx = sql.WithVar(ctx, "search_path", "tenant_42")
//
// On SQLite the variable is issued as a PRAGMA and is not reset:
//
//	ctx = sql.WithIntVar(ctx, "busy_timeout", 5000)
//
// # Statistics and Debugging
//
// NewStatsPool counts statements, their total duration, errors and slow
// statements. NewDebugPool logs every statement with log/slog.
package sql
