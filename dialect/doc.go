// Package dialect defines the dialect names and the connection contract the
// relational core runs against.
//
// # Dialect Constants
//
// Each dialect is identified by a constant string:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite3"
//
// # Pool Contract
//
// A Pool hands out exclusive connections. A connection runs and prepares
// parameterized statements and reports the affected-row count of the last
// statement:
//
//	type Pool interface {
//	    Conn(ctx context.Context) (Conn, error)
//	    Active() int
//	    Dialect() string
//	}
//
//	type Conn interface {
//	    Run(ctx context.Context, query string, args ...any) error
//	    Prepare(ctx context.Context, query string) (Stmt, error)
//	    Changes(ctx context.Context) (int64, error)
//	    LastInsertID(ctx context.Context) (int64, error)
//	    Release()
//	}
//
// Release is mandatory on every exit path, including errors:
//
//	conn, err := pool.Conn(ctx)
//	if err != nil {
//	    return err
//	}
//	defer conn.Release()
//
// # Sub-packages
//
//   - dialect/sql: database/sql backed pool, driver registration and statistics
//   - dialect/sql/schema: schema model, diff engine and inspection
//   - dialect/sql/platform: per-engine quoting, type mapping and DDL generation
//   - dialect/sql/sqlgraph: query compiler, row hydration and persistence
package dialect
