package sqlgraph

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ConstraintError is returned by persistence operations that failed on a
// database constraint.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error implements the error interface.
func (e *ConstraintError) Error() string { return "sqlgraph: " + e.msg }

// Unwrap implements the errors.Wrapper interface.
func (e *ConstraintError) Unwrap() error { return e.wrap }

// constraintError wraps err with a ConstraintError if it is a constraint
// violation.
func constraintError(err error) error {
	if err == nil || !isConstraintViolation(err) {
		return err
	}
	return &ConstraintError{msg: err.Error(), wrap: err}
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	var e *ConstraintError
	return errors.As(err, &e) || isConstraintViolation(err)
}

func isConstraintViolation(err error) bool {
	return IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// PostgreSQL SQLSTATE codes.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgUndefinedTable      = "42P01"
)

// MySQL error numbers.
const (
	mysqlDuplicateEntry         = 1062
	mysqlUnknownTable           = 1146
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// driverCode holds the error code reported by whichever driver produced err.
type driverCode struct {
	sqlState string
	number   uint16
	sqlite   int
	ok       bool
}

func codeOf(err error) driverCode {
	var (
		pgErr *pgconn.PgError
		pqErr *pq.Error
		myErr *mysql.MySQLError
		ltErr *sqlite.Error
	)
	switch {
	case errors.As(err, &pgErr):
		return driverCode{sqlState: pgErr.Code, ok: true}
	case errors.As(err, &pqErr):
		return driverCode{sqlState: string(pqErr.Code), ok: true}
	case errors.As(err, &myErr):
		return driverCode{number: myErr.Number, ok: true}
	case errors.As(err, &ltErr):
		return driverCode{sqlite: ltErr.Code(), ok: true}
	}
	return driverCode{}
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate value in unique index.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if c := codeOf(err); c.ok {
		switch {
		case c.sqlState == pgUniqueViolation, c.number == mysqlDuplicateEntry,
			c.sqlite == sqlite3.SQLITE_CONSTRAINT_UNIQUE, c.sqlite == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return containsAny(err.Error(),
		"Error 1062",                 // MySQL
		"violates unique constraint", // Postgres
		"UNIQUE constraint failed",   // SQLite
	)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
// e.g. parent row does not exist.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if c := codeOf(err); c.ok {
		switch {
		case c.sqlState == pgForeignKeyViolation, c.number == mysqlForeignKeyParent, c.number == mysqlForeignKeyChild,
			c.sqlite == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return true
		}
	}
	return containsAny(err.Error(),
		"Error 1451",                      // MySQL (Cannot delete or update a parent row)
		"Error 1452",                      // MySQL (Cannot add or update a child row)
		"violates foreign key constraint", // Postgres
		"FOREIGN KEY constraint failed",   // SQLite
	)
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
// e.g. a value does not satisfy a check condition.
func IsCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if c := codeOf(err); c.ok {
		switch {
		case c.sqlState == pgCheckViolation, c.number == mysqlCheckConstraintViolate,
			c.sqlite == sqlite3.SQLITE_CONSTRAINT_CHECK:
			return true
		}
	}
	return containsAny(err.Error(),
		"Error 3819",                // MySQL
		"violates check constraint", // Postgres
		"CHECK constraint failed",   // SQLite
	)
}

// IsUndefinedTableError reports if the error resulted from a statement over a
// table that does not exist.
func IsUndefinedTableError(err error) bool {
	if err == nil {
		return false
	}
	if c := codeOf(err); c.ok && (c.sqlState == pgUndefinedTable || c.number == mysqlUnknownTable) {
		return true
	}
	msg := err.Error()
	return containsAny(msg, "Error 1146", "no such table") ||
		strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist")
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
