package sql

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relmap/dialect"
)

func TestStatsPool(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var slow []string
	pool := NewStatsPool(OpenDB(dialect.SQLite, db),
		WithSlowThreshold(0),
		WithSlowQueryHook(func(_ context.Context, query string, _ []any, _ time.Duration) {
			slow = append(slow, query)
		}),
	)
	ctx := context.Background()
	conn, err := pool.Conn(ctx)
	require.NoError(t, err)
	defer conn.Release()

	mock.ExpectExec("INSERT").WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, conn.Run(ctx, "INSERT INTO t VALUES (1)"))
	mock.ExpectExec("INSERT").WillReturnError(errors.New("boom"))
	require.Error(t, conn.Run(ctx, "INSERT INTO t VALUES (1)"))

	mock.ExpectPrepare("SELECT").ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	stmt, err := conn.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)
	_, err = stmt.All(ctx)
	require.NoError(t, err)
	stmt.Release()

	s := pool.QueryStats().Stats()
	assert.Equal(t, int64(1), s.TotalQueries)
	assert.Equal(t, int64(2), s.TotalExecs)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(3), s.SlowQueries)
	assert.Len(t, slow, 3)
	assert.Contains(t, s.String(), "queries=1 execs=2")

	pool.QueryStats().Reset()
	assert.Zero(t, pool.QueryStats().Stats().TotalExecs)
	assert.Zero(t, StatsSnapshot{}.AvgQueryDuration())

	pool.SetSlowThreshold(time.Second)
	assert.Equal(t, time.Second, pool.SlowThreshold())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDebugPool(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	pool := NewDebugPool(OpenDB(dialect.Postgres, db), logger)

	ctx := context.Background()
	conn, err := pool.Conn(ctx)
	require.NoError(t, err)
	mock.ExpectExec("DELETE").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, conn.Run(ctx, "DELETE FROM t WHERE id = $1", 1))
	conn.Release()

	out := buf.String()
	assert.Contains(t, out, "acquire connection")
	assert.Contains(t, out, `query="DELETE FROM t WHERE id = $1"`)
	assert.Contains(t, out, "release connection")
	require.NoError(t, mock.ExpectationsWereMet())
}
