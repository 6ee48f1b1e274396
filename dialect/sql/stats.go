package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syssam/relmap/dialect"
)

// QueryStats holds query execution statistics.
type QueryStats struct {
	// TotalQueries is the total number of row-returning statements executed.
	TotalQueries atomic.Int64
	// TotalExecs is the total number of exec statements executed.
	TotalExecs atomic.Int64
	// TotalDuration is the total time spent executing statements.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowQueries is the count of statements exceeding the slow threshold.
	SlowQueries atomic.Int64
	// Errors is the count of statement errors.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of query statistics.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// AvgQueryDuration returns the average statement duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors,
	)
}

// SlowQueryHook is a function called when a slow statement is detected.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// StatsPool wraps a Pool with statement statistics collection.
type StatsPool struct {
	dialect.Pool
	stats         *QueryStats
	slowThreshold time.Duration
	slowHook      SlowQueryHook
	mu            sync.RWMutex
}

// StatsOption configures the StatsPool.
type StatsOption func(*StatsPool)

// WithSlowThreshold sets the threshold for slow query detection.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsPool) {
		s.slowThreshold = d
	}
}

// WithSlowQueryHook sets a callback function for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsPool) {
		s.slowHook = hook
	}
}

// WithSlowQueryLog logs slow statements to the given logger, or to the
// default logger if nil.
func WithSlowQueryLog(l *slog.Logger) StatsOption {
	if l == nil {
		l = slog.Default()
	}
	return WithSlowQueryHook(func(ctx context.Context, query string, args []any, duration time.Duration) {
		l.WarnContext(ctx, "slow query detected", "duration", duration, "query", query, "args", args)
	})
}

// NewStatsPool wraps a Pool with statistics collection.
//
//	pool, _ := sql.Open(dialect.Postgres, dsn)
//	stats := sql.NewStatsPool(pool,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(nil),
//	)
//	resolver := sqlgraph.NewResolver(stats, platform.Postgres())
func NewStatsPool(pool dialect.Pool, opts ...StatsOption) *StatsPool {
	s := &StatsPool{
		Pool:          pool,
		stats:         &QueryStats{},
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the underlying QueryStats for reading statistics.
func (p *StatsPool) QueryStats() *QueryStats {
	return p.stats
}

// SlowThreshold returns the current slow query threshold.
func (p *StatsPool) SlowThreshold() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.slowThreshold
}

// SetSlowThreshold updates the slow query threshold.
func (p *StatsPool) SetSlowThreshold(threshold time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slowThreshold = threshold
}

// Conn acquires a connection that records statistics.
func (p *StatsPool) Conn(ctx context.Context) (dialect.Conn, error) {
	c, err := p.Pool.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &statsConn{Conn: c, pool: p}, nil
}

func (p *StatsPool) record(ctx context.Context, query string, args []any, start time.Time, err error, isQuery bool) {
	duration := time.Since(start)
	if isQuery {
		p.stats.TotalQueries.Add(1)
	} else {
		p.stats.TotalExecs.Add(1)
	}
	p.stats.TotalDuration.Add(int64(duration))
	if err != nil {
		p.stats.Errors.Add(1)
	}

	p.mu.RLock()
	threshold := p.slowThreshold
	hook := p.slowHook
	p.mu.RUnlock()

	if duration > threshold {
		p.stats.SlowQueries.Add(1)
		if hook != nil {
			hook(ctx, query, args, duration)
		}
	}
}

type statsConn struct {
	dialect.Conn
	pool *StatsPool
}

func (c *statsConn) Run(ctx context.Context, query string, args ...any) error {
	start := time.Now()
	err := c.Conn.Run(ctx, query, args...)
	c.pool.record(ctx, query, args, start, err, false)
	return err
}

func (c *statsConn) Prepare(ctx context.Context, query string) (dialect.Stmt, error) {
	stmt, err := c.Conn.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	return &statsStmt{Stmt: stmt, query: query, pool: c.pool}, nil
}

type statsStmt struct {
	dialect.Stmt
	query string
	pool  *StatsPool
}

func (s *statsStmt) Get(ctx context.Context, args ...any) (*dialect.Row, error) {
	start := time.Now()
	row, err := s.Stmt.Get(ctx, args...)
	s.pool.record(ctx, s.query, args, start, err, true)
	return row, err
}

func (s *statsStmt) All(ctx context.Context, args ...any) (*dialect.Rows, error) {
	start := time.Now()
	rows, err := s.Stmt.All(ctx, args...)
	s.pool.record(ctx, s.query, args, start, err, true)
	return rows, err
}

// DebugPool wraps a Pool with debug logging of every statement.
type DebugPool struct {
	dialect.Pool
	log *slog.Logger
}

// NewDebugPool wraps a Pool with debug logging. A nil logger logs to the
// default logger.
func NewDebugPool(pool dialect.Pool, l *slog.Logger) *DebugPool {
	if l == nil {
		l = slog.Default()
	}
	return &DebugPool{Pool: pool, log: l}
}

// Conn acquires a connection that logs its statements.
func (p *DebugPool) Conn(ctx context.Context) (dialect.Conn, error) {
	c, err := p.Pool.Conn(ctx)
	if err != nil {
		return nil, err
	}
	p.log.DebugContext(ctx, "acquire connection", "active", p.Pool.Active())
	return &debugConn{Conn: c, log: p.log}, nil
}

type debugConn struct {
	dialect.Conn
	log *slog.Logger
}

func (c *debugConn) Run(ctx context.Context, query string, args ...any) error {
	c.log.DebugContext(ctx, "exec", "query", query, "args", args)
	return c.Conn.Run(ctx, query, args...)
}

func (c *debugConn) Prepare(ctx context.Context, query string) (dialect.Stmt, error) {
	c.log.DebugContext(ctx, "prepare", "query", query)
	return c.Conn.Prepare(ctx, query)
}

func (c *debugConn) Release() {
	c.log.Debug("release connection")
	c.Conn.Release()
}

// Ensure interfaces are implemented.
var (
	_ dialect.Pool = (*StatsPool)(nil)
	_ dialect.Pool = (*DebugPool)(nil)
	_ dialect.Conn = (*statsConn)(nil)
	_ dialect.Conn = (*debugConn)(nil)
)
