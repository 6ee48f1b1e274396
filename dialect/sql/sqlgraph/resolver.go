package sqlgraph

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/syssam/relmap"
	"github.com/syssam/relmap/dialect"
	"github.com/syssam/relmap/dialect/sql/platform"
	"github.com/syssam/relmap/entity"
)

// Resolver executes queries against a pool. Every call acquires one
// connection and releases it before returning.
type Resolver struct {
	pool dialect.Pool
	p    *platform.Platform
	log  *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithPlatform overrides the platform picked from the pool dialect.
func WithPlatform(p *platform.Platform) ResolverOption {
	return func(r *Resolver) {
		r.p = p
	}
}

// WithResolverLogger sets the logger for executed statements.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.log = l
	}
}

// NewResolver returns a resolver over the pool.
func NewResolver(pool dialect.Pool, opts ...ResolverOption) *Resolver {
	r := &Resolver{pool: pool, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	if r.p == nil {
		r.p = platform.ForDialect(pool.Dialect())
	}
	return r
}

// Platform returns the platform statements are compiled for.
func (r *Resolver) Platform() *platform.Platform { return r.p }

// Count returns the number of root records matched by the query.
func (r *Resolver) Count(ctx context.Context, q *Query) (int64, error) {
	query, err := NewBuilder(r.p).Count(q)
	if err != nil {
		return 0, relmap.NewQueryError(q.Schema.Label(), "count", err)
	}
	var n int64
	err = r.withConn(ctx, func(conn dialect.Conn) error {
		row, err := r.get(ctx, conn, query)
		if err != nil || row == nil {
			return err
		}
		v, _ := row.Get("count")
		n, err = toInt64(v)
		return err
	})
	if err != nil {
		return 0, relmap.NewQueryError(q.Schema.Label(), "count", err)
	}
	return n, nil
}

// Find returns the records matched by the query with their populated joins.
func (r *Resolver) Find(ctx context.Context, q *Query) ([]entity.Record, error) {
	b := NewBuilder(r.p)
	query, err := b.Select(q)
	if err != nil {
		return nil, relmap.NewQueryError(q.Schema.Label(), "find", err)
	}
	var out []entity.Record
	err = r.withConn(ctx, func(conn dialect.Conn) error {
		rows, err := r.all(ctx, conn, query)
		if err != nil {
			return err
		}
		out, err = b.ConvertRows(rows)
		return err
	})
	if err != nil {
		return nil, relmap.NewQueryError(q.Schema.Label(), "find", err)
	}
	return out, nil
}

// FindOne returns the first matched record. It fails with a NotFoundError
// when nothing matches.
func (r *Resolver) FindOne(ctx context.Context, q *Query) (entity.Record, error) {
	rec, err := r.FindOneOrNil(ctx, q)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, relmap.NewNotFoundError(q.Schema.Label())
	}
	return rec, nil
}

// FindOneOrNil returns the first matched record, or nil.
func (r *Resolver) FindOneOrNil(ctx context.Context, q *Query) (entity.Record, error) {
	// LIMIT applies to joined rows, not to root records.
	if !q.HasJoins() {
		q = q.Clone()
		q.Limit = 1
	}
	items, err := r.Find(ctx, q)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

// Has reports whether the query matches any record.
func (r *Resolver) Has(ctx context.Context, q *Query) (bool, error) {
	q = q.Clone()
	q.Limit, q.Sort = 1, nil
	n, err := r.Count(ctx, q)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Patch applies the changes to every matched record and returns the number
// of affected rows.
func (r *Resolver) Patch(ctx context.Context, q *Query, changes *relmap.Changes) (int64, error) {
	if changes.Empty() {
		return 0, nil
	}
	b := NewBuilder(r.p)
	set, err := b.SetFromChanges(q.Schema, changes)
	if err != nil {
		return 0, relmap.NewQueryError(q.Schema.Label(), "patch", err)
	}
	query, err := b.Update(q, set)
	if err != nil {
		return 0, relmap.NewQueryError(q.Schema.Label(), "patch", err)
	}
	n, err := r.run(ctx, query)
	if err != nil {
		return 0, relmap.NewQueryError(q.Schema.Label(), "patch", constraintError(err))
	}
	return n, nil
}

// Delete removes every matched record and returns the number of affected
// rows. Queries with joins are rejected.
func (r *Resolver) Delete(ctx context.Context, q *Query) (int64, error) {
	query, err := NewBuilder(r.p).Delete(q)
	if err != nil {
		return 0, relmap.NewQueryError(q.Schema.Label(), "delete", err)
	}
	n, err := r.run(ctx, query)
	if err != nil {
		return 0, relmap.NewQueryError(q.Schema.Label(), "delete", constraintError(err))
	}
	return n, nil
}

func (r *Resolver) withConn(ctx context.Context, fn func(dialect.Conn) error) error {
	conn, err := r.pool.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return fn(conn)
}

func (r *Resolver) run(ctx context.Context, query string) (int64, error) {
	var n int64
	err := r.withConn(ctx, func(conn dialect.Conn) error {
		r.log.DebugContext(ctx, "exec", "query", query)
		if err := conn.Run(ctx, query); err != nil {
			return err
		}
		var err error
		n, err = conn.Changes(ctx)
		return err
	})
	return n, err
}

func (r *Resolver) all(ctx context.Context, conn dialect.Conn, query string) (*dialect.Rows, error) {
	r.log.DebugContext(ctx, "query", "query", query)
	stmt, err := conn.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	defer stmt.Release()
	return stmt.All(ctx)
}

func (r *Resolver) get(ctx context.Context, conn dialect.Conn, query string) (*dialect.Row, error) {
	r.log.DebugContext(ctx, "query", "query", query)
	return queryRow(ctx, conn, query)
}

func toInt64(v any) (int64, error) {
	switch v := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("sqlgraph: unexpected count value %T", v)
	}
}
