package sqlgraph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Masterminds/squirrel"

	"github.com/syssam/relmap"
	"github.com/syssam/relmap/dialect"
	"github.com/syssam/relmap/dialect/sql/platform"
	"github.com/syssam/relmap/entity"
)

// DefaultBatchSize is the number of records written by one INSERT statement.
const DefaultBatchSize = 500

// ChangeSet pairs the primary key of a stored record with the changes to
// write to it.
type ChangeSet struct {
	PrimaryKey entity.Record
	Changes    *relmap.Changes
}

// Persistence writes records through a single connection acquired at
// creation. Release must be called when done.
type Persistence struct {
	p     *platform.Platform
	conn  dialect.Conn
	log   *slog.Logger
	batch int
}

// PersistenceOption configures a Persistence.
type PersistenceOption func(*Persistence)

// WithPersistenceLogger sets the logger for executed statements.
func WithPersistenceLogger(l *slog.Logger) PersistenceOption {
	return func(p *Persistence) {
		p.log = l
	}
}

// WithBatchSize bounds the number of records per INSERT statement.
func WithBatchSize(n int) PersistenceOption {
	return func(p *Persistence) {
		if n > 0 {
			p.batch = n
		}
	}
}

// NewPersistence acquires a connection from the pool.
func NewPersistence(ctx context.Context, pool dialect.Pool, p *platform.Platform, opts ...PersistenceOption) (*Persistence, error) {
	conn, err := pool.Conn(ctx)
	if err != nil {
		return nil, err
	}
	ps := &Persistence{p: p, conn: conn, log: slog.Default(), batch: DefaultBatchSize}
	for _, opt := range opts {
		opt(ps)
	}
	return ps, nil
}

// Release returns the connection to the pool.
func (ps *Persistence) Release() { ps.conn.Release() }

// Insert writes the records with multi-row INSERT statements. Auto-increment
// fields are left to the database and the generated ids are stored back into
// the records when the schema has a single auto-increment primary key.
func (ps *Persistence) Insert(ctx context.Context, s *entity.Schema, items []entity.Record) error {
	if len(items) == 0 {
		return nil
	}
	if err := ps.insert(ctx, s, items); err != nil {
		return relmap.NewMutationError(s.Label(), "insert", constraintError(err))
	}
	return nil
}

func (ps *Persistence) insert(ctx context.Context, s *entity.Schema, items []entity.Record) error {
	table, err := ps.p.TableIdentifier(s)
	if err != nil {
		return err
	}
	auto := autoIncrementKey(s)
	var fields []*entity.Field
	for _, f := range s.StoredFields() {
		if !f.AutoIncrement {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		for _, item := range items {
			if err := ps.insertDefaults(ctx, table, auto, item); err != nil {
				return err
			}
		}
		return nil
	}
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = ps.p.QuoteIdentifier(f.Name)
	}
	ser := entity.SerializerOf(s)
	for start := 0; start < len(items); start += ps.batch {
		chunk := items[start:min(start+ps.batch, len(items))]
		ib := squirrel.Insert(table).Columns(columns...).PlaceholderFormat(ps.p.Placeholder())
		for _, item := range chunk {
			row, err := ser.Serialize(s, item)
			if err != nil {
				return err
			}
			values := make([]any, len(fields))
			for i, f := range fields {
				values[i] = row[f.Name]
			}
			ib = ib.Values(values...)
		}
		if auto != nil && ps.p.Name() == dialect.Postgres {
			ib = ib.Suffix("RETURNING " + ps.p.QuoteIdentifier(auto.Name))
		}
		query, args, err := ib.ToSql()
		if err != nil {
			return err
		}
		if err := ps.exec(ctx, query, args, auto, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (ps *Persistence) insertDefaults(ctx context.Context, table string, auto *entity.Field, item entity.Record) error {
	query := "INSERT INTO " + table + " DEFAULT VALUES"
	switch {
	case ps.p.Name() == dialect.MySQL:
		query = "INSERT INTO " + table + " () VALUES ()"
	case auto != nil && ps.p.Name() == dialect.Postgres:
		query += " RETURNING " + ps.p.QuoteIdentifier(auto.Name)
	}
	return ps.exec(ctx, query, nil, auto, []entity.Record{item})
}

// exec runs an INSERT and stores the generated ids into the records.
// PostgreSQL reports them with RETURNING in VALUES order, MySQL reports the
// id of the first row and SQLite the id of the last one.
func (ps *Persistence) exec(ctx context.Context, query string, args []any, auto *entity.Field, items []entity.Record) error {
	ps.log.DebugContext(ctx, "insert", "query", query, "rows", len(items))
	if auto != nil && ps.p.Name() == dialect.Postgres {
		stmt, err := ps.conn.Prepare(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Release()
		rows, err := stmt.All(ctx, args...)
		if err != nil {
			return err
		}
		if rows.Len() != len(items) {
			return fmt.Errorf("sqlgraph: insert returned %d ids for %d rows", rows.Len(), len(items))
		}
		for i, item := range items {
			item[auto.Name] = rows.Values[i][0]
		}
		return nil
	}
	if err := ps.conn.Run(ctx, query, args...); err != nil {
		return err
	}
	if auto == nil {
		return nil
	}
	id, err := ps.conn.LastInsertID(ctx)
	if err != nil {
		return err
	}
	first := id
	if ps.p.Name() != dialect.MySQL {
		first = id - int64(len(items)) + 1
	}
	for i, item := range items {
		item[auto.Name] = first + int64(i)
	}
	return nil
}

// Update writes the $set part of every change-set to the record identified
// by its primary key. Change-sets without values are skipped. The UPDATE
// statements of all change-sets are applied together or not at all.
func (ps *Persistence) Update(ctx context.Context, s *entity.Schema, changes []ChangeSet) error {
	table, err := ps.p.TableIdentifier(s)
	if err != nil {
		return err
	}
	pks := s.PrimaryFields()
	if len(pks) == 0 {
		return relmap.NewConfigError(s.Label(), nil, "no primary key defined")
	}
	ser := entity.SerializerOf(s)
	var batch []statement
	for _, cs := range changes {
		if cs.Changes == nil || len(cs.Changes.Values) == 0 {
			continue
		}
		values, err := ser.PartialSerialize(s, entity.Record(cs.Changes.Values))
		if err != nil {
			return relmap.NewMutationError(s.Label(), "update", err)
		}
		key, err := ser.PartialSerialize(s, cs.PrimaryKey)
		if err != nil {
			return relmap.NewMutationError(s.Label(), "update", err)
		}
		ub := squirrel.Update(table)
		for _, name := range keys(values) {
			ub = ub.Set(ps.p.QuoteIdentifier(name), values[name])
		}
		where := squirrel.Eq{}
		for _, pk := range pks {
			v, ok := key[pk.Name]
			if !ok {
				return relmap.NewMutationError(s.Label(), "update", fmt.Errorf("missing primary key %q", pk.Name))
			}
			where[ps.p.QuoteIdentifier(pk.Name)] = v
		}
		query, args, err := ub.Where(where).ToSql()
		if err != nil {
			return relmap.NewMutationError(s.Label(), "update", err)
		}
		batch = append(batch, statement{query: query, args: args})
	}
	if err := ps.runBatch(ctx, "update", batch); err != nil {
		return relmap.NewMutationError(s.Label(), "update", constraintError(err))
	}
	return nil
}

// statement is a query with question-mark placeholders and its arguments.
type statement struct {
	query string
	args  []any
}

// runBatch executes the statements in one transaction. SQLite binds numbered
// parameters across the statements of one execution, so its batch is joined
// into a single call. Other drivers take one parameterized statement per
// call and run the batch one statement at a time.
func (ps *Persistence) runBatch(ctx context.Context, op string, batch []statement) error {
	switch {
	case len(batch) == 0:
		return nil
	case len(batch) == 1:
		query, err := ps.p.Placeholder().ReplacePlaceholders(batch[0].query)
		if err != nil {
			return err
		}
		ps.log.DebugContext(ctx, op, "query", query)
		return ps.conn.Run(ctx, query, batch[0].args...)
	case ps.p.Name() == dialect.SQLite:
		var (
			sb   strings.Builder
			args []any
		)
		sb.WriteString("BEGIN")
		for _, st := range batch {
			sb.WriteString(";\n")
			sb.WriteString(st.query)
			args = append(args, st.args...)
		}
		sb.WriteString(";\nCOMMIT")
		query, err := squirrel.Dollar.ReplacePlaceholders(sb.String())
		if err != nil {
			return err
		}
		ps.log.DebugContext(ctx, op, "query", query, "statements", len(batch))
		if err := ps.conn.Run(ctx, query, args...); err != nil {
			return ps.rollback(ctx, err)
		}
		return nil
	}
	if err := ps.conn.Run(ctx, "BEGIN"); err != nil {
		return err
	}
	for _, st := range batch {
		query, err := ps.p.Placeholder().ReplacePlaceholders(st.query)
		if err != nil {
			return ps.rollback(ctx, err)
		}
		ps.log.DebugContext(ctx, op, "query", query)
		if err := ps.conn.Run(ctx, query, st.args...); err != nil {
			return ps.rollback(ctx, err)
		}
	}
	if err := ps.conn.Run(ctx, "COMMIT"); err != nil {
		return ps.rollback(ctx, err)
	}
	return nil
}

// rollback aborts the open transaction of a failed batch and returns err.
func (ps *Persistence) rollback(ctx context.Context, err error) error {
	if rerr := ps.conn.Run(ctx, "ROLLBACK"); rerr != nil {
		ps.log.WarnContext(ctx, "rollback", "error", rerr)
	}
	return err
}

// Remove deletes the records by primary key in one statement.
func (ps *Persistence) Remove(ctx context.Context, s *entity.Schema, items []entity.Record) error {
	if len(items) == 0 {
		return nil
	}
	table, err := ps.p.TableIdentifier(s)
	if err != nil {
		return err
	}
	pks := s.PrimaryFields()
	if len(pks) == 0 {
		return relmap.NewConfigError(s.Label(), nil, "no primary key defined")
	}
	ser := entity.SerializerOf(s)
	db := squirrel.Delete(table).PlaceholderFormat(ps.p.Placeholder())
	if len(pks) == 1 {
		col := ps.p.QuoteIdentifier(pks[0].Name)
		ids := make([]any, len(items))
		for i, item := range items {
			key, err := ser.PartialSerialize(s, entity.Record{pks[0].Name: item[pks[0].Name]})
			if err != nil {
				return relmap.NewMutationError(s.Label(), "remove", err)
			}
			ids[i] = key[pks[0].Name]
		}
		db = db.Where(squirrel.Eq{col: ids})
	} else {
		or := make(squirrel.Or, len(items))
		for i, item := range items {
			eq := squirrel.Eq{}
			for _, pk := range pks {
				key, err := ser.PartialSerialize(s, entity.Record{pk.Name: item[pk.Name]})
				if err != nil {
					return relmap.NewMutationError(s.Label(), "remove", err)
				}
				eq[ps.p.QuoteIdentifier(pk.Name)] = key[pk.Name]
			}
			or[i] = eq
		}
		db = db.Where(or)
	}
	query, args, err := db.ToSql()
	if err != nil {
		return relmap.NewMutationError(s.Label(), "remove", err)
	}
	ps.log.DebugContext(ctx, "remove", "query", query, "rows", len(items))
	if err := ps.conn.Run(ctx, query, args...); err != nil {
		return relmap.NewMutationError(s.Label(), "remove", constraintError(err))
	}
	return nil
}

// autoIncrementKey returns the auto-increment primary key of the schema when
// it is the only primary key.
func autoIncrementKey(s *entity.Schema) *entity.Field {
	pks := s.PrimaryFields()
	if len(pks) == 1 && pks[0].AutoIncrement {
		return pks[0]
	}
	return nil
}
