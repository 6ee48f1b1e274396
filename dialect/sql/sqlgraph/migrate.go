package sqlgraph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/syssam/relmap"
	"github.com/syssam/relmap/dialect"
	"github.com/syssam/relmap/dialect/sql/platform"
	"github.com/syssam/relmap/dialect/sql/schema"
	"github.com/syssam/relmap/entity"
)

// DefaultMigrationTable is the table the applied versions are recorded in.
const DefaultMigrationTable = "relmap_migration"

// MigrationHandler records applied schema versions in a table of the
// database and applies DDL to it.
type MigrationHandler struct {
	pool   dialect.Pool
	p      *platform.Platform
	log    *slog.Logger
	schema *entity.Schema
}

// MigrationOption configures a MigrationHandler.
type MigrationOption func(*MigrationHandler)

// WithMigrationTable sets the name of the version table.
func WithMigrationTable(name string) MigrationOption {
	return func(m *MigrationHandler) {
		m.schema.Name = name
	}
}

// WithMigrationLogger sets the logger for applied statements.
func WithMigrationLogger(l *slog.Logger) MigrationOption {
	return func(m *MigrationHandler) {
		m.log = l
	}
}

// WithMigrationPlatform overrides the platform picked from the pool dialect.
func WithMigrationPlatform(p *platform.Platform) MigrationOption {
	return func(m *MigrationHandler) {
		m.p = p
	}
}

// NewMigrationHandler returns a handler over the pool.
func NewMigrationHandler(pool dialect.Pool, opts ...MigrationOption) *MigrationHandler {
	m := &MigrationHandler{
		pool: pool,
		log:  slog.Default(),
		schema: &entity.Schema{
			Name: DefaultMigrationTable,
			Fields: []*entity.Field{
				{Name: "version", Type: entity.TypeInt, Primary: true},
				{Name: "created", Type: entity.TypeTime},
			},
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.p == nil {
		m.p = platform.ForDialect(pool.Dialect())
	}
	return m
}

// VersionSchema returns the entity schema of the version table.
func (m *MigrationHandler) VersionSchema() *entity.Schema { return m.schema }

// LatestVersion returns the highest recorded version. The version table is
// created when it does not exist yet, and 0 is returned.
func (m *MigrationHandler) LatestVersion(ctx context.Context) (int, error) {
	b := NewBuilder(m.p)
	query, err := b.Select(NewQuery(m.schema).OrderBy("version", Desc).Window(1, 0), WithColumns("version"))
	if err != nil {
		return 0, err
	}
	conn, err := m.pool.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()
	row, err := queryRow(ctx, conn, query)
	switch {
	case err == nil && row == nil:
		return 0, nil
	case err == nil:
		v, _ := row.Get("version")
		n, err := toInt64(v)
		return int(n), err
	case !IsUndefinedTableError(err):
		return 0, fmt.Errorf("sqlgraph: read latest version: %w", err)
	}
	m.log.InfoContext(ctx, "creating migration table", "table", m.schema.Name)
	tables, err := m.p.CreateTables([]*entity.Schema{m.schema}, nil)
	if err != nil {
		return 0, err
	}
	ddl := m.p.AddSchemasDDL(&schema.Database{Tables: tables})
	ddl = append(ddl, m.p.AddTableDDL(tables[0])...)
	if err := m.exec(ctx, conn, ddl); err != nil {
		return 0, err
	}
	return 0, nil
}

// SetLatestVersion records the version as applied.
func (m *MigrationHandler) SetLatestVersion(ctx context.Context, version int) error {
	ps, err := NewPersistence(ctx, m.pool, m.p, WithPersistenceLogger(m.log))
	if err != nil {
		return err
	}
	defer ps.Release()
	return ps.Insert(ctx, m.schema, []entity.Record{{"version": version, "created": time.Now().UTC()}})
}

// RemoveVersion deletes the record of the version.
func (m *MigrationHandler) RemoveVersion(ctx context.Context, version int) error {
	ps, err := NewPersistence(ctx, m.pool, m.p, WithPersistenceLogger(m.log))
	if err != nil {
		return err
	}
	defer ps.Release()
	return ps.Remove(ctx, m.schema, []entity.Record{{"version": version}})
}

// Migrate drops and recreates the tables of the entity schemas, along with
// their namespaces, indexes and foreign keys.
func (m *MigrationHandler) Migrate(ctx context.Context, schemas []*entity.Schema) error {
	db := &schema.Database{}
	if _, err := m.p.CreateTables(schemas, db); err != nil {
		return err
	}
	ddl := append(m.p.AddSchemasDDL(db), m.p.AddTablesDDL(db)...)
	conn, err := m.pool.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return m.exec(ctx, conn, ddl)
}

// Apply runs the statements on one connection and records the version.
// Nothing is recorded if a statement fails.
func (m *MigrationHandler) Apply(ctx context.Context, version int, ddl []string) error {
	latest, err := m.LatestVersion(ctx)
	if err != nil {
		return err
	}
	if version <= latest {
		return relmap.NewConfigError(m.schema.Name, nil, "version %d is not newer than %d", version, latest)
	}
	conn, err := m.pool.Conn(ctx)
	if err != nil {
		return err
	}
	err = m.exec(ctx, conn, ddl)
	conn.Release()
	if err != nil {
		return err
	}
	return m.SetLatestVersion(ctx, version)
}

func (m *MigrationHandler) exec(ctx context.Context, conn dialect.Conn, ddl []string) error {
	for _, stmt := range ddl {
		m.log.InfoContext(ctx, "migrate", "stmt", stmt)
		if err := conn.Run(ctx, stmt); err != nil {
			return fmt.Errorf("sqlgraph: migrate: %q: %w", stmt, err)
		}
	}
	return nil
}

func queryRow(ctx context.Context, conn dialect.Conn, query string) (*dialect.Row, error) {
	stmt, err := conn.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	defer stmt.Release()
	return stmt.Get(ctx)
}
