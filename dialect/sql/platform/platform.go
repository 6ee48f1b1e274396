// Package platform generates engine-specific SQL: identifier and value
// quoting, logical-to-native type mapping, table generation from entity
// schemas, DDL for creating and altering tables and the translation of
// filter predicates into SQL conditions.
//
// A Platform is a configuration value composed of strategies. The presets
// SQLite, MySQL and Postgres override only the pieces their engine needs:
//
//	p := platform.ForDialect(dialect.Postgres)
//	tables, err := p.CreateTables(schemas, nil)
//	if err != nil {
//	    return err
//	}
//	ddl := p.AddTablesDDL(&schema.Database{Tables: tables})
package platform

import (
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/go-openapi/inflect"

	"github.com/syssam/relmap/dialect"
	"github.com/syssam/relmap/dialect/sql/schema"
	"github.com/syssam/relmap/entity"
)

// TypeMapping is the native column type of a logical field type.
type TypeMapping struct {
	Type  string
	Size  int
	Scale int
}

// TableNamer derives a table name from an entity name.
type TableNamer func(entityName string) string

// SnakePlural names tables with the plural snake_case form of the entity
// name, e.g. BlogPost becomes blog_posts.
func SnakePlural(name string) string {
	return inflect.Underscore(inflect.Pluralize(name))
}

// Platform holds the SQL generation rules of one database engine.
type Platform struct {
	name            string
	defaultType     string
	types           map[entity.Type]TypeMapping
	schemaDelimiter string
	autoIncrement   string
	timeFormat      string
	placeholder     squirrel.PlaceholderFormat
	namer           TableNamer

	// Capabilities.
	inlinePrimaryKey bool // single-column primary keys are declared on the column
	foreignKeyBlock  bool // foreign keys are declared inside CREATE TABLE
	splitAlter       bool // one clause per ALTER TABLE statement
	alterColumns     bool // columns can be modified in place
	alterConstraints bool // constraints can be added and dropped after creation
	supportsSchemas  bool
	offsetNoLimit    string // LIMIT clause required before a bare OFFSET

	// Strategies.
	quotePart      func(string) string
	quoteString    func(string) string
	quoteBool      func(bool) string
	quoteFloat     func(float64, int) string
	quoteBytes     func([]byte) string
	beginDDL       []string
	endDDL         []string
	normalize      func([]*schema.Table)
	columnDDL      func(*Platform, *schema.Column) string
	foreignKeyDDL  func(*Platform, *schema.ForeignKey) string
	dropTableDDL   func(*Platform, *schema.Table) string
	dropIndexDDL   func(*Platform, *schema.Index) string
	dropFKClause   func(*Platform, *schema.ForeignKey) string
	dropPKClause   func(*Platform, *schema.Table) string
	modifyClauses  func(*Platform, []schema.ColumnPair) []string
	addColsClauses func(*Platform, []*schema.Column) []string
}

// Option configures a Platform.
type Option func(*Platform)

// WithTableNamer sets the strategy deriving table names from entity names for
// schemas without an explicit table name.
func WithTableNamer(n TableNamer) Option {
	return func(p *Platform) {
		p.namer = n
	}
}

// WithType overrides the native type of a logical field type.
func WithType(t entity.Type, native string, size, scale int) Option {
	return func(p *Platform) {
		p.types[t] = TypeMapping{Type: native, Size: size, Scale: scale}
	}
}

// WithSplitAlter emits one ALTER TABLE statement per clause.
func WithSplitAlter() Option {
	return func(p *Platform) {
		p.splitAlter = true
	}
}

// Default returns the base platform. It follows standard SQL where engines
// disagree and is the starting point of every preset.
func Default(opts ...Option) *Platform {
	p := &Platform{
		name:        "default",
		defaultType: "TEXT",
		types: map[entity.Type]TypeMapping{
			entity.TypeBool:    {Type: "BOOLEAN"},
			entity.TypeInt:     {Type: "INTEGER"},
			entity.TypeInt8:    {Type: "INTEGER"},
			entity.TypeInt16:   {Type: "INTEGER"},
			entity.TypeInt32:   {Type: "INTEGER"},
			entity.TypeInt64:   {Type: "INTEGER"},
			entity.TypeUint:    {Type: "INTEGER"},
			entity.TypeUint8:   {Type: "INTEGER"},
			entity.TypeUint16:  {Type: "INTEGER"},
			entity.TypeUint32:  {Type: "INTEGER"},
			entity.TypeUint64:  {Type: "INTEGER"},
			entity.TypeFloat32: {Type: "REAL"},
			entity.TypeFloat64: {Type: "DOUBLE PRECISION"},
			entity.TypeTime:    {Type: "TIMESTAMP"},
			entity.TypeBytes:   {Type: "BLOB"},
		},
		schemaDelimiter:  ".",
		autoIncrement:    "IDENTITY",
		timeFormat:       "2006-01-02 15:04:05.999999",
		placeholder:      squirrel.Question,
		foreignKeyBlock:  true,
		alterColumns:     true,
		alterConstraints: true,
		supportsSchemas:  true,
		quotePart:        doubleQuote,
		quoteString:      singleQuote,
		quoteBool:        boolKeyword,
		quoteFloat:       floatLiteral,
		quoteBytes:       hexLiteral,
		normalize:        func([]*schema.Table) {},
		columnDDL:        baseColumnDDL,
		foreignKeyDDL:    baseForeignKeyDDL,
		dropTableDDL:     baseDropTableDDL,
		dropIndexDDL:     baseDropIndexDDL,
		dropFKClause:     baseDropForeignKeyClause,
		dropPKClause:     baseDropPrimaryKeyClause,
		modifyClauses:    baseModifyClauses,
		addColsClauses:   baseAddColumnsClauses,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ForDialect returns the preset of the dialect, or the base platform for
// unknown names.
func ForDialect(name string, opts ...Option) *Platform {
	switch dialect.Normalize(name) {
	case dialect.SQLite:
		return SQLite(opts...)
	case dialect.MySQL:
		return MySQL(opts...)
	case dialect.Postgres:
		return Postgres(opts...)
	default:
		return Default(opts...)
	}
}

// Name returns the dialect name of the platform.
func (p *Platform) Name() string { return p.name }

// Placeholder returns the positional placeholder format of the engine.
func (p *Platform) Placeholder() squirrel.PlaceholderFormat { return p.placeholder }

// SchemaDelimiter returns the string joining a schema namespace and a table
// name.
func (p *Platform) SchemaDelimiter() string { return p.schemaDelimiter }

// SplitAlter reports whether every ALTER TABLE clause is its own statement.
func (p *Platform) SplitAlter() bool { return p.splitAlter }

// TypeOf returns the native type of a logical field type.
func (p *Platform) TypeOf(t entity.Type) TypeMapping {
	if m, ok := p.types[t]; ok {
		return m
	}
	return TypeMapping{Type: p.defaultType}
}

// LimitOffset renders the LIMIT and OFFSET clauses. Zero values are omitted.
func (p *Platform) LimitOffset(limit, offset int) string {
	var b strings.Builder
	switch {
	case limit > 0:
		b.WriteString(" LIMIT ")
		b.WriteString(itoa(limit))
	case offset > 0 && p.offsetNoLimit != "":
		b.WriteString(" LIMIT ")
		b.WriteString(p.offsetNoLimit)
	}
	if offset > 0 {
		b.WriteString(" OFFSET ")
		b.WriteString(itoa(offset))
	}
	return b.String()
}
