package platform

import (
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/syssam/relmap/dialect"
	"github.com/syssam/relmap/dialect/sql/schema"
	"github.com/syssam/relmap/entity"
)

// SQLite returns the SQLite platform.
//
// SQLite has no schemas, so a namespace is folded into the table name with
// the "§" delimiter. Its ALTER TABLE accepts one clause per statement and can
// neither modify columns nor add or drop constraints.
func SQLite(opts ...Option) *Platform {
	p := Default()
	p.name = dialect.SQLite
	p.defaultType = "TEXT"
	p.types = map[entity.Type]TypeMapping{
		entity.TypeBool:    {Type: "INTEGER", Size: 1},
		entity.TypeInt:     {Type: "INTEGER", Size: 8},
		entity.TypeInt8:    {Type: "INTEGER", Size: 8},
		entity.TypeInt16:   {Type: "INTEGER", Size: 8},
		entity.TypeInt32:   {Type: "INTEGER", Size: 8},
		entity.TypeInt64:   {Type: "INTEGER", Size: 8},
		entity.TypeUint:    {Type: "INTEGER", Size: 8},
		entity.TypeUint8:   {Type: "INTEGER", Size: 8},
		entity.TypeUint16:  {Type: "INTEGER", Size: 8},
		entity.TypeUint32:  {Type: "INTEGER", Size: 8},
		entity.TypeUint64:  {Type: "INTEGER", Size: 8},
		entity.TypeFloat32: {Type: "REAL"},
		entity.TypeFloat64: {Type: "REAL"},
		entity.TypeTime:    {Type: "DATETIME"},
		entity.TypeUUID:    {Type: "BLOB"},
		entity.TypeBytes:   {Type: "BLOB"},
	}
	p.schemaDelimiter = "§"
	p.autoIncrement = "AUTOINCREMENT"
	p.timeFormat = "2006-01-02 15:04:05.999999999-07:00"
	p.inlinePrimaryKey = true
	p.splitAlter = true
	p.alterColumns = false
	p.alterConstraints = false
	p.supportsSchemas = false
	p.offsetNoLimit = "-1"
	p.quoteBool = func(b bool) string {
		if b {
			return "1"
		}
		return "0"
	}
	p.beginDDL = []string{"PRAGMA foreign_keys = OFF"}
	p.endDDL = []string{"PRAGMA foreign_keys = ON"}
	p.normalize = func(tables []*schema.Table) {
		// AUTOINCREMENT requires an INTEGER PRIMARY KEY column.
		for _, t := range tables {
			for _, c := range t.Columns {
				if c.AutoIncrement {
					c.Primary = true
					c.Size, c.Scale = 0, 0
					c.Type = "INTEGER"
				}
			}
		}
	}
	p.columnDDL = sqliteColumnDDL
	p.foreignKeyDDL = sqliteForeignKeyDDL
	p.addColsClauses = addColumnClauses
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func sqliteColumnDDL(p *Platform, c *schema.Column) string {
	parts := []string{p.QuoteIdentifier(c.Name), c.SizedType()}
	if c.Primary && c.Table != nil && len(c.Table.PrimaryKeys()) == 1 {
		parts = append(parts, "PRIMARY KEY")
	}
	if c.AutoIncrement {
		parts = append(parts, p.autoIncrement)
	}
	parts = append(parts, p.defaultDDL(c), nullDDL(c))
	return joinSet(parts, " ")
}

func sqliteForeignKeyDDL(p *Platform, fk *schema.ForeignKey) string {
	parts := []string{fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
		p.columnList(fk.Columns), p.TableIdentifierOf(fk.RefTable), p.columnList(fk.RefColumns))}
	return joinSet(append(parts, referentialActions(fk)...), " ")
}

// MySQL returns the MySQL platform.
func MySQL(opts ...Option) *Platform {
	p := Default()
	p.name = dialect.MySQL
	p.defaultType = "LONGTEXT"
	p.types = map[entity.Type]TypeMapping{
		entity.TypeBool:    {Type: "TINYINT", Size: 1},
		entity.TypeInt:     {Type: "BIGINT"},
		entity.TypeInt8:    {Type: "TINYINT"},
		entity.TypeInt16:   {Type: "SMALLINT"},
		entity.TypeInt32:   {Type: "INT"},
		entity.TypeInt64:   {Type: "BIGINT"},
		entity.TypeUint:    {Type: "BIGINT UNSIGNED"},
		entity.TypeUint8:   {Type: "TINYINT UNSIGNED"},
		entity.TypeUint16:  {Type: "SMALLINT UNSIGNED"},
		entity.TypeUint32:  {Type: "INT UNSIGNED"},
		entity.TypeUint64:  {Type: "BIGINT UNSIGNED"},
		entity.TypeFloat32: {Type: "FLOAT"},
		entity.TypeFloat64: {Type: "DOUBLE"},
		entity.TypeTime:    {Type: "DATETIME", Size: 6},
		entity.TypeString:  {Type: "VARCHAR", Size: 255},
		entity.TypeEnum:    {Type: "VARCHAR", Size: 255},
		entity.TypeJSON:    {Type: "JSON"},
		entity.TypeUUID:    {Type: "CHAR", Size: 36},
		entity.TypeBytes:   {Type: "BLOB"},
	}
	p.autoIncrement = "AUTO_INCREMENT"
	p.offsetNoLimit = "18446744073709551615"
	p.quotePart = func(s string) string {
		return "`" + strings.ReplaceAll(s, "`", "``") + "`"
	}
	p.quoteString = mysqlString
	p.beginDDL = []string{"SET FOREIGN_KEY_CHECKS = 0"}
	p.endDDL = []string{"SET FOREIGN_KEY_CHECKS = 1"}
	p.dropIndexDDL = func(p *Platform, idx *schema.Index) string {
		return fmt.Sprintf("DROP INDEX %s ON %s", p.QuoteIdentifier(idx.Name), p.TableIdentifierOf(idx.Table))
	}
	p.dropFKClause = func(p *Platform, fk *schema.ForeignKey) string {
		return "DROP FOREIGN KEY " + p.QuoteIdentifier(fk.Name)
	}
	p.dropPKClause = func(*Platform, *schema.Table) string {
		return "DROP PRIMARY KEY"
	}
	p.modifyClauses = func(p *Platform, pairs []schema.ColumnPair) []string {
		clauses := make([]string, len(pairs))
		for i, pair := range pairs {
			clauses[i] = "MODIFY " + p.ColumnDDL(pair.To)
		}
		return clauses
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// mysqlString escapes a string the way MySQL reads quoted literals.
func mysqlString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case 0:
			b.WriteString(`\0`)
		case '\b':
			b.WriteString(`\b`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case 0x1a:
			b.WriteString(`\Z`)
		case '\'':
			b.WriteString(`\'`)
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// Postgres returns the PostgreSQL platform.
func Postgres(opts ...Option) *Platform {
	p := Default()
	p.name = dialect.Postgres
	p.types = map[entity.Type]TypeMapping{
		entity.TypeBool:    {Type: "BOOLEAN"},
		entity.TypeInt:     {Type: "BIGINT"},
		entity.TypeInt8:    {Type: "SMALLINT"},
		entity.TypeInt16:   {Type: "SMALLINT"},
		entity.TypeInt32:   {Type: "INTEGER"},
		entity.TypeInt64:   {Type: "BIGINT"},
		entity.TypeUint:    {Type: "BIGINT"},
		entity.TypeUint8:   {Type: "SMALLINT"},
		entity.TypeUint16:  {Type: "INTEGER"},
		entity.TypeUint32:  {Type: "BIGINT"},
		entity.TypeUint64:  {Type: "NUMERIC", Size: 20},
		entity.TypeFloat32: {Type: "REAL"},
		entity.TypeFloat64: {Type: "DOUBLE PRECISION"},
		entity.TypeTime:    {Type: "TIMESTAMPTZ"},
		entity.TypeJSON:    {Type: "JSONB"},
		entity.TypeUUID:    {Type: "UUID"},
		entity.TypeBytes:   {Type: "BYTEA"},
	}
	p.autoIncrement = "GENERATED BY DEFAULT AS IDENTITY"
	p.timeFormat = time.RFC3339Nano
	p.placeholder = squirrel.Dollar
	p.foreignKeyBlock = false
	p.quotePart = pq.QuoteIdentifier
	p.quoteString = func(s string) string {
		// QuoteLiteral prefixes escaped literals with a space.
		return strings.TrimPrefix(pq.QuoteLiteral(s), " ")
	}
	p.quoteBytes = func(b []byte) string {
		return fmt.Sprintf(`'\x%x'::bytea`, b)
	}
	p.quoteFloat = pgFloatLiteral
	p.dropTableDDL = func(p *Platform, t *schema.Table) string {
		return "DROP TABLE IF EXISTS " + p.TableIdentifierOf(t) + " CASCADE"
	}
	p.dropIndexDDL = func(p *Platform, idx *schema.Index) string {
		name := idx.Name
		if idx.Table != nil && idx.Table.Namespace != "" {
			name = idx.Table.Namespace + "." + name
		}
		return "DROP INDEX " + p.QuoteIdentifier(name)
	}
	p.modifyClauses = postgresModifyClauses
	p.addColsClauses = addColumnClauses
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func postgresModifyClauses(p *Platform, pairs []schema.ColumnPair) []string {
	var clauses []string
	for _, pair := range pairs {
		from, to := pair.From, pair.To
		col := "ALTER COLUMN " + p.QuoteIdentifier(to.Name)
		if !strings.EqualFold(from.SizedType(), to.SizedType()) {
			clauses = append(clauses, col+" TYPE "+to.SizedType())
		}
		if from.NotNull != to.NotNull {
			if to.NotNull {
				clauses = append(clauses, col+" SET NOT NULL")
			} else {
				clauses = append(clauses, col+" DROP NOT NULL")
			}
		}
		if fmt.Sprint(from.Default) != fmt.Sprint(to.Default) {
			if to.Default == nil {
				clauses = append(clauses, col+" DROP DEFAULT")
			} else {
				clauses = append(clauses, col+" SET DEFAULT "+p.QuoteValue(to.Default))
			}
		}
		if from.AutoIncrement != to.AutoIncrement {
			if to.AutoIncrement {
				clauses = append(clauses, col+" ADD "+p.autoIncrement)
			} else {
				clauses = append(clauses, col+" DROP IDENTITY IF EXISTS")
			}
		}
	}
	return clauses
}

// addColumnClauses adds every column with its own ADD COLUMN clause.
func addColumnClauses(p *Platform, columns []*schema.Column) []string {
	clauses := make([]string, len(columns))
	for i, c := range columns {
		clauses[i] = "ADD COLUMN " + p.ColumnDDL(c)
	}
	return clauses
}
