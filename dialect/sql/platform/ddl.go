package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/relmap"
	"github.com/syssam/relmap/dialect/sql/schema"
)

// ColumnDDL returns the definition of a column as used in CREATE TABLE and
// ALTER TABLE statements.
func (p *Platform) ColumnDDL(c *schema.Column) string {
	return p.columnDDL(p, c)
}

// PrimaryKeyDDL returns the primary key constraint of a table, or an empty
// string if the table has no primary key.
func (p *Platform) PrimaryKeyDDL(t *schema.Table) string {
	pks := t.PrimaryKeys()
	if len(pks) == 0 {
		return ""
	}
	return fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", p.QuoteIdentifier(primaryKeyName(t)), p.columnList(pks))
}

// CreateTableDDL returns the CREATE TABLE statement of a table.
func (p *Platform) CreateTableDDL(t *schema.Table) string {
	lines := make([]string, 0, len(t.Columns)+len(t.ForeignKeys)+1)
	for _, c := range t.Columns {
		lines = append(lines, p.ColumnDDL(c))
	}
	if pks := t.PrimaryKeys(); len(pks) > 0 && !(p.inlinePrimaryKey && len(pks) == 1) {
		lines = append(lines, p.PrimaryKeyDDL(t))
	}
	if p.foreignKeyBlock {
		for _, fk := range t.ForeignKeys {
			lines = append(lines, p.foreignKeyDDL(p, fk))
		}
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", p.TableIdentifierOf(t), strings.Join(lines, ", "))
}

// AddTableDDL returns the statements creating a table and its indexes.
func (p *Platform) AddTableDDL(t *schema.Table) []string {
	ddl := []string{p.CreateTableDDL(t)}
	for _, idx := range t.Indexes {
		ddl = append(ddl, p.AddIndexDDL(idx))
	}
	return ddl
}

// AddTablesDDL returns the statements (re)creating every table of the
// database, bracketed by the engine's begin and end statements.
func (p *Platform) AddTablesDDL(db *schema.Database) []string {
	ddl := append([]string(nil), p.beginDDL...)
	for _, t := range db.Tables {
		ddl = append(ddl, p.DropTableDDL(t))
		ddl = append(ddl, p.AddTableDDL(t)...)
	}
	if !p.foreignKeyBlock {
		for _, t := range db.Tables {
			for _, fk := range t.ForeignKeys {
				ddl = append(ddl, p.AddForeignKeyDDL(fk))
			}
		}
	}
	ddl = append(ddl, p.endDDL...)
	return filterEmpty(ddl)
}

// AddSchemasDDL returns the statements creating the namespaces used by the
// database and its tables. Engines without schemas return nothing.
func (p *Platform) AddSchemasDDL(db *schema.Database) []string {
	if !p.supportsSchemas {
		return nil
	}
	var (
		ddl  []string
		seen = make(map[string]bool)
	)
	add := func(ns string) {
		if ns == "" || seen[ns] {
			return
		}
		seen[ns] = true
		ddl = append(ddl, "CREATE SCHEMA IF NOT EXISTS "+p.QuoteIdentifier(ns))
	}
	add(db.Namespace)
	for _, t := range db.Tables {
		add(t.Namespace)
	}
	return ddl
}

// AddIndexDDL returns the CREATE INDEX statement of an index.
func (p *Platform) AddIndexDDL(idx *schema.Index) string {
	kind := "INDEX"
	switch {
	case idx.Unique:
		kind = "UNIQUE INDEX"
	case idx.Spatial:
		kind = "SPATIAL INDEX"
	}
	return fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, p.QuoteIdentifier(idx.Name), p.TableIdentifierOf(idx.Table), p.columnList(idx.Columns))
}

// DropIndexDDL returns the DROP INDEX statement of an index.
func (p *Platform) DropIndexDDL(idx *schema.Index) string {
	return p.dropIndexDDL(p, idx)
}

// AddForeignKeyDDL returns the statement adding a foreign key to an existing
// table.
func (p *Platform) AddForeignKeyDDL(fk *schema.ForeignKey) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", p.TableIdentifierOf(fk.Table), p.foreignKeyDDL(p, fk))
}

// DropForeignKeyDDL returns the statement dropping a foreign key.
func (p *Platform) DropForeignKeyDDL(fk *schema.ForeignKey) string {
	return fmt.Sprintf("ALTER TABLE %s %s", p.TableIdentifierOf(fk.Table), p.dropFKClause(p, fk))
}

// RenameTableDDL returns the statement renaming a table.
func (p *Platform) RenameTableDDL(from, to *schema.Table) string {
	target := p.TableIdentifierOf(to)
	if from.Namespace == to.Namespace {
		target = p.QuoteIdentifier(to.Name)
	}
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", p.TableIdentifierOf(from), target)
}

// DropTableDDL returns the statement dropping a table if it exists.
func (p *Platform) DropTableDDL(t *schema.Table) string {
	return p.dropTableDDL(p, t)
}

// ModifyTableDDL returns the statements migrating a table as described by
// the diff: foreign keys and indexes are dropped first, column and primary
// key changes are merged into as few ALTER TABLE statements as the engine
// allows, and indexes and foreign keys are re-created last. An empty diff
// yields no statements.
func (p *Platform) ModifyTableDDL(d *schema.TableDiff) ([]string, error) {
	if d.Empty() && !d.Renamed() {
		return nil, nil
	}
	modifiedPK := d.HasModifiedPK()
	if !p.alterConstraints {
		switch {
		case modifiedPK:
			return nil, relmap.NewUnsupportedError("modify primary key of "+d.To.Name, errors.New(p.name+" cannot alter constraints"))
		case len(d.AddedForeignKeys)+len(d.RemovedForeignKeys)+len(d.ModifiedForeignKeys) > 0:
			return nil, relmap.NewUnsupportedError("modify foreign keys of "+d.To.Name, errors.New(p.name+" cannot alter constraints"))
		}
	}
	if !p.alterColumns && len(d.ModifiedColumns) > 0 {
		return nil, relmap.NewUnsupportedError("modify columns of "+d.To.Name, errors.New(p.name+" cannot alter columns"))
	}

	var ddl []string
	for _, fk := range d.RemovedForeignKeys {
		ddl = append(ddl, p.DropForeignKeyDDL(fk))
	}
	for _, pair := range d.ModifiedForeignKeys {
		ddl = append(ddl, p.DropForeignKeyDDL(pair.From))
	}
	for _, idx := range d.RemovedIndexes {
		ddl = append(ddl, p.DropIndexDDL(idx))
	}
	for _, pair := range d.ModifiedIndexes {
		ddl = append(ddl, p.DropIndexDDL(pair.From))
	}
	if d.Renamed() {
		ddl = append(ddl, p.RenameTableDDL(d.From, d.To))
	}

	var clauses []string
	if modifiedPK && len(d.From.PrimaryKeys()) > 0 {
		clauses = append(clauses, p.dropPKClause(p, d.From))
	}
	for _, pair := range d.RenamedColumns {
		clauses = append(clauses, fmt.Sprintf("RENAME COLUMN %s TO %s", p.QuoteIdentifier(pair.From.Name), p.QuoteIdentifier(pair.To.Name)))
	}
	if len(d.ModifiedColumns) > 0 {
		clauses = append(clauses, p.modifyClauses(p, d.ModifiedColumns)...)
	}
	if len(d.AddedColumns) > 0 {
		clauses = append(clauses, p.addColsClauses(p, d.AddedColumns)...)
	}
	for _, c := range d.RemovedColumns {
		clauses = append(clauses, "DROP COLUMN "+p.QuoteIdentifier(c.Name))
	}
	if modifiedPK && len(d.To.PrimaryKeys()) > 0 {
		clauses = append(clauses, "ADD "+p.PrimaryKeyDDL(d.To))
	}
	if len(clauses) > 0 {
		table := p.TableIdentifierOf(d.To)
		if p.splitAlter {
			for _, c := range clauses {
				ddl = append(ddl, fmt.Sprintf("ALTER TABLE %s %s", table, c))
			}
		} else {
			ddl = append(ddl, fmt.Sprintf("ALTER TABLE %s %s", table, strings.Join(clauses, ", ")))
		}
	}

	for _, pair := range d.ModifiedIndexes {
		ddl = append(ddl, p.AddIndexDDL(pair.To))
	}
	for _, idx := range d.AddedIndexes {
		ddl = append(ddl, p.AddIndexDDL(idx))
	}
	for _, pair := range d.ModifiedForeignKeys {
		ddl = append(ddl, p.AddForeignKeyDDL(pair.To))
	}
	for _, fk := range d.AddedForeignKeys {
		ddl = append(ddl, p.AddForeignKeyDDL(fk))
	}
	return filterEmpty(ddl), nil
}

// ModifyDatabaseDDL returns the statements migrating the database from one
// version to another: new tables are created, common tables altered and
// tables missing from the target dropped.
func (p *Platform) ModifyDatabaseDDL(ctx context.Context, from, to *schema.Database, opts ...schema.DiffOption) ([]string, error) {
	diff, err := schema.DiffDatabase(ctx, from, to, opts...)
	if err != nil {
		return nil, err
	}
	return p.DatabaseDiffDDL(diff)
}

// DatabaseDiffDDL returns the statements applying a computed database diff.
func (p *Platform) DatabaseDiffDDL(diff *schema.DatabaseDiff) ([]string, error) {
	if diff.Empty() {
		return nil, nil
	}
	ddl := append([]string(nil), p.beginDDL...)
	for _, t := range diff.AddedTables {
		ddl = append(ddl, p.AddTableDDL(t)...)
	}
	for _, td := range diff.Tables {
		stmts, err := p.ModifyTableDDL(td)
		if err != nil {
			return nil, err
		}
		ddl = append(ddl, stmts...)
	}
	if !p.foreignKeyBlock {
		for _, t := range diff.AddedTables {
			for _, fk := range t.ForeignKeys {
				ddl = append(ddl, p.AddForeignKeyDDL(fk))
			}
		}
	}
	for _, t := range diff.RemovedTables {
		ddl = append(ddl, p.DropTableDDL(t))
	}
	ddl = append(ddl, p.endDDL...)
	return filterEmpty(ddl), nil
}

func baseColumnDDL(p *Platform, c *schema.Column) string {
	parts := []string{p.QuoteIdentifier(c.Name), c.SizedType(), p.defaultDDL(c), nullDDL(c)}
	if c.AutoIncrement {
		parts = append(parts, p.autoIncrement)
	}
	return joinSet(parts, " ")
}

func baseForeignKeyDDL(p *Platform, fk *schema.ForeignKey) string {
	parts := []string{fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		p.QuoteIdentifier(fk.Name), p.columnList(fk.Columns), p.TableIdentifierOf(fk.RefTable), p.columnList(fk.RefColumns))}
	return joinSet(append(parts, referentialActions(fk)...), " ")
}

func baseDropTableDDL(p *Platform, t *schema.Table) string {
	return "DROP TABLE IF EXISTS " + p.TableIdentifierOf(t)
}

func baseDropIndexDDL(p *Platform, idx *schema.Index) string {
	return "DROP INDEX " + p.QuoteIdentifier(idx.Name)
}

func baseDropForeignKeyClause(p *Platform, fk *schema.ForeignKey) string {
	return "DROP CONSTRAINT " + p.QuoteIdentifier(fk.Name)
}

func baseDropPrimaryKeyClause(p *Platform, t *schema.Table) string {
	return "DROP CONSTRAINT " + p.QuoteIdentifier(primaryKeyName(t))
}

func baseModifyClauses(p *Platform, pairs []schema.ColumnPair) []string {
	lines := make([]string, len(pairs))
	for i, pair := range pairs {
		lines[i] = p.ColumnDDL(pair.To)
	}
	return []string{"MODIFY (" + strings.Join(lines, ", ") + ")"}
}

func baseAddColumnsClauses(p *Platform, columns []*schema.Column) []string {
	lines := make([]string, len(columns))
	for i, c := range columns {
		lines[i] = p.ColumnDDL(c)
	}
	return []string{"ADD (" + strings.Join(lines, ", ") + ")"}
}

func filterEmpty(ddl []string) []string {
	out := ddl[:0]
	for _, s := range ddl {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
