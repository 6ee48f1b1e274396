package platform

import (
	"fmt"
	"strings"

	"github.com/syssam/relmap"
	"github.com/syssam/relmap/dialect/sql/schema"
	"github.com/syssam/relmap/entity"
)

// TableName resolves the table name of an entity schema: the explicit table
// name, else the table namer applied to the entity name, else the entity name.
func (p *Platform) TableName(s *entity.Schema) (string, error) {
	if s.Table == "" && s.Name != "" && p.namer != nil {
		return p.namer(s.Name), nil
	}
	return s.TableName()
}

// QualifiedTableName returns the unquoted table name of an entity schema,
// joined to its namespace with the schema delimiter.
func (p *Platform) QualifiedTableName(s *entity.Schema) (string, error) {
	name, err := p.TableName(s)
	if err != nil {
		return "", err
	}
	if s.Namespace != "" {
		name = s.Namespace + p.schemaDelimiter + name
	}
	return name, nil
}

// TableIdentifier returns the quoted identifier of the table of an entity
// schema, qualified with its namespace.
func (p *Platform) TableIdentifier(s *entity.Schema) (string, error) {
	name, err := p.QualifiedTableName(s)
	if err != nil {
		return "", err
	}
	return p.QuoteIdentifier(name), nil
}

// CreateTables generates the tables of the given entity schemas and adds them
// to db, which may be nil. Tables are generated in three passes: columns,
// then foreign keys of reference fields, then indexes. Reference targets must
// be part of schemas.
func (p *Platform) CreateTables(schemas []*entity.Schema, db *schema.Database) ([]*schema.Table, error) {
	if db == nil {
		db = &schema.Database{}
	}
	var (
		tables = make([]*schema.Table, 0, len(schemas))
		byName = make(map[*entity.Schema]*schema.Table, len(schemas))
	)
	for _, s := range schemas {
		name, err := p.TableName(s)
		if err != nil {
			return nil, err
		}
		t := schema.NewTable(name)
		t.Namespace = s.Namespace
		if t.Namespace == "" {
			t.Namespace = db.Namespace
		}
		for _, f := range s.StoredFields() {
			typed := f
			if f.IsReference() {
				pk, err := f.Reference.PrimaryField()
				if err != nil {
					return nil, relmap.NewConfigError(s.Label(), err, "reference %q: target needs a single primary key", f.Name)
				}
				typed = pk
			}
			m := p.TypeOf(typed.Type)
			c := &schema.Column{
				Name:          f.Name,
				Type:          m.Type,
				Size:          m.Size,
				Scale:         m.Scale,
				NotNull:       !f.Nullable,
				Primary:       f.Primary,
				AutoIncrement: f.AutoIncrement,
				Unique:        f.Unique,
				Index:         f.Index,
				Default:       f.Default,
			}
			if f.Size > 0 {
				c.Size = f.Size
			}
			t.AddColumn(c)
		}
		byName[s] = t
		tables = append(tables, t)
	}

	for _, s := range schemas {
		t := byName[s]
		for _, f := range s.StoredFields() {
			if !f.IsReference() {
				continue
			}
			ref, ok := byName[f.Reference]
			if !ok {
				return nil, relmap.NewConfigError(s.Label(), nil, "reference %q targets %s which is not part of the table set", f.Name, f.Reference.Label())
			}
			local, _ := t.Column(f.Name)
			local.Index = true
			fk := &schema.ForeignKey{
				Columns:    []*schema.Column{local},
				RefTable:   ref,
				RefColumns: ref.PrimaryKeys(),
				OnUpdate:   f.OnUpdate,
				OnDelete:   f.OnDelete,
			}
			fk.Name = foreignKeyName(t, fk)
			t.AddForeignKey(fk)
		}
	}

	for _, s := range schemas {
		t := byName[s]
		for _, c := range t.Columns {
			if !c.Index && !c.Unique {
				continue
			}
			if t.HasIndex([]string{c.Name}, c.Unique) {
				continue
			}
			if _, err := t.AddIndex(indexName(t, []string{c.Name}, c.Unique), c.Unique, []string{c.Name}); err != nil {
				return nil, err
			}
		}
		for _, si := range s.Indexes {
			name := si.Name
			if name == "" {
				name = indexName(t, si.Fields, si.Unique)
			}
			if _, ok := t.Index(name); ok {
				continue
			}
			if t.HasIndex(si.Fields, si.Unique) {
				continue
			}
			idx, err := t.AddIndex(name, si.Unique, si.Fields)
			if err != nil {
				return nil, relmap.NewConfigError(s.Label(), relmap.ErrUnknownField, "%v", err)
			}
			idx.Spatial = si.Spatial
		}
		for _, fk := range t.ForeignKeys {
			if t.CoveredBy(fk.ColumnNames()) {
				continue
			}
			if _, err := t.AddIndex(fk.Name, false, fk.ColumnNames()); err != nil {
				return nil, err
			}
		}
	}

	p.normalize(tables)
	db.Tables = tables
	return tables, nil
}

func indexName(t *schema.Table, columns []string, unique bool) string {
	suffix := "idx"
	if unique {
		suffix = "uniq"
	}
	return fmt.Sprintf("%s_%s_%s", t.Name, strings.Join(columns, "_"), suffix)
}

func foreignKeyName(t *schema.Table, fk *schema.ForeignKey) string {
	return fmt.Sprintf("%s_%s_fk", t.Name, strings.Join(fk.ColumnNames(), "_"))
}

func primaryKeyName(t *schema.Table) string {
	return t.Name + "_pk"
}
