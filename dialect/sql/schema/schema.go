// Package schema holds the dialect-neutral description of a database
// (tables, columns, indexes and foreign keys), computes structural diffs
// between two versions of it and inspects live databases into it.
package schema

import (
	"fmt"
	"slices"
	"strings"
)

// Database is a named set of tables.
type Database struct {
	Name      string
	Namespace string
	Tables    []*Table
}

// NewDatabase returns a new database with the given name.
func NewDatabase(name string) *Database {
	return &Database{Name: name}
}

// AddTable adds the table to the database and returns it.
func (d *Database) AddTable(t *Table) *Table {
	d.Tables = append(d.Tables, t)
	return t
}

// Table returns the table with the given name.
func (d *Database) Table(name string) (*Table, bool) {
	for _, t := range d.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Table describes a table in the database.
type Table struct {
	Name        string
	Namespace   string
	Columns     []*Column
	Indexes     []*Index
	ForeignKeys []*ForeignKey
}

// NewTable returns a new table with the given name.
func NewTable(name string) *Table {
	return &Table{Name: name}
}

// SetNamespace sets the schema (named-database) of the table.
func (t *Table) SetNamespace(ns string) *Table {
	t.Namespace = ns
	return t
}

// FullName returns the namespace-qualified name of the table, joined with
// the given delimiter.
func (t *Table) FullName(delimiter string) string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + delimiter + t.Name
}

// AddColumn adds a new column to the table and returns the table.
func (t *Table) AddColumn(c *Column) *Table {
	c.Table = t
	t.Columns = append(t.Columns, c)
	return t
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// HasColumn reports if the table contains a column with the given name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// PrimaryKeys returns the columns flagged primary, in column order.
func (t *Table) PrimaryKeys() []*Column {
	var pks []*Column
	for _, c := range t.Columns {
		if c.Primary {
			pks = append(pks, c)
		}
	}
	return pks
}

// PrimaryKeyNames returns the names of the primary key columns.
func (t *Table) PrimaryKeyNames() []string {
	return columnNames(t.PrimaryKeys())
}

// AutoIncrement returns the auto-increment column of the table, if any.
func (t *Table) AutoIncrement() (*Column, bool) {
	for _, c := range t.Columns {
		if c.AutoIncrement {
			return c, true
		}
	}
	return nil, false
}

// AddIndex adds a new index to the table. Unknown column names are an error.
func (t *Table) AddIndex(name string, unique bool, columns []string) (*Index, error) {
	idx := &Index{Name: name, Unique: unique, Table: t}
	for _, name := range columns {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("schema: table %q: index %q references unknown column %q", t.Name, idx.Name, name)
		}
		idx.Columns = append(idx.Columns, c)
	}
	t.Indexes = append(t.Indexes, idx)
	return idx, nil
}

// Index returns the index with the given name.
func (t *Table) Index(name string) (*Index, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return nil, false
}

// HasIndex reports whether an index on exactly the given columns, with the
// given uniqueness, already exists. Column order is ignored.
func (t *Table) HasIndex(columns []string, unique bool) bool {
	key := setKey(columns)
	for _, idx := range t.Indexes {
		if idx.Unique == unique && setKey(idx.ColumnNames()) == key {
			return true
		}
	}
	return false
}

// CoveredBy reports whether some index starts with the given columns.
func (t *Table) CoveredBy(columns []string) bool {
	for _, idx := range t.Indexes {
		names := idx.ColumnNames()
		if len(names) >= len(columns) && slices.Equal(names[:len(columns)], columns) {
			return true
		}
	}
	return false
}

// AddForeignKey adds a foreign key to the table.
func (t *Table) AddForeignKey(fk *ForeignKey) *Table {
	fk.Table = t
	t.ForeignKeys = append(t.ForeignKeys, fk)
	return t
}

// ForeignKey returns the foreign key with the given name.
func (t *Table) ForeignKey(name string) (*ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.Name == name {
			return fk, true
		}
	}
	return nil, false
}

// Copy returns a deep copy of the table. Foreign keys keep pointing to the
// original referenced tables.
func (t *Table) Copy() *Table {
	c := &Table{Name: t.Name, Namespace: t.Namespace}
	for _, col := range t.Columns {
		cp := *col
		c.AddColumn(&cp)
	}
	for _, idx := range t.Indexes {
		// Columns exist since they were copied above.
		n, _ := c.AddIndex(idx.Name, idx.Unique, idx.ColumnNames())
		n.Spatial = idx.Spatial
	}
	for _, fk := range t.ForeignKeys {
		nfk := &ForeignKey{
			Name:       fk.Name,
			RefTable:   fk.RefTable,
			RefColumns: fk.RefColumns,
			OnUpdate:   fk.OnUpdate,
			OnDelete:   fk.OnDelete,
		}
		for _, col := range fk.Columns {
			cc, _ := c.Column(col.Name)
			nfk.Columns = append(nfk.Columns, cc)
		}
		c.AddForeignKey(nfk)
	}
	return c
}

// Column describes a column of a table.
type Column struct {
	Name          string
	Type          string // native type, e.g. INTEGER or VARCHAR
	Size          int
	Scale         int
	NotNull       bool
	Primary       bool
	AutoIncrement bool
	Unique        bool
	Index         bool
	Default       any
	Table         *Table
}

// SizedType returns the native type with its size and scale, e.g. DECIMAL(10,2).
func (c *Column) SizedType() string {
	switch {
	case c.Size > 0 && c.Scale > 0:
		return fmt.Sprintf("%s(%d,%d)", c.Type, c.Size, c.Scale)
	case c.Size > 0:
		return fmt.Sprintf("%s(%d)", c.Type, c.Size)
	default:
		return c.Type
	}
}

// EqualAttributes reports whether two columns have the same definition,
// ignoring their names.
func (c *Column) EqualAttributes(o *Column) bool {
	return strings.EqualFold(c.Type, o.Type) &&
		c.Size == o.Size &&
		c.Scale == o.Scale &&
		c.NotNull == o.NotNull &&
		c.Primary == o.Primary &&
		c.AutoIncrement == o.AutoIncrement &&
		defaultsEqual(c.Default, o.Default)
}

func defaultsEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Index describes an index of a table.
type Index struct {
	Name    string
	Columns []*Column
	Unique  bool
	Spatial bool
	Table   *Table
}

// ColumnNames returns the names of the indexed columns.
func (i *Index) ColumnNames() []string {
	return columnNames(i.Columns)
}

// Equal reports whether two indexes cover the same columns in the same order
// with the same uniqueness.
func (i *Index) Equal(o *Index) bool {
	return i.Unique == o.Unique && i.Spatial == o.Spatial && slices.Equal(i.ColumnNames(), o.ColumnNames())
}

// ForeignKey describes a foreign-key constraint.
type ForeignKey struct {
	Name       string
	Table      *Table
	Columns    []*Column
	RefTable   *Table
	RefColumns []*Column
	OnUpdate   string
	OnDelete   string
}

// ColumnNames returns the names of the local columns.
func (fk *ForeignKey) ColumnNames() []string {
	return columnNames(fk.Columns)
}

// RefColumnNames returns the names of the referenced columns.
func (fk *ForeignKey) RefColumnNames() []string {
	return columnNames(fk.RefColumns)
}

// Equal reports whether two foreign keys describe the same constraint.
func (fk *ForeignKey) Equal(o *ForeignKey) bool {
	return fk.RefTable.Name == o.RefTable.Name &&
		slices.Equal(fk.ColumnNames(), o.ColumnNames()) &&
		slices.Equal(fk.RefColumnNames(), o.RefColumnNames()) &&
		strings.EqualFold(fk.OnUpdate, o.OnUpdate) &&
		strings.EqualFold(fk.OnDelete, o.OnDelete)
}

func columnNames(columns []*Column) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

func setKey(names []string) string {
	s := slices.Clone(names)
	slices.Sort(s)
	return strings.Join(s, "\x00")
}
