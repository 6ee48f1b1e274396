package schema

import (
	"context"
	"fmt"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/syssam/relmap"
)

// ColumnPair holds the before and after versions of a column.
type ColumnPair struct {
	From, To *Column
}

// IndexPair holds the before and after versions of an index.
type IndexPair struct {
	From, To *Index
}

// ForeignKeyPair holds the before and after versions of a foreign key.
type ForeignKeyPair struct {
	From, To *ForeignKey
}

// TableDiff describes how to get from one version of a table to another.
type TableDiff struct {
	From, To *Table

	AddedColumns    []*Column
	RemovedColumns  []*Column
	RenamedColumns  []ColumnPair
	ModifiedColumns []ColumnPair

	AddedIndexes    []*Index
	RemovedIndexes  []*Index
	ModifiedIndexes []IndexPair

	AddedForeignKeys    []*ForeignKey
	RemovedForeignKeys  []*ForeignKey
	ModifiedForeignKeys []ForeignKeyPair
}

// Empty reports whether the two tables are structurally identical.
func (d *TableDiff) Empty() bool {
	return len(d.AddedColumns) == 0 &&
		len(d.RemovedColumns) == 0 &&
		len(d.RenamedColumns) == 0 &&
		len(d.ModifiedColumns) == 0 &&
		len(d.AddedIndexes) == 0 &&
		len(d.RemovedIndexes) == 0 &&
		len(d.ModifiedIndexes) == 0 &&
		len(d.AddedForeignKeys) == 0 &&
		len(d.RemovedForeignKeys) == 0 &&
		len(d.ModifiedForeignKeys) == 0
}

// Renamed reports whether the table itself changed its name.
func (d *TableDiff) Renamed() bool {
	return d.From.Name != d.To.Name
}

// HasModifiedPK reports whether the primary key column set changed. Renamed
// columns are compared by their new name.
func (d *TableDiff) HasModifiedPK() bool {
	renames := make(map[string]string, len(d.RenamedColumns))
	for _, p := range d.RenamedColumns {
		renames[p.From.Name] = p.To.Name
	}
	from := d.From.PrimaryKeyNames()
	for i, name := range from {
		if to, ok := renames[name]; ok {
			from[i] = to
		}
	}
	return setKey(from) != setKey(d.To.PrimaryKeyNames())
}

// RenameStrategy pairs removed columns with added ones that should be treated
// as renames. It returns the pairs and the columns left unpaired on each side.
type RenameStrategy func(removed, added []*Column) (renamed []ColumnPair, stillRemoved, stillAdded []*Column)

// NoRenames never detects renames. A renamed column is reported as one
// removal plus one addition.
func NoRenames(removed, added []*Column) ([]ColumnPair, []*Column, []*Column) {
	return nil, removed, added
}

// MatchAttributes pairs a removed and an added column when each is the only
// candidate of the other with identical attributes. Ambiguous candidates are
// left as removal plus addition.
func MatchAttributes(removed, added []*Column) ([]ColumnPair, []*Column, []*Column) {
	var (
		renamed []ColumnPair
		paired  = make(map[*Column]bool)
	)
	candidates := func(c *Column, in []*Column) []*Column {
		var out []*Column
		for _, o := range in {
			if c.EqualAttributes(o) {
				out = append(out, o)
			}
		}
		return out
	}
	for _, r := range removed {
		as := candidates(r, added)
		if len(as) != 1 {
			continue
		}
		if rs := candidates(as[0], removed); len(rs) != 1 {
			continue
		}
		renamed = append(renamed, ColumnPair{From: r, To: as[0]})
		paired[r], paired[as[0]] = true, true
	}
	unpaired := func(cs []*Column) []*Column {
		var out []*Column
		for _, c := range cs {
			if !paired[c] {
				out = append(out, c)
			}
		}
		return out
	}
	return renamed, unpaired(removed), unpaired(added)
}

// DiffOption configures a diff.
type DiffOption func(*diffConfig)

type diffConfig struct {
	renames     RenameStrategy
	folded      bool
	tableRename bool
	parallelism int
}

// WithRenameStrategy sets the column rename detection strategy. The default
// is NoRenames.
func WithRenameStrategy(s RenameStrategy) DiffOption {
	return func(c *diffConfig) {
		c.renames = s
	}
}

// WithFoldedNames matches table, column, index and foreign-key names without
// regard to case, for engines with case-insensitive identifiers.
func WithFoldedNames() DiffOption {
	return func(c *diffConfig) {
		c.folded = true
	}
}

// WithTableRename accepts two tables with different names as versions of the
// same table.
func WithTableRename() DiffOption {
	return func(c *diffConfig) {
		c.tableRename = true
	}
}

// WithParallelism bounds the number of tables DiffDatabase compares at once.
func WithParallelism(n int) DiffOption {
	return func(c *diffConfig) {
		c.parallelism = n
	}
}

func newDiffConfig(opts []DiffOption) *diffConfig {
	cfg := &diffConfig{
		renames:     NoRenames,
		parallelism: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// keyFunc returns the name normalization of the config. A Caser keeps state,
// so every call gets its own.
func (c *diffConfig) keyFunc() func(string) string {
	if !c.folded {
		return func(s string) string { return s }
	}
	caser := cases.Fold()
	return caser.String
}

// Diff computes the structural difference between two versions of a table.
// Columns, indexes and foreign keys are matched by name.
func Diff(from, to *Table, opts ...DiffOption) (*TableDiff, error) {
	return newDiffConfig(opts).diff(from, to)
}

func (c *diffConfig) diff(from, to *Table) (*TableDiff, error) {
	key := c.keyFunc()
	if !c.tableRename && key(from.FullName(".")) != key(to.FullName(".")) {
		return nil, fmt.Errorf("schema: diff %q and %q: %w", from.Name, to.Name, relmap.ErrIncompatibleSchemas)
	}
	d := &TableDiff{From: from, To: to}

	// Columns.
	var removed, added []*Column
	toCols := indexBy(to.Columns, func(c *Column) string { return key(c.Name) })
	for _, fc := range from.Columns {
		tc, ok := toCols[key(fc.Name)]
		switch {
		case !ok:
			removed = append(removed, fc)
		case !fc.EqualAttributes(tc):
			d.ModifiedColumns = append(d.ModifiedColumns, ColumnPair{From: fc, To: tc})
		}
	}
	fromCols := indexBy(from.Columns, func(c *Column) string { return key(c.Name) })
	for _, tc := range to.Columns {
		if _, ok := fromCols[key(tc.Name)]; !ok {
			added = append(added, tc)
		}
	}
	d.RenamedColumns, d.RemovedColumns, d.AddedColumns = c.renames(removed, added)

	renamed := make(map[string]string, len(d.RenamedColumns))
	for _, p := range d.RenamedColumns {
		renamed[key(p.From.Name)] = key(p.To.Name)
	}
	names := func(cs []*Column) []string {
		out := make([]string, len(cs))
		for i, col := range cs {
			out[i] = key(col.Name)
			if n, ok := renamed[out[i]]; ok && col.Table == from {
				out[i] = n
			}
		}
		return out
	}

	// Indexes.
	toIdx := indexBy(to.Indexes, func(i *Index) string { return key(i.Name) })
	for _, fi := range from.Indexes {
		ti, ok := toIdx[key(fi.Name)]
		switch {
		case !ok:
			d.RemovedIndexes = append(d.RemovedIndexes, fi)
		case fi.Unique != ti.Unique || fi.Spatial != ti.Spatial || !slices.Equal(names(fi.Columns), names(ti.Columns)):
			d.ModifiedIndexes = append(d.ModifiedIndexes, IndexPair{From: fi, To: ti})
		}
	}
	fromIdx := indexBy(from.Indexes, func(i *Index) string { return key(i.Name) })
	for _, ti := range to.Indexes {
		if _, ok := fromIdx[key(ti.Name)]; !ok {
			d.AddedIndexes = append(d.AddedIndexes, ti)
		}
	}

	// Foreign keys.
	fkEqual := func(a, b *ForeignKey) bool {
		return key(a.RefTable.Name) == key(b.RefTable.Name) &&
			slices.Equal(names(a.Columns), names(b.Columns)) &&
			slices.Equal(names(a.RefColumns), names(b.RefColumns)) &&
			key(a.OnUpdate) == key(b.OnUpdate) &&
			key(a.OnDelete) == key(b.OnDelete)
	}
	toFKs := indexBy(to.ForeignKeys, func(fk *ForeignKey) string { return key(fk.Name) })
	for _, ffk := range from.ForeignKeys {
		tfk, ok := toFKs[key(ffk.Name)]
		switch {
		case !ok:
			d.RemovedForeignKeys = append(d.RemovedForeignKeys, ffk)
		case !fkEqual(ffk, tfk):
			d.ModifiedForeignKeys = append(d.ModifiedForeignKeys, ForeignKeyPair{From: ffk, To: tfk})
		}
	}
	fromFKs := indexBy(from.ForeignKeys, func(fk *ForeignKey) string { return key(fk.Name) })
	for _, tfk := range to.ForeignKeys {
		if _, ok := fromFKs[key(tfk.Name)]; !ok {
			d.AddedForeignKeys = append(d.AddedForeignKeys, tfk)
		}
	}
	return d, nil
}

// DatabaseDiff describes how to get from one version of a database to another.
type DatabaseDiff struct {
	AddedTables   []*Table
	RemovedTables []*Table
	// Tables holds the non-empty diffs of tables present in both versions,
	// in the order of the target database.
	Tables []*TableDiff
}

// Empty reports whether the two databases are structurally identical.
func (d *DatabaseDiff) Empty() bool {
	return len(d.AddedTables) == 0 && len(d.RemovedTables) == 0 && len(d.Tables) == 0
}

// DiffDatabase computes the difference between two versions of a database.
// Tables are matched by name and compared concurrently.
func DiffDatabase(ctx context.Context, from, to *Database, opts ...DiffOption) (*DatabaseDiff, error) {
	cfg := newDiffConfig(opts)
	// Table renames are not detected at the database level.
	cfg.tableRename = false
	key := cfg.keyFunc()

	var (
		d      = &DatabaseDiff{}
		pairs  [][2]*Table
		fromTs = indexBy(from.Tables, func(t *Table) string { return key(t.FullName(".")) })
		toTs   = indexBy(to.Tables, func(t *Table) string { return key(t.FullName(".")) })
	)
	for _, t := range to.Tables {
		if f, ok := fromTs[key(t.FullName("."))]; ok {
			pairs = append(pairs, [2]*Table{f, t})
		} else {
			d.AddedTables = append(d.AddedTables, t)
		}
	}
	for _, t := range from.Tables {
		if _, ok := toTs[key(t.FullName("."))]; !ok {
			d.RemovedTables = append(d.RemovedTables, t)
		}
	}

	diffs := make([]*TableDiff, len(pairs))
	g, ctx := errgroup.WithContext(ctx)
	if cfg.parallelism > 0 {
		g.SetLimit(cfg.parallelism)
	}
	for i, p := range pairs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			td, err := cfg.diff(p[0], p[1])
			if err != nil {
				return err
			}
			diffs[i] = td
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, td := range diffs {
		if !td.Empty() {
			d.Tables = append(d.Tables, td)
		}
	}
	return d, nil
}

func indexBy[T any](items []T, key func(T) string) map[string]T {
	m := make(map[string]T, len(items))
	for _, it := range items {
		m[key(it)] = it
	}
	return m
}
