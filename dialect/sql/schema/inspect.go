package schema

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	atlas "ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"

	"github.com/syssam/relmap/dialect"
)

// Inspect reads the current structure of a live database into a Database.
// The namespace selects the schema to read; empty means the connection's
// current schema.
func Inspect(ctx context.Context, db atlas.ExecQuerier, name, namespace string) (*Database, error) {
	var (
		drv migrate.Driver
		err error
	)
	switch dialect.Normalize(name) {
	case dialect.SQLite:
		drv, err = sqlite.Open(db)
	case dialect.MySQL:
		drv, err = mysql.Open(db)
	case dialect.Postgres:
		drv, err = postgres.Open(db)
	default:
		return nil, fmt.Errorf("schema: inspect: unsupported dialect %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("schema: inspect: open %s driver: %w", name, err)
	}
	target := namespace
	if target == "" && dialect.Normalize(name) == dialect.SQLite {
		target = "main"
	}
	s, err := drv.InspectSchema(ctx, target, &atlas.InspectOptions{})
	if err != nil {
		return nil, fmt.Errorf("schema: inspect: %w", err)
	}
	return fromAtlas(dialect.Normalize(name), s, namespace), nil
}

func fromAtlas(name string, s *atlas.Schema, namespace string) *Database {
	d := &Database{Name: s.Name, Namespace: namespace}
	tables := make(map[string]*Table, len(s.Tables))
	for _, at := range s.Tables {
		t := NewTable(at.Name).SetNamespace(namespace)
		for _, ac := range at.Columns {
			t.AddColumn(columnFromAtlas(ac))
		}
		if pk := at.PrimaryKey; pk != nil {
			for _, part := range pk.Parts {
				if part.C == nil {
					continue
				}
				if c, ok := t.Column(part.C.Name); ok {
					c.Primary = true
				}
			}
		}
		// A lone INTEGER primary key is an alias of the rowid.
		if pks := t.PrimaryKeys(); name == dialect.SQLite && len(pks) == 1 && strings.EqualFold(pks[0].Type, "integer") {
			pks[0].AutoIncrement = true
		}
		for _, ai := range at.Indexes {
			columns := make([]string, 0, len(ai.Parts))
			for _, part := range ai.Parts {
				if part.C != nil {
					columns = append(columns, part.C.Name)
				}
			}
			// Expression indexes have no column representation.
			if len(columns) != len(ai.Parts) {
				continue
			}
			// Names come from the same table, so AddIndex cannot fail.
			_, _ = t.AddIndex(ai.Name, ai.Unique, columns)
		}
		tables[at.Name] = t
		d.AddTable(t)
	}
	for _, at := range s.Tables {
		t := tables[at.Name]
		for _, afk := range at.ForeignKeys {
			ref, ok := tables[afk.RefTable.Name]
			if !ok {
				// Cross-schema reference.
				ref = NewTable(afk.RefTable.Name)
				for _, c := range afk.RefColumns {
					ref.AddColumn(&Column{Name: c.Name})
				}
			}
			fk := &ForeignKey{
				Name:     afk.Symbol,
				RefTable: ref,
				OnUpdate: string(afk.OnUpdate),
				OnDelete: string(afk.OnDelete),
			}
			for _, c := range afk.Columns {
				if lc, ok := t.Column(c.Name); ok {
					fk.Columns = append(fk.Columns, lc)
				}
			}
			for _, c := range afk.RefColumns {
				if rc, ok := ref.Column(c.Name); ok {
					fk.RefColumns = append(fk.RefColumns, rc)
				}
			}
			t.AddForeignKey(fk)
		}
	}
	return d
}

func columnFromAtlas(ac *atlas.Column) *Column {
	c := &Column{Name: ac.Name}
	if ac.Type != nil {
		c.NotNull = !ac.Type.Null
		switch t := ac.Type.Type.(type) {
		case *atlas.StringType:
			c.Type, c.Size = t.T, t.Size
		case *atlas.DecimalType:
			c.Type, c.Size, c.Scale = t.T, t.Precision, t.Scale
		case *atlas.BinaryType:
			c.Type = t.T
			if t.Size != nil {
				c.Size = *t.Size
			}
		case *postgres.SerialType:
			c.Type, c.AutoIncrement = t.T, true
		default:
			c.Type, c.Size, c.Scale = parseRawType(ac.Type.Raw)
		}
		if c.Type == "" {
			c.Type, c.Size, c.Scale = parseRawType(ac.Type.Raw)
		}
	}
	for _, a := range ac.Attrs {
		switch a.(type) {
		case *sqlite.AutoIncrement, *mysql.AutoIncrement, *postgres.Identity:
			c.AutoIncrement = true
		}
	}
	switch x := ac.Default.(type) {
	case *atlas.Literal:
		c.Default = unquote(x.V)
	case *atlas.RawExpr:
		c.Default = x.X
	}
	return c
}

// parseRawType splits a native type such as "varchar(255)" or
// "decimal(10,2)" into its name, size and scale.
func parseRawType(raw string) (string, int, int) {
	raw = strings.TrimSpace(raw)
	open := strings.IndexByte(raw, '(')
	if open < 0 || !strings.HasSuffix(raw, ")") {
		return raw, 0, 0
	}
	name := strings.TrimSpace(raw[:open])
	args := strings.Split(raw[open+1:len(raw)-1], ",")
	size, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return raw, 0, 0
	}
	var scale int
	if len(args) > 1 {
		scale, _ = strconv.Atoi(strings.TrimSpace(args[1]))
	}
	return name, size, scale
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}
