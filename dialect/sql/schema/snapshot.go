package schema

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type (
	snapshot struct {
		Name      string          `yaml:"name,omitempty"`
		Namespace string          `yaml:"namespace,omitempty"`
		Tables    []snapshotTable `yaml:"tables"`
	}
	snapshotTable struct {
		Name        string               `yaml:"name"`
		Namespace   string               `yaml:"namespace,omitempty"`
		Columns     []snapshotColumn     `yaml:"columns"`
		Indexes     []snapshotIndex      `yaml:"indexes,omitempty"`
		ForeignKeys []snapshotForeignKey `yaml:"foreign_keys,omitempty"`
	}
	snapshotColumn struct {
		Name          string `yaml:"name"`
		Type          string `yaml:"type"`
		Size          int    `yaml:"size,omitempty"`
		Scale         int    `yaml:"scale,omitempty"`
		NotNull       bool   `yaml:"not_null,omitempty"`
		Primary       bool   `yaml:"primary,omitempty"`
		AutoIncrement bool   `yaml:"auto_increment,omitempty"`
		Unique        bool   `yaml:"unique,omitempty"`
		Index         bool   `yaml:"index,omitempty"`
		Default       any    `yaml:"default,omitempty"`
	}
	snapshotIndex struct {
		Name    string   `yaml:"name"`
		Columns []string `yaml:"columns"`
		Unique  bool     `yaml:"unique,omitempty"`
		Spatial bool     `yaml:"spatial,omitempty"`
	}
	snapshotForeignKey struct {
		Name       string   `yaml:"name"`
		Columns    []string `yaml:"columns"`
		RefTable   string   `yaml:"ref_table"`
		RefColumns []string `yaml:"ref_columns"`
		OnUpdate   string   `yaml:"on_update,omitempty"`
		OnDelete   string   `yaml:"on_delete,omitempty"`
	}
)

// WriteSnapshot writes the database structure to w as YAML.
func WriteSnapshot(w io.Writer, d *Database) error {
	s := snapshot{Name: d.Name, Namespace: d.Namespace}
	for _, t := range d.Tables {
		st := snapshotTable{Name: t.Name, Namespace: t.Namespace}
		for _, c := range t.Columns {
			st.Columns = append(st.Columns, snapshotColumn{
				Name:          c.Name,
				Type:          c.Type,
				Size:          c.Size,
				Scale:         c.Scale,
				NotNull:       c.NotNull,
				Primary:       c.Primary,
				AutoIncrement: c.AutoIncrement,
				Unique:        c.Unique,
				Index:         c.Index,
				Default:       c.Default,
			})
		}
		for _, idx := range t.Indexes {
			st.Indexes = append(st.Indexes, snapshotIndex{
				Name:    idx.Name,
				Columns: idx.ColumnNames(),
				Unique:  idx.Unique,
				Spatial: idx.Spatial,
			})
		}
		for _, fk := range t.ForeignKeys {
			st.ForeignKeys = append(st.ForeignKeys, snapshotForeignKey{
				Name:       fk.Name,
				Columns:    fk.ColumnNames(),
				RefTable:   fk.RefTable.Name,
				RefColumns: fk.RefColumnNames(),
				OnUpdate:   fk.OnUpdate,
				OnDelete:   fk.OnDelete,
			})
		}
		s.Tables = append(s.Tables, st)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("schema: write snapshot: %w", err)
	}
	return enc.Close()
}

// ReadSnapshot reads a database structure written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (*Database, error) {
	var s snapshot
	if err := yaml.NewDecoder(r).Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("schema: read snapshot: %w", err)
	}
	d := &Database{Name: s.Name, Namespace: s.Namespace}
	for _, st := range s.Tables {
		t := NewTable(st.Name).SetNamespace(st.Namespace)
		for _, sc := range st.Columns {
			t.AddColumn(&Column{
				Name:          sc.Name,
				Type:          sc.Type,
				Size:          sc.Size,
				Scale:         sc.Scale,
				NotNull:       sc.NotNull,
				Primary:       sc.Primary,
				AutoIncrement: sc.AutoIncrement,
				Unique:        sc.Unique,
				Index:         sc.Index,
				Default:       sc.Default,
			})
		}
		for _, si := range st.Indexes {
			idx, err := t.AddIndex(si.Name, si.Unique, si.Columns)
			if err != nil {
				return nil, fmt.Errorf("schema: read snapshot: %w", err)
			}
			idx.Spatial = si.Spatial
		}
		d.AddTable(t)
	}
	// Foreign keys may reference tables declared later in the file.
	for i, st := range s.Tables {
		t := d.Tables[i]
		for _, sfk := range st.ForeignKeys {
			ref, ok := d.Table(sfk.RefTable)
			if !ok {
				return nil, fmt.Errorf("schema: read snapshot: table %q: foreign key %q references unknown table %q", t.Name, sfk.Name, sfk.RefTable)
			}
			fk := &ForeignKey{Name: sfk.Name, RefTable: ref, OnUpdate: sfk.OnUpdate, OnDelete: sfk.OnDelete}
			for _, name := range sfk.Columns {
				c, ok := t.Column(name)
				if !ok {
					return nil, fmt.Errorf("schema: read snapshot: table %q: foreign key %q references unknown column %q", t.Name, sfk.Name, name)
				}
				fk.Columns = append(fk.Columns, c)
			}
			for _, name := range sfk.RefColumns {
				c, ok := ref.Column(name)
				if !ok {
					return nil, fmt.Errorf("schema: read snapshot: table %q: foreign key %q references unknown column %s.%s", t.Name, sfk.Name, ref.Name, name)
				}
				fk.RefColumns = append(fk.RefColumns, c)
			}
			t.AddForeignKey(fk)
		}
	}
	return d, nil
}
