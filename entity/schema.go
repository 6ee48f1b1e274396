// Package entity describes the resolved entity schemas the relational core
// consumes: fields, primary keys, references, back-references (including the
// pivot entity of many-to-many relations) and index annotations.
//
// Declaring and reflecting entities is the job of a higher layer; this
// package only holds the result.
package entity

import (
	"fmt"
	"slices"

	"github.com/syssam/relmap"
)

// Schema is the resolved description of one entity.
type Schema struct {
	// Name is the entity name. It is also the table name unless Table is set.
	Name string
	// Table overrides the table (collection) name.
	Table string
	// Namespace is the optional database schema the table lives in.
	Namespace string
	// Fields in declaration order.
	Fields []*Field
	// Indexes declared on the entity (composite or named).
	Indexes []*Index
	// Serializer converts items of this entity between native and wire-safe
	// values. DefaultSerializer is used when nil.
	Serializer Serializer
}

// Field describes one entity property.
type Field struct {
	Name          string
	Type          Type
	Primary       bool
	AutoIncrement bool
	Nullable      bool
	Unique        bool
	Index         bool
	// Size overrides the platform size for the column, if positive.
	Size int
	// Default is the column default value, if any.
	Default any

	// Reference marks a many-to-one reference. The field is stored as a column
	// holding the primary key of the referenced entity.
	Reference *Schema
	// OnUpdate and OnDelete are the referential actions of the foreign key.
	OnUpdate string
	OnDelete string

	// BackReference marks the inverse side of a relation. Such a field is not
	// stored as a column.
	BackReference *BackReference
}

// BackReference describes the inverse side of a one-to-many or many-to-many
// relation.
type BackReference struct {
	// Target is the entity on the other side of the relation.
	Target *Schema
	// Via is the pivot entity of a many-to-many relation.
	Via *Schema
	// MappedBy optionally names the reverse reference field on Target (or on
	// Via for many-to-many) when it cannot be inferred.
	MappedBy string
	// Many reports a to-many relation hydrated into a slice.
	Many bool
}

// Index is an index declared on the entity.
type Index struct {
	Name    string
	Fields  []string
	Unique  bool
	Spatial bool
}

// IsStored reports whether the field has a column of its own.
func (f *Field) IsStored() bool { return f.BackReference == nil }

// IsReference reports whether the field is a stored many-to-one reference.
func (f *Field) IsReference() bool { return f.Reference != nil && f.BackReference == nil }

// IsArray reports whether the field hydrates into a slice.
func (f *Field) IsArray() bool { return f.BackReference != nil && f.BackReference.Many }

// TargetSchema returns the entity on the other side of a relation field.
func (f *Field) TargetSchema() *Schema {
	switch {
	case f.BackReference != nil:
		return f.BackReference.Target
	default:
		return f.Reference
	}
}

// TableName returns the resolved table name of the schema.
func (s *Schema) TableName() (string, error) {
	switch {
	case s.Table != "":
		return s.Table, nil
	case s.Name != "":
		return s.Name, nil
	default:
		return "", relmap.NewConfigError("", relmap.ErrNoTableName, "schema has no name")
	}
}

// Label returns a printable name of the schema.
func (s *Schema) Label() string {
	if name, err := s.TableName(); err == nil {
		return name
	}
	return "<unnamed>"
}

// Field returns the field with the given name.
func (s *Schema) Field(name string) (*Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// MustField is like Field but returns a configuration error for unknown names.
func (s *Schema) MustField(name string) (*Field, error) {
	if f, ok := s.Field(name); ok {
		return f, nil
	}
	return nil, relmap.NewConfigError(s.Label(), relmap.ErrUnknownField, "unknown field %q", name)
}

// StoredFields returns all fields that have a column, in declaration order.
func (s *Schema) StoredFields() []*Field {
	fields := make([]*Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.IsStored() {
			fields = append(fields, f)
		}
	}
	return fields
}

// PrimaryFields returns the primary key fields in declaration order.
func (s *Schema) PrimaryFields() []*Field {
	var fields []*Field
	for _, f := range s.Fields {
		if f.Primary && f.IsStored() {
			fields = append(fields, f)
		}
	}
	return fields
}

// PrimaryField returns the single primary key field of the schema.
func (s *Schema) PrimaryField() (*Field, error) {
	pks := s.PrimaryFields()
	switch len(pks) {
	case 0:
		return nil, relmap.NewConfigError(s.Label(), nil, "no primary key defined")
	case 1:
		return pks[0], nil
	default:
		return nil, relmap.NewConfigError(s.Label(), relmap.ErrUnsupported, "composite primary key (%d fields) where one was expected", len(pks))
	}
}

// AutoIncrementFields returns the auto-increment fields of the schema.
func (s *Schema) AutoIncrementFields() []*Field {
	var fields []*Field
	for _, f := range s.Fields {
		if f.AutoIncrement && f.IsStored() {
			fields = append(fields, f)
		}
	}
	return fields
}

// FindReverseReference locates, on s, the stored reference field pointing to
// target that realizes the relation field of target. s is the foreign side of
// a one-to-many relation, or the pivot of a many-to-many relation.
func (s *Schema) FindReverseReference(target *Schema, field *Field) (*Field, error) {
	if field.BackReference != nil && field.BackReference.MappedBy != "" && field.BackReference.Via == nil {
		f, ok := s.Field(field.BackReference.MappedBy)
		if !ok || !f.IsReference() || f.Reference != target {
			return nil, relmap.NewConfigError(s.Label(), relmap.ErrUnknownField,
				"mapped-by field %q is not a reference to %s", field.BackReference.MappedBy, target.Label())
		}
		return f, nil
	}
	var candidates []*Field
	for _, f := range s.Fields {
		if f.IsReference() && f.Reference == target {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) > 1 && field.BackReference != nil && field.BackReference.MappedBy != "" {
		idx := slices.IndexFunc(candidates, func(f *Field) bool { return f.Name == field.BackReference.MappedBy })
		if idx >= 0 {
			return candidates[idx], nil
		}
	}
	switch len(candidates) {
	case 0:
		return nil, relmap.NewConfigError(s.Label(), nil, "no reference to %s found for %s.%s", target.Label(), target.Label(), field.Name)
	case 1:
		return candidates[0], nil
	default:
		return nil, relmap.NewConfigError(s.Label(), nil, "%d references to %s found for %s.%s, set MappedBy",
			len(candidates), target.Label(), target.Label(), field.Name)
	}
}

// Validate checks the internal consistency of the schema.
func (s *Schema) Validate() error {
	if _, err := s.TableName(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if seen[f.Name] {
			return relmap.NewConfigError(s.Label(), nil, "duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		if f.BackReference != nil && f.BackReference.Target == nil {
			return relmap.NewConfigError(s.Label(), nil, "back-reference %q has no target", f.Name)
		}
	}
	for _, idx := range s.Indexes {
		for _, name := range idx.Fields {
			if !seen[name] {
				return relmap.NewConfigError(s.Label(), relmap.ErrUnknownField, "index %q references unknown field %q", idx.Name, name)
			}
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (s *Schema) String() string {
	return fmt.Sprintf("entity(%s)", s.Label())
}
