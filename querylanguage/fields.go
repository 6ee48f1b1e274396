package querylanguage

import (
	"time"

	"github.com/google/uuid"
)

// ValueField is a typed field name that provides type-safe predicate methods.
//
// Usage:
//
//	var Priority = querylanguage.IntField("priority")
//	q.Filter = Priority.GT(0)
type ValueField[T any] string

// Name returns the field name.
func (f ValueField[T]) Name() string { return string(f) }

// EQ returns a predicate that checks if the field equals the given value.
func (f ValueField[T]) EQ(v T) P { return FieldEQ(string(f), v) }

// NEQ returns a predicate that checks if the field does not equal the given value.
func (f ValueField[T]) NEQ(v T) P { return FieldNEQ(string(f), v) }

// In returns a predicate that checks if the field value is in the given list.
func (f ValueField[T]) In(vs ...T) P { return FieldIn(string(f), vs...) }

// NotIn returns a predicate that checks if the field value is not in the given list.
func (f ValueField[T]) NotIn(vs ...T) P { return FieldNotIn(string(f), vs...) }

// GT returns a predicate that checks if the field is greater than the given value.
func (f ValueField[T]) GT(v T) P { return FieldGT(string(f), v) }

// GTE returns a predicate that checks if the field is greater than or equal to the given value.
func (f ValueField[T]) GTE(v T) P { return FieldGTE(string(f), v) }

// LT returns a predicate that checks if the field is less than the given value.
func (f ValueField[T]) LT(v T) P { return FieldLT(string(f), v) }

// LTE returns a predicate that checks if the field is less than or equal to the given value.
func (f ValueField[T]) LTE(v T) P { return FieldLTE(string(f), v) }

// IsNil returns a predicate that checks if the field is NULL.
func (f ValueField[T]) IsNil() P { return FieldNil(string(f)) }

// NotNil returns a predicate that checks if the field is not NULL.
func (f ValueField[T]) NotNil() P { return FieldNotNil(string(f)) }

// Typed field aliases.
type (
	IntField     = ValueField[int]
	Int64Field   = ValueField[int64]
	Float64Field = ValueField[float64]
	BoolField    = ValueField[bool]
	TimeField    = ValueField[time.Time]
	UUIDField    = ValueField[uuid.UUID]
)

// StringField is a typed string field with the string matching predicates.
type StringField string

// Name returns the field name.
func (f StringField) Name() string { return string(f) }

// EQ returns a predicate that checks if the field equals the given value.
func (f StringField) EQ(v string) P { return FieldEQ(string(f), v) }

// NEQ returns a predicate that checks if the field does not equal the given value.
func (f StringField) NEQ(v string) P { return FieldNEQ(string(f), v) }

// In returns a predicate that checks if the field value is in the given list.
func (f StringField) In(vs ...string) P { return FieldIn(string(f), vs...) }

// NotIn returns a predicate that checks if the field value is not in the given list.
func (f StringField) NotIn(vs ...string) P { return FieldNotIn(string(f), vs...) }

// GT returns a predicate that checks if the field is greater than the given value.
func (f StringField) GT(v string) P { return FieldGT(string(f), v) }

// LT returns a predicate that checks if the field is less than the given value.
func (f StringField) LT(v string) P { return FieldLT(string(f), v) }

// Contains returns a predicate that checks if the field contains the given substring.
func (f StringField) Contains(v string) P { return FieldContains(string(f), v) }

// ContainsFold returns a predicate that checks if the field contains the given substring (case-insensitive).
func (f StringField) ContainsFold(v string) P { return FieldContainsFold(string(f), v) }

// HasPrefix returns a predicate that checks if the field has the given prefix.
func (f StringField) HasPrefix(v string) P { return FieldHasPrefix(string(f), v) }

// HasSuffix returns a predicate that checks if the field has the given suffix.
func (f StringField) HasSuffix(v string) P { return FieldHasSuffix(string(f), v) }

// EqualFold returns a predicate that checks if the field equals the given value (case-insensitive).
func (f StringField) EqualFold(v string) P { return FieldEqualFold(string(f), v) }

// IsNil returns a predicate that checks if the field is NULL.
func (f StringField) IsNil() P { return FieldNil(string(f)) }

// NotNil returns a predicate that checks if the field is not NULL.
func (f StringField) NotNil() P { return FieldNotNil(string(f)) }
