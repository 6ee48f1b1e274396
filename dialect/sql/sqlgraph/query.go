// Package sqlgraph compiles queries over entity graphs into SQL, hydrates
// joined rows back into nested records and persists records through a
// dialect.Pool.
package sqlgraph

import (
	"fmt"

	"github.com/syssam/relmap"
	"github.com/syssam/relmap/entity"
	ql "github.com/syssam/relmap/querylanguage"
)

// Direction is the direction of a sort term.
type Direction string

// Sort directions.
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
	// TextScore orders by full-text relevance. No SQL platform supports it
	// and compiling a query that uses it fails.
	TextScore Direction = "$textScore"
)

// Order is one term of a sort specification.
type Order struct {
	Field     string
	Direction Direction
}

// JoinKind is the SQL join type of a Join.
type JoinKind string

// Join kinds.
const (
	LeftJoin  JoinKind = "left"
	InnerJoin JoinKind = "inner"
)

// Rel is the shape of the relation a join follows.
type Rel int

// Relation shapes.
const (
	// M2O follows a stored reference to the referenced entity.
	M2O Rel = iota + 1
	// O2M follows a back-reference to the entities referencing the parent.
	O2M
	// M2M follows a back-reference through a pivot entity.
	M2M
)

// String returns the relation name.
func (r Rel) String() string {
	switch r {
	case M2O:
		return "M2O"
	case O2M:
		return "O2M"
	case M2M:
		return "M2M"
	default:
		return fmt.Sprintf("Rel(%d)", int(r))
	}
}

// RelOf returns the relation shape of a relation field.
func RelOf(f *entity.Field) (Rel, bool) {
	switch {
	case f.BackReference != nil && f.BackReference.Via != nil:
		return M2M, true
	case f.BackReference != nil:
		return O2M, true
	case f.Reference != nil:
		return M2O, true
	default:
		return 0, false
	}
}

// Query is the model of a query over one entity: filter, sort, window,
// selection and joins.
type Query struct {
	Schema *entity.Schema
	Filter ql.P
	Sort   []Order
	Limit  int
	Offset int
	// Fields restricts the selection. All stored fields are selected when
	// empty.
	Fields []string
	Joins  []*Join
}

// Join follows a relation field of the parent query.
type Join struct {
	// Field is the relation field on the parent entity.
	Field string
	Kind  JoinKind
	// Populate hydrates the joined records into the parent under Field.
	// Unpopulated joins only restrict the parent rows.
	Populate bool
	// Query is the query over the joined entity. Its filter is attached to
	// the join condition.
	Query *Query
}

// NewQuery returns a query over all records of the schema.
func NewQuery(s *entity.Schema) *Query {
	return &Query{Schema: s}
}

// Where adds a predicate to the filter with AND.
func (q *Query) Where(ps ...ql.P) *Query {
	q.Filter = ql.All(append([]ql.P{q.Filter}, ps...)...)
	return q
}

// OrderBy appends a sort term.
func (q *Query) OrderBy(field string, dir Direction) *Query {
	q.Sort = append(q.Sort, Order{Field: field, Direction: dir})
	return q
}

// Select restricts the selected fields.
func (q *Query) Select(fields ...string) *Query {
	q.Fields = append(q.Fields, fields...)
	return q
}

// Window sets the limit and offset. Zero values disable them.
func (q *Query) Window(limit, offset int) *Query {
	q.Limit, q.Offset = limit, offset
	return q
}

// Join adds a join over the relation field. The configure functions are
// applied to the query over the joined entity.
func (q *Query) Join(field string, kind JoinKind, populate bool, configure ...func(*Query)) *Query {
	j := &Join{Field: field, Kind: kind, Populate: populate}
	if f, ok := q.Schema.Field(field); ok {
		j.Query = NewQuery(f.TargetSchema())
	}
	for _, fn := range configure {
		if j.Query != nil {
			fn(j.Query)
		}
	}
	q.Joins = append(q.Joins, j)
	return q
}

// WithJoin adds a populated left join over the relation field.
func (q *Query) WithJoin(field string, configure ...func(*Query)) *Query {
	return q.Join(field, LeftJoin, true, configure...)
}

// HasJoins reports whether the query declares any join.
func (q *Query) HasJoins() bool { return len(q.Joins) > 0 }

// Clone returns a deep copy of the query model. Schemas and predicates are
// shared.
func (q *Query) Clone() *Query {
	c := *q
	c.Sort = append([]Order(nil), q.Sort...)
	c.Fields = append([]string(nil), q.Fields...)
	c.Joins = make([]*Join, len(q.Joins))
	for i, j := range q.Joins {
		cj := *j
		if j.Query != nil {
			cj.Query = j.Query.Clone()
		}
		c.Joins[i] = &cj
	}
	return &c
}

// selectedFields returns the stored fields to select. The primary key is
// always part of the selection.
func (q *Query) selectedFields() ([]*entity.Field, error) {
	if len(q.Fields) == 0 {
		return q.Schema.StoredFields(), nil
	}
	var (
		fields []*entity.Field
		seen   = make(map[string]bool)
	)
	for _, pk := range q.Schema.PrimaryFields() {
		fields = append(fields, pk)
		seen[pk.Name] = true
	}
	for _, name := range q.Fields {
		if seen[name] {
			continue
		}
		f, err := q.Schema.MustField(name)
		if err != nil {
			return nil, err
		}
		seen[name] = true
		if !f.IsStored() {
			continue
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// resolve checks the join and returns the relation field and the query over
// the joined entity.
func (j *Join) resolve(parent *entity.Schema) (*entity.Field, *Query, error) {
	f, err := parent.MustField(j.Field)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := RelOf(f); !ok {
		return nil, nil, relmap.NewConfigError(parent.Label(), relmap.ErrUnknownField, "field %q is not a relation", f.Name)
	}
	q := j.Query
	if q == nil {
		q = NewQuery(f.TargetSchema())
	}
	if q.Schema != f.TargetSchema() {
		return nil, nil, relmap.NewConfigError(parent.Label(), nil, "join %q queries %s, want %s", f.Name, q.Schema.Label(), f.TargetSchema().Label())
	}
	return f, q, nil
}

func (k JoinKind) keyword() (string, error) {
	switch k {
	case LeftJoin, "":
		return "LEFT JOIN", nil
	case InnerJoin:
		return "INNER JOIN", nil
	default:
		return "", fmt.Errorf("sqlgraph: unknown join kind %q", string(k))
	}
}
