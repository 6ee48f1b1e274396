package sqlgraph

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/syssam/relmap"
	"github.com/syssam/relmap/dialect/sql/platform"
	"github.com/syssam/relmap/entity"
)

// Builder compiles queries into SQL for one platform. A Builder holds the
// projection of the last compiled SELECT, which ConvertRows uses to hydrate
// its result. It must not be shared between concurrent compilations.
type Builder struct {
	p *platform.Platform

	root    *entity.Schema
	selects []string
	levels  []*level
}

// level is the projection of one entity in a joined SELECT: the root or a
// populated join.
type level struct {
	schema *entity.Schema
	// parent is the index of the parent level, -1 for the root.
	parent int
	// field is the relation field on the parent entity.
	field *entity.Field
	// alias is the quoted table alias the columns are read from.
	alias   string
	start   int
	fields  []*entity.Field
	pkSlots []int
}

// NewBuilder returns a builder for the platform.
func NewBuilder(p *platform.Platform) *Builder {
	return &Builder{p: p}
}

// Platform returns the platform of the builder.
func (b *Builder) Platform() *platform.Platform { return b.p }

type selectConfig struct {
	columns  []string
	distinct bool
}

// SelectOption configures Select.
type SelectOption func(*selectConfig)

// WithColumns selects the given fields only. No projection is recorded and
// the result cannot be hydrated with ConvertRows.
func WithColumns(fields ...string) SelectOption {
	return func(c *selectConfig) {
		c.columns = append(c.columns, fields...)
	}
}

// WithDistinct selects distinct rows.
func WithDistinct() SelectOption {
	return func(c *selectConfig) {
		c.distinct = true
	}
}

// Select compiles a SELECT statement. Without explicit columns the selected
// fields of the query are projected: as a flat column list when the query has
// no joins, otherwise every column of the root and of every populated join
// gets a positional alias and the result is ordered by the chain of primary
// keys so that ConvertRows can group it.
func (b *Builder) Select(q *Query, opts ...SelectOption) (string, error) {
	cfg := &selectConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	table, err := b.p.QualifiedTableName(q.Schema)
	if err != nil {
		return "", err
	}
	tableID := b.p.QuoteIdentifier(table)
	b.root, b.selects, b.levels = q.Schema, nil, nil

	var head []string
	switch {
	case len(cfg.columns) > 0:
		for _, name := range cfg.columns {
			f, err := b.storedField(q.Schema, name)
			if err != nil {
				return "", err
			}
			head = append(head, b.column(q, tableID, f))
		}
	case q.HasJoins():
		if err := b.project(q, -1, nil, tableID, ""); err != nil {
			return "", err
		}
		head = b.selects
	default:
		fields, err := q.selectedFields()
		if err != nil {
			return "", err
		}
		for _, f := range fields {
			head = append(head, b.p.QuoteIdentifier(f.Name))
		}
	}
	if len(head) == 0 {
		return "", relmap.NewConfigError(q.Schema.Label(), nil, "no columns to select")
	}
	order, err := b.orderBy(q, tableID)
	if err != nil {
		return "", err
	}
	keyword := "SELECT "
	if cfg.distinct {
		keyword = "SELECT DISTINCT "
	}
	return b.build(q, table, keyword+strings.Join(head, ", "), order)
}

// Build compiles the shared body of a statement:
// <head> FROM <table> <joins> WHERE <filter or true> with LIMIT and OFFSET.
func (b *Builder) Build(q *Query, head string) (string, error) {
	table, err := b.p.QualifiedTableName(q.Schema)
	if err != nil {
		return "", err
	}
	return b.build(q, table, head, "")
}

func (b *Builder) build(q *Query, table, head, order string) (string, error) {
	tableID := b.p.QuoteIdentifier(table)
	var sb strings.Builder
	sb.WriteString(head)
	sb.WriteString(" FROM ")
	sb.WriteString(tableID)
	alias := ""
	if q.HasJoins() {
		joins, err := b.joins(q, tableID, "")
		if err != nil {
			return "", err
		}
		sb.WriteString(" ")
		sb.WriteString(strings.Join(joins, " "))
		alias = table
	}
	where, err := b.p.FilterSQL(q.Schema, alias, q.Filter)
	if err != nil {
		return "", err
	}
	if where == "" {
		where = "true"
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(where)
	if order != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(order)
	}
	sb.WriteString(b.p.LimitOffset(q.Limit, q.Offset))
	return sb.String(), nil
}

// project records the positional projection of q and of its populated joins.
func (b *Builder) project(q *Query, parent int, field *entity.Field, alias, prefix string) error {
	fields, err := q.selectedFields()
	if err != nil {
		return err
	}
	lv := &level{
		schema: q.Schema,
		parent: parent,
		field:  field,
		alias:  alias,
		start:  len(b.selects),
	}
	idx := len(b.levels)
	b.levels = append(b.levels, lv)
	for _, f := range fields {
		slot := len(b.selects)
		b.selects = append(b.selects, alias+"."+b.p.QuoteIdentifier(f.Name)+" AS "+b.p.QuoteIdentifier(strconv.Itoa(slot)))
		lv.fields = append(lv.fields, f)
		if f.Primary {
			lv.pkSlots = append(lv.pkSlots, slot)
		}
	}
	if len(lv.pkSlots) == 0 {
		return relmap.NewConfigError(q.Schema.Label(), nil, "joined projection needs a primary key")
	}
	for _, j := range q.Joins {
		if !j.Populate {
			continue
		}
		f, jq, err := j.resolve(q.Schema)
		if err != nil {
			return err
		}
		name := prefix + "__" + f.Name
		if err := b.project(jq, idx, f, b.p.QuoteIdentifier(name), name); err != nil {
			return err
		}
	}
	return nil
}

// joins compiles the JOIN clauses of q. parent is the quoted alias of the
// entity q is over, prefix the unquoted alias path.
func (b *Builder) joins(q *Query, parent, prefix string) ([]string, error) {
	var out []string
	for _, j := range q.Joins {
		f, jq, err := j.resolve(q.Schema)
		if err != nil {
			return nil, err
		}
		keyword, err := j.Kind.keyword()
		if err != nil {
			return nil, err
		}
		target, err := b.p.TableIdentifier(jq.Schema)
		if err != nil {
			return nil, err
		}
		name := prefix + "__" + f.Name
		alias := b.p.QuoteIdentifier(name)
		filter, err := b.p.FilterSQL(jq.Schema, name, jq.Filter)
		if err != nil {
			return nil, err
		}
		rel, _ := RelOf(f)
		var on []string
		switch rel {
		case M2M:
			via := f.BackReference.Via
			left, err := via.FindReverseReference(q.Schema, f)
			if err != nil {
				return nil, err
			}
			right, err := via.FindReverseReference(jq.Schema, f)
			if err != nil {
				return nil, err
			}
			parentPK, err := q.Schema.PrimaryField()
			if err != nil {
				return nil, err
			}
			targetPK, err := jq.Schema.PrimaryField()
			if err != nil {
				return nil, err
			}
			pivotTable, err := b.p.TableIdentifier(via)
			if err != nil {
				return nil, err
			}
			pivot := b.p.QuoteIdentifier(prefix + "__p_" + f.Name)
			out = append(out, fmt.Sprintf("%s %s AS %s ON (%s = %s)", keyword, pivotTable, pivot,
				pivot+"."+b.p.QuoteIdentifier(left.Name), parent+"."+b.p.QuoteIdentifier(parentPK.Name)))
			on = append(on, pivot+"."+b.p.QuoteIdentifier(right.Name)+" = "+alias+"."+b.p.QuoteIdentifier(targetPK.Name))
		case O2M:
			back, err := jq.Schema.FindReverseReference(q.Schema, f)
			if err != nil {
				return nil, err
			}
			parentPK, err := q.Schema.PrimaryField()
			if err != nil {
				return nil, err
			}
			on = append(on, parent+"."+b.p.QuoteIdentifier(parentPK.Name)+" = "+alias+"."+b.p.QuoteIdentifier(back.Name))
		default:
			targetPK, err := jq.Schema.PrimaryField()
			if err != nil {
				return nil, err
			}
			on = append(on, parent+"."+b.p.QuoteIdentifier(f.Name)+" = "+alias+"."+b.p.QuoteIdentifier(targetPK.Name))
		}
		if filter != "" {
			on = append(on, filter)
		}
		out = append(out, fmt.Sprintf("%s %s AS %s ON (%s)", keyword, target, alias, strings.Join(on, " AND ")))
		nested, err := b.joins(jq, alias, name)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
	}
	return out, nil
}

// orderBy compiles the sort specification. A hydrated projection is further
// ordered by the primary keys of every level.
func (b *Builder) orderBy(q *Query, tableID string) (string, error) {
	var (
		terms []string
		seen  = make(map[string]bool)
	)
	for _, o := range q.Sort {
		f, err := b.storedField(q.Schema, o.Field)
		if err != nil {
			return "", err
		}
		switch o.Direction {
		case Asc, Desc:
		case "":
			o.Direction = Asc
		case TextScore:
			return "", relmap.NewUnsupportedError("sort "+q.Schema.Label(), errors.New("text relevance ordering"))
		default:
			return "", relmap.NewConfigError(q.Schema.Label(), nil, "unknown sort direction %q", string(o.Direction))
		}
		col := b.column(q, tableID, f)
		seen[col] = true
		terms = append(terms, col+" "+string(o.Direction))
	}
	if len(b.levels) > 1 {
		for _, lv := range b.levels {
			for _, slot := range lv.pkSlots {
				col := lv.alias + "." + b.p.QuoteIdentifier(lv.fields[slot-lv.start].Name)
				if !seen[col] {
					seen[col] = true
					terms = append(terms, col+" "+string(Asc))
				}
			}
		}
	}
	return strings.Join(terms, ", "), nil
}

// Update compiles an UPDATE of the rows matched by q. The row set is derived
// with a SELECT of the primary key so that filters, joins, sort and window
// apply the same way as in Select.
func (b *Builder) Update(q *Query, set []string) (string, error) {
	if len(set) == 0 {
		return "", relmap.NewConfigError(q.Schema.Label(), nil, "update without assignments")
	}
	table, err := b.p.TableIdentifier(q.Schema)
	if err != nil {
		return "", err
	}
	target, sub, err := b.primaryKeySubselect(q)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s IN (SELECT * FROM (%s) AS __)", table, strings.Join(set, ", "), target, sub), nil
}

// Delete compiles a DELETE of the rows matched by q. Queries with joins are
// rejected with ErrDeleteWithJoins: fetch the ids first and delete by id.
func (b *Builder) Delete(q *Query) (string, error) {
	if q.HasJoins() {
		return "", relmap.NewUnsupportedError("delete "+q.Schema.Label(), relmap.ErrDeleteWithJoins)
	}
	if q.Limit == 0 && q.Offset == 0 {
		return b.Build(q, "DELETE")
	}
	table, err := b.p.TableIdentifier(q.Schema)
	if err != nil {
		return "", err
	}
	target, sub, err := b.primaryKeySubselect(q)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s IN (SELECT * FROM (%s) AS __)", table, target, sub), nil
}

// Count compiles a statement returning the number of matched root records in
// a column named count.
func (b *Builder) Count(q *Query) (string, error) {
	const head = "SELECT COUNT(*) AS count"
	if !q.HasJoins() && q.Limit == 0 && q.Offset == 0 {
		return b.Build(q, head)
	}
	pks := q.Schema.PrimaryFields()
	if len(pks) == 0 {
		return "", relmap.NewConfigError(q.Schema.Label(), nil, "no primary key defined")
	}
	names := make([]string, len(pks))
	for i, pk := range pks {
		names[i] = pk.Name
	}
	sub, err := NewBuilder(b.p).Select(q, WithColumns(names...), WithDistinct())
	if err != nil {
		return "", err
	}
	return head + " FROM (" + sub + ") AS __", nil
}

func (b *Builder) primaryKeySubselect(q *Query) (target, sub string, err error) {
	pks := q.Schema.PrimaryFields()
	if len(pks) == 0 {
		return "", "", relmap.NewConfigError(q.Schema.Label(), nil, "no primary key defined")
	}
	names := make([]string, len(pks))
	quoted := make([]string, len(pks))
	for i, pk := range pks {
		names[i] = pk.Name
		quoted[i] = b.p.QuoteIdentifier(pk.Name)
	}
	sub, err = NewBuilder(b.p).Select(q, WithColumns(names...))
	if err != nil {
		return "", "", err
	}
	target = quoted[0]
	if len(quoted) > 1 {
		target = "(" + strings.Join(quoted, ", ") + ")"
	}
	return target, sub, nil
}

// SetFromChanges compiles the assignments of a change-set: $set values
// become col = value, increments col = col + delta and unsets col = NULL.
// Values are serialized with the schema serializer. Fields are emitted in
// sorted order within each part.
func (b *Builder) SetFromChanges(s *entity.Schema, c *relmap.Changes) ([]string, error) {
	if c.Empty() {
		return nil, nil
	}
	for _, names := range [][]string{keys(c.Values), keys(c.Increments), keys(c.Unsets)} {
		for _, name := range names {
			if _, err := b.storedField(s, name); err != nil {
				return nil, err
			}
		}
	}
	var set []string
	if len(c.Values) > 0 {
		values, err := entity.SerializerOf(s).PartialSerialize(s, entity.Record(c.Values))
		if err != nil {
			return nil, err
		}
		for _, name := range keys(values) {
			set = append(set, b.p.QuoteIdentifier(name)+" = "+b.p.QuoteValue(values[name]))
		}
	}
	for _, name := range keys(c.Increments) {
		col := b.p.QuoteIdentifier(name)
		set = append(set, col+" = "+col+" + "+b.p.QuoteValue(c.Increments[name]))
	}
	for _, name := range keys(c.Unsets) {
		set = append(set, b.p.QuoteIdentifier(name)+" = NULL")
	}
	return set, nil
}

// column returns the quoted column of a root field, qualified with the table
// when the query has joins.
func (b *Builder) column(q *Query, tableID string, f *entity.Field) string {
	col := b.p.QuoteIdentifier(f.Name)
	if q.HasJoins() {
		col = tableID + "." + col
	}
	return col
}

func (b *Builder) storedField(s *entity.Schema, name string) (*entity.Field, error) {
	f, err := s.MustField(name)
	if err != nil {
		return nil, err
	}
	if !f.IsStored() {
		return nil, relmap.NewConfigError(s.Label(), relmap.ErrUnknownField, "field %q has no column", name)
	}
	return f, nil
}

func keys[M ~map[string]V, V any](m M) []string {
	return slices.Sorted(maps.Keys(m))
}
