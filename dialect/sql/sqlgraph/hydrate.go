package sqlgraph

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/relmap"
	"github.com/syssam/relmap/dialect"
	"github.com/syssam/relmap/entity"
)

// PrimaryKeyHash returns the identity of a record: its primary key values
// encoded in the order of the sorted field names. Integer values hash the
// same regardless of their Go width, so a key read from the database matches
// the key of an in-memory record.
func PrimaryKeyHash(s *entity.Schema, r entity.Record) (string, error) {
	pks := s.PrimaryFields()
	if len(pks) == 0 {
		return "", relmap.NewConfigError(s.Label(), nil, "no primary key defined")
	}
	names := make([]string, len(pks))
	for i, pk := range pks {
		names[i] = pk.Name
	}
	sort.Strings(names)
	pairs := make([]any, 0, 2*len(names))
	for _, name := range names {
		pairs = append(pairs, name, canonical(r[name]))
	}
	buf, err := msgpack.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("sqlgraph: hash primary key of %s: %w", s.Label(), err)
	}
	return string(buf), nil
}

func canonical(v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u := rv.Uint(); u <= math.MaxInt64 {
			return int64(u)
		}
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		if f := rv.Float(); f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return canonical(rv.Elem().Interface())
	}
	return v
}

// ConvertRows hydrates the result of the last Select. Flat results map
// columns to fields by name. Joined results are read through the recorded
// projection: a level whose primary key is NULL holds no record, to-many
// relations collect their records in a slice under the relation field and
// to-one relations store the record itself. Records with the same identity
// at the same level are hydrated once and shared between their parents.
func (b *Builder) ConvertRows(rows *dialect.Rows) ([]entity.Record, error) {
	if b.root == nil {
		return nil, fmt.Errorf("sqlgraph: convert rows: no select compiled")
	}
	if rows == nil || rows.Len() == 0 {
		return []entity.Record{}, nil
	}
	if len(b.levels) == 0 {
		return b.convertFlat(rows)
	}
	return b.convertJoined(rows)
}

func (b *Builder) convertFlat(rows *dialect.Rows) ([]entity.Record, error) {
	ser := entity.SerializerOf(b.root)
	out := make([]entity.Record, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		rec, err := ser.Deserialize(b.root, entity.Record(rows.Row(i).Map()))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// seenKey identifies a child record under a parent record at one level.
type seenKey struct {
	level         int
	parent, child string
}

func (b *Builder) convertJoined(rows *dialect.Rows) ([]entity.Record, error) {
	var (
		out        []entity.Record
		identities = make([]map[string]entity.Record, len(b.levels))
		current    = make([]entity.Record, len(b.levels))
		hashes     = make([]string, len(b.levels))
		seen       = make(map[seenKey]bool)
	)
	for i := range identities {
		identities[i] = make(map[string]entity.Record)
	}
	for i := 0; i < rows.Len(); i++ {
		values := rows.Values[i]
		for li, lv := range b.levels {
			current[li], hashes[li] = nil, ""
			var parent entity.Record
			if lv.parent >= 0 {
				if parent = current[lv.parent]; parent == nil {
					continue
				}
				if lv.field.IsArray() {
					if _, ok := parent[lv.field.Name]; !ok {
						parent[lv.field.Name] = []entity.Record{}
					}
				}
			}
			rec, err := lv.convert(values)
			if err != nil {
				return nil, err
			}
			if rec == nil {
				continue
			}
			hash, err := PrimaryKeyHash(lv.schema, rec)
			if err != nil {
				return nil, err
			}
			if known, ok := identities[li][hash]; ok {
				rec = known
			} else {
				identities[li][hash] = rec
				if lv.parent < 0 {
					out = append(out, rec)
				}
			}
			current[li], hashes[li] = rec, hash
			if lv.parent < 0 {
				continue
			}
			key := seenKey{level: li, parent: hashes[lv.parent], child: hash}
			if seen[key] {
				continue
			}
			seen[key] = true
			if lv.field.IsArray() {
				parent[lv.field.Name] = append(parent.Records(lv.field.Name), rec)
			} else {
				// Replaces the foreign-key scalar when the reference shares its name.
				parent[lv.field.Name] = rec
			}
		}
	}
	if out == nil {
		out = []entity.Record{}
	}
	return out, nil
}

// convert reads the record of the level from a positional row. It returns
// nil when a primary key slot is NULL.
func (lv *level) convert(values []any) (entity.Record, error) {
	for _, slot := range lv.pkSlots {
		if slot >= len(values) {
			return nil, fmt.Errorf("sqlgraph: row has %d columns, projection needs %d", len(values), slot+1)
		}
		if values[slot] == nil {
			return nil, nil
		}
	}
	rec := make(entity.Record, len(lv.fields))
	for i, f := range lv.fields {
		slot := lv.start + i
		if slot >= len(values) {
			return nil, fmt.Errorf("sqlgraph: row has %d columns, projection needs %d", len(values), slot+1)
		}
		rec[f.Name] = values[slot]
	}
	return entity.SerializerOf(lv.schema).Deserialize(lv.schema, rec)
}
