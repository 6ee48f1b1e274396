package querylanguage

import (
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/syssam/relmap"
)

// FromMap parses a document-style filter into a predicate. Keys are field
// names or the logical operators $and, $or, $nor and $not. A field maps to a
// plain value (equality), nil (is null) or an operator document:
//
//	{"priority": {"$gt": 0}, "name": {"$in": ["a", "b"]}}
//
// Supported comparison operators are $eq, $ne, $gt, $gte, $lt, $lte, $in,
// $nin, $exists, $contains, $prefix and $suffix. Multiple keys are combined
// with AND in key order. An empty document yields a nil predicate.
func FromMap(doc map[string]any) (P, error) {
	var ps []P
	for _, key := range slices.Sorted(maps.Keys(doc)) {
		p, err := parseKey(key, doc[key])
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	return All(ps...), nil
}

func parseKey(key string, v any) (P, error) {
	switch key {
	case "$and", "$or", "$nor":
		docs, err := subDocuments(key, v)
		if err != nil {
			return nil, err
		}
		var ps []P
		for _, d := range docs {
			p, err := FromMap(d)
			if err != nil {
				return nil, err
			}
			if p != nil {
				ps = append(ps, p)
			}
		}
		switch key {
		case "$and":
			return All(ps...), nil
		case "$or":
			return Any(ps...), nil
		default:
			if p := Any(ps...); p != nil {
				return Not(p), nil
			}
			return nil, nil
		}
	case "$not":
		d, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("querylanguage: $not expects a document, got %T", v)
		}
		p, err := FromMap(d)
		if err != nil || p == nil {
			return nil, err
		}
		return Not(p), nil
	}
	if len(key) > 0 && key[0] == '$' {
		return nil, fmt.Errorf("querylanguage: operator %q: %w", key, relmap.ErrUnsupported)
	}
	ops, ok := v.(map[string]any)
	if !ok || !isOperatorDoc(ops) {
		if v == nil {
			return FieldNil(key), nil
		}
		return FieldEQ(key, v), nil
	}
	var ps []P
	for _, op := range slices.Sorted(maps.Keys(ops)) {
		p, err := parseOp(key, op, ops[op])
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	return All(ps...), nil
}

func parseOp(field, op string, v any) (P, error) {
	switch op {
	case "$eq":
		if v == nil {
			return FieldNil(field), nil
		}
		return FieldEQ(field, v), nil
	case "$ne":
		if v == nil {
			return FieldNotNil(field), nil
		}
		return FieldNEQ(field, v), nil
	case "$gt":
		return FieldGT(field, v), nil
	case "$gte":
		return FieldGTE(field, v), nil
	case "$lt":
		return FieldLT(field, v), nil
	case "$lte":
		return FieldLTE(field, v), nil
	case "$in", "$nin":
		vs, err := list(op, v)
		if err != nil {
			return nil, err
		}
		if op == "$in" {
			return FieldIn(field, vs...), nil
		}
		return FieldNotIn(field, vs...), nil
	case "$exists":
		exists, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("querylanguage: $exists expects a bool, got %T", v)
		}
		if exists {
			return FieldNotNil(field), nil
		}
		return FieldNil(field), nil
	case "$contains", "$prefix", "$suffix":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("querylanguage: %s expects a string, got %T", op, v)
		}
		switch op {
		case "$contains":
			return FieldContains(field, s), nil
		case "$prefix":
			return FieldHasPrefix(field, s), nil
		default:
			return FieldHasSuffix(field, s), nil
		}
	default:
		return nil, fmt.Errorf("querylanguage: operator %q on field %q: %w", op, field, relmap.ErrUnsupported)
	}
}

func isOperatorDoc(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if len(k) == 0 || k[0] != '$' {
			return false
		}
	}
	return true
}

func subDocuments(op string, v any) ([]map[string]any, error) {
	switch v := v.(type) {
	case []map[string]any:
		return v, nil
	case []any:
		docs := make([]map[string]any, 0, len(v))
		for _, e := range v {
			d, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("querylanguage: %s expects documents, got %T", op, e)
			}
			docs = append(docs, d)
		}
		return docs, nil
	default:
		return nil, fmt.Errorf("querylanguage: %s expects a list of documents, got %T", op, v)
	}
}

func list(op string, v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("querylanguage: %s expects a list, got %T", op, v)
	}
	vs := make([]any, rv.Len())
	for i := range vs {
		vs[i] = rv.Index(i).Interface()
	}
	return vs, nil
}
