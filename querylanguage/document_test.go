package querylanguage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relmap"
	"github.com/syssam/relmap/querylanguage"
)

func TestFromMap(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
		S    string
	}{
		{
			name: "Equality",
			doc:  map[string]any{"name": "a"},
			S:    `name == "a"`,
		},
		{
			name: "Null",
			doc:  map[string]any{"owner": nil},
			S:    `owner == nil`,
		},
		{
			name: "Operators",
			doc:  map[string]any{"priority": map[string]any{"$gt": 0, "$lte": 10}},
			S:    `priority > 0 && priority <= 10`,
		},
		{
			name: "KeysSorted",
			doc:  map[string]any{"b": 2, "a": 1},
			S:    `a == 1 && b == 2`,
		},
		{
			name: "In",
			doc:  map[string]any{"id": map[string]any{"$in": []int{1, 2}}},
			S:    `id in [1,2]`,
		},
		{
			name: "Nin",
			doc:  map[string]any{"id": map[string]any{"$nin": []any{"x"}}},
			S:    `id not in ["x"]`,
		},
		{
			name: "Or",
			doc: map[string]any{"$or": []any{
				map[string]any{"a": 1},
				map[string]any{"b": map[string]any{"$ne": nil}},
			}},
			S: `a == 1 || b != nil`,
		},
		{
			name: "NotAndNor",
			doc: map[string]any{
				"$not": map[string]any{"a": map[string]any{"$exists": false}},
				"$nor": []map[string]any{{"b": 1}},
			},
			S: `!(b == 1) && !(a == nil)`,
		},
		{
			name: "StringFunctions",
			doc:  map[string]any{"name": map[string]any{"$prefix": "a", "$suffix": "z", "$contains": "m"}},
			S:    `(contains(name, "m") && has_prefix(name, "a") && has_suffix(name, "z"))`,
		},
		{
			name: "EmbeddedDocumentValue",
			doc:  map[string]any{"meta": map[string]any{"k": "v"}},
			S:    `meta == {"k":"v"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := querylanguage.FromMap(tt.doc)
			require.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, tt.S, p.String())
		})
	}
}

func TestFromMapEmpty(t *testing.T) {
	p, err := querylanguage.FromMap(nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = querylanguage.FromMap(map[string]any{"$and": []any{}})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFromMapErrors(t *testing.T) {
	tests := []struct {
		name        string
		doc         map[string]any
		unsupported bool
	}{
		{"UnknownOperator", map[string]any{"a": map[string]any{"$regex": "^a"}}, true},
		{"UnknownTopLevel", map[string]any{"$where": "1"}, true},
		{"BadIn", map[string]any{"a": map[string]any{"$in": 1}}, false},
		{"BadExists", map[string]any{"a": map[string]any{"$exists": "yes"}}, false},
		{"BadAnd", map[string]any{"$and": "x"}, false},
		{"BadAndElement", map[string]any{"$and": []any{1}}, false},
		{"BadNot", map[string]any{"$not": 1}, false},
		{"BadPrefix", map[string]any{"a": map[string]any{"$prefix": 1}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := querylanguage.FromMap(tt.doc)
			require.Error(t, err)
			assert.Equal(t, tt.unsupported, relmap.IsUnsupported(err))
		})
	}
}
