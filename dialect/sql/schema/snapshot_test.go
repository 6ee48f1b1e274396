package schema

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	// Posts come first to check forward references.
	users := usersTable()
	db := &Database{Name: "blog", Tables: []*Table{postsTable(users), users}}

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, db))
	require.Contains(t, buf.String(), "ref_table: users")
	require.Contains(t, buf.String(), "auto_increment: true")

	got, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	require.Equal(t, "blog", got.Name)
	require.Len(t, got.Tables, 2)

	d, err := DiffDatabase(t.Context(), db, got)
	require.NoError(t, err)
	require.True(t, d.Empty())

	posts, ok := got.Table("posts")
	require.True(t, ok)
	gotUsers, _ := got.Table("users")
	require.Same(t, gotUsers, posts.ForeignKeys[0].RefTable)
	require.Equal(t, "untitled", posts.Columns[1].Default)
}

func TestReadSnapshot_Errors(t *testing.T) {
	tests := []struct {
		name, doc, err string
	}{
		{
			name: "UnknownRefTable",
			doc: `
tables:
  - name: posts
    columns: [{name: id, type: INTEGER}]
    foreign_keys: [{name: fk, columns: [id], ref_table: users, ref_columns: [id]}]
`,
			err: `schema: read snapshot: table "posts": foreign key "fk" references unknown table "users"`,
		},
		{
			name: "UnknownIndexColumn",
			doc: `
tables:
  - name: posts
    columns: [{name: id, type: INTEGER}]
    indexes: [{name: i, columns: [title]}]
`,
			err: `schema: read snapshot: schema: table "posts": index "i" references unknown column "title"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadSnapshot(strings.NewReader(tt.doc))
			require.EqualError(t, err, tt.err)
		})
	}

	db, err := ReadSnapshot(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, db.Tables)
}
