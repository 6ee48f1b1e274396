package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func usersTable() *Table {
	t := NewTable("users").
		AddColumn(&Column{Name: "id", Type: "INTEGER", NotNull: true, Primary: true, AutoIncrement: true}).
		AddColumn(&Column{Name: "name", Type: "VARCHAR", Size: 255, NotNull: true}).
		AddColumn(&Column{Name: "email", Type: "VARCHAR", Size: 255})
	if _, err := t.AddIndex("users_email", true, []string{"email"}); err != nil {
		panic(err)
	}
	return t
}

func postsTable(users *Table) *Table {
	t := NewTable("posts").
		AddColumn(&Column{Name: "id", Type: "INTEGER", NotNull: true, Primary: true, AutoIncrement: true}).
		AddColumn(&Column{Name: "title", Type: "TEXT", NotNull: true, Default: "untitled"}).
		AddColumn(&Column{Name: "author_id", Type: "INTEGER"})
	author, _ := t.Column("author_id")
	id, _ := users.Column("id")
	t.AddForeignKey(&ForeignKey{
		Name:       "posts_author",
		Columns:    []*Column{author},
		RefTable:   users,
		RefColumns: []*Column{id},
		OnDelete:   "CASCADE",
	})
	if _, err := t.AddIndex("posts_author_id", false, []string{"author_id"}); err != nil {
		panic(err)
	}
	return t
}

func TestTableMethods(t *testing.T) {
	t.Run("SetNamespace", func(t *testing.T) {
		tbl := NewTable("test")
		result := tbl.SetNamespace("public")
		require.Equal(t, "public", tbl.Namespace)
		require.Equal(t, tbl, result)
		require.Equal(t, "public.test", tbl.FullName("."))
		require.Equal(t, "test", NewTable("test").FullName("."))
	})

	t.Run("Column", func(t *testing.T) {
		tbl := usersTable()
		col, ok := tbl.Column("name")
		require.True(t, ok)
		require.Equal(t, "name", col.Name)
		require.Same(t, tbl, col.Table)

		col, ok = tbl.Column("missing")
		require.False(t, ok)
		require.Nil(t, col)
		require.True(t, tbl.HasColumn("email"))
		require.False(t, tbl.HasColumn("missing"))
	})

	t.Run("PrimaryKeys", func(t *testing.T) {
		tbl := NewTable("post_tag").
			AddColumn(&Column{Name: "post_id", Type: "INTEGER", Primary: true}).
			AddColumn(&Column{Name: "tag_id", Type: "INTEGER", Primary: true}).
			AddColumn(&Column{Name: "weight", Type: "INTEGER"})
		require.Equal(t, []string{"post_id", "tag_id"}, tbl.PrimaryKeyNames())
		_, ok := tbl.AutoIncrement()
		require.False(t, ok)

		ai, ok := usersTable().AutoIncrement()
		require.True(t, ok)
		require.Equal(t, "id", ai.Name)
	})

	t.Run("AddIndex", func(t *testing.T) {
		tbl := usersTable()
		idx, ok := tbl.Index("users_email")
		require.True(t, ok)
		require.True(t, idx.Unique)
		require.Equal(t, []string{"email"}, idx.ColumnNames())

		_, err := tbl.AddIndex("bad", false, []string{"missing"})
		require.EqualError(t, err, `schema: table "users": index "bad" references unknown column "missing"`)
	})

	t.Run("HasIndex", func(t *testing.T) {
		tbl := NewTable("t").
			AddColumn(&Column{Name: "a", Type: "INTEGER"}).
			AddColumn(&Column{Name: "b", Type: "INTEGER"})
		_, err := tbl.AddIndex("t_a_b", false, []string{"a", "b"})
		require.NoError(t, err)

		require.True(t, tbl.HasIndex([]string{"b", "a"}, false))
		require.False(t, tbl.HasIndex([]string{"a", "b"}, true))
		require.False(t, tbl.HasIndex([]string{"a"}, false))
		require.True(t, tbl.CoveredBy([]string{"a"}))
		require.False(t, tbl.CoveredBy([]string{"b"}))
	})

	t.Run("Copy", func(t *testing.T) {
		users := usersTable()
		posts := postsTable(users)
		cp := posts.Copy()
		require.NotSame(t, posts.Columns[0], cp.Columns[0])
		require.Same(t, cp, cp.Columns[0].Table)
		require.Same(t, cp.Columns[2], cp.Indexes[0].Columns[0])
		require.Same(t, cp.Columns[2], cp.ForeignKeys[0].Columns[0])
		require.Same(t, users, cp.ForeignKeys[0].RefTable)

		d, err := Diff(posts, cp)
		require.NoError(t, err)
		require.True(t, d.Empty())
	})
}

func TestColumnMethods(t *testing.T) {
	t.Run("SizedType", func(t *testing.T) {
		require.Equal(t, "INTEGER", (&Column{Type: "INTEGER"}).SizedType())
		require.Equal(t, "VARCHAR(255)", (&Column{Type: "VARCHAR", Size: 255}).SizedType())
		require.Equal(t, "DECIMAL(10,2)", (&Column{Type: "DECIMAL", Size: 10, Scale: 2}).SizedType())
	})

	t.Run("EqualAttributes", func(t *testing.T) {
		a := &Column{Name: "a", Type: "varchar", Size: 10, NotNull: true, Default: 1}
		b := &Column{Name: "b", Type: "VARCHAR", Size: 10, NotNull: true, Default: "1"}
		require.True(t, a.EqualAttributes(b))

		b.Size = 20
		require.False(t, a.EqualAttributes(b))
		require.False(t, a.EqualAttributes(&Column{Type: "varchar", Size: 10, NotNull: true}))
	})
}

func TestDatabase(t *testing.T) {
	db := NewDatabase("blog")
	users := db.AddTable(usersTable())
	got, ok := db.Table("users")
	require.True(t, ok)
	require.Same(t, users, got)
	_, ok = db.Table("posts")
	require.False(t, ok)
}
