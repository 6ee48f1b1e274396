package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relmap"
)

func TestDiff(t *testing.T) {
	t.Run("Identical", func(t *testing.T) {
		users := usersTable()
		d, err := Diff(users, users)
		require.NoError(t, err)
		require.True(t, d.Empty())
		require.False(t, d.HasModifiedPK())
		require.False(t, d.Renamed())
	})

	t.Run("Incompatible", func(t *testing.T) {
		_, err := Diff(usersTable(), NewTable("accounts"))
		require.ErrorIs(t, err, relmap.ErrIncompatibleSchemas)

		d, err := Diff(usersTable(), NewTable("accounts"), WithTableRename())
		require.NoError(t, err)
		require.True(t, d.Renamed())
	})

	t.Run("Columns", func(t *testing.T) {
		from := usersTable()
		to := usersTable()
		name, _ := to.Column("name")
		name.Size = 100
		to.AddColumn(&Column{Name: "age", Type: "INTEGER"})
		to.Columns = append(to.Columns[:2:2], to.Columns[3:]...) // drop email
		to.Indexes = nil

		d, err := Diff(from, to)
		require.NoError(t, err)
		require.False(t, d.Empty())
		require.Len(t, d.ModifiedColumns, 1)
		assert.Equal(t, 255, d.ModifiedColumns[0].From.Size)
		assert.Equal(t, 100, d.ModifiedColumns[0].To.Size)
		require.Len(t, d.AddedColumns, 1)
		assert.Equal(t, "age", d.AddedColumns[0].Name)
		require.Len(t, d.RemovedColumns, 1)
		assert.Equal(t, "email", d.RemovedColumns[0].Name)
		require.Len(t, d.RemovedIndexes, 1)
		assert.Empty(t, d.RenamedColumns)
	})

	t.Run("Idempotent", func(t *testing.T) {
		from, to := usersTable(), usersTable()
		to.AddColumn(&Column{Name: "age", Type: "INTEGER"})
		d1, err := Diff(from, to)
		require.NoError(t, err)
		d2, err := Diff(from, to)
		require.NoError(t, err)
		require.Equal(t, d1, d2)
	})

	t.Run("Indexes", func(t *testing.T) {
		from, to := usersTable(), usersTable()
		idx, _ := to.Index("users_email")
		idx.Unique = false
		_, err := to.AddIndex("users_name", false, []string{"name"})
		require.NoError(t, err)

		d, err := Diff(from, to)
		require.NoError(t, err)
		require.Len(t, d.ModifiedIndexes, 1)
		require.Len(t, d.AddedIndexes, 1)
		assert.Equal(t, "users_name", d.AddedIndexes[0].Name)
		assert.Empty(t, d.RemovedIndexes)
	})

	t.Run("ForeignKeys", func(t *testing.T) {
		users := usersTable()
		from, to := postsTable(users), postsTable(users)
		to.ForeignKeys[0].OnDelete = "SET NULL"

		d, err := Diff(from, to)
		require.NoError(t, err)
		require.Len(t, d.ModifiedForeignKeys, 1)
		assert.Equal(t, "SET NULL", d.ModifiedForeignKeys[0].To.OnDelete)

		to.ForeignKeys = nil
		d, err = Diff(from, to)
		require.NoError(t, err)
		require.Len(t, d.RemovedForeignKeys, 1)
	})

	t.Run("ModifiedPK", func(t *testing.T) {
		from := NewTable("t").
			AddColumn(&Column{Name: "a", Type: "INTEGER", Primary: true}).
			AddColumn(&Column{Name: "b", Type: "INTEGER"})
		to := NewTable("t").
			AddColumn(&Column{Name: "a", Type: "INTEGER", Primary: true}).
			AddColumn(&Column{Name: "b", Type: "INTEGER", Primary: true})
		d, err := Diff(from, to)
		require.NoError(t, err)
		require.True(t, d.HasModifiedPK())
	})

	t.Run("FoldedNames", func(t *testing.T) {
		from := usersTable()
		to := NewTable("USERS").
			AddColumn(&Column{Name: "ID", Type: "integer", NotNull: true, Primary: true, AutoIncrement: true}).
			AddColumn(&Column{Name: "Name", Type: "varchar", Size: 255, NotNull: true}).
			AddColumn(&Column{Name: "Email", Type: "varchar", Size: 255})
		_, err := to.AddIndex("USERS_EMAIL", true, []string{"Email"})
		require.NoError(t, err)

		_, err = Diff(from, to)
		require.ErrorIs(t, err, relmap.ErrIncompatibleSchemas)

		d, err := Diff(from, to, WithFoldedNames())
		require.NoError(t, err)
		require.True(t, d.Empty())
	})
}

func TestRenameStrategy(t *testing.T) {
	from := NewTable("t").
		AddColumn(&Column{Name: "id", Type: "INTEGER", Primary: true}).
		AddColumn(&Column{Name: "full_name", Type: "TEXT", NotNull: true})
	to := NewTable("t").
		AddColumn(&Column{Name: "id", Type: "INTEGER", Primary: true}).
		AddColumn(&Column{Name: "display_name", Type: "TEXT", NotNull: true})

	t.Run("NoRenames", func(t *testing.T) {
		d, err := Diff(from, to)
		require.NoError(t, err)
		require.Empty(t, d.RenamedColumns)
		require.Len(t, d.RemovedColumns, 1)
		require.Len(t, d.AddedColumns, 1)
	})

	t.Run("MatchAttributes", func(t *testing.T) {
		d, err := Diff(from, to, WithRenameStrategy(MatchAttributes))
		require.NoError(t, err)
		require.Len(t, d.RenamedColumns, 1)
		assert.Equal(t, "full_name", d.RenamedColumns[0].From.Name)
		assert.Equal(t, "display_name", d.RenamedColumns[0].To.Name)
		assert.Empty(t, d.RemovedColumns)
		assert.Empty(t, d.AddedColumns)
	})

	t.Run("Ambiguous", func(t *testing.T) {
		to := to.Copy().AddColumn(&Column{Name: "nick_name", Type: "TEXT", NotNull: true})
		d, err := Diff(from, to, WithRenameStrategy(MatchAttributes))
		require.NoError(t, err)
		assert.Empty(t, d.RenamedColumns)
		assert.Len(t, d.RemovedColumns, 1)
		assert.Len(t, d.AddedColumns, 2)
	})

	t.Run("RenamedPrimaryKey", func(t *testing.T) {
		from := NewTable("t").AddColumn(&Column{Name: "id", Type: "INTEGER", Primary: true})
		to := NewTable("t").AddColumn(&Column{Name: "uid", Type: "INTEGER", Primary: true})
		d, err := Diff(from, to, WithRenameStrategy(MatchAttributes))
		require.NoError(t, err)
		require.Len(t, d.RenamedColumns, 1)
		require.False(t, d.HasModifiedPK())

		d, err = Diff(from, to)
		require.NoError(t, err)
		require.True(t, d.HasModifiedPK())
	})
}

func TestDiffDatabase(t *testing.T) {
	users := usersTable()
	from := &Database{Tables: []*Table{users, postsTable(users)}}

	to := &Database{}
	users2 := usersTable()
	users2.AddColumn(&Column{Name: "age", Type: "INTEGER"})
	to.AddTable(users2)
	to.AddTable(NewTable("tags").AddColumn(&Column{Name: "id", Type: "INTEGER", Primary: true}))

	d, err := DiffDatabase(context.Background(), from, to, WithParallelism(2))
	require.NoError(t, err)
	require.False(t, d.Empty())
	require.Len(t, d.AddedTables, 1)
	assert.Equal(t, "tags", d.AddedTables[0].Name)
	require.Len(t, d.RemovedTables, 1)
	assert.Equal(t, "posts", d.RemovedTables[0].Name)
	require.Len(t, d.Tables, 1)
	assert.Equal(t, "age", d.Tables[0].AddedColumns[0].Name)

	d, err = DiffDatabase(context.Background(), from, from)
	require.NoError(t, err)
	require.True(t, d.Empty())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = DiffDatabase(ctx, from, from)
	require.ErrorIs(t, err, context.Canceled)
}
