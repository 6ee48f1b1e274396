package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validate diffs two versions of the given tables and validates the result.
func validate(t *testing.T, from, to []*Table, diff []DiffOption, opts ...ValidateOption) *ValidationResult {
	t.Helper()
	d, err := DiffDatabase(context.Background(), &Database{Tables: from}, &Database{Tables: to}, diff...)
	require.NoError(t, err)
	return ValidateDiff(d, opts...)
}

func messages(errs []*ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}

func TestValidateDiff(t *testing.T) {
	t.Run("NoChanges", func(t *testing.T) {
		result := validate(t, []*Table{usersTable()}, []*Table{usersTable()}, nil)
		require.False(t, result.HasErrors())
		require.False(t, result.HasWarnings())
	})

	t.Run("DropTable", func(t *testing.T) {
		result := validate(t, []*Table{usersTable()}, nil, nil)
		require.Equal(t, []string{"users: table will be dropped"}, messages(result.Errors))
		require.True(t, result.Errors[0].Breaking)

		result = validate(t, []*Table{usersTable()}, nil, nil, AllowDropTable())
		require.False(t, result.HasErrors())
		require.True(t, result.HasWarnings())
	})

	t.Run("DropColumn", func(t *testing.T) {
		desired := NewTable("users").
			AddColumn(&Column{Name: "id", Type: "INTEGER", NotNull: true, Primary: true, AutoIncrement: true}).
			AddColumn(&Column{Name: "name", Type: "VARCHAR", Size: 255, NotNull: true})
		_, err := desired.AddIndex("users_email", true, []string{"name"})
		require.NoError(t, err)

		result := validate(t, []*Table{usersTable()}, []*Table{desired}, nil)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "email", result.Errors[0].Column)

		result = validate(t, []*Table{usersTable()}, []*Table{desired}, nil, AllowDropColumn())
		require.False(t, result.HasErrors())
	})

	t.Run("RenameColumn", func(t *testing.T) {
		from := NewTable("users").
			AddColumn(&Column{Name: "id", Type: "INTEGER", NotNull: true, Primary: true}).
			AddColumn(&Column{Name: "nick", Type: "VARCHAR", Size: 64})
		to := NewTable("users").
			AddColumn(&Column{Name: "id", Type: "INTEGER", NotNull: true, Primary: true}).
			AddColumn(&Column{Name: "nickname", Type: "VARCHAR", Size: 64})

		result := validate(t, []*Table{from}, []*Table{to}, []DiffOption{WithRenameStrategy(MatchAttributes)})
		require.False(t, result.HasErrors(), "a detected rename drops nothing")
		require.Equal(t, []string{"users.nick: column will be renamed to nickname"}, messages(result.Warnings))

		result = validate(t, []*Table{from}, []*Table{to}, nil)
		require.Equal(t, []string{"users.nick: column will be dropped"}, messages(result.Errors))
	})

	t.Run("FoldedNames", func(t *testing.T) {
		from := NewTable("Users").AddColumn(&Column{Name: "Name", Type: "TEXT"})
		to := NewTable("users").AddColumn(&Column{Name: "name", Type: "text"})
		result := validate(t, []*Table{from}, []*Table{to}, []DiffOption{WithFoldedNames()})
		require.False(t, result.HasErrors())
		require.False(t, result.HasWarnings())
	})

	t.Run("ColumnChanges", func(t *testing.T) {
		desired := usersTable()
		email, _ := desired.Column("email")
		email.NotNull = true
		email.Unique = true
		name, _ := desired.Column("name")
		name.Size = 64
		name.Type = "TEXT"
		desired.AddColumn(&Column{Name: "age", Type: "INTEGER", NotNull: true})

		result := validate(t, []*Table{usersTable()}, []*Table{desired}, nil)
		require.Equal(t, []string{
			"users.email: column changing from NULL to NOT NULL may fail if column has NULL values",
		}, messages(result.Errors))
		assert.ElementsMatch(t, []string{
			"users.email: adding UNIQUE constraint may fail if duplicate values exist",
			"users.name: column type changing from VARCHAR(255) to TEXT(64)",
			"users.name: column size reducing from 255 to 64 may truncate data",
			"users.age: new NOT NULL column without default value may fail if table has data",
		}, messages(result.Warnings))

		result = validate(t, []*Table{usersTable()}, []*Table{desired}, nil, AllowNullToNotNull())
		require.False(t, result.HasErrors())
	})

	t.Run("Indexes", func(t *testing.T) {
		desired := usersTable()
		desired.Indexes = nil
		result := validate(t, []*Table{usersTable()}, []*Table{desired}, nil)
		require.Equal(t, []string{`users: index "users_email" will be dropped`}, messages(result.Errors))
		require.False(t, result.Errors[0].Breaking)

		result = validate(t, []*Table{usersTable()}, []*Table{desired}, nil, AllowDropIndex())
		require.False(t, result.HasErrors())

		from := usersTable()
		idx, _ := from.Index("users_email")
		idx.Unique = false
		result = validate(t, []*Table{from}, []*Table{usersTable()}, nil)
		require.Equal(t, []string{`users: index "users_email" becoming unique may fail if duplicate values exist`}, messages(result.Warnings))
	})

	t.Run("PrimaryKey", func(t *testing.T) {
		desired := usersTable()
		email, _ := desired.Column("email")
		email.Primary = true
		result := validate(t, []*Table{usersTable()}, []*Table{desired}, nil)
		require.False(t, result.HasErrors())
		require.Contains(t, messages(result.Warnings), "users: primary key changing from [id] to [id email]")
	})
}
