package platform_test

import (
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/relmap"
	"github.com/syssam/relmap/dialect"
	"github.com/syssam/relmap/dialect/sql/platform"
	"github.com/syssam/relmap/dialect/sql/schema"
	"github.com/syssam/relmap/entity"
)

// blog returns the user, post, tag and post_tag schemas. Posts reference
// their author, tags are attached to posts through post_tag.
func blog() (user, post, tag, postTag *entity.Schema) {
	user = &entity.Schema{
		Name: "user",
		Fields: []*entity.Field{
			{Name: "id", Type: entity.TypeInt, Primary: true, AutoIncrement: true},
			{Name: "name", Type: entity.TypeString},
			{Name: "email", Type: entity.TypeString, Unique: true, Nullable: true},
		},
	}
	post = &entity.Schema{
		Name: "post",
		Fields: []*entity.Field{
			{Name: "id", Type: entity.TypeInt, Primary: true, AutoIncrement: true},
			{Name: "title", Type: entity.TypeString, Default: "untitled"},
			{Name: "author", Type: entity.TypeInt, Reference: user, OnDelete: "CASCADE"},
		},
		Indexes: []*entity.Index{{Fields: []string{"title", "author"}}},
	}
	tag = &entity.Schema{
		Name: "tag",
		Fields: []*entity.Field{
			{Name: "id", Type: entity.TypeInt, Primary: true, AutoIncrement: true},
			{Name: "name", Type: entity.TypeString, Unique: true},
		},
	}
	postTag = &entity.Schema{
		Name: "post_tag",
		Fields: []*entity.Field{
			{Name: "post", Type: entity.TypeInt, Primary: true, Reference: post},
			{Name: "tag", Type: entity.TypeInt, Primary: true, Reference: tag},
		},
	}
	post.Fields = append(post.Fields, &entity.Field{
		Name:          "tags",
		BackReference: &entity.BackReference{Target: tag, Via: postTag, Many: true},
	})
	user.Fields = append(user.Fields, &entity.Field{
		Name:          "posts",
		BackReference: &entity.BackReference{Target: post, Many: true},
	})
	return user, post, tag, postTag
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		platform *platform.Platform
		in, want string
	}{
		{platform.Default(), "user", `"user"`},
		{platform.Default(), "public.user", `"public"."user"`},
		{platform.Default(), `we"ird`, `"we""ird"`},
		{platform.SQLite(), `x"; DROP TABLE t; --`, `"x""; DROP TABLE t; --"`},
		{platform.MySQL(), "db.user", "`db`.`user`"},
		{platform.MySQL(), "a`b", "`a``b`"},
		{platform.Postgres(), "public.user", `"public"."user"`},
		{platform.Postgres(), `we"ird`, `"we""ird"`},
	}
	for _, tt := range tests {
		t.Run(tt.platform.Name()+"/"+tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.platform.QuoteIdentifier(tt.in))
		})
	}
}

func TestQuoteValue(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	var nilPtr *int
	n := 7
	tests := []struct {
		name     string
		platform *platform.Platform
		in       any
		want     string
	}{
		{"Nil", platform.Default(), nil, "NULL"},
		{"NilPointer", platform.Default(), nilPtr, "NULL"},
		{"Pointer", platform.Default(), &n, "7"},
		{"Bool", platform.Default(), true, "TRUE"},
		{"SQLiteBool", platform.SQLite(), false, "0"},
		{"Int", platform.Default(), int64(-42), "-42"},
		{"Uint", platform.Default(), uint8(200), "200"},
		{"Float", platform.Default(), 1.5, "1.5"},
		{"Float32", platform.Default(), float32(0.1), "0.1"},
		{"NaN", platform.SQLite(), math.NaN(), "NULL"},
		{"Inf", platform.SQLite(), math.Inf(1), "9e999"},
		{"NegInf", platform.MySQL(), float32(math.Inf(-1)), "-9e999"},
		{"PostgresNaN", platform.Postgres(), math.NaN(), "'NaN'::float8"},
		{"PostgresInf", platform.Postgres(), math.Inf(1), "'Infinity'::float8"},
		{"PostgresNegInf", platform.Postgres(), math.Inf(-1), "'-Infinity'::float8"},
		{"PostgresFloat", platform.Postgres(), -2.25, "-2.25"},
		{"String", platform.Default(), "it's", "'it''s'"},
		{"MySQLString", platform.MySQL(), "a\\b'\n", `'a\\b\'\n'`},
		{"PostgresString", platform.Postgres(), "it's", "'it''s'"},
		{"PostgresBackslash", platform.Postgres(), `a\b`, `E'a\\b'`},
		{"Bytes", platform.Default(), []byte{0xab, 0x01}, "X'AB01'"},
		{"PostgresBytes", platform.Postgres(), []byte{0xab, 0x01}, `'\xab01'::bytea`},
		{"UUID", platform.Default(), id, "'6ba7b810-9dad-11d1-80b4-00c04fd430c8'"},
		{"Time", platform.MySQL(), ts, "'2024-05-06 07:08:09'"},
		{"Map", platform.Default(), map[string]any{"a": 1}, `'{"a":1}'`},
		{"Slice", platform.Default(), []int{1, 2}, "'[1,2]'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.platform.QuoteValue(tt.in))
		})
	}
}

func TestQuoteValue_NonFiniteSQLite(t *testing.T) {
	conn, err := sql.Open("sqlite", "file:floats?mode=memory")
	require.NoError(t, err)
	defer conn.Close()
	p := platform.SQLite()
	var inf, negInf bool
	var nan sql.NullFloat64
	row := conn.QueryRow("SELECT " + p.QuoteValue(math.Inf(1)) + " > 1e308, " +
		p.QuoteValue(math.Inf(-1)) + " < -1e308, " + p.QuoteValue(math.NaN()))
	require.NoError(t, row.Scan(&inf, &negInf, &nan))
	assert.True(t, inf)
	assert.True(t, negInf)
	assert.False(t, nan.Valid)
}

func TestTableIdentifier(t *testing.T) {
	p := platform.Default()
	name, err := p.TableIdentifier(&entity.Schema{Name: "user"})
	require.NoError(t, err)
	assert.Equal(t, `"user"`, name)

	name, err = p.TableIdentifier(&entity.Schema{Name: "user", Table: "accounts", Namespace: "auth"})
	require.NoError(t, err)
	assert.Equal(t, `"auth"."accounts"`, name)

	name, err = platform.SQLite().TableIdentifier(&entity.Schema{Name: "user", Namespace: "auth"})
	require.NoError(t, err)
	assert.Equal(t, `"auth§user"`, name)

	name, err = platform.Default(platform.WithTableNamer(platform.SnakePlural)).TableIdentifier(&entity.Schema{Name: "BlogPost"})
	require.NoError(t, err)
	assert.Equal(t, `"blog_posts"`, name)

	_, err = p.TableIdentifier(&entity.Schema{})
	require.ErrorIs(t, err, relmap.ErrNoTableName)
	require.True(t, relmap.IsConfigError(err))
}

func TestForDialect(t *testing.T) {
	for _, name := range []string{dialect.SQLite, dialect.MySQL, dialect.Postgres} {
		assert.Equal(t, name, platform.ForDialect(name).Name())
	}
	assert.Equal(t, "default", platform.ForDialect("oracle").Name())
	assert.Equal(t, "$1", mustPlaceholder(t, platform.Postgres(), "?"))
	assert.Equal(t, "?", mustPlaceholder(t, platform.MySQL(), "?"))
}

func mustPlaceholder(t *testing.T, p *platform.Platform, sql string) string {
	out, err := p.Placeholder().ReplacePlaceholders(sql)
	require.NoError(t, err)
	return out
}

func TestLimitOffset(t *testing.T) {
	tests := []struct {
		platform      *platform.Platform
		limit, offset int
		want          string
	}{
		{platform.Default(), 0, 0, ""},
		{platform.Default(), 10, 0, " LIMIT 10"},
		{platform.Default(), 10, 5, " LIMIT 10 OFFSET 5"},
		{platform.Postgres(), 0, 5, " OFFSET 5"},
		{platform.SQLite(), 0, 5, " LIMIT -1 OFFSET 5"},
		{platform.MySQL(), 0, 5, " LIMIT 18446744073709551615 OFFSET 5"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.platform.LimitOffset(tt.limit, tt.offset), tt.platform.Name())
	}
}

func TestCreateTables(t *testing.T) {
	user, post, tag, postTag := blog()
	db := &schema.Database{}
	tables, err := platform.SQLite().CreateTables([]*entity.Schema{user, post, tag, postTag}, db)
	require.NoError(t, err)
	require.Len(t, tables, 4)
	require.Equal(t, tables, db.Tables)

	t.Run("Columns", func(t *testing.T) {
		u := tables[0]
		require.Len(t, u.Columns, 3, "back-references have no column")
		id, _ := u.Column("id")
		assert.Equal(t, "INTEGER", id.SizedType())
		assert.True(t, id.Primary)
		assert.True(t, id.AutoIncrement)
		email, _ := u.Column("email")
		assert.Equal(t, "TEXT", email.Type)
		assert.False(t, email.NotNull)
	})

	t.Run("ForeignKeys", func(t *testing.T) {
		p := tables[1]
		require.Len(t, p.ForeignKeys, 1)
		fk := p.ForeignKeys[0]
		assert.Equal(t, "post_author_fk", fk.Name)
		assert.Same(t, tables[0], fk.RefTable)
		assert.Equal(t, []string{"id"}, fk.RefColumnNames())
		assert.Equal(t, "CASCADE", fk.OnDelete)
		author, _ := p.Column("author")
		assert.True(t, author.Index)
		assert.Equal(t, "INTEGER(8)", author.SizedType())
	})

	t.Run("Indexes", func(t *testing.T) {
		var names []string
		for _, idx := range tables[1].Indexes {
			names = append(names, idx.Name)
		}
		assert.Equal(t, []string{"post_author_idx", "post_title_author_idx"}, names)
		assert.True(t, tables[0].HasIndex([]string{"email"}, true))
		assert.Len(t, tables[3].Indexes, 2)
	})

	t.Run("Dedup", func(t *testing.T) {
		s := &entity.Schema{
			Name: "t",
			Fields: []*entity.Field{
				{Name: "id", Type: entity.TypeInt, Primary: true},
				{Name: "code", Type: entity.TypeString, Unique: true},
			},
			Indexes: []*entity.Index{
				{Name: "by_code", Fields: []string{"code"}, Unique: true},
				{Name: "t_code_uniq", Fields: []string{"code", "id"}},
			},
		}
		tables, err := platform.Default().CreateTables([]*entity.Schema{s}, nil)
		require.NoError(t, err)
		require.Len(t, tables[0].Indexes, 1)
		assert.Equal(t, "t_code_uniq", tables[0].Indexes[0].Name)
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := platform.Default().CreateTables([]*entity.Schema{post}, nil)
		require.True(t, relmap.IsConfigError(err))

		_, err = platform.Default().CreateTables([]*entity.Schema{{Fields: user.Fields}}, nil)
		require.ErrorIs(t, err, relmap.ErrNoTableName)

		bad := &entity.Schema{Name: "b", Fields: user.Fields[:1], Indexes: []*entity.Index{{Fields: []string{"ghost"}}}}
		_, err = platform.Default().CreateTables([]*entity.Schema{bad}, nil)
		require.ErrorIs(t, err, relmap.ErrUnknownField)
	})
}

func TestAddTablesDDL_SQLite(t *testing.T) {
	user, post, tag, postTag := blog()
	p := platform.SQLite()
	db := &schema.Database{}
	_, err := p.CreateTables([]*entity.Schema{user, post, tag, postTag}, db)
	require.NoError(t, err)

	ddl := p.AddTablesDDL(db)
	require.Equal(t, []string{
		"PRAGMA foreign_keys = OFF",
		`DROP TABLE IF EXISTS "user"`,
		`CREATE TABLE "user" ("id" INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL, "name" TEXT NOT NULL, "email" TEXT NULL)`,
		`CREATE UNIQUE INDEX "user_email_uniq" ON "user" ("email")`,
		`DROP TABLE IF EXISTS "post"`,
		`CREATE TABLE "post" ("id" INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL, "title" TEXT DEFAULT 'untitled' NOT NULL, "author" INTEGER(8) NOT NULL, FOREIGN KEY ("author") REFERENCES "user" ("id") ON DELETE CASCADE)`,
		`CREATE INDEX "post_author_idx" ON "post" ("author")`,
		`CREATE INDEX "post_title_author_idx" ON "post" ("title", "author")`,
		`DROP TABLE IF EXISTS "tag"`,
		`CREATE TABLE "tag" ("id" INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL, "name" TEXT NOT NULL)`,
		`CREATE UNIQUE INDEX "tag_name_uniq" ON "tag" ("name")`,
		`DROP TABLE IF EXISTS "post_tag"`,
		`CREATE TABLE "post_tag" ("post" INTEGER(8) NOT NULL, "tag" INTEGER(8) NOT NULL, CONSTRAINT "post_tag_pk" PRIMARY KEY ("post", "tag"), FOREIGN KEY ("post") REFERENCES "post" ("id"), FOREIGN KEY ("tag") REFERENCES "tag" ("id"))`,
		`CREATE INDEX "post_tag_post_idx" ON "post_tag" ("post")`,
		`CREATE INDEX "post_tag_tag_idx" ON "post_tag" ("tag")`,
		"PRAGMA foreign_keys = ON",
	}, ddl)
	require.Empty(t, p.AddSchemasDDL(db))

	// The statements are accepted by the engine.
	conn, err := sql.Open("sqlite", "file:ddl?mode=memory")
	require.NoError(t, err)
	defer conn.Close()
	conn.SetMaxOpenConns(1)
	for _, stmt := range ddl {
		_, err := conn.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	_, err = conn.Exec(`INSERT INTO "user" ("name") VALUES ('ada')`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO "post" ("author") VALUES (1)`)
	require.NoError(t, err)
	var title string
	require.NoError(t, conn.QueryRow(`SELECT "title" FROM "post"`).Scan(&title))
	require.Equal(t, "untitled", title)
}

func TestAddTablesDDL_Postgres(t *testing.T) {
	user, post, _, _ := blog()
	p := platform.Postgres()
	db := &schema.Database{Namespace: "blog"}
	_, err := p.CreateTables([]*entity.Schema{user, post}, db)
	require.NoError(t, err)

	assert.Equal(t, []string{`CREATE SCHEMA IF NOT EXISTS "blog"`}, p.AddSchemasDDL(db))
	ddl := p.AddTablesDDL(db)
	assert.Equal(t, []string{
		`DROP TABLE IF EXISTS "blog"."user" CASCADE`,
		`CREATE TABLE "blog"."user" ("id" BIGINT NOT NULL GENERATED BY DEFAULT AS IDENTITY, "name" TEXT NOT NULL, "email" TEXT NULL, CONSTRAINT "user_pk" PRIMARY KEY ("id"))`,
		`CREATE UNIQUE INDEX "user_email_uniq" ON "blog"."user" ("email")`,
		`DROP TABLE IF EXISTS "blog"."post" CASCADE`,
		`CREATE TABLE "blog"."post" ("id" BIGINT NOT NULL GENERATED BY DEFAULT AS IDENTITY, "title" TEXT DEFAULT 'untitled' NOT NULL, "author" BIGINT NOT NULL, CONSTRAINT "post_pk" PRIMARY KEY ("id"))`,
		`CREATE INDEX "post_author_idx" ON "blog"."post" ("author")`,
		`CREATE INDEX "post_title_author_idx" ON "blog"."post" ("title", "author")`,
		`ALTER TABLE "blog"."post" ADD CONSTRAINT "post_author_fk" FOREIGN KEY ("author") REFERENCES "blog"."user" ("id") ON DELETE CASCADE`,
	}, ddl)
}

func TestAddTablesDDL_MySQL(t *testing.T) {
	user, _, _, _ := blog()
	p := platform.MySQL()
	db := &schema.Database{}
	_, err := p.CreateTables([]*entity.Schema{user}, db)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"SET FOREIGN_KEY_CHECKS = 0",
		"DROP TABLE IF EXISTS `user`",
		"CREATE TABLE `user` (`id` BIGINT NOT NULL AUTO_INCREMENT, `name` VARCHAR(255) NOT NULL, `email` VARCHAR(255) NULL, CONSTRAINT `user_pk` PRIMARY KEY (`id`))",
		"CREATE UNIQUE INDEX `user_email_uniq` ON `user` (`email`)",
		"SET FOREIGN_KEY_CHECKS = 1",
	}, p.AddTablesDDL(db))
}
