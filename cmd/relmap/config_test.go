package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relmap/dialect"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relmap.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(envDialect, "")
	t.Setenv(envDSN, "")
	t.Setenv(envURL, "")

	t.Run("Defaults", func(t *testing.T) {
		cfg, err := loadConfig("")
		require.NoError(t, err)
		assert.Equal(t, "schema.yaml", cfg.Snapshot)
		assert.Equal(t, "relmap_migration", cfg.MigrationTable)
		assert.Equal(t, "none", cfg.Diff.Renames)
		assert.Empty(t, cfg.diffOptions())
		assert.Empty(t, cfg.validateOptions())
	})

	t.Run("File", func(t *testing.T) {
		cfg, err := loadConfig(writeConfig(t, `
dialect = "postgres"
dsn = "postgres://localhost/app"
namespace = "public"
migration_table = "versions"
max_conns = 4

[diff]
renames = "attributes"
fold_names = true
parallelism = 2
allow_drop = true
allow_not_null = true
`))
		require.NoError(t, err)
		assert.Equal(t, dialect.Postgres, cfg.Dialect)
		assert.Equal(t, "public", cfg.Namespace)
		assert.Equal(t, "versions", cfg.MigrationTable)
		assert.Equal(t, int64(4), cfg.MaxConns)
		assert.Len(t, cfg.diffOptions(), 3)
		assert.Len(t, cfg.validateOptions(), 4)
		require.NoError(t, cfg.validate(true))
	})

	t.Run("UnknownKeys", func(t *testing.T) {
		_, err := loadConfig(writeConfig(t, "dialect = \"mysql\"\nworkers = 3\n"))
		require.EqualError(t, err, "unknown config keys: workers")
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "nope.toml"))
		require.ErrorContains(t, err, "read config")
	})

	t.Run("Environment", func(t *testing.T) {
		t.Setenv(envURL, "postgres://env/app")
		cfg, err := loadConfig(writeConfig(t, `dialect = "mysql"`))
		require.NoError(t, err)
		assert.Equal(t, "postgres://env/app", cfg.DSN)

		t.Setenv(envDSN, "root@tcp(localhost)/app")
		t.Setenv(envDialect, "mariadb")
		cfg, err = loadConfig(writeConfig(t, `dsn = "from-file"`))
		require.NoError(t, err)
		assert.Equal(t, "root@tcp(localhost)/app", cfg.DSN)
		require.NoError(t, cfg.validate(true))
		assert.Equal(t, dialect.MySQL, cfg.Dialect)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		live    bool
		dialect string
		err     string
	}{
		{name: "NoDSN", cfg: Config{Dialect: "sqlite3"}, live: true, err: "dsn is required"},
		{name: "Offline", cfg: Config{Dialect: "pg"}, dialect: dialect.Postgres},
		{name: "NoDialect", cfg: Config{}, err: "dialect is required"},
		{name: "Guessed", cfg: Config{DSN: "file:app.db"}, live: true, dialect: dialect.SQLite},
		{name: "Unsupported", cfg: Config{Dialect: "oracle", DSN: "x"}, live: true, err: `unsupported dialect "oracle"`},
		{name: "Renames", cfg: Config{Dialect: "mysql", Diff: DiffConfig{Renames: "guess"}}, err: "diff.renames"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate(tt.live)
			if tt.err != "" {
				require.ErrorContains(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, tt.cfg.Dialect)
		})
	}
}

func TestDialectFromDSN(t *testing.T) {
	for dsn, want := range map[string]string{
		"postgres://u@h/db":             dialect.Postgres,
		"postgresql://u@h/db":           dialect.Postgres,
		"root:pw@tcp(127.0.0.1:3306)/x": dialect.MySQL,
		"file:app.db?_pragma=x":         dialect.SQLite,
		"data/app.sqlite":               dialect.SQLite,
		"host=localhost":                "",
	} {
		assert.Equal(t, want, dialectFromDSN(dsn), dsn)
	}
}
