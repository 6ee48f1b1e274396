package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/syssam/relmap/dialect"
	"github.com/syssam/relmap/dialect/sql/schema"
	"github.com/syssam/relmap/dialect/sql/sqlgraph"
)

// Config holds the TOML-driven CLI configuration.
type Config struct {
	Dialect        string     `toml:"dialect"`
	DSN            string     `toml:"dsn"`
	Namespace      string     `toml:"namespace"`
	Snapshot       string     `toml:"snapshot"`
	MigrationTable string     `toml:"migration_table"`
	MaxConns       int64      `toml:"max_conns"`
	// SlowQuery is the duration above which a statement is logged as slow.
	SlowQuery time.Duration `toml:"slow_query"`
	// Session holds variables set on every acquired connection. SQLite
	// takes them as pragmas.
	Session map[string]string `toml:"session"`
	Diff    DiffConfig        `toml:"diff"`
}

// DiffConfig controls how two schema versions are compared.
type DiffConfig struct {
	Renames      string `toml:"renames"` // none|attributes
	FoldNames    bool   `toml:"fold_names"`
	Parallelism  int    `toml:"parallelism"`
	AllowDrop    bool   `toml:"allow_drop"`
	AllowNotNull bool   `toml:"allow_not_null"`
}

// Environment variables overlaying the configuration file.
const (
	envDialect = "RELMAP_DIALECT"
	envDSN     = "RELMAP_DSN"
	envURL     = "DATABASE_URL"
)

func defaultConfig() *Config {
	return &Config{
		Snapshot:       "schema.yaml",
		MigrationTable: sqlgraph.DefaultMigrationTable,
		Diff:           DiffConfig{Renames: "none"},
	}
}

// loadConfig reads the TOML file at path, if any, and overlays the
// environment. A missing .env file is not an error.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if unknown := md.Undecoded(); len(unknown) > 0 {
			keys := make([]string, len(unknown))
			for i, k := range unknown {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if v := os.Getenv(envDialect); v != "" {
		cfg.Dialect = v
	}
	if v := os.Getenv(envDSN); v != "" {
		cfg.DSN = v
	} else if v := os.Getenv(envURL); v != "" && cfg.DSN == "" {
		cfg.DSN = v
	}
	return cfg, nil
}

// validate checks the settings. Offline commands only need a dialect.
func (c *Config) validate(live bool) error {
	if live && c.DSN == "" {
		return fmt.Errorf("dsn is required: set it in the config file, %s, %s or --dsn", envDSN, envURL)
	}
	if c.Dialect == "" {
		c.Dialect = dialectFromDSN(c.DSN)
	}
	switch c.Dialect = dialect.Normalize(c.Dialect); c.Dialect {
	case dialect.SQLite, dialect.MySQL, dialect.Postgres:
	case "":
		return fmt.Errorf("dialect is required: one of sqlite3, mysql, postgres")
	default:
		return fmt.Errorf("unsupported dialect %q", c.Dialect)
	}
	switch c.Diff.Renames {
	case "", "none", "attributes":
	default:
		return fmt.Errorf("diff.renames must be one of: none, attributes")
	}
	return nil
}

// diffOptions maps the diff settings to schema diff options.
func (c *Config) diffOptions() []schema.DiffOption {
	var opts []schema.DiffOption
	if c.Diff.Renames == "attributes" {
		opts = append(opts, schema.WithRenameStrategy(schema.MatchAttributes))
	}
	if c.Diff.FoldNames {
		opts = append(opts, schema.WithFoldedNames())
	}
	if c.Diff.Parallelism > 0 {
		opts = append(opts, schema.WithParallelism(c.Diff.Parallelism))
	}
	return opts
}

// validateOptions maps the diff settings to the accepted destructive changes.
func (c *Config) validateOptions() []schema.ValidateOption {
	var opts []schema.ValidateOption
	if c.Diff.AllowDrop {
		opts = append(opts, schema.AllowDropTable(), schema.AllowDropColumn(), schema.AllowDropIndex())
	}
	if c.Diff.AllowNotNull {
		opts = append(opts, schema.AllowNullToNotNull())
	}
	return opts
}

// dialectFromDSN guesses the dialect from the shape of a DSN.
func dialectFromDSN(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return dialect.Postgres
	case strings.Contains(dsn, "@tcp("), strings.Contains(dsn, "@unix("):
		return dialect.MySQL
	case strings.HasPrefix(dsn, "file:"), strings.HasSuffix(dsn, ".db"), strings.HasSuffix(dsn, ".sqlite"):
		return dialect.SQLite
	default:
		return ""
	}
}
