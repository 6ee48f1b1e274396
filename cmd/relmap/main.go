// Command relmap inspects, diffs and migrates database schemas.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/syssam/relmap/dialect"
	sqldialect "github.com/syssam/relmap/dialect/sql"
	"github.com/syssam/relmap/dialect/sql/platform"
	"github.com/syssam/relmap/dialect/sql/schema"
	"github.com/syssam/relmap/dialect/sql/sqlgraph"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// app carries the state shared by all subcommands.
type app struct {
	configPath string
	verbose    bool
	noColor    bool
	flags      Config

	cfg   *Config
	log   *slog.Logger
	stats *sqldialect.StatsPool
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "relmap",
		Short: "Inspect, diff and migrate relational database schemas",
		Long: `relmap reads the structure of a live database into a YAML snapshot,
compares snapshots and applies the difference as versioned DDL.

Examples:

  relmap inspect -o schema.yaml
  relmap diff schema.yaml
  relmap migrate schema.yaml --dry-run
  relmap status`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to a TOML config file")
	pf.StringVar(&a.flags.Dialect, "dialect", "", "database dialect: sqlite3, mysql or postgres")
	pf.StringVar(&a.flags.DSN, "dsn", "", "data source name of the live database")
	pf.StringVar(&a.flags.Namespace, "namespace", "", "schema namespace to inspect")
	pf.StringVar(&a.flags.MigrationTable, "migration-table", "", "name of the migration version table")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log debug messages")
	pf.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newInspectCmd(a),
		newDiffCmd(a),
		newMigrateCmd(a),
		newStatusCmd(a),
	)
	return root
}

// setup loads the configuration and applies flags set on the command line.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	pf := cmd.Flags()
	if pf.Changed("dialect") {
		cfg.Dialect = a.flags.Dialect
	}
	if pf.Changed("dsn") {
		cfg.DSN = a.flags.DSN
	}
	if pf.Changed("namespace") {
		cfg.Namespace = a.flags.Namespace
	}
	if pf.Changed("migration-table") {
		cfg.MigrationTable = a.flags.MigrationTable
	}
	a.cfg = cfg
	ctx := cmd.Context()
	for _, k := range slices.Sorted(maps.Keys(cfg.Session)) {
		ctx = sqldialect.WithVar(ctx, k, cfg.Session[k])
	}
	cmd.SetContext(ctx)

	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	if a.noColor {
		color.NoColor = true
	}
	return nil
}

// platform returns the SQL platform of the configured dialect.
func (a *app) platform() *platform.Platform {
	return platform.ForDialect(a.cfg.Dialect)
}

// open connects to the configured live database.
func (a *app) open(ctx context.Context) (*sqldialect.Pool, error) {
	if err := a.cfg.validate(true); err != nil {
		return nil, err
	}
	opts := []sqldialect.Option{sqldialect.WithLogger(a.log)}
	if a.cfg.MaxConns > 0 {
		opts = append(opts, sqldialect.WithMaxConns(a.cfg.MaxConns))
	}
	pool, err := sqldialect.Open(a.cfg.Dialect, a.cfg.DSN, opts...)
	if err != nil {
		return nil, err
	}
	if err := pool.DB().PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect %s: %w", a.cfg.Dialect, err)
	}
	a.log.Debug("connected", "dialect", a.cfg.Dialect, "namespace", a.cfg.Namespace)
	return pool, nil
}

// migrations returns the migration handler of the configured version table.
// Its statements are counted and slow ones logged. Verbose runs log every
// statement.
func (a *app) migrations(pool *sqldialect.Pool) *sqlgraph.MigrationHandler {
	if a.stats == nil {
		var p dialect.Pool = pool
		if a.verbose {
			p = sqldialect.NewDebugPool(pool, a.log)
		}
		opts := []sqldialect.StatsOption{sqldialect.WithSlowQueryLog(a.log)}
		if a.cfg.SlowQuery > 0 {
			opts = append(opts, sqldialect.WithSlowThreshold(a.cfg.SlowQuery))
		}
		a.stats = sqldialect.NewStatsPool(p, opts...)
	}
	return sqlgraph.NewMigrationHandler(a.stats,
		sqlgraph.WithMigrationTable(a.cfg.MigrationTable),
		sqlgraph.WithMigrationPlatform(a.platform()),
		sqlgraph.WithMigrationLogger(a.log),
	)
}

// inspect reads the live database, leaving out the migration version table.
func (a *app) inspect(ctx context.Context, pool *sqldialect.Pool) (*schema.Database, error) {
	db, err := schema.Inspect(ctx, pool.DB(), a.cfg.Dialect, a.cfg.Namespace)
	if err != nil {
		return nil, err
	}
	version, err := a.platform().TableName(a.migrations(pool).VersionSchema())
	if err != nil {
		return nil, err
	}
	tables := db.Tables[:0]
	for _, t := range db.Tables {
		if t.Name != version {
			tables = append(tables, t)
		}
	}
	db.Tables = tables
	a.log.Debug("inspected database", "name", db.Name, "tables", len(db.Tables))
	return db, nil
}

// readSnapshot reads a snapshot file; "-" reads from r.
func readSnapshot(path string, r io.Reader) (*schema.Database, error) {
	if path == "-" {
		return schema.ReadSnapshot(r)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return schema.ReadSnapshot(f)
}
