package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var errNoSnapshot = errors.New("no snapshot given: pass a file or set snapshot in the config")

func newMigrateCmd(a *app) *cobra.Command {
	var (
		dryRun       bool
		allowDrop    bool
		allowNotNull bool
		version      int
	)
	cmd := &cobra.Command{
		Use:   "migrate [snapshot.yaml]",
		Short: "Migrate the live database to a snapshot",
		Long: `Migrate compares the live database to a snapshot and applies the DDL as
the next migration version. Changes dropping tables, columns or indexes are
refused unless --allow-drop is set, and nullable columns becoming NOT NULL
unless --allow-not-null is set. Renamed columns are detected when the config
sets diff.renames = "attributes".

Examples:
  relmap migrate                          # migrate to the configured snapshot
  relmap migrate schema.yaml --dry-run    # print the statements only
  relmap migrate schema.yaml --version 12`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if cmd.Flags().Changed("allow-drop") {
				a.cfg.Diff.AllowDrop = allowDrop
			}
			if cmd.Flags().Changed("allow-not-null") {
				a.cfg.Diff.AllowNotNull = allowNotNull
			}
			path := a.cfg.Snapshot
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errNoSnapshot
			}
			to, err := readSnapshot(path, cmd.InOrStdin())
			if err != nil {
				return err
			}
			pool, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			from, err := a.inspect(ctx, pool)
			if err != nil {
				return err
			}
			p, err := a.newPlan(ctx, from, to)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun || len(p.ddl) == 0 {
				p.print(out)
				return nil
			}
			if p.checks.HasErrors() {
				msgs := make([]string, len(p.checks.Errors))
				for i, e := range p.checks.Errors {
					msgs[i] = e.Error()
				}
				return fmt.Errorf("refusing to migrate: %s", strings.Join(msgs, "; "))
			}

			m := a.migrations(pool)
			latest, err := m.LatestVersion(ctx)
			if err != nil {
				return err
			}
			if version == 0 {
				version = latest + 1
			}
			if err := m.Apply(ctx, version, p.ddl); err != nil {
				return err
			}
			a.log.Info("applied migration", "version", version, "stats", a.stats.QueryStats().Stats().String())
			p.print(out)
			color.New(color.FgGreen, color.Bold).Fprintf(out, "-- migrated to version %d (%d statements)\n", version, len(p.ddl))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the statements without applying them")
	cmd.Flags().BoolVar(&allowDrop, "allow-drop", false, "allow dropping tables, columns and indexes")
	cmd.Flags().BoolVar(&allowNotNull, "allow-not-null", false, "allow nullable columns to become NOT NULL")
	cmd.Flags().IntVar(&version, "version", 0, "version to record (default latest + 1)")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the latest applied migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			v, err := a.migrations(pool).LatestVersion(ctx)
			if err != nil {
				return err
			}
			if v == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d\n", v)
			return nil
		},
	}
}
