package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/syssam/relmap/dialect/sql/schema"
)

func newInspectCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Write the structure of the live database as a YAML snapshot",
		Long: `Inspect reads the tables, columns, indexes and foreign keys of the live
database and writes them as a YAML snapshot. The migration version table is
left out.

Examples:
  relmap inspect                   # write to stdout
  relmap inspect -o schema.yaml    # write to a file`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			db, err := a.inspect(ctx, pool)
			if err != nil {
				return err
			}
			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create snapshot: %w", err)
				}
				defer f.Close()
				w = f
			}
			if err := schema.WriteSnapshot(w, db); err != nil {
				return err
			}
			a.log.Info("snapshot written", "tables", len(db.Tables), "output", outputName(out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "snapshot file to write (default stdout)")
	return cmd
}

func outputName(path string) string {
	if path == "" || path == "-" {
		return "stdout"
	}
	return path
}
