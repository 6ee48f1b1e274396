package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/syssam/relmap/dialect/sql/schema"
)

// plan is the difference between two versions of a database.
type plan struct {
	ddl    []string
	checks *schema.ValidationResult
}

// newPlan computes the DDL migrating from to to and validates the change.
// Both read the same diff, so renames and folded names agree.
func (a *app) newPlan(ctx context.Context, from, to *schema.Database) (*plan, error) {
	diff, err := schema.DiffDatabase(ctx, from, to, a.cfg.diffOptions()...)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}
	ddl, err := a.platform().DatabaseDiffDDL(diff)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}
	return &plan{
		ddl:    ddl,
		checks: schema.ValidateDiff(diff, a.cfg.validateOptions()...),
	}, nil
}

// print writes the statements of the plan followed by its validation issues.
func (p *plan) print(w io.Writer) {
	if len(p.ddl) == 0 {
		color.New(color.FgGreen).Fprintln(w, "-- no differences")
		return
	}
	var (
		create = color.New(color.FgGreen, color.Bold)
		drop   = color.New(color.FgRed, color.Bold)
		alter  = color.New(color.FgYellow, color.Bold)
		other  = color.New(color.FgCyan)
	)
	for _, stmt := range p.ddl {
		c := other
		switch keyword(stmt) {
		case "CREATE":
			c = create
		case "DROP":
			c = drop
		case "ALTER":
			c = alter
		}
		c.Fprintln(w, stmt+";")
	}
	for _, e := range p.checks.Errors {
		drop.Fprintln(w, "-- error:", issue(e))
	}
	for _, e := range p.checks.Warnings {
		alter.Fprintln(w, "-- warning:", issue(e))
	}
}

func issue(e *schema.ValidationError) string {
	if e.Breaking {
		return e.Error() + " [breaking]"
	}
	return e.Error()
}

func keyword(stmt string) string {
	word, _, _ := strings.Cut(strings.TrimSpace(stmt), " ")
	return strings.ToUpper(word)
}

func newDiffCmd(a *app) *cobra.Command {
	var exitCode bool
	cmd := &cobra.Command{
		Use:   "diff [from.yaml] [to.yaml]",
		Short: "Print the DDL migrating one schema version to another",
		Long: `Diff compares two versions of a database and prints the DDL that turns the
first into the second. With no argument the live database is compared to the
configured snapshot; with one argument, to the given snapshot; with two, the
snapshots are compared without connecting.

Examples:
  relmap diff                              # live database to the configured snapshot
  relmap diff schema.yaml                  # live database to schema.yaml
  relmap diff old.yaml new.yaml --dialect postgres`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var from, to *schema.Database
			switch len(args) {
			case 2:
				if err := a.cfg.validate(false); err != nil {
					return err
				}
				var err error
				if from, err = readSnapshot(args[0], cmd.InOrStdin()); err != nil {
					return err
				}
				if to, err = readSnapshot(args[1], cmd.InOrStdin()); err != nil {
					return err
				}
			default:
				path := a.cfg.Snapshot
				if len(args) == 1 {
					path = args[0]
				}
				if path == "" {
					return errNoSnapshot
				}
				pool, err := a.open(ctx)
				if err != nil {
					return err
				}
				defer pool.Close()
				if from, err = a.inspect(ctx, pool); err != nil {
					return err
				}
				if to, err = readSnapshot(path, cmd.InOrStdin()); err != nil {
					return err
				}
			}
			p, err := a.newPlan(ctx, from, to)
			if err != nil {
				return err
			}
			p.print(cmd.OutOrStdout())
			if exitCode && len(p.ddl) > 0 {
				return fmt.Errorf("schema differs: %d statement(s)", len(p.ddl))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "fail when the schemas differ")
	return cmd
}
