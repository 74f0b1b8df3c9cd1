package main

import (
	"fmt"

	"github.com/spf13/cobra"

	sqlschema "github.com/syssam/relgraph/dialect/sql/schema"
)

func (a *app) migrateCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the tables storing the schema",
		Long: `Migrate compares the database with the table layout of the schema
and applies the difference. With --dry-run the statements are printed
without being executed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.loadSchema()
			if err != nil {
				return err
			}
			drv, err := a.openDriver()
			if err != nil {
				return err
			}
			defer drv.Close()
			tables, err := sqlschema.Tables(s, nil, drv.Dialect())
			if err != nil {
				return err
			}
			m := sqlschema.NewMigrate(drv, sqlschema.WithLogger(a.log))
			var plan *sqlschema.Plan
			if dryRun {
				plan, err = m.Plan(cmd.Context(), tables)
			} else {
				plan, err = m.Create(cmd.Context(), tables)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if plan.Validation != nil && (plan.Validation.HasErrors() || plan.Validation.HasWarnings()) {
				fmt.Fprintln(cmd.ErrOrStderr(), plan.Validation.String())
			}
			if len(plan.Statements) == 0 {
				fmt.Fprintln(out, "-- schema is up to date")
				return nil
			}
			for _, stmt := range plan.Statements {
				fmt.Fprintf(out, "%s;\n", stmt)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the statements without executing them")
	return cmd
}
