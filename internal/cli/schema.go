package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSchemaCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and repair database schemas",
	}
	cmd.AddCommand(newSchemaListCmd(env))
	cmd.AddCommand(newSchemaVerifyCmd(env))
	cmd.AddCommand(newSchemaRepairCmd(env))
	return cmd
}

func newSchemaListCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the databases of the configured owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, closeApp, err := env.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			dbs, err := a.Databases.ListDatabases(cmd.Context(), a.OwnerID())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tCOLUMNS\tTABLE")
			for _, db := range dbs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", db.ID, db.Name, db.Type, len(db.Columns), db.TableName)
			}
			return w.Flush()
		},
	}
}

func newSchemaVerifyCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <database-id>",
		Short: "Compare a database's columns with its physical table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, closeApp, err := env.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			report, err := a.Databases.VerifySchema(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := printJSON(cmd, report); err != nil {
				return err
			}
			if !report.Consistent() {
				return fmt.Errorf("schema of %s is inconsistent, run schema repair", args[0])
			}
			return nil
		},
	}
}

func newSchemaRepairCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "repair <database-id>",
		Short: "Create the table and any columns it is missing",
		Long: "repair provisions the physical table if it does not exist and adds the\n" +
			"columns the metadata lists but the table lacks. Orphaned physical\n" +
			"columns are reported, never dropped.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, log, closeApp, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer closeApp()

			db, err := a.Provisioner.EnsureTableExists(ctx, args[0])
			if err != nil {
				return err
			}
			added, err := a.Provisioner.SyncPhysicalColumns(ctx, db)
			if err != nil {
				return err
			}
			log.Infow("schema repair", "database", db.ID, "added", added)

			report, err := a.Provisioner.VerifySchema(ctx, db.ID)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
}
