package cli

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"dyntables/internal/etl"
	"dyntables/internal/service"
)

var errPartialImport = errors.New("some rows were not imported")

func newImportCmd(env *environment) *cobra.Command {
	var (
		delimiter     string
		strategy      string
		titleColumn   string
		skipUnknown   bool
		createMissing bool
	)

	cmd := &cobra.Command{
		Use:   "import <database-id> <file.csv>",
		Short: "Import a CSV file into a database",
		Long: "import reads a CSV file whose headers match the database's column names\n" +
			"and inserts its rows. Rows that fail are listed and the rest are kept.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts etl.CSVOptions
			if delimiter != "" {
				r, size := utf8.DecodeRuneInString(delimiter)
				if size != len(delimiter) {
					return fmt.Errorf("--delimiter must be a single character")
				}
				opts.Delimiter = r
			}
			table, err := etl.ReadCSVFile(args[1], opts)
			if err != nil {
				return err
			}

			a, _, closeApp, err := env.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			res, err := a.Importer.ImportCSV(cmd.Context(), args[0], table, service.CSVImportOptions{
				ImportOptions: service.ImportOptions{
					Strategy:    service.ImportStrategy(strategy),
					TitleColumn: titleColumn,
				},
				SkipUnknownColumns:   skipUnknown,
				CreateMissingColumns: createMissing,
			})
			if err != nil {
				return fmt.Errorf("%s", service.PublicMessage(err))
			}
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("%w: %d of %d", errPartialImport, len(res.Errors), len(table.Rows))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&delimiter, "delimiter", "", "field delimiter (default comma)")
	f.StringVar(&strategy, "strategy", string(service.StrategyBatch), "batch or row_document")
	f.StringVar(&titleColumn, "title-column", "", "column whose value titles the documents")
	f.BoolVar(&skipUnknown, "skip-unknown", false, "ignore headers that match no column")
	f.BoolVar(&createMissing, "create-missing", false, "add a column for every unknown header")
	return cmd
}
