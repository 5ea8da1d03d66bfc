package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lakegate/internal/db"
	"lakegate/internal/db/repository"
)

func newRunsCmd() *cobra.Command {
	var (
		limit  int
		metaDB string
	)

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show recorded pipeline runs",
		Long: `Without arguments, list the most recent runs from the SQLite run
history. With a run ID, show that run's full record including per-check
audit results.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := metaDB
			if !cmd.Flags().Changed("meta-db") {
				if v := os.Getenv("META_DB_PATH"); v != "" {
					path = v
				}
			}

			writeDB, readDB, err := db.OpenSQLitePair(path, 0)
			if err != nil {
				return fmt.Errorf("open run store: %w", err)
			}
			defer writeDB.Close() //nolint:errcheck
			defer readDB.Close()  //nolint:errcheck
			if err := db.RunMigrations(writeDB); err != nil {
				return fmt.Errorf("migrate run store: %w", err)
			}
			repo := repository.NewRunRepo(readDB)

			if len(args) == 1 {
				run, err := repo.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if getOutputFormat(cmd) == "json" {
					return printJSON(os.Stdout, run)
				}
				printRunSummary(os.Stdout, run)
				return nil
			}

			runs, err := repo.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(os.Stdout, "No runs recorded.")
				return nil
			}
			printRunList(os.Stdout, runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	cmd.Flags().StringVar(&metaDB, "meta-db", "lakegate_runs.sqlite", "SQLite run-history path")

	return cmd
}
