package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lakegate/internal/domain"
)

// getOutputFormat returns the effective output format from the root
// command's persistent flags.
func getOutputFormat(cmd *cobra.Command) string {
	v, _ := cmd.Root().PersistentFlags().GetString("output")
	return v
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRunSummary renders one run as a key/value block with per-check
// audit verdicts.
func printRunSummary(w io.Writer, run *domain.PipelineRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "RUN\t%s\n", run.ID)
	fmt.Fprintf(tw, "BRANCH\t%s\n", run.Branch)
	fmt.Fprintf(tw, "STATE\t%s\n", run.State)
	fmt.Fprintf(tw, "SUCCESS\t%t\n", run.Success)
	if run.Error != "" {
		fmt.Fprintf(tw, "ERROR\t%s\n", run.Error)
	}
	if run.Ingestion != nil {
		fmt.Fprintf(tw, "INGESTED\t%d rows into %s", run.Ingestion.RowsIngested, run.Ingestion.Table)
		if run.Ingestion.FilesDiscovered > 0 {
			fmt.Fprintf(tw, " (%d files)", run.Ingestion.FilesDiscovered)
		}
		fmt.Fprintln(tw)
	}
	if run.Transformation != nil {
		fmt.Fprintf(tw, "TRANSFORMED\t%d rows into %s\n",
			run.Transformation.RowsTransformed, run.Transformation.TargetTable)
	}
	if run.Audit != nil {
		fmt.Fprintf(tw, "AUDIT\t%d/%d checks passed\n", run.Audit.PassedCount, run.Audit.TotalChecks)
		for _, check := range run.Audit.Checks {
			verdict := "PASS"
			if !check.Passed {
				verdict = "FAIL"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", verdict, check.Check, check.Message)
		}
	}
	if run.Merge != nil {
		fmt.Fprintf(tw, "MERGE\t%s\n", run.Merge.Message)
	}
	for _, warning := range run.Warnings {
		fmt.Fprintf(tw, "WARNING\t%s\n", warning)
	}
	fmt.Fprintf(tw, "DURATION\t%s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))

	_ = tw.Flush()
}

// printRunList renders run history rows, newest first.
func printRunList(w io.Writer, runs []*domain.PipelineRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "ID\tSTATE\tPHASE\tSUCCESS\tCHECKS\tBRANCH\tSTARTED\tDURATION")
	for _, run := range runs {
		checks := "-"
		if run.Audit != nil {
			checks = fmt.Sprintf("%d/%d", run.Audit.PassedCount, run.Audit.TotalChecks)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\t%s\t%s\n",
			run.ID, run.State, run.Phase, run.Success, checks, run.Branch,
			run.StartedAt.UTC().Format(time.RFC3339),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
		)
	}

	_ = tw.Flush()
}
