package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lakegate/internal/audit"
)

func newChecksCmd() *cobra.Command {
	var checksFile string

	cmd := &cobra.Command{
		Use:   "checks",
		Short: "List the audit checks a run would execute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if checksFile == "" {
				checksFile = os.Getenv("CHECKS_FILE")
			}
			registry, err := loadRegistry(checksFile)
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, registry.Checks())
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVERDICT\tDESCRIPTION")
			for _, check := range registry.Checks() {
				fmt.Fprintf(tw, "%s\t%s %s %v\t%s\n",
					check.Name, check.ScalarColumn, check.Comparison, check.Threshold, check.Description)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&checksFile, "checks-file", "", "YAML check suite (default: built-in checks)")

	return cmd
}

// loadRegistry returns the built-in checks, or the suite parsed from
// path when one is given.
func loadRegistry(path string) (*audit.Registry, error) {
	if path == "" {
		return audit.DefaultRegistry(), nil
	}
	return audit.FromFile(path)
}
