package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// formatCountsText formats the per-outcome counts as aligned columns.
func formatCountsText(w io.Writer, status CLIStatus) {
	fmt.Fprintf(w, "Manifest: %s\n", status.Manifest)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTCOME\tFILES")
	for _, c := range status.Counts {
		fmt.Fprintf(tw, "%s\t%d\n", c.Outcome, c.Count)
	}
	fmt.Fprintf(tw, "total\t%d\n", status.Total)
	tw.Flush()
}

// formatFilesText formats manifest records as aligned columns. Errors are
// cut to their first line.
func formatFilesText(w io.Writer, files []CLIFile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tKIND\tOUTCOME\tERROR")
	for _, f := range files {
		msg, _, _ := strings.Cut(f.Error, "\n")
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.RelPath, f.Kind, f.Outcome, msg)
	}
	tw.Flush()
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
