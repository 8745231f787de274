package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/jward/macroscan"
)

// formatFileResultsText writes one row per replace and removal, and one row
// per failed file.
func formatFileResultsText(w io.Writer, files []*macroscan.FileResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tKIND\tRANGE\tDETAIL")
	for _, f := range files {
		if f.Error != "" {
			fmt.Fprintf(tw, "%s\terror\t-\t%s\n", f.Path, firstLine(f.Error))
			continue
		}
		if f.Output == nil {
			continue
		}
		for _, r := range f.Output.Replaces {
			fmt.Fprintf(tw, "%s\treplace\t%d-%d\t%s from %q\n", f.Path, r.Lo, r.Hi, r.ImportName, r.ImportSrc)
		}
		for _, r := range f.Output.Removals {
			fmt.Fprintf(tw, "%s\tremove\t%d-%d\t\n", f.Path, r.Lo, r.Hi)
		}
	}
	tw.Flush()
}

// formatOutputText writes the locations of a single module.
func formatOutputText(w io.Writer, out *macroscan.Output) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tRANGE\tDETAIL")
	for _, r := range out.Replaces {
		fmt.Fprintf(tw, "replace\t%d-%d\t%s from %q\n", r.Lo, r.Hi, r.ImportName, r.ImportSrc)
	}
	for _, r := range out.Removals {
		fmt.Fprintf(tw, "remove\t%d-%d\t\n", r.Lo, r.Hi)
	}
	tw.Flush()
}

// formatSummaryText writes the counters of a run.
func formatSummaryText(w io.Writer, s *macroscan.RunSummary) {
	fmt.Fprintf(w, "\nScanned %d, skipped %d, failed %d (run %s)\n", s.Scanned, s.Skipped, s.Failed, s.RunID)
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIScan:
		formatFileResultsText(w, v.Files)
		if v.Summary != nil {
			formatSummaryText(w, v.Summary)
		}
	case []*macroscan.FileResult:
		formatFileResultsText(w, v)
	case *macroscan.FileResult:
		formatFileResultsText(w, []*macroscan.FileResult{v})
	case *macroscan.Output:
		formatOutputText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	if result.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", result.Error)
	}
	return nil
}

// outputResult writes result to w in the selected format.
func (a *app) outputResult(result CLIResult) error {
	if a.flagFormat == "text" {
		return outputResultText(a.stdout, result)
	}
	return writeJSON(a.stdout, result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func (a *app) outputError(command string, err error) error {
	a.errorHandled = true
	if a.flagFormat == "text" {
		fmt.Fprintf(a.stderr, "Error: %s\n", err)
		return err
	}
	_ = writeJSON(a.stdout, CLIResult{Command: command, Error: err.Error()})
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
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
