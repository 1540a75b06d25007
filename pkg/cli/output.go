package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"duck-ingest/internal/domain"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
)

// getOutputFormat returns the effective output format from the root command's persistent flags.
func getOutputFormat(cmd *cobra.Command) string {
	v, _ := cmd.Root().PersistentFlags().GetString("output")
	return v
}

func validateOutputFormat(output string) error {
	if output != "" && output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTable returns a tabwriter with the header row already written.
func newTable(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(headers, "\t"))
	return tw
}

// colorEnabled reports whether w is a terminal and color was not disabled
// with --no-color or NO_COLOR.
func colorEnabled(cmd *cobra.Command, w io.Writer) bool {
	if noColor, _ := cmd.Root().PersistentFlags().GetBool("no-color"); noColor {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}

// statusText colors an execution status for terminal output.
func statusText(status string, color bool) string {
	if !color {
		return status
	}
	switch status {
	case domain.ExecutionStatusSuccess:
		return colorGreen + status + colorReset
	case domain.ExecutionStatusFailed:
		return colorRed + status + colorReset
	case domain.ExecutionStatusCancelled, domain.ExecutionStatusRunning:
		return colorYellow + status + colorReset
	}
	return status
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func ptrOrDash(s *string) string {
	if s == nil {
		return "-"
	}
	return orDash(*s)
}
