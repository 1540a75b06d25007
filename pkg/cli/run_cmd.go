package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"duck-ingest/internal/api"
	"duck-ingest/internal/service/ingestion"
)

func newRunCmd(state *rootState) *cobra.Command {
	var sourceCode, mappingRef string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one mapping or every active mapping of a source system",
		Long: `Run a single table mapping (by id or code) or every active mapping of a
source system in dependency order.

A source-system run keeps going after a mapping fails and exits with code 2
when any mapping did not succeed.`,
		Example: `  ingest run --source CRM
  ingest run --mapping CRM_CUSTOMERS --dry-run
  ingest run --mapping 42 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (sourceCode == "") == (mappingRef == "") {
				return fmt.Errorf("exactly one of --source or --mapping is required")
			}

			a, err := state.openApp()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			out := cmd.OutOrStdout()
			if mappingRef != "" {
				res, runErr := a.Orchestrator.ExecuteMappingByRef(cmd.Context(), mappingRef)
				if res == nil {
					return runErr
				}
				if getOutputFormat(cmd) == "json" {
					if err := printJSON(out, api.MappingRunToAPI(res, runErr)); err != nil {
						return err
					}
				} else {
					printMappingResult(out, res, colorEnabled(cmd, out))
				}
				if runErr != nil {
					return fmt.Errorf("mapping %s: %w", res.MappingCode, runErr)
				}
				return nil
			}

			stats, runErr := a.Orchestrator.ExecuteSourceSystem(cmd.Context(), sourceCode)
			if stats == nil {
				return runErr
			}
			if getOutputFormat(cmd) == "json" {
				if err := printJSON(out, api.SourceRunToAPI(stats, runErr)); err != nil {
					return err
				}
			} else {
				printRunStats(out, stats, colorEnabled(cmd, out))
			}
			if runErr != nil {
				return runErr
			}
			if stats.HasFailures() {
				return &exitError{code: 2, err: fmt.Errorf("%d of %d mappings failed", stats.Failed, stats.Total)}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceCode, "source", "", "Source system code")
	cmd.Flags().StringVar(&mappingRef, "mapping", "", "Mapping id or code")
	return cmd
}

func printMappingResult(w io.Writer, res *ingestion.MappingResult, color bool) {
	_, _ = fmt.Fprintf(w, "Mapping:    %s\n", res.MappingCode)
	_, _ = fmt.Fprintf(w, "Execution:  %s\n", orDash(res.ExecutionID))
	_, _ = fmt.Fprintf(w, "Status:     %s\n", statusText(res.Status, color))
	_, _ = fmt.Fprintf(w, "Rows:       %d extracted, %d validated, %d rejected, %d loaded\n",
		res.Counts.Extracted, res.Counts.Validated, res.Counts.Rejected, res.Counts.Loaded)
	_, _ = fmt.Fprintf(w, "Violations: %d (%d logged)\n", res.ViolationsTotal, res.ViolationsLogged)
	_, _ = fmt.Fprintf(w, "Duration:   %s\n", res.Duration.Round(time.Millisecond))
}

func printRunStats(w io.Writer, stats *ingestion.RunStats, color bool) {
	tw := newTable(w, "MAPPING", "STATUS", "EXTRACTED", "LOADED", "EXECUTION", "ERROR")
	for _, o := range stats.Outcomes {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			o.MappingCode, statusText(o.Status, color), o.Counts.Extracted, o.Counts.Loaded,
			orDash(o.ExecutionID), orDash(o.Error))
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(w, "\n%s: %d mapping(s), %d succeeded, %d failed, %d row(s) loaded\n",
		stats.SourceCode, stats.Total, stats.Successful, stats.Failed, stats.RowsLoaded)
}
