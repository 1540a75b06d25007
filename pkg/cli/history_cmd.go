package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"duck-ingest/internal/api"
	"duck-ingest/internal/domain"
)

func newHistoryCmd(state *rootState) *cobra.Command {
	var (
		mappingRef string
		status     string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent executions, newest first",
		Example: `  ingest history
  ingest history --mapping CRM_CUSTOMERS --status failed --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := state.openApp()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			ctx := cmd.Context()
			filter := domain.ExecutionFilter{Limit: limit}
			if mappingRef != "" {
				id, code := domain.ParseMappingRef(mappingRef)
				if code != "" {
					m, err := a.Catalog.GetTableMappingByCode(ctx, code)
					if err != nil {
						return err
					}
					id = m.ID
				}
				filter.MappingID = &id
			}
			if status != "" {
				s := strings.ToUpper(status)
				filter.Status = &s
			}

			execs, err := a.Catalog.ListExecutions(ctx, filter)
			if err != nil {
				return err
			}
			rows := make([]api.Execution, 0, len(execs))
			for _, e := range execs {
				rows = append(rows, api.ExecutionToAPI(e))
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				return printJSON(out, rows)
			}
			color := colorEnabled(cmd, out)
			tw := newTable(out, "EXECUTION", "MAPPING", "MODE", "STATUS", "LOADED", "REJECTED", "STARTED", "BY")
			for _, e := range rows {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					e.ID, orDash(e.MappingCode), e.ExecutionMode, statusText(e.Status, color),
					e.RowsLoaded, e.RowsRejected, e.StartedAt.Local().Format("2006-01-02 15:04:05"), e.TriggeredBy)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&mappingRef, "mapping", "", "Filter by mapping id or code")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (success, failed, running, cancelled)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum executions to list")
	return cmd
}

func newViolationsCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:     "violations EXECUTION_ID",
		Short:   "List the quality violations logged by an execution",
		Example: `  ingest violations 0192f5a4-7c1e-7d2a-9b7e-3f1c2d4e5a6b`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := state.openApp()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			ctx := cmd.Context()
			if _, err := a.Catalog.GetExecution(ctx, args[0]); err != nil {
				return err
			}
			violations, err := a.Catalog.ListViolations(ctx, args[0])
			if err != nil {
				return err
			}
			rows := make([]api.Violation, 0, len(violations))
			for _, v := range violations {
				rows = append(rows, api.ViolationToAPI(v))
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				return printJSON(out, rows)
			}
			tw := newTable(out, "RULE", "ROW", "COLUMN", "VALUE", "SEVERITY", "ACTION", "MESSAGE")
			for _, v := range rows {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					v.RuleCode, v.RowID, ptrOrDash(v.Column), ptrOrDash(v.Value), v.Severity, v.Action, v.Message)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "\n%d violation(s).\n", len(rows))
			return nil
		},
	}
}

func newMigrateCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the metadata catalog schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Opening the app applies pending migrations.
			a, err := state.openApp()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			v, err := a.SchemaVersion()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				return printJSON(out, map[string]any{"path": state.cfg.MetaDBPath, "schema_version": v})
			}
			_, _ = fmt.Fprintf(out, "%s: schema version %d\n", state.cfg.MetaDBPath, v)
			return nil
		},
	}
}
