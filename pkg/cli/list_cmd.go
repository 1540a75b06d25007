package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"duck-ingest/internal/api"
)

func newListCmd(state *rootState) *cobra.Command {
	var (
		sourceCode string
		activeOnly bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List source systems, or the mappings of one source system",
		Example: `  ingest list
  ingest list --source CRM --active`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := state.openApp()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			asJSON := getOutputFormat(cmd) == "json"

			if sourceCode == "" {
				sources, err := a.Catalog.ListSourceSystems(ctx)
				if err != nil {
					return err
				}
				rows := make([]api.SourceSystem, 0, len(sources))
				for _, s := range sources {
					rows = append(rows, api.SourceToAPI(s))
				}
				if asJSON {
					return printJSON(out, rows)
				}
				tw := newTable(out, "CODE", "NAME", "DRIVER", "SCHEDULE", "ACTIVE")
				for _, s := range rows {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", s.Code, s.Name, s.Driver, ptrOrDash(s.ScheduleCron), s.IsActive)
				}
				return tw.Flush()
			}

			src, err := a.Catalog.GetSourceSystem(ctx, sourceCode)
			if err != nil {
				return err
			}
			mappings, err := a.Catalog.ListTableMappings(ctx, src.ID, activeOnly)
			if err != nil {
				return err
			}
			rows := make([]api.TableMapping, 0, len(mappings))
			for _, m := range mappings {
				rows = append(rows, api.MappingToAPI(m))
			}
			if asJSON {
				return printJSON(out, rows)
			}
			tw := newTable(out, "ID", "CODE", "SOURCE", "TARGET", "LOAD", "MERGE", "PRIORITY", "ACTIVE")
			for _, m := range rows {
				_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%t\n",
					m.ID, m.Code, m.Source, m.Target, m.LoadStrategy, m.MergeStrategy, m.Priority, m.IsActive)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&sourceCode, "source", "", "Source system code; lists its mappings")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only list active mappings")
	return cmd
}

func newOrderCmd(state *rootState) *cobra.Command {
	var sourceCode string

	cmd := &cobra.Command{
		Use:     "order",
		Short:   "Show the dependency order a source-system run would use",
		Example: `  ingest order --source CRM`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sourceCode == "" {
				return fmt.Errorf("--source is required")
			}
			a, err := state.openApp()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			plan, err := a.Orchestrator.PlanSourceSystem(cmd.Context(), sourceCode)
			if err != nil {
				return err
			}
			order := api.PlanToAPI(plan)

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				return printJSON(out, order)
			}
			tw := newTable(out, "#", "LEVEL", "ID", "MAPPING")
			for _, s := range order.Steps {
				_, _ = fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", s.Position, s.Level, s.MappingID, s.MappingCode)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			for _, w := range order.Warnings {
				_, _ = fmt.Fprintf(out, "warning: %s\n", w)
			}
			if len(order.Levels) > 0 {
				parts := make([]string, len(order.Levels))
				for i, level := range order.Levels {
					parts[i] = "[" + strings.Join(level, " ") + "]"
				}
				_, _ = fmt.Fprintf(out, "\nLevels: %s\n", strings.Join(parts, " -> "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceCode, "source", "", "Source system code")
	return cmd
}
