package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"duck-ingest/internal/declarative"
)

type importResult struct {
	Sources        []string `json:"sources"`
	Valid          bool     `json:"valid"`
	Problems       []string `json:"problems,omitempty"`
	SourceSystems  int      `json:"source_systems,omitempty"`
	Mappings       int      `json:"mappings,omitempty"`
	ColumnMappings int      `json:"column_mappings,omitempty"`
	LookupEntries  int      `json:"lookup_entries,omitempty"`
	QualityRules   int      `json:"quality_rules,omitempty"`
	Dependencies   int      `json:"dependencies,omitempty"`
}

func newImportCmd(state *rootState) *cobra.Command {
	var validateOnly bool

	cmd := &cobra.Command{
		Use:   "import PATH",
		Short: "Import declarative source-system configuration",
		Long: `Load YAML source-system documents from a file or directory, validate
them, and apply them to the metadata catalog in one transaction.

Nothing is written when any document has a problem.`,
		Example: `  ingest import ./config
  ingest import ./config/crm.yaml --validate-only`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			out := cmd.OutOrStdout()
			asJSON := getOutputFormat(cmd) == "json"
			noColor := !colorEnabled(cmd, out)

			docs, err := declarative.Load(path)
			if err != nil {
				return err
			}
			result := importResult{Sources: make([]string, 0, len(docs)), Valid: true}
			for _, d := range docs {
				result.Sources = append(result.Sources, d.Metadata.Name)
			}

			if errs := declarative.Validate(docs); len(errs) > 0 {
				result.Valid = false
				for _, e := range errs {
					result.Problems = append(result.Problems, e.Error())
				}
				if asJSON {
					if err := printJSON(out, result); err != nil {
						return err
					}
				} else {
					declarative.FormatProblems(out, errs, noColor)
				}
				return fmt.Errorf("%s: %d validation problem(s)", path, len(errs))
			}

			if validateOnly {
				if asJSON {
					return printJSON(out, result)
				}
				_, _ = fmt.Fprintf(out, "%d source system(s) valid.\n", len(docs))
				return nil
			}

			a, err := state.openApp()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			docs, summary, err := a.Import(cmd.Context(), path)
			if err != nil {
				return err
			}
			if asJSON {
				result.SourceSystems = summary.SourceSystems
				result.Mappings = summary.Mappings
				result.ColumnMappings = summary.ColumnMappings
				result.LookupEntries = summary.LookupEntries
				result.QualityRules = summary.QualityRules
				result.Dependencies = summary.Dependencies
				return printJSON(out, result)
			}
			declarative.FormatSummary(out, docs, summary, noColor)
			return nil
		},
	}

	cmd.Flags().BoolVar(&validateOnly, "validate-only", false, "Validate without writing to the catalog")
	return cmd
}
