package declarative

import (
	"fmt"
	"io"

	"duck-ingest/internal/domain"
)

// ANSI color codes.
const (
	colorReset = "\033[0m"
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorDim   = "\033[2m"
)

func colorizer(noColor bool) func(string) string {
	return func(code string) string {
		if noColor {
			return ""
		}
		return code
	}
}

// FormatProblems writes validation problems to w, one per line.
func FormatProblems(w io.Writer, errs []ValidationError, noColor bool) {
	c := colorizer(noColor)
	for _, e := range errs {
		fmt.Fprintf(w, "%s✗%s %s\n", c(colorRed), c(colorReset), e.Error())
	}
	fmt.Fprintf(w, "\n%d problem(s) found.\n", len(errs))
}

// FormatSummary writes what an import wrote to the catalog.
func FormatSummary(w io.Writer, docs []SourceSystemDoc, s *domain.ApplySummary, noColor bool) {
	c := colorizer(noColor)
	for _, d := range docs {
		fmt.Fprintf(w, "%s✓%s %s %s(%d mappings, %s)%s\n",
			c(colorGreen), c(colorReset), d.Metadata.Name,
			c(colorDim), len(d.Spec.Mappings), d.Path, c(colorReset))
	}
	fmt.Fprintf(w, "\nApplied: %d source system(s), %d mapping(s), %d column(s), %d lookup(s), %d rule(s), %d dependency edge(s).\n",
		s.SourceSystems, s.Mappings, s.ColumnMappings, s.LookupEntries, s.QualityRules, s.Dependencies)
}
