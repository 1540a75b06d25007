package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Record is one row flowing through the pipeline, keyed by column name.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RowID renders a short identifier for rec: the key column values when
// keyColumns is set, otherwise the first three fields sorted by name.
func RowID(rec Record, keyColumns []string) string {
	cols := keyColumns
	if len(cols) == 0 {
		cols = make([]string, 0, len(rec))
		for k := range rec {
			cols = append(cols, k)
		}
		sort.Strings(cols)
		if len(cols) > 3 {
			cols = cols[:3]
		}
	}
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		switch v := rec[c].(type) {
		case nil:
			parts = append(parts, c+"=NULL")
		case []byte:
			parts = append(parts, c+"="+string(v))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", c, v))
		}
	}
	return strings.Join(parts, ",")
}
