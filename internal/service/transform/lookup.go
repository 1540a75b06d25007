package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"duck-ingest/internal/domain"
)

// lookupTable is the value substitution table of one LOOKUP column.
type lookupTable struct {
	values   map[string]string
	fallback *string
}

// buildLookupTables groups lookup entries by column mapping id. The first
// entry wins for duplicate source values, and the first non-nil fallback
// wins for the column.
func buildLookupTables(entries []domain.LookupMapping) map[int64]*lookupTable {
	tables := make(map[int64]*lookupTable)
	for _, e := range entries {
		t, ok := tables[e.ColumnMappingID]
		if !ok {
			t = &lookupTable{values: make(map[string]string)}
			tables[e.ColumnMappingID] = t
		}
		key := strings.TrimSpace(e.SourceValue)
		if _, dup := t.values[key]; !dup {
			t.values[key] = e.TargetValue
		}
		if t.fallback == nil && e.FallbackValue != nil {
			fb := *e.FallbackValue
			t.fallback = &fb
		}
	}
	return tables
}

// resolve returns the substitution for v, the fallback on a miss, or nil.
func (t *lookupTable) resolve(v any) any {
	if t != nil {
		if key, ok := canonical(v); ok {
			if out, hit := t.values[key]; hit {
				return out
			}
		}
		if t.fallback != nil {
			return *t.fallback
		}
	}
	return nil
}

// canonical renders v in the string form lookup keys are stored in.
// It reports false for nil.
func canonical(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(x), true
	case []byte:
		return strings.TrimSpace(string(x)), true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return formatFloat(x), true
	case float32:
		return formatFloat(float64(x)), true
	case time.Time:
		return x.Format("2006-01-02"), true
	case fmt.Stringer:
		return strings.TrimSpace(x.String()), true
	}
	return strings.TrimSpace(fmt.Sprint(v)), true
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// stringify renders a non-nil value as a string for string functions.
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return formatFloat(x)
	case time.Time:
		return x.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}
