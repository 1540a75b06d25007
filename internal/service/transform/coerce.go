package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// targetKind is the coercion family of a declared target type.
type targetKind int

const (
	kindNone targetKind = iota
	kindInt
	kindFloat
	kindDate
	kindTimestamp
	kindBool
)

// dateLayouts are tried in order when a string must become a time.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006/01/02",
	"01/02/2006",
	"02.01.2006",
	"20060102",
}

var (
	truthy = map[string]struct{}{"1": {}, "t": {}, "true": {}, "yes": {}, "y": {}, "on": {}}
	falsy  = map[string]struct{}{"0": {}, "f": {}, "false": {}, "no": {}, "n": {}, "off": {}}
)

// normalizeKind maps a SQL-ish type name (case-insensitive, parameters
// ignored) onto its coercion family.
func normalizeKind(targetType string) targetKind {
	t := strings.ToLower(strings.TrimSpace(targetType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch t {
	case "int", "integer", "bigint", "smallint", "tinyint", "int2", "int4", "int8":
		return kindInt
	case "decimal", "numeric", "float", "double", "double precision", "real", "number", "float4", "float8":
		return kindFloat
	case "date":
		return kindDate
	case "timestamp", "datetime", "timestamptz", "timestamp with time zone", "timestamp without time zone":
		return kindTimestamp
	case "bool", "boolean", "bit":
		return kindBool
	}
	return kindNone
}

// coerce converts v to the Go representation of kind. nil stays nil and an
// empty string becomes nil for every typed kind.
func coerce(kind targetKind, v any) (any, error) {
	if kind == kindNone || v == nil {
		return v, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		v = s
	}

	switch kind {
	case kindInt:
		return toInt64(v)
	case kindFloat:
		return toFloat64(v)
	case kindDate:
		t, err := toTime(v, "")
		if err != nil {
			return nil, err
		}
		return truncateDay(t), nil
	case kindTimestamp:
		return toTime(v, "")
	case kindBool:
		return toBool(v)
	}
	return v, nil
}

func toInt64(v any) (any, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uintToInt64(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintToInt64(x)
	case float32:
		return floatToInt64(float64(x))
	case float64:
		return floatToInt64(x)
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to integer", x)
		}
		return floatToInt64(f)
	}
	return nil, fmt.Errorf("cannot convert %T to integer", v)
}

func uintToInt64(u uint64) (any, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("integer %d overflows int64", u)
	}
	return int64(u), nil
}

func floatToInt64(f float64) (any, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("cannot convert %v to integer", f)
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("integer %v overflows int64", f)
	}
	return int64(f), nil
}

func toFloat64(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to decimal", x)
		}
		return f, nil
	}
	return nil, fmt.Errorf("cannot convert %T to decimal", v)
}

// toTime parses v into a time. layout, when set, is tried before the
// built-in layouts.
func toTime(v any, layout string) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case *time.Time:
		if x != nil {
			return *x, nil
		}
	case string:
		s := strings.TrimSpace(x)
		if layout != "" {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		for _, l := range dateLayouts {
			if t, err := time.Parse(l, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as date", x)
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to date", v)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func toBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, _ := toInt64(x)
		switch n {
		case int64(0):
			return false, nil
		case int64(1):
			return true, nil
		}
		return nil, fmt.Errorf("cannot convert %v to boolean", x)
	case string:
		s := strings.ToLower(x)
		if _, ok := truthy[s]; ok {
			return true, nil
		}
		if _, ok := falsy[s]; ok {
			return false, nil
		}
		return nil, fmt.Errorf("cannot convert %q to boolean", x)
	}
	return nil, fmt.Errorf("cannot convert %T to boolean", v)
}
