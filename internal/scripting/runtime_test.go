package scripting

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-ingest/internal/domain"
)

const module = `
def mask_email(value, row):
    if value == None:
        return None
    at = value.find("@")
    return value[:1] + "***" + value[at:]

def full_name(value, row):
    return row["first"] + " " + row["last"]

def cents(value, row):
    return int(value * 100)

def is_positive(x):
    return x > 0

def spin(value, row):
    n = 0
    for i in range(1000000):
        n += i
    return n

THRESHOLD = 10
`

func loadModule(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	r, err := LoadSource("functions.star", module, opts...)
	require.NoError(t, err)
	return r
}

func TestRuntime_Call(t *testing.T) {
	r := loadModule(t)
	row := domain.Record{"first": "Ada", "last": "Lovelace", "email": "ada@example.com"}

	tests := []struct {
		name  string
		fn    string
		value any
		want  any
	}{
		{"string result", "mask_email", "ada@example.com", "a***@example.com"},
		{"none passthrough", "mask_email", nil, nil},
		{"reads row", "full_name", nil, "Ada Lovelace"},
		{"int result", "cents", 12.5, int64(1250)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Call(tc.fn, tc.value, row)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRuntime_HasAndFunctions(t *testing.T) {
	r := loadModule(t)
	assert.True(t, r.Has("mask_email"))
	assert.False(t, r.Has("THRESHOLD"), "non-callable globals are not functions")
	assert.False(t, r.Has("missing"))
	assert.Equal(t, []string{"cents", "full_name", "is_positive", "mask_email", "spin"}, r.Functions())

	_, err := r.Call("missing", 1, nil)
	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestRuntime_CallError(t *testing.T) {
	r := loadModule(t)
	_, err := r.Call("full_name", nil, domain.Record{"first": "Ada"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call full_name")
}

func TestRuntime_EvalBool(t *testing.T) {
	r := loadModule(t)
	row := domain.Record{"amount": int64(25), "currency": "EUR", "bad-name": 1}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"value in scope", "value > 0", true},
		{"columns in scope", `amount > THRESHOLD and currency == "EUR"`, true},
		{"row dict", `row["bad-name"] == 1`, true},
		{"module function", "is_positive(value - 100)", false},
		{"truthiness", `currency`, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.EvalBool(tc.expr, row["amount"], row)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := r.EvalBool("amount >", int64(1), row)
	assert.Error(t, err)
}

func TestRuntime_StepLimit(t *testing.T) {
	r := loadModule(t, WithMaxSteps(10_000))
	_, err := r.Call("spin", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many steps")
}

func TestRuntime_Timeout(t *testing.T) {
	r := loadModule(t, WithMaxSteps(0), WithTimeout(10*time.Millisecond))
	_, err := r.EvalBool("[x for x in range(100000000)] == []", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestRuntime_ConcurrentUse(t *testing.T) {
	r := loadModule(t)
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Call("cents", float64(i), nil)
			assert.NoError(t, err)
			assert.Equal(t, int64(i*100), got)
		}()
	}
	wg.Wait()
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fn.star")
	require.NoError(t, os.WriteFile(path, []byte("def twice(v, row):\n    return v * 2\n"), 0o600))
	r, err := LoadFile(path)
	require.NoError(t, err)
	got, err := r.Call("twice", int64(21), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.star"))
	assert.Error(t, err)

	_, err = LoadSource("broken.star", "def (:")
	assert.Error(t, err)
}

func TestNew_EvaluatesWithoutModule(t *testing.T) {
	ok, err := New().EvalBool("len(value) <= 3", "abc", domain.Record{})
	require.NoError(t, err)
	assert.True(t, ok)
}
