// Package scripting evaluates user-supplied Starlark functions and
// expressions for FUNCTION column transforms and CUSTOM quality rules.
package scripting

import (
	"fmt"
	"math"
	"os"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"duck-ingest/internal/domain"
	"duck-ingest/internal/service/transform"
	"duck-ingest/internal/service/validation"
)

const (
	defaultMaxSteps = uint64(50_000)
	defaultTimeout  = 2 * time.Second
	maxModuleBytes  = 512 * 1024
)

// Runtime is a sandboxed Starlark environment. Module globals are frozen
// after loading, so a Runtime is safe for concurrent use; every evaluation
// runs on its own thread with a step limit and a timeout.
type Runtime struct {
	globals  starlark.StringDict
	maxSteps uint64
	timeout  time.Duration
}

var (
	_ transform.FunctionRuntime  = (*Runtime)(nil)
	_ validation.ScriptEvaluator = (*Runtime)(nil)
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithMaxSteps bounds the Starlark steps of one evaluation.
func WithMaxSteps(n uint64) Option {
	return func(r *Runtime) { r.maxSteps = n }
}

// WithTimeout bounds the wall time of one evaluation.
func WithTimeout(d time.Duration) Option {
	return func(r *Runtime) { r.timeout = d }
}

// New creates a Runtime without user functions. CUSTOM rule expressions
// can still be evaluated.
func New(opts ...Option) *Runtime {
	r := &Runtime{globals: starlark.StringDict{}, maxSteps: defaultMaxSteps, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadFile creates a Runtime from a Starlark module file.
func LoadFile(path string, opts ...Option) (*Runtime, error) {
	src, err := os.ReadFile(path) //nolint:gosec // intentional: user-specified functions module
	if err != nil {
		return nil, fmt.Errorf("read functions module: %w", err)
	}
	return LoadSource(path, string(src), opts...)
}

// LoadSource creates a Runtime by executing src once. Top-level functions
// of the module become callable by name.
func LoadSource(filename, src string, opts ...Option) (*Runtime, error) {
	r := New(opts...)
	if len(src) > maxModuleBytes {
		return nil, domain.ErrValidation("starlark module %q exceeds %d bytes", filename, maxModuleBytes)
	}
	thread := r.thread("load")
	var globals starlark.StringDict
	if err := runWithTimeout(thread, r.timeout, func() error {
		loaded, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, filename, src, nil)
		if err != nil {
			return err
		}
		globals = loaded
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load starlark module %q: %w", filename, err)
	}
	globals.Freeze()
	r.globals = globals
	return r, nil
}

// Functions returns the names of the module's callable globals.
func (r *Runtime) Functions() []string {
	var names []string
	for _, name := range r.globals.Keys() {
		if _, ok := r.globals[name].(starlark.Callable); ok {
			names = append(names, name)
		}
	}
	return names
}

// Has reports whether the module defines a callable named name.
func (r *Runtime) Has(name string) bool {
	_, ok := r.globals[name].(starlark.Callable)
	return ok
}

// Call invokes name(value, row) and converts the result back to Go.
func (r *Runtime) Call(name string, value any, row domain.Record) (any, error) {
	fn, ok := r.globals[name].(starlark.Callable)
	if !ok {
		return nil, domain.ErrValidation("function %q is not defined", name)
	}
	v, err := toStarlark(value)
	if err != nil {
		return nil, err
	}
	rowDict, err := recordDict(row)
	if err != nil {
		return nil, err
	}

	thread := r.thread("call")
	var result starlark.Value
	if err := runWithTimeout(thread, r.timeout, func() error {
		res, err := starlark.Call(thread, fn, starlark.Tuple{v, rowDict}, nil)
		result = res
		return err
	}); err != nil {
		return nil, fmt.Errorf("call %s: %w", name, err)
	}
	return fromStarlark(result), nil
}

// EvalBool evaluates expr with value, row and every identifier-named row
// column in scope, along with the module's globals. The result is the
// Starlark truth value of the expression.
func (r *Runtime) EvalBool(expr string, value any, row domain.Record) (bool, error) {
	env := make(starlark.StringDict, len(r.globals)+len(row)+2)
	for k, v := range r.globals {
		env[k] = v
	}
	for k, raw := range row {
		if !isIdent(k) {
			continue
		}
		v, err := toStarlark(raw)
		if err != nil {
			return false, err
		}
		env[k] = v
	}
	v, err := toStarlark(value)
	if err != nil {
		return false, err
	}
	env["value"] = v
	rowDict, err := recordDict(row)
	if err != nil {
		return false, err
	}
	env["row"] = rowDict

	thread := r.thread("eval")
	var result starlark.Value
	if err := runWithTimeout(thread, r.timeout, func() error {
		res, err := starlark.EvalOptions(&syntax.FileOptions{}, thread, "<rule>", expr, env)
		result = res
		return err
	}); err != nil {
		return false, fmt.Errorf("eval %q: %w", expr, err)
	}
	return bool(result.Truth()), nil
}

func (r *Runtime) thread(name string) *starlark.Thread {
	t := &starlark.Thread{Name: name}
	t.SetMaxExecutionSteps(r.maxSteps)
	return t
}

func runWithTimeout(thread *starlark.Thread, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		return fn()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		thread.Cancel("starlark execution timed out")
		err := <-done
		if err != nil {
			return domain.ErrValidation("starlark execution timed out after %s: %v", timeout, err)
		}
		return domain.ErrValidation("starlark execution timed out after %s", timeout)
	}
}

func recordDict(row domain.Record) (*starlark.Dict, error) {
	d := starlark.NewDict(len(row))
	for k, raw := range row {
		v, err := toStarlark(raw)
		if err != nil {
			return nil, err
		}
		if err := d.SetKey(starlark.String(k), v); err != nil {
			return nil, err
		}
	}
	d.Freeze()
	return d, nil
}

func toStarlark(v any) (starlark.Value, error) {
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(x), nil
	case int:
		return starlark.MakeInt(x), nil
	case int32:
		return starlark.MakeInt64(int64(x)), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case float32:
		return starlark.Float(x), nil
	case float64:
		return starlark.Float(x), nil
	case string:
		return starlark.String(x), nil
	case []byte:
		return starlark.String(x), nil
	case time.Time:
		return starlark.String(x.Format(time.RFC3339Nano)), nil
	case starlark.Value:
		return x, nil
	}
	return starlark.String(fmt.Sprint(v)), nil
}

func fromStarlark(v starlark.Value) any {
	switch x := v.(type) {
	case nil, starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(x)
	case starlark.Int:
		if n, ok := x.Int64(); ok {
			return n
		}
		f, _ := starlark.AsFloat(x)
		return f
	case starlark.Float:
		f := float64(x)
		if math.IsNaN(f) {
			return nil
		}
		return f
	case starlark.String:
		return string(x)
	}
	return v.String()
}

func isIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if i == 0 {
			if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
				return false
			}
			continue
		}
		if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
