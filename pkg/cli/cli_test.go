package cli

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-ingest/internal/api"
	"duck-ingest/internal/config"
)

const crmConfig = `apiVersion: ingest/v1
kind: SourceSystem
metadata:
  name: CRM
spec:
  driver: sqlite3
  dsn: %SOURCE%
  mappings:
    - code: CUSTOMERS
      source:
        table: customers
        key_columns: [id]
      target:
        table: dim_customer
      columns:
        - source: id
          target: customer_id
          key: true
          type: bigint
        - source: name
          target: name
          transform: EXPRESSION
          definition: UPPER(TRIM(name))
      quality_rules:
        - code: NAME_NN
          kind: NOT_NULL
          column: name
`

const ordersMapping = `    - code: ORDERS
      source:
        table: orders_missing
        key_columns: [id]
      target:
        table: fact_order
      columns:
        - source: id
          target: order_id
          key: true
`

type cliFixture struct {
	dir        string
	configDir  string
	metaPath   string
	targetPath string
}

// newCLIFixture creates a SQLite source with three customers, one of them
// nameless, writes the CRM configuration and points the environment at
// fresh catalog and target files.
func newCLIFixture(t *testing.T, withBrokenMapping bool) *cliFixture {
	t.Helper()
	dir := t.TempDir()
	f := &cliFixture{
		dir:        dir,
		configDir:  filepath.Join(dir, "config"),
		metaPath:   filepath.Join(dir, "meta.sqlite"),
		targetPath: filepath.Join(dir, "target.sqlite"),
	}

	sourcePath := filepath.Join(dir, "crm.sqlite")
	src, err := sql.Open("sqlite3", sourcePath)
	require.NoError(t, err)
	_, err = src.Exec(`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT);
		INSERT INTO customers VALUES (1, ' ada '), (2, 'bob'), (3, NULL);`)
	require.NoError(t, err)
	require.NoError(t, src.Close())

	doc := strings.ReplaceAll(crmConfig, "%SOURCE%", sourcePath)
	if withBrokenMapping {
		doc += ordersMapping
	}
	require.NoError(t, os.MkdirAll(f.configDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(f.configDir, "crm.yaml"), []byte(doc), 0o600))

	for _, k := range []string{
		"LISTEN_ADDR", "LOG_FORMAT", "ENV", "BATCH_SIZE", "MAX_VIOLATIONS",
		"VALIDATION_MODE", "PARALLELISM", "FUNCTIONS_FILE", "RATE_LIMIT_RPS",
		"RATE_LIMIT_BURST", "CORS_ALLOWED_ORIGINS", "ENCRYPTION_KEY",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("META_DB_PATH", f.metaPath)
	t.Setenv("TARGET_DRIVER", "sqlite3")
	t.Setenv("TARGET_DSN", f.targetPath)
	t.Setenv("STAGING_SCHEMA", "staging")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("TRIGGERED_BY", "cli-test")
	return f
}

// runCLI executes the root command with args and returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version", "-o", "json")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "dev", got["version"])
	assert.Equal(t, "none", got["commit"])
}

func TestRootRejectsInvalidFlags(t *testing.T) {
	newCLIFixture(t, false)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"output format", []string{"list", "-o", "yaml"}, "unsupported output format"},
		{"batch size", []string{"list", "--batch-size", "0"}, "--batch-size must be positive"},
		{"parallel", []string{"list", "--parallel", "-1"}, "--parallel must be positive"},
		{"run without target", []string{"run"}, "exactly one of --source or --mapping"},
		{"run with both", []string{"run", "--source", "CRM", "--mapping", "X"}, "exactly one of --source or --mapping"},
		{"order without source", []string{"order"}, "--source is required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runCLI(t, tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestImportValidateOnly(t *testing.T) {
	f := newCLIFixture(t, false)

	out, err := runCLI(t, "import", f.configDir, "--validate-only")
	require.NoError(t, err)
	assert.Contains(t, out, "1 source system(s) valid.")

	_, statErr := os.Stat(f.metaPath)
	assert.True(t, os.IsNotExist(statErr), "validate-only must not create the catalog")
}

func TestImportReportsProblems(t *testing.T) {
	f := newCLIFixture(t, false)
	bad := filepath.Join(f.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`apiVersion: ingest/v1
kind: SourceSystem
metadata:
  name: ERP
spec:
  driver: oracle
  dsn: x
  mappings: []
`), 0o600))

	out, err := runCLI(t, "import", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation problem(s)")
	assert.Contains(t, out, "problem(s) found.")
}

func TestImportListOrderRunHistory(t *testing.T) {
	f := newCLIFixture(t, false)

	out, err := runCLI(t, "import", f.configDir, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied: 1 source system(s), 1 mapping(s)")

	out, err = runCLI(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "CODE")
	assert.Contains(t, out, "CRM")

	out, err = runCLI(t, "list", "--source", "CRM", "-o", "json")
	require.NoError(t, err)
	var mappings []api.TableMapping
	require.NoError(t, json.Unmarshal([]byte(out), &mappings))
	require.Len(t, mappings, 1)
	assert.Equal(t, "CUSTOMERS", mappings[0].Code)
	assert.Equal(t, []string{"customer_id"}, mappings[0].TargetKeyColumns)

	out, err = runCLI(t, "order", "--source", "CRM", "-o", "json")
	require.NoError(t, err)
	var order api.RunOrder
	require.NoError(t, json.Unmarshal([]byte(out), &order))
	require.Len(t, order.Steps, 1)
	assert.Equal(t, "CUSTOMERS", order.Steps[0].MappingCode)

	out, err = runCLI(t, "run", "--source", "CRM")
	require.NoError(t, err)
	assert.Contains(t, out, "CRM: 1 mapping(s), 1 succeeded, 0 failed, 2 row(s) loaded")

	out, err = runCLI(t, "history", "-o", "json")
	require.NoError(t, err)
	var execs []api.Execution
	require.NoError(t, json.Unmarshal([]byte(out), &execs))
	require.Len(t, execs, 1)
	assert.Equal(t, "SUCCESS", execs[0].Status)
	assert.Equal(t, "cli-test", execs[0].TriggeredBy)
	assert.Equal(t, int64(1), execs[0].RowsRejected)

	out, err = runCLI(t, "history", "--mapping", "CUSTOMERS", "--status", "failed")
	require.NoError(t, err)
	assert.NotContains(t, out, execs[0].ID)

	out, err = runCLI(t, "violations", execs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME_NN")
	assert.Contains(t, out, "customer_id=3")
	assert.Contains(t, out, "1 violation(s).")

	_, err = runCLI(t, "violations", "does-not-exist")
	require.Error(t, err)
}

func TestRunMappingDryRunSkipsLoad(t *testing.T) {
	f := newCLIFixture(t, false)
	_, err := runCLI(t, "import", f.configDir)
	require.NoError(t, err)

	out, err := runCLI(t, "run", "--mapping", "CUSTOMERS", "--dry-run", "-o", "json")
	require.NoError(t, err)

	var res api.MappingRun
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "SUCCESS", res.Status)
	assert.Equal(t, int64(2), res.RowsLoaded)
	assert.Nil(t, res.Error)

	_, statErr := os.Stat(f.targetPath)
	assert.True(t, os.IsNotExist(statErr), "dry run must not open the target")
}

func TestRunSourceWithFailuresExitsTwo(t *testing.T) {
	f := newCLIFixture(t, true)
	_, err := runCLI(t, "import", f.configDir)
	require.NoError(t, err)

	out, err := runCLI(t, "run", "--source", "CRM")
	require.Error(t, err)
	assert.Contains(t, out, "1 succeeded, 1 failed")

	var exitErr *exitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.code)
	assert.Contains(t, err.Error(), "1 of 2 mappings failed")
}

func TestMigrateCommand(t *testing.T) {
	f := newCLIFixture(t, false)

	out, err := runCLI(t, "migrate", "-o", "json")
	require.NoError(t, err)

	var got struct {
		Path          string `json:"path"`
		SchemaVersion int64  `json:"schema_version"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, f.metaPath, got.Path)
	assert.Positive(t, got.SchemaVersion)
}

func TestReportError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		json       bool
		wantCode   int
		wantStdout string
		wantStderr string
	}{
		{"success", nil, false, 0, "", ""},
		{"plain error", errors.New("boom"), false, 1, "", "Error: boom\n"},
		{"exit code", &exitError{code: 2, err: errors.New("1 of 2 mappings failed")}, false, 2, "", "Error: 1 of 2 mappings failed\n"},
		{"json", errors.New("boom"), true, 1, "\"error\": \"boom\"", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			root := newRootCmd()
			if tc.json {
				require.NoError(t, root.PersistentFlags().Set("output", "json"))
			}
			var stdout, stderr bytes.Buffer
			code := reportError(root, tc.err, &stdout, &stderr)
			assert.Equal(t, tc.wantCode, code)
			assert.Contains(t, stdout.String(), tc.wantStdout)
			assert.Equal(t, tc.wantStderr, stderr.String())
		})
	}
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "SUCCESS", statusText("SUCCESS", false))
	assert.Equal(t, colorGreen+"SUCCESS"+colorReset, statusText("SUCCESS", true))
	assert.Equal(t, colorRed+"FAILED"+colorReset, statusText("FAILED", true))
	assert.Equal(t, "PENDING", statusText("PENDING", true))
}

func TestApplyOverrides(t *testing.T) {
	root := newRootCmd()
	require.NoError(t, root.ParseFlags([]string{"--db", "/tmp/m.sqlite", "--parallel", "3", "--dry-run", "--max-violations", "-1"}))

	cfg := &config.Config{MetaDBPath: "env.sqlite", BatchSize: 5000, Parallelism: 1, MaxViolations: 1000}
	flags := &rootFlags{}
	f := root.Flags()
	flags.dbPath, _ = f.GetString("db")
	flags.parallel, _ = f.GetInt("parallel")
	flags.dryRun, _ = f.GetBool("dry-run")
	flags.maxViolations, _ = f.GetInt("max-violations")

	require.NoError(t, flags.applyOverrides(f, cfg))
	assert.Equal(t, "/tmp/m.sqlite", cfg.MetaDBPath)
	assert.Equal(t, 3, cfg.Parallelism)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, -1, cfg.MaxViolations)
	assert.Equal(t, 5000, cfg.BatchSize, "unset flags keep the environment value")
}
