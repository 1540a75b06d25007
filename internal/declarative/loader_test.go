package declarative

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testdataDir returns the absolute path to testdata relative to this test file.
func testdataDir(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime.Caller failed")
	return filepath.Join(filepath.Dir(filename), "testdata")
}

func TestLoad_Directory(t *testing.T) {
	docs, err := Load(filepath.Join(testdataDir(t), "valid"))
	require.NoError(t, err)
	require.Len(t, docs, 3)

	t.Run("files in lexical order, documents in file order", func(t *testing.T) {
		assert.Equal(t, "CRM", docs[0].Metadata.Name)
		assert.Equal(t, "REF", docs[1].Metadata.Name)
		assert.Equal(t, "WEB", docs[2].Metadata.Name)
		assert.Equal(t, "crm.yaml", filepath.Base(docs[0].Path))
	})

	t.Run("nested mapping fields", func(t *testing.T) {
		m := docs[0].Spec.Mappings[0]
		assert.Equal(t, "CUSTOMERS", m.Code)
		assert.Equal(t, "deleted = 0", m.Source.Filter)
		assert.Equal(t, []string{"REGIONS"}, m.DependsOn)
		require.Len(t, m.Columns, 3)
		assert.Equal(t, "LOOKUP", m.Columns[2].Transform)
		require.NotNil(t, m.Columns[2].Fallback)
		assert.Equal(t, "UNKNOWN", *m.Columns[2].Fallback)
		assert.Len(t, m.Columns[2].Lookups, 2)
		require.Len(t, m.QualityRules, 2)
		require.NotNil(t, m.QualityRules[1].MaxLength)
		assert.Equal(t, 40, *m.QualityRules[1].MaxLength)
	})

	t.Run("explicit false survives", func(t *testing.T) {
		require.NotNil(t, docs[1].Spec.Active)
		assert.False(t, *docs[1].Spec.Active)
	})
}

func TestLoad_SingleFile(t *testing.T) {
	docs, err := Load(filepath.Join(testdataDir(t), "valid", "events.yml"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "updated_at", docs[0].Spec.Mappings[0].IncrementalColumn)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		contains string
	}{
		{"unknown field", "unknown_field.yaml", "colour"},
		{"wrong apiVersion", "wrong_version.yaml", "unsupported apiVersion"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(filepath.Join(testdataDir(t), "invalid", tc.file))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.contains)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLoadWithOptions_AllowUnknownFields(t *testing.T) {
	docs, err := LoadWithOptions(filepath.Join(testdataDir(t), "invalid", "unknown_field.yaml"), LoadOptions{AllowUnknownFields: true})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "CRM", docs[0].Metadata.Name)
}

func TestLoad_WrongKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("apiVersion: ingest/v1\nkind: Pipeline\n"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unexpected kind "Pipeline"`)
}

func TestLoad_SkipsEmptyDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src.yaml")
	content := "---\napiVersion: ingest/v1\nkind: SourceSystem\nmetadata: {name: A}\nspec: {driver: sqlite3, dsn: a.db}\n---\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	docs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "A", docs[0].Metadata.Name)
}
