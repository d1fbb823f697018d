package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/taskdb/todos.db
logging:
  level: debug
  format: json
tasks:
  duplicate_suffix: " copy"
  duplicate_keep_completed: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/taskdb/todos.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, " copy", cfg.Tasks.DuplicateSuffix)
	assert.True(t, cfg.Tasks.DuplicateKeepCompleted)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TASKDB_TEST_DIR", "/srv/data")
	path := writeConfig(t, `
database:
  path: ${TASKDB_TEST_DIR}/todos.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/data/todos.db", cfg.Database.Path)
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	path := writeConfig(t, `
database:
  path: ${TASKDB_DEFINITELY_UNSET_VAR}
`)

	_, err := Load(path)
	require.Error(t, err, "empty expansion fails path validation")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "database: [not: a: mapping")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Path: "x.db"}}
	assert.NoError(t, cfg.Validate())

	cfg.Logging.Format = "json"
	assert.NoError(t, cfg.Validate())

	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = &Config{}
	assert.Error(t, cfg.Validate(), "database path is required")
}

func TestDefault(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
	cfg := Default()
	assert.Equal(t, filepath.Join("/tmp/xdg-data", "taskdb", "todos.db"), cfg.Database.Path)
	assert.NoError(t, cfg.Validate())

	t.Setenv("XDG_DATA_HOME", "")
	cfg = Default()
	assert.NotEmpty(t, cfg.Database.Path)
	assert.Contains(t, cfg.Database.Path, "todos.db")
}
