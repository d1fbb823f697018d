// ABOUTME: Configuration loading and parsing for taskdb
// ABOUTME: Supports YAML files with environment variable expansion

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// databaseFile is the fixed database file name per installation.
const databaseFile = "todos.db"

// Config represents the complete taskdb configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tasks    TasksConfig    `yaml:"tasks"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TasksConfig tunes entity store behavior
type TasksConfig struct {
	// DuplicateSuffix is appended to the text of duplicated tasks.
	DuplicateSuffix string `yaml:"duplicate_suffix"`
	// DuplicateKeepCompleted preserves completed state when duplicating
	// instead of resetting copies to incomplete.
	DuplicateKeepCompleted bool `yaml:"duplicate_keep_completed"`
}

// Default returns a ready-to-use configuration with the database under the
// user data directory. Priority: XDG_DATA_HOME/taskdb > ~/.local/share/taskdb.
func Default() *Config {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return &Config{Database: DatabaseConfig{Path: databaseFile}}
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(dataDir, "taskdb", databaseFile),
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}
