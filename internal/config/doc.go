// Package config loads taskdb configuration from YAML.
//
// Configuration files support ${VAR_NAME} environment variable expansion.
// Default() supplies a working configuration without a file, placing the
// database under the user data directory.
//
// Sections:
//
//	database:
//	  path: /path/to/todos.db
//	logging:
//	  level: info        # debug, info, warn, error
//	  format: text       # text (colorized) or json
//	tasks:
//	  duplicate_suffix: " (copy)"
//	  duplicate_keep_completed: false
package config
