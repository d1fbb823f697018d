// Package logging builds the process logger from configuration.
//
// Two output formats are supported: a colorized human-readable text
// handler for terminals and a structured JSON handler for log
// collection. Both write to stdout and honor the configured minimum
// level. Components derive scoped loggers with
// logger.With("component", name).
package logging
