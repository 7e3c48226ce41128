// Package logging builds slog loggers with the console and JSON handlers
// used across the task commands.
package logging
