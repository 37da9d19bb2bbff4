// Package logging assembles structured slog loggers and formatting helpers used
// across crucible.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so executor code can tag log
// lines with test IDs, layers, and run identifiers automatically. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
