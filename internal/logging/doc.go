// Package logging provides structured logging helpers built on log/slog.
//
// It defines the attribute keys used throughout calsync so that log entries
// from the token store, the calendar provider and the sync engine can be
// correlated by account, and offers a nil-safe helper for attaching errors
// to log entries.
package logging
