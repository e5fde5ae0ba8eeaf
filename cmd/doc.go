// Package cmd implements the command-line interface for calsync.
//
// This package provides the following commands:
//   - sync: Run one synchronization pass over enabled calendar accounts
//   - serve: Run the periodic scheduler with the control API and metrics
//   - version: Display version information
package cmd
