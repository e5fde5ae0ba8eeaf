package sync

import (
	"fmt"
	"time"
)

// EventError records a per-event failure without aborting the pass that
// produced it.
type EventError struct {
	Op      string // "import" or "export"
	EventID string
	Name    string // display name of the offending record
	Err     error
}

func (e EventError) String() string {
	name := e.Name
	if name == "" {
		name = e.EventID
	}
	return fmt.Sprintf("%s %q: %v", e.Op, name, e.Err)
}

// Result is the outcome of one synchronization run for one account.
// Per-event failures are data, not control flow: they are collected here and
// the run still completes.
type Result struct {
	AccountID     string `json:"accountId"`
	ImportedCount int    `json:"importedCount"`
	ExportedCount int    `json:"exportedCount"`
	UpdatedCount  int    `json:"updatedCount"`

	// SkippedCount tallies remote events dropped because no patient could be
	// identified.
	SkippedCount int `json:"skippedCount"`

	Errors []string `json:"errors"`

	// Success reflects only whether the run itself completed. Per-event
	// failures land in Errors and leave it true; runs that cannot start at
	// all surface as plain errors, never as a Result.
	Success bool `json:"success"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	// EventErrors carries the structured form of Errors.
	EventErrors []EventError `json:"-"`
}

func (r *Result) recordError(op, eventID, name string, err error) {
	ee := EventError{Op: op, EventID: eventID, Name: name, Err: err}
	r.EventErrors = append(r.EventErrors, ee)
	r.Errors = append(r.Errors, ee.String())
}
