package calendar

import (
	"context"
	"fmt"
	"time"
)

// Provider is the thin surface the sync engine needs from a remote calendar
// service. Implementations must not retry internally; retry policy belongs to
// the caller (or the Retrying decorator).
type Provider interface {
	// ListEvents returns events in [from, to) ordered by start time. A single
	// page is sufficient for the window sizes the sync engine uses.
	ListEvents(ctx context.Context, accountID string, from, to time.Time) ([]Event, error)

	// CreateEvent creates a remote event and returns its provider-assigned id.
	CreateEvent(ctx context.Context, accountID string, in EventInput) (string, error)

	// UpdateEvent overwrites a remote event with the given payload.
	UpdateEvent(ctx context.Context, accountID, eventID string, in EventInput) error

	// ListCalendars returns the calendars available to the account.
	ListCalendars(ctx context.Context, accountID string) ([]CalendarInfo, error)
}

// APIError is a typed provider error carrying the identifiers of the
// offending call.
type APIError struct {
	AccountID  string
	EventID    string
	Op         string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("%s failed for account %s, event %s: %v", e.Op, e.AccountID, e.EventID, e.Err)
	}
	return fmt.Sprintf("%s failed for account %s: %v", e.Op, e.AccountID, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient. Server-side (5xx) and
// transport errors are retryable; auth and client errors are not.
func (e *APIError) Retryable() bool {
	if e.StatusCode == 0 {
		// No HTTP status: network-level failure.
		return true
	}
	return e.StatusCode >= 500
}
