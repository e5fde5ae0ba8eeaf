package store

import "errors"

// ErrNotFound indicates a missing record lookup.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateExternalEvent indicates an attempt to correlate two local
// appointments with the same remote event.
var ErrDuplicateExternalEvent = errors.New("external event id already linked to another appointment")

// ErrExternalEventIDSet indicates an attempt to overwrite an appointment's
// external event id, which is set exactly once.
var ErrExternalEventIDSet = errors.New("external event id already set")
