// Package calendar provides the remote calendar surface for the sync engine.
//
// The Provider interface is deliberately thin: list events in a window,
// create an event, update an event, list calendars. A Google Calendar
// implementation is included; the design works for any provider exposing
// OAuth2 and a create/list/update-event surface.
//
// Providers never retry internally. The Retrying decorator adds a bounded
// per-call timeout and exponential-backoff retries for transient failures,
// keeping retry policy out of the transport layer.
package calendar
