package calendar

import (
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

// Event statuses as reported by calendar providers.
const (
	EventStatusConfirmed = "confirmed"
	EventStatusCancelled = "cancelled"
)

// Event is a provider-neutral remote calendar event. It is transient: the
// sync engine reads it during an import pass and never persists it as-is.
type Event struct {
	ID          string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Status      string

	// UpdatedAt is the provider-assigned last-modified timestamp, used for
	// conflict resolution on import.
	UpdatedAt time.Time
}

// Cancelled reports whether the provider marked the event cancelled.
func (e Event) Cancelled() bool {
	return e.Status == EventStatusCancelled
}

// DisplayName returns a human-readable identifier for error reporting.
func (e Event) DisplayName() string {
	if e.Summary != "" {
		return e.Summary
	}
	return e.ID
}

// EventInput is the provider-neutral payload for creating or updating a
// remote event.
type EventInput struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	TimeZone    string
}

// CalendarInfo describes a remote calendar available to an account.
type CalendarInfo struct {
	ID       string
	Summary  string
	TimeZone string
	Primary  bool
}

// toEvent converts a Google Calendar event to the provider-neutral form.
func toEvent(event *calendar.Event) Event {
	if event == nil {
		return Event{}
	}

	e := Event{
		ID:          event.Id,
		Summary:     event.Summary,
		Description: event.Description,
		Location:    event.Location,
		Status:      event.Status,
	}

	if event.Start != nil {
		e.Start = parseEventTime(event.Start)
	}
	if event.End != nil {
		e.End = parseEventTime(event.End)
	}
	if event.Updated != "" {
		if t, err := time.Parse(time.RFC3339, event.Updated); err == nil {
			e.UpdatedAt = t
		}
	}

	return e
}

func parseEventTime(edt *calendar.EventDateTime) time.Time {
	if edt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, edt.DateTime); err == nil {
			return t
		}
	}
	if edt.Date != "" {
		if t, err := time.Parse("2006-01-02", edt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}

// toGoogleEvent converts an EventInput to the Google Calendar wire shape.
func toGoogleEvent(in EventInput) *calendar.Event {
	tz := in.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	return &calendar.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Location:    in.Location,
		Start: &calendar.EventDateTime{
			DateTime: in.Start.Format(time.RFC3339),
			TimeZone: tz,
		},
		End: &calendar.EventDateTime{
			DateTime: in.End.Format(time.RFC3339),
			TimeZone: tz,
		},
	}
}

// toCalendarInfo converts a Google calendar list entry.
func toCalendarInfo(entry *calendar.CalendarListEntry) CalendarInfo {
	if entry == nil {
		return CalendarInfo{}
	}
	return CalendarInfo{
		ID:       entry.Id,
		Summary:  entry.Summary,
		TimeZone: entry.TimeZone,
		Primary:  entry.Primary,
	}
}
