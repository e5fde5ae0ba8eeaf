package store

import (
	"context"
	"time"
)

// AccountRepository defines persistence operations for calendar accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*CalendarAccount, error)
	GetByUserID(ctx context.Context, userID string) (*CalendarAccount, error)
	ListSyncEnabled(ctx context.Context) ([]CalendarAccount, error)
	Create(ctx context.Context, acc CalendarAccount) (*CalendarAccount, error)

	// UpdateTokens persists a refreshed credential set so concurrent and
	// future callers observe the new access token.
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error

	UpdateSettings(ctx context.Context, id string, settings AccountSettings) error
	SetSyncEnabled(ctx context.Context, id string, enabled bool) error
	StampLastSync(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// AppointmentRepository defines persistence operations for appointments.
// Appointments are scoped by the owning user; a calendar account maps
// one-to-one to a user, so user scope and account scope coincide.
type AppointmentRepository interface {
	GetByID(ctx context.Context, id string) (*Appointment, error)
	FindByExternalID(ctx context.Context, userID, externalEventID string) (*Appointment, error)

	// FindExportCandidates returns appointments whose start time falls in
	// [from, to), whether or not they already carry an external event id.
	FindExportCandidates(ctx context.Context, userID string, from, to time.Time) ([]Appointment, error)

	Create(ctx context.Context, appt Appointment) (*Appointment, error)
	Update(ctx context.Context, appt Appointment) error

	// SetExternalEventID links an appointment to a remote event. The link is
	// written exactly once; a second call fails with ErrExternalEventIDSet.
	SetExternalEventID(ctx context.Context, id, externalEventID string) error
}

// PatientRepository reads patient records for the matcher.
type PatientRepository interface {
	ListByUserID(ctx context.Context, userID string) ([]Patient, error)
}
