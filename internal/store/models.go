package store

import (
	"time"
)

// SyncDirection controls which passes the sync engine runs for an account.
type SyncDirection string

const (
	DirectionImport        SyncDirection = "import"
	DirectionExport        SyncDirection = "export"
	DirectionBidirectional SyncDirection = "bidirectional"
)

// validDirections contains all valid sync direction values.
var validDirections = map[SyncDirection]bool{
	DirectionImport:        true,
	DirectionExport:        true,
	DirectionBidirectional: true,
}

// IsValid returns true if the direction is a known valid value.
func (d SyncDirection) IsValid() bool {
	return validDirections[d]
}

// Imports returns true if the direction includes the import pass.
func (d SyncDirection) Imports() bool {
	return d == DirectionImport || d == DirectionBidirectional
}

// Exports returns true if the direction includes the export pass.
func (d SyncDirection) Exports() bool {
	return d == DirectionExport || d == DirectionBidirectional
}

// AppointmentStatus is the lifecycle state of a local appointment.
type AppointmentStatus string

const (
	StatusPlanned   AppointmentStatus = "planned"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// CalendarAccount is a practitioner's linked external-calendar credential set.
// There is at most one per user.
type CalendarAccount struct {
	ID            string        `db:"id"`
	UserID        string        `db:"user_id"`
	AccessToken   string        `db:"access_token"`
	RefreshToken  string        `db:"refresh_token"`
	TokenExpiry   time.Time     `db:"token_expiry"`
	CalendarID    string        `db:"calendar_id"`
	SyncEnabled   bool          `db:"sync_enabled"`
	SyncDirection SyncDirection `db:"sync_direction"`

	// SyncFrequencyMinutes is advisory for the scheduler; 0 means the
	// global default interval.
	SyncFrequencyMinutes int `db:"sync_frequency_minutes"`

	LastSyncAt *time.Time `db:"last_sync_at"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

// AccountSettings are the practitioner-editable sync settings.
type AccountSettings struct {
	SyncEnabled          bool          `json:"syncEnabled"`
	SyncDirection        SyncDirection `json:"syncDirection"`
	SyncFrequencyMinutes int           `json:"syncFrequencyMinutes"`
	CalendarID           string        `json:"calendarId"`
}

// Appointment is a locally stored appointment. ExternalEventID correlates it
// with a remote calendar event; it is set exactly once and never changes.
type Appointment struct {
	ID              string            `db:"id"`
	UserID          string            `db:"user_id"`
	PatientID       *string           `db:"patient_id"`
	Title           string            `db:"title"`
	StartTime       time.Time         `db:"start_time"`
	EndTime         time.Time         `db:"end_time"`
	Location        string            `db:"location"`
	Notes           string            `db:"notes"`
	Status          AppointmentStatus `db:"status"`
	ExternalEventID *string           `db:"external_event_id"`
	CreatedAt       time.Time         `db:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at"`
}

// Patient is the subset of the patient record the matcher needs. Patient
// records are owned by the surrounding practice-management application;
// calsync only reads them.
type Patient struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
}
