// Package storetest provides in-memory repository implementations for tests.
//
// The fakes enforce the same invariants as the PostgreSQL implementation:
// the (user, external event id) de-duplication key and the set-once semantics
// of SetExternalEventID.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/praxamed/calsync/internal/store"
)

// Fake is an in-memory implementation of the store repositories.
type Fake struct {
	mu           sync.Mutex
	accounts     map[string]store.CalendarAccount
	appointments map[string]store.Appointment
	patients     map[string][]store.Patient

	// Errs allows tests to inject failures per method name.
	Errs map[string]error
}

// New creates an empty fake store.
func New() *Fake {
	return &Fake{
		accounts:     make(map[string]store.CalendarAccount),
		appointments: make(map[string]store.Appointment),
		patients:     make(map[string][]store.Patient),
		Errs:         make(map[string]error),
	}
}

func (f *Fake) err(method string) error { return f.Errs[method] }

// Accounts returns the fake as an AccountRepository.
func (f *Fake) Accounts() store.AccountRepository { return (*fakeAccounts)(f) }

// Appointments returns the fake as an AppointmentRepository.
func (f *Fake) Appointments() store.AppointmentRepository { return (*fakeAppointments)(f) }

// Patients returns the fake as a PatientRepository.
func (f *Fake) Patients() store.PatientRepository { return (*fakePatients)(f) }

// AddAccount seeds an account and returns it.
func (f *Fake) AddAccount(acc store.CalendarAccount) store.CalendarAccount {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if acc.CalendarID == "" {
		acc.CalendarID = "primary"
	}
	f.accounts[acc.ID] = acc
	return acc
}

// AddAppointment seeds an appointment and returns it.
func (f *Fake) AddAppointment(appt store.Appointment) store.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = store.StatusPlanned
	}
	f.appointments[appt.ID] = appt
	return appt
}

// AddPatient seeds a patient record.
func (f *Fake) AddPatient(p store.Patient) store.Patient {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	f.patients[p.UserID] = append(f.patients[p.UserID], p)
	return p
}

// Account returns a copy of a stored account.
func (f *Fake) Account(id string) (store.CalendarAccount, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	return acc, ok
}

// Appointment returns a copy of a stored appointment.
func (f *Fake) Appointment(id string) (store.Appointment, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appt, ok := f.appointments[id]
	return appt, ok
}

// AppointmentsForUser returns all stored appointments for a user ordered by
// start time.
func (f *Fake) AppointmentsForUser(userID string) []store.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Appointment
	for _, appt := range f.appointments {
		if appt.UserID == userID {
			out = append(out, appt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

type fakeAccounts Fake

func (f *fakeAccounts) GetByID(_ context.Context, id string) (*store.CalendarAccount, error) {
	if err := (*Fake)(f).err("GetByID"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := acc
	return &out, nil
}

func (f *fakeAccounts) GetByUserID(_ context.Context, userID string) (*store.CalendarAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acc := range f.accounts {
		if acc.UserID == userID {
			out := acc
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeAccounts) ListSyncEnabled(_ context.Context) ([]store.CalendarAccount, error) {
	if err := (*Fake)(f).err("ListSyncEnabled"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.CalendarAccount
	for _, acc := range f.accounts {
		if acc.SyncEnabled {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAccounts) Create(_ context.Context, acc store.CalendarAccount) (*store.CalendarAccount, error) {
	created := (*Fake)(f).AddAccount(acc)
	return &created, nil
}

func (f *fakeAccounts) UpdateTokens(_ context.Context, id, accessToken, refreshToken string, expiry time.Time) error {
	if err := (*Fake)(f).err("UpdateTokens"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	acc.AccessToken = accessToken
	acc.RefreshToken = refreshToken
	acc.TokenExpiry = expiry
	f.accounts[id] = acc
	return nil
}

func (f *fakeAccounts) UpdateSettings(_ context.Context, id string, settings store.AccountSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	acc.SyncEnabled = settings.SyncEnabled
	acc.SyncDirection = settings.SyncDirection
	acc.SyncFrequencyMinutes = settings.SyncFrequencyMinutes
	if settings.CalendarID != "" {
		acc.CalendarID = settings.CalendarID
	}
	f.accounts[id] = acc
	return nil
}

func (f *fakeAccounts) SetSyncEnabled(_ context.Context, id string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	acc.SyncEnabled = enabled
	f.accounts[id] = acc
	return nil
}

func (f *fakeAccounts) StampLastSync(_ context.Context, id string, at time.Time) error {
	if err := (*Fake)(f).err("StampLastSync"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	acc.LastSyncAt = &at
	f.accounts[id] = acc
	return nil
}

func (f *fakeAccounts) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.accounts, id)
	return nil
}

type fakeAppointments Fake

func (f *fakeAppointments) GetByID(_ context.Context, id string) (*store.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appt, ok := f.appointments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := appt
	return &out, nil
}

func (f *fakeAppointments) FindByExternalID(_ context.Context, userID, externalEventID string) (*store.Appointment, error) {
	if err := (*Fake)(f).err("FindByExternalID"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, appt := range f.appointments {
		if appt.UserID == userID && appt.ExternalEventID != nil && *appt.ExternalEventID == externalEventID {
			out := appt
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeAppointments) FindExportCandidates(_ context.Context, userID string, from, to time.Time) ([]store.Appointment, error) {
	if err := (*Fake)(f).err("FindExportCandidates"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Appointment
	for _, appt := range f.appointments {
		if appt.UserID != userID {
			continue
		}
		if appt.StartTime.Before(from) || !appt.StartTime.Before(to) {
			continue
		}
		out = append(out, appt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (f *fakeAppointments) Create(_ context.Context, appt store.Appointment) (*store.Appointment, error) {
	if err := (*Fake)(f).err("Create"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if appt.ExternalEventID != nil {
		for _, existing := range f.appointments {
			if existing.UserID == appt.UserID && existing.ExternalEventID != nil &&
				*existing.ExternalEventID == *appt.ExternalEventID {
				return nil, store.ErrDuplicateExternalEvent
			}
		}
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = store.StatusPlanned
	}
	// Mirror the column defaults of the real schema.
	now := time.Now()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	if appt.UpdatedAt.IsZero() {
		appt.UpdatedAt = now
	}
	f.appointments[appt.ID] = appt
	out := appt
	return &out, nil
}

func (f *fakeAppointments) Update(_ context.Context, appt store.Appointment) error {
	if err := (*Fake)(f).err("Update"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.appointments[appt.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.Title = appt.Title
	existing.StartTime = appt.StartTime
	existing.EndTime = appt.EndTime
	existing.Location = appt.Location
	existing.Notes = appt.Notes
	existing.Status = appt.Status
	existing.PatientID = appt.PatientID
	existing.UpdatedAt = appt.UpdatedAt
	f.appointments[appt.ID] = existing
	return nil
}

func (f *fakeAppointments) SetExternalEventID(_ context.Context, id, externalEventID string) error {
	if err := (*Fake)(f).err("SetExternalEventID"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	appt, ok := f.appointments[id]
	if !ok {
		return store.ErrNotFound
	}
	if appt.ExternalEventID != nil {
		return store.ErrExternalEventIDSet
	}
	for _, existing := range f.appointments {
		if existing.UserID == appt.UserID && existing.ExternalEventID != nil &&
			*existing.ExternalEventID == externalEventID {
			return store.ErrDuplicateExternalEvent
		}
	}
	appt.ExternalEventID = &externalEventID
	appt.UpdatedAt = time.Now()
	f.appointments[id] = appt
	return nil
}

type fakePatients Fake

func (f *fakePatients) ListByUserID(_ context.Context, userID string) ([]store.Patient, error) {
	if err := (*Fake)(f).err("ListByUserID"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Patient, len(f.patients[userID]))
	copy(out, f.patients[userID])
	return out, nil
}
