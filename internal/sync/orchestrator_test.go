package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxamed/calsync/internal/calendar"
	"github.com/praxamed/calsync/internal/match"
	"github.com/praxamed/calsync/internal/store"
	"github.com/praxamed/calsync/internal/store/storetest"
	"github.com/praxamed/calsync/internal/token"
)

// fakeProvider is a stateful in-memory calendar. Created events get a fresh
// UpdatedAt stamp, like the real provider assigns one server-side.
type fakeProvider struct {
	mu      gosync.Mutex
	events  map[string]calendar.Event
	nextID  int
	listErr error
	// updateErr fails UpdateEvent for a specific event id.
	updateErr map[string]error
	createErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		events:    make(map[string]calendar.Event),
		updateErr: make(map[string]error),
	}
}

func (p *fakeProvider) addEvent(e calendar.Event) calendar.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.ID == "" {
		p.nextID++
		e.ID = fmt.Sprintf("evt-%d", p.nextID)
	}
	if e.Status == "" {
		e.Status = calendar.EventStatusConfirmed
	}
	p.events[e.ID] = e
	return e
}

func (p *fakeProvider) event(id string) (calendar.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.events[id]
	return e, ok
}

func (p *fakeProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func (p *fakeProvider) ListEvents(_ context.Context, _ string, from, to time.Time) ([]calendar.Event, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []calendar.Event
	for _, e := range p.events {
		if e.Start.Before(from) || !e.Start.Before(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (p *fakeProvider) CreateEvent(_ context.Context, _ string, in calendar.EventInput) (string, error) {
	if p.createErr != nil {
		return "", p.createErr
	}
	created := p.addEvent(calendar.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Location:    in.Location,
		Start:       in.Start,
		End:         in.End,
		UpdatedAt:   time.Now(),
	})
	return created.ID, nil
}

func (p *fakeProvider) UpdateEvent(_ context.Context, _ string, eventID string, in calendar.EventInput) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.updateErr[eventID]; err != nil {
		return err
	}
	e, ok := p.events[eventID]
	if !ok {
		return &calendar.APIError{EventID: eventID, Op: "update event", StatusCode: 404, Err: errors.New("not found")}
	}
	e.Summary = in.Summary
	e.Description = in.Description
	e.Location = in.Location
	e.Start = in.Start
	e.End = in.End
	e.UpdatedAt = time.Now()
	p.events[eventID] = e
	return nil
}

func (p *fakeProvider) ListCalendars(context.Context, string) ([]calendar.CalendarInfo, error) {
	return []calendar.CalendarInfo{{ID: "primary", Summary: "Primary", Primary: true}}, nil
}

type fakeTokens struct {
	err   error
	calls int
}

func (t *fakeTokens) ValidAccessToken(context.Context, string) (string, error) {
	t.calls++
	if t.err != nil {
		return "", t.err
	}
	return "access-token", nil
}

type syncFixture struct {
	store    *storetest.Fake
	provider *fakeProvider
	tokens   *fakeTokens
	orch     *Orchestrator
	account  store.CalendarAccount
}

func newSyncFixture(t *testing.T, direction store.SyncDirection) *syncFixture {
	t.Helper()

	fake := storetest.New()
	provider := newFakeProvider()
	tokens := &fakeTokens{}

	acc := fake.AddAccount(store.CalendarAccount{
		UserID:        "user-1",
		AccessToken:   "access-token",
		RefreshToken:  "refresh-token",
		SyncEnabled:   true,
		SyncDirection: direction,
	})

	matcher := match.NewSubstringMatcher(fake.Patients(), 1.0)
	orch := NewOrchestrator(fake.Accounts(), fake.Appointments(), tokens, provider, matcher, slog.New(slog.DiscardHandler))

	return &syncFixture{store: fake, provider: provider, tokens: tokens, orch: orch, account: acc}
}

func TestRunUnknownAccount(t *testing.T) {
	f := newSyncFixture(t, store.DirectionBidirectional)

	res, err := f.orch.Run(context.Background(), "no-such-account")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccountNotConnected)
	assert.Nil(t, res)
}

func TestRunAccountWithoutCredentials(t *testing.T) {
	f := newSyncFixture(t, store.DirectionBidirectional)
	acc := f.store.AddAccount(store.CalendarAccount{
		UserID:        "user-2",
		SyncEnabled:   true,
		SyncDirection: store.DirectionBidirectional,
	})

	_, err := f.orch.Run(context.Background(), acc.ID)
	assert.ErrorIs(t, err, ErrAccountNotConnected)
}

func TestRunSyncDisabled(t *testing.T) {
	f := newSyncFixture(t, store.DirectionBidirectional)
	acc := f.store.AddAccount(store.CalendarAccount{
		UserID:        "user-3",
		AccessToken:   "tok",
		SyncEnabled:   false,
		SyncDirection: store.DirectionBidirectional,
	})

	_, err := f.orch.Run(context.Background(), acc.ID)
	assert.ErrorIs(t, err, ErrSyncDisabled)
}

func TestRunTerminalRefreshFailureDisablesAccount(t *testing.T) {
	f := newSyncFixture(t, store.DirectionBidirectional)
	f.tokens.err = &token.RefreshError{
		AccountID: f.account.ID,
		Terminal:  true,
		Err:       errors.New("invalid_grant"),
	}

	_, err := f.orch.Run(context.Background(), f.account.ID)
	require.Error(t, err)

	acc, ok := f.store.Account(f.account.ID)
	require.True(t, ok)
	assert.False(t, acc.SyncEnabled, "terminal refresh failure should disable sync")
	assert.Nil(t, acc.LastSyncAt)
}

func TestRunTransientRefreshFailureKeepsAccountEnabled(t *testing.T) {
	f := newSyncFixture(t, store.DirectionBidirectional)
	f.tokens.err = &token.RefreshError{
		AccountID: f.account.ID,
		Terminal:  false,
		Err:       errors.New("temporarily unavailable"),
	}

	_, err := f.orch.Run(context.Background(), f.account.ID)
	require.Error(t, err)

	acc, ok := f.store.Account(f.account.ID)
	require.True(t, ok)
	assert.True(t, acc.SyncEnabled)
}

func TestImportCreatesMatchedAppointment(t *testing.T) {
	f := newSyncFixture(t, store.DirectionImport)
	f.store.AddPatient(store.Patient{UserID: "user-1", FirstName: "Marie", LastName: "Dupont"})

	start := time.Now().Add(24 * time.Hour)
	event := f.provider.addEvent(calendar.Event{
		Summary:   "Dupont Marie",
		Location:  "Cabinet A",
		Start:     start,
		End:       start.Add(30 * time.Minute),
		UpdatedAt: time.Now().Add(-time.Hour),
	})

	res, err := f.orch.Run(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ImportedCount)
	assert.Zero(t, res.SkippedCount)
	assert.True(t, res.Success)

	appts := f.store.AppointmentsForUser("user-1")
	require.Len(t, appts, 1)
	appt := appts[0]
	assert.Equal(t, "Dupont Marie", appt.Title)
	assert.Equal(t, "Cabinet A", appt.Location)
	assert.Equal(t, store.StatusPlanned, appt.Status)
	require.NotNil(t, appt.ExternalEventID)
	assert.Equal(t, event.ID, *appt.ExternalEventID)
	require.NotNil(t, appt.PatientID)
}

func TestImportDropsUnmatchedEvent(t *testing.T) {
	f := newSyncFixture(t, store.DirectionImport)
	f.store.AddPatient(store.Patient{UserID: "user-1", FirstName: "Marie", LastName: "Dupont"})

	start := time.Now().Add(2 * time.Hour)
	f.provider.addEvent(calendar.Event{
		Summary:   "Team planning",
		Start:     start,
		End:       start.Add(time.Hour),
		UpdatedAt: time.Now().Add(-time.Hour),
	})

	res, err := f.orch.Run(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Zero(t, res.ImportedCount)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Empty(t, f.store.AppointmentsForUser("user-1"))
}

func TestImportIsIdempotent(t *testing.T) {
	f := newSyncFixture(t, store.DirectionImport)
	f.store.AddPatient(store.Patient{UserID: "user-1", FirstName: "Marie", LastName: "Dupont"})

	start := time.Now().Add(24 * time.Hour)
	f.provider.addEvent(calendar.Event{
		Summary:   "Dupont Marie",
		Start:     start,
		End:       start.Add(30 * time.Minute),
		UpdatedAt: time.Now().Add(-time.Hour),
	})

	first, err := f.orch.Run(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ImportedCount)

	second, err := f.orch.Run(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Zero(t, second.ImportedCount)
	assert.Zero(t, second.UpdatedCount)
	assert.Len(t, f.store.AppointmentsForUser("user-1"), 1)
}

func TestImportRemoteNewerOverwritesLocal(t *testing.T) {
	f := newSyncFixture(t, store.DirectionImport)

	start := time.Now().Add(24 * time.Hour)
	eventID := "evt-remote"
	f.store.AddAppointment(store.Appointment{
		UserID:          "user-1",
		Title:           "Dupont Marie",
		StartTime:       start,
		EndTime:         start.Add(30 * time.Minute),
		Status:          store.StatusConfirmed,
		ExternalEventID: &eventID,
		UpdatedAt:       time.Now().Add(-2 * time.Hour),
	})
	f.provider.addEvent(calendar.Event{
		ID:        eventID,
		Summary:   "Dupont Marie (suivi)",
		Location:  "Cabinet B",
		Start:     start.Add(time.Hour),
		End:       start.Add(90 * time.Minute),
		UpdatedAt: time.Now().Add(-time.Minute),
	})

	res, err := f.orch.Run(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)
	assert.Zero(t, res.ImportedCount)

	appts := f.store.AppointmentsForUser("user-1")
	require.Len(t, appts, 1)
	assert.Equal(t, "Dupont Marie (suivi)", appts[0].Title)
	assert.Equal(t, "Cabinet B", appts[0].Location)
	assert.Equal(t, store.StatusConfirmed, appts[0].Status, "status is preserved unless the remote event is cancelled")
}

func TestImportRemoteOlderLeavesLocalAlone(t *testing.T) {
	f := newSyncFixture(t, store.DirectionImport)

	start := time.Now().Add(24 * time.Hour)
	eventID := "evt-remote"
	f.store.AddAppointment(store.Appointment{
		UserID:          "user-1",
		Title:           "Dupont Marie",
		StartTime:       start,
		EndTime:         start.Add(30 * time.Minute),
		ExternalEventID: &eventID,
		UpdatedAt:       time.Now(),
	})
	f.provider.addEvent(calendar.Event{
		ID:        eventID,
		Summary:   "Stale remote title",
		Start:     start,
		End:       start.Add(30 * time.Minute),
		UpdatedAt: time.Now().Add(-time.Hour),
	})

	res, err := f.orch.Run(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Zero(t, res.UpdatedCount)

	appts := f.store.AppointmentsForUser("user-1")
	require.Len(t, appts, 1)
	assert.Equal(t, "Dupont Marie", appts[0].Title)
}

func TestImportCancelledEventCancelsAppointment(t *testing.T) {
	f := newSyncFixture(t, store.DirectionImport)

	start := time.Now().Add(24 * time.Hour)
	eventID := "evt-cancelled"
	f.store.AddAppointment(store.Appointment{
		UserID:          "user-1",
		Title:           "Dupont Marie",
		StartTime:       start,
		EndTime:         start.Add(30 * time.Minute),
		Status:          store.StatusConfirmed,
		ExternalEventID: &eventID,
		UpdatedAt:       time.Now().Add(-time.Hour),
	})
	f.provider.addEvent(calendar.Event{
		ID:        eventID,
		Summary:   "Dupont Marie",
		Status:    calendar.EventStatusCancelled,
		Start:     start,
		End:       start.Add(30 * time.Minute),
		UpdatedAt: time.Now(),
	})

	res, err := f.orch.Run(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)

	appts := f.store.AppointmentsForUser("user-1")
	require.Len(t, appts, 1)
	assert.Equal(t, store.StatusCancelled, appts[0].Status)
}

func TestExportCreatesAndCorrelates(t *testing.T) {
	f := newSyncFixture(t, store.DirectionExport)

	start := time.Now().Add(48 * time.Hour)
	appt := f.store.AddAppointment(store.Appointment{
		UserID:    "user-1",
		Title:     "Dupont Marie",
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
	})

	res, err := f.orch.Run(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExportedCount)
	assert.True(t, res.Success)

	stored, ok := f.store.Appointment(appt.ID)
	require.True(t, ok)
	require.NotNil(t, stored.ExternalEventID)

	remote, ok := f.provider.event(*stored.ExternalEventID)
	require.True(t, ok)
	assert.Equal(t, "Dupont Marie", remote.Summary)
	assert.True(t, remote.Start.Equal(start))
}

func TestExportOverwritesCorrelatedRemote(t *testing.T) {
	f := newSyncFixture(t, store.DirectionExport)

	start := time.Now().Add(48 * time.Hour)
	event := f.provider.addEvent(calendar.Event{
		Summary:   "Old title",
		Start:     start,
		End:       start.Add(time.Hour),
		UpdatedAt: time.Now(),
	})
	f.store.AddAppointment(store.Appointment{
		UserID:          "user-1",
		Title:           "New title",
		StartTime:       start,
		EndTime:         start.Add(30 * time.Minute),
		ExternalEventID: &event.ID,
		// Local wins on export even when the remote copy is newer.
		UpdatedAt: time.Now().Add(-time.Hour),
	})

	res, err := f.orch.Run(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)
	assert.Zero(t, res.ExportedCount)

	remote, ok := f.provider.event(event.ID)
	require.True(t, ok)
	assert.Equal(t, "New title", remote.Summary)
	assert.Equal(t, 1, f.provider.count())
}

func TestRoundTripCreatesNoDuplicates(t *testing.T) {
	f := newSyncFixture(t, store.DirectionBidirectional)
	f.store.AddPatient(store.Patient{UserID: "user-1", FirstName: "Marie", LastName: "Dupont"})

	start := time.Now().Add(48 * time.Hour)
	f.store.AddAppointment(store.Appointment{
		UserID:    "user-1",
		Title:     "Dupont Marie",
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
	})

	first, err := f.orch.Run(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ExportedCount)

	// The event created by the export must not come back as a new
	// appointment on the next pass.
	second, err := f.orch.Run(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Zero(t, second.ImportedCount)
	assert.Zero(t, second.ExportedCount)

	assert.Len(t, f.store.AppointmentsForUser("user-1"), 1)
	assert.Equal(t, 1, f.provider.count())
}

func TestBidirectionalPass(t *testing.T) {
	f := newSyncFixture(t, store.DirectionBidirectional)
	f.store.AddPatient(store.Patient{UserID: "user-1", FirstName: "Marie", LastName: "Dupont"})

	remoteStart := time.Now().Add(24 * time.Hour)
	f.provider.addEvent(calendar.Event{
		Summary:   "Consultation Dupont Marie",
		Start:     remoteStart,
		End:       remoteStart.Add(30 * time.Minute),
		UpdatedAt: time.Now().Add(-24 * time.Hour),
	})

	localStart := time.Now().Add(24 * time.Hour)
	f.store.AddAppointment(store.Appointment{
		UserID:    "user-1",
		Title:     "Dupont Marie - Suivi",
		StartTime: localStart,
		EndTime:   localStart.Add(30 * time.Minute),
	})

	res, err := f.orch.Run(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ImportedCount)
	assert.Equal(t, 1, res.ExportedCount)
	assert.Empty(t, res.Errors)
	assert.True(t, res.Success)

	assert.Len(t, f.store.AppointmentsForUser("user-1"), 2)
	assert.Equal(t, 2, f.provider.count())

	acc, ok := f.store.Account(f.account.ID)
	require.True(t, ok)
	require.NotNil(t, acc.LastSyncAt)
}

func TestEventFailureDoesNotAbortPass(t *testing.T) {
	f := newSyncFixture(t, store.DirectionExport)

	base := time.Now().Add(24 * time.Hour)
	failingID := "evt-broken"
	f.provider.addEvent(calendar.Event{ID: failingID, Summary: "Broken", Start: base, End: base.Add(time.Hour)})
	f.provider.updateErr[failingID] = &calendar.APIError{
		EventID:    failingID,
		Op:         "update event",
		StatusCode: 500,
		Err:        errors.New("backend error"),
	}

	for i, title := range []string{"First", "Broken", "Last"} {
		start := base.Add(time.Duration(i) * time.Hour)
		appt := store.Appointment{
			UserID:    "user-1",
			Title:     title,
			StartTime: start,
			EndTime:   start.Add(30 * time.Minute),
		}
		if title == "Broken" {
			appt.ExternalEventID = &failingID
		}
		f.store.AddAppointment(appt)
	}

	res, err := f.orch.Run(context.Background(), f.account.ID)
	require.NoError(t, err, "per-event failures must not abort the run")
	assert.Equal(t, 2, res.ExportedCount)
	assert.True(t, res.Success, "per-event failures are recorded, not a failed run")
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Broken")

	acc, ok := f.store.Account(f.account.ID)
	require.True(t, ok)
	assert.NotNil(t, acc.LastSyncAt, "the run is stamped even when events failed")
}

func TestListFailureRecordedAndExportStillRuns(t *testing.T) {
	f := newSyncFixture(t, store.DirectionBidirectional)
	f.provider.listErr = &calendar.APIError{Op: "list events", StatusCode: 503, Err: errors.New("unavailable")}

	start := time.Now().Add(24 * time.Hour)
	f.store.AddAppointment(store.Appointment{
		UserID:    "user-1",
		Title:     "Dupont Marie",
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
	})

	res, err := f.orch.Run(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.ExportedCount)
}

func TestImportIgnoresEventsOutsideWindow(t *testing.T) {
	f := newSyncFixture(t, store.DirectionImport)
	f.store.AddPatient(store.Patient{UserID: "user-1", FirstName: "Marie", LastName: "Dupont"})

	tooOld := time.Now().Add(-40 * 24 * time.Hour)
	f.provider.addEvent(calendar.Event{
		Summary:   "Dupont Marie",
		Start:     tooOld,
		End:       tooOld.Add(time.Hour),
		UpdatedAt: time.Now(),
	})

	res, err := f.orch.Run(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Zero(t, res.ImportedCount)
	assert.Empty(t, f.store.AppointmentsForUser("user-1"))
}

func TestResultSerializesEmptyErrorsAsList(t *testing.T) {
	f := newSyncFixture(t, store.DirectionImport)

	res, err := f.orch.Run(context.Background(), f.account.ID)
	require.NoError(t, err)

	payload, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"errors":[]`)
}
