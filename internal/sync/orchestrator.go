package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/praxamed/calsync/internal/calendar"
	"github.com/praxamed/calsync/internal/logging"
	"github.com/praxamed/calsync/internal/match"
	"github.com/praxamed/calsync/internal/store"
	"github.com/praxamed/calsync/internal/token"
)

// Sync windows. Import reaches further back so late edits to recent remote
// events are still picked up; export only pushes the near past.
const (
	importLookback  = 30 * 24 * time.Hour
	importLookahead = 90 * 24 * time.Hour
	exportLookback  = 7 * 24 * time.Hour
	exportLookahead = 90 * 24 * time.Hour
)

// TokenSource yields a valid access token for an account, refreshing it on
// demand.
type TokenSource interface {
	ValidAccessToken(ctx context.Context, accountID string) (string, error)
}

// Orchestrator drives one full synchronization pass (import and export) for
// one account.
type Orchestrator struct {
	accounts     store.AccountRepository
	appointments store.AppointmentRepository
	tokens       TokenSource
	provider     calendar.Provider
	matcher      match.Matcher
	logger       *slog.Logger

	// now is a hook for tests.
	now func() time.Time
}

// NewOrchestrator wires the sync engine's collaborators.
func NewOrchestrator(
	accounts store.AccountRepository,
	appointments store.AppointmentRepository,
	tokens TokenSource,
	provider calendar.Provider,
	matcher match.Matcher,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		accounts:     accounts,
		appointments: appointments,
		tokens:       tokens,
		provider:     provider,
		matcher:      matcher,
		logger:       logger,
		now:          time.Now,
	}
}

// Run executes one synchronization pass for the account. Precondition and
// token-refresh failures return an error and leave no partial state; all
// other failures are recorded in the Result and the run completes.
func (o *Orchestrator) Run(ctx context.Context, accountID string) (*Result, error) {
	logger := logging.WithAccount(o.logger, accountID)

	acc, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: account %s", ErrAccountNotConnected, accountID)
		}
		return nil, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	if acc.AccessToken == "" && acc.RefreshToken == "" {
		return nil, fmt.Errorf("%w: account %s has no credentials on file", ErrAccountNotConnected, accountID)
	}
	if !acc.SyncEnabled {
		return nil, fmt.Errorf("%w: account %s", ErrSyncDisabled, accountID)
	}

	// Fail fast on a dead grant before touching either store. A terminal
	// refresh failure also disables the account: retrying a revoked grant
	// every pass is wasteful and can trip provider rate limits.
	if _, err := o.tokens.ValidAccessToken(ctx, accountID); err != nil {
		var refreshErr *token.RefreshError
		if errors.As(err, &refreshErr) && refreshErr.Terminal {
			if disableErr := o.accounts.SetSyncEnabled(ctx, accountID, false); disableErr != nil {
				logger.Error("failed to disable sync after terminal refresh failure", logging.Err(disableErr))
			} else {
				logger.Warn("sync disabled: calendar account needs to be reconnected")
			}
		}
		recordFailedRun()
		return nil, err
	}

	// Errors starts non-nil so a clean run serializes as an empty list.
	res := &Result{AccountID: accountID, Success: true, StartedAt: o.now(), Errors: []string{}}

	if acc.SyncDirection.Imports() {
		o.importPass(ctx, acc, res)
	}
	if acc.SyncDirection.Exports() {
		o.exportPass(ctx, acc, res)
	}

	// The run is stamped even when individual events failed.
	if err := o.accounts.StampLastSync(ctx, accountID, o.now()); err != nil {
		res.recordError("sync", "", "last sync stamp", err)
	}

	res.FinishedAt = o.now()
	recordRunMetrics(res)

	status := logging.StatusSuccess
	if len(res.Errors) > 0 {
		status = logging.StatusPartial
	}
	logger.Info("sync finished",
		logging.Status(status),
		logging.Direction(string(acc.SyncDirection)),
		slog.Int("imported", res.ImportedCount),
		slog.Int("exported", res.ExportedCount),
		slog.Int("updated", res.UpdatedCount),
		slog.Int("skipped", res.SkippedCount),
		slog.Int("errors", len(res.Errors)),
	)
	return res, nil
}

// importPass pulls remote events into local storage.
func (o *Orchestrator) importPass(ctx context.Context, acc *store.CalendarAccount, res *Result) {
	now := o.now()
	events, err := o.provider.ListEvents(ctx, acc.ID, now.Add(-importLookback), now.Add(importLookahead))
	if err != nil {
		res.recordError("import", "", "list events", err)
		return
	}

	for _, event := range events {
		if err := o.importEvent(ctx, acc, event, res); err != nil {
			res.recordError("import", event.ID, event.DisplayName(), err)
		}
	}
}

func (o *Orchestrator) importEvent(ctx context.Context, acc *store.CalendarAccount, event calendar.Event, res *Result) error {
	existing, err := o.appointments.FindByExternalID(ctx, acc.UserID, event.ID)
	switch {
	case err == nil:
		// Remote wins only when strictly newer; otherwise the local record
		// stands.
		if !event.UpdatedAt.After(existing.UpdatedAt) {
			return nil
		}
		existing.Title = event.Summary
		existing.StartTime = event.Start
		existing.EndTime = event.End
		existing.Location = event.Location
		existing.Notes = event.Description
		if event.Cancelled() {
			existing.Status = store.StatusCancelled
		}
		existing.UpdatedAt = o.now()
		if err := o.appointments.Update(ctx, *existing); err != nil {
			return err
		}
		res.UpdatedCount++
		return nil

	case errors.Is(err, store.ErrNotFound):
		m, err := o.matcher.Match(ctx, acc.UserID, event.Summary)
		if err != nil {
			return err
		}
		if m == nil {
			// Unidentified remote events are dropped rather than polluting
			// the schedule with un-attributable entries.
			res.SkippedCount++
			return nil
		}

		status := store.StatusPlanned
		if event.Cancelled() {
			status = store.StatusCancelled
		}
		externalID := event.ID
		_, err = o.appointments.Create(ctx, store.Appointment{
			UserID:          acc.UserID,
			PatientID:       &m.PatientID,
			Title:           event.Summary,
			StartTime:       event.Start,
			EndTime:         event.End,
			Location:        event.Location,
			Notes:           event.Description,
			Status:          status,
			ExternalEventID: &externalID,
		})
		if err != nil {
			return err
		}
		res.ImportedCount++
		return nil

	default:
		return err
	}
}

// exportPass pushes local appointments to the remote calendar. Export always
// overwrites remote state with local state; there is no remote-freshness
// check on this path.
func (o *Orchestrator) exportPass(ctx context.Context, acc *store.CalendarAccount, res *Result) {
	now := o.now()
	candidates, err := o.appointments.FindExportCandidates(ctx, acc.UserID, now.Add(-exportLookback), now.Add(exportLookahead))
	if err != nil {
		res.recordError("export", "", "export candidates", err)
		return
	}

	for _, appt := range candidates {
		if err := o.exportAppointment(ctx, acc, appt, res); err != nil {
			res.recordError("export", appt.ID, appt.Title, err)
		}
	}
}

func (o *Orchestrator) exportAppointment(ctx context.Context, acc *store.CalendarAccount, appt store.Appointment, res *Result) error {
	input := calendar.EventInput{
		Summary:     appt.Title,
		Description: appt.Notes,
		Location:    appt.Location,
		Start:       appt.StartTime,
		End:         appt.EndTime,
	}

	if appt.ExternalEventID != nil {
		if err := o.provider.UpdateEvent(ctx, acc.ID, *appt.ExternalEventID, input); err != nil {
			return err
		}
		res.UpdatedCount++
		return nil
	}

	eventID, err := o.provider.CreateEvent(ctx, acc.ID, input)
	if err != nil {
		return err
	}
	if err := o.appointments.SetExternalEventID(ctx, appt.ID, eventID); err != nil {
		return err
	}
	res.ExportedCount++
	return nil
}
