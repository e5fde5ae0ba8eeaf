package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// accountRepo implements AccountRepository.
type accountRepo struct {
	db *sqlx.DB
}

const accountColumns = `id, user_id, access_token, refresh_token, token_expiry, calendar_id,
	sync_enabled, sync_direction, sync_frequency_minutes, last_sync_at, created_at, updated_at`

func (r *accountRepo) GetByID(ctx context.Context, id string) (*CalendarAccount, error) {
	var acc CalendarAccount
	query := `SELECT ` + accountColumns + ` FROM calendar_accounts WHERE id = $1`
	if err := r.db.GetContext(ctx, &acc, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get calendar account: %w", err)
	}
	return &acc, nil
}

func (r *accountRepo) GetByUserID(ctx context.Context, userID string) (*CalendarAccount, error) {
	var acc CalendarAccount
	query := `SELECT ` + accountColumns + ` FROM calendar_accounts WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &acc, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get calendar account by user: %w", err)
	}
	return &acc, nil
}

func (r *accountRepo) ListSyncEnabled(ctx context.Context) ([]CalendarAccount, error) {
	var accounts []CalendarAccount
	query := `SELECT ` + accountColumns + ` FROM calendar_accounts WHERE sync_enabled = TRUE ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &accounts, query); err != nil {
		return nil, fmt.Errorf("failed to list sync-enabled accounts: %w", err)
	}
	return accounts, nil
}

func (r *accountRepo) Create(ctx context.Context, acc CalendarAccount) (*CalendarAccount, error) {
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if acc.CalendarID == "" {
		acc.CalendarID = "primary"
	}
	if acc.SyncDirection == "" {
		acc.SyncDirection = DirectionBidirectional
	}

	var created CalendarAccount
	query := `
		INSERT INTO calendar_accounts (
			id, user_id, access_token, refresh_token, token_expiry, calendar_id,
			sync_enabled, sync_direction, sync_frequency_minutes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING ` + accountColumns
	err := r.db.GetContext(ctx, &created, query,
		acc.ID, acc.UserID, acc.AccessToken, acc.RefreshToken, acc.TokenExpiry,
		acc.CalendarID, acc.SyncEnabled, acc.SyncDirection, acc.SyncFrequencyMinutes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar account: %w", err)
	}
	return &created, nil
}

func (r *accountRepo) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error {
	query := `
		UPDATE calendar_accounts
		SET access_token = $1, refresh_token = $2, token_expiry = $3, updated_at = NOW()
		WHERE id = $4`
	res, err := r.db.ExecContext(ctx, query, accessToken, refreshToken, expiry, id)
	if err != nil {
		return fmt.Errorf("failed to update account tokens: %w", err)
	}
	return requireRow(res)
}

func (r *accountRepo) UpdateSettings(ctx context.Context, id string, settings AccountSettings) error {
	if !settings.SyncDirection.IsValid() {
		return fmt.Errorf("invalid sync direction %q", settings.SyncDirection)
	}
	calendarID := settings.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	query := `
		UPDATE calendar_accounts
		SET sync_enabled = $1, sync_direction = $2, sync_frequency_minutes = $3,
			calendar_id = $4, updated_at = NOW()
		WHERE id = $5`
	res, err := r.db.ExecContext(ctx, query,
		settings.SyncEnabled, settings.SyncDirection, settings.SyncFrequencyMinutes, calendarID, id)
	if err != nil {
		return fmt.Errorf("failed to update account settings: %w", err)
	}
	return requireRow(res)
}

func (r *accountRepo) SetSyncEnabled(ctx context.Context, id string, enabled bool) error {
	query := `UPDATE calendar_accounts SET sync_enabled = $1, updated_at = NOW() WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to set sync enabled: %w", err)
	}
	return requireRow(res)
}

func (r *accountRepo) StampLastSync(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE calendar_accounts SET last_sync_at = $1, updated_at = NOW() WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to stamp last sync: %w", err)
	}
	return requireRow(res)
}

func (r *accountRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM calendar_accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete calendar account: %w", err)
	}
	return requireRow(res)
}

// appointmentRepo implements AppointmentRepository.
type appointmentRepo struct {
	db *sqlx.DB
}

const appointmentColumns = `id, user_id, patient_id, title, start_time, end_time, location,
	notes, status, external_event_id, created_at, updated_at`

func (r *appointmentRepo) GetByID(ctx context.Context, id string) (*Appointment, error) {
	var appt Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if err := r.db.GetContext(ctx, &appt, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appt, nil
}

func (r *appointmentRepo) FindByExternalID(ctx context.Context, userID, externalEventID string) (*Appointment, error) {
	var appt Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE user_id = $1 AND external_event_id = $2`
	if err := r.db.GetContext(ctx, &appt, query, userID, externalEventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find appointment by external id: %w", err)
	}
	return &appt, nil
}

func (r *appointmentRepo) FindExportCandidates(ctx context.Context, userID string, from, to time.Time) ([]Appointment, error) {
	var appts []Appointment
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE user_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time`
	if err := r.db.SelectContext(ctx, &appts, query, userID, from, to); err != nil {
		return nil, fmt.Errorf("failed to find export candidates: %w", err)
	}
	return appts, nil
}

func (r *appointmentRepo) Create(ctx context.Context, appt Appointment) (*Appointment, error) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = StatusPlanned
	}

	var created Appointment
	query := `
		INSERT INTO appointments (
			id, user_id, patient_id, title, start_time, end_time, location,
			notes, status, external_event_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING ` + appointmentColumns
	err := r.db.GetContext(ctx, &created, query,
		appt.ID, appt.UserID, appt.PatientID, appt.Title, appt.StartTime, appt.EndTime,
		appt.Location, appt.Notes, appt.Status, appt.ExternalEventID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateExternalEvent
		}
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	return &created, nil
}

func (r *appointmentRepo) Update(ctx context.Context, appt Appointment) error {
	query := `
		UPDATE appointments
		SET title = $1, start_time = $2, end_time = $3, location = $4,
			notes = $5, status = $6, patient_id = $7, updated_at = NOW()
		WHERE id = $8`
	res, err := r.db.ExecContext(ctx, query,
		appt.Title, appt.StartTime, appt.EndTime, appt.Location,
		appt.Notes, appt.Status, appt.PatientID, appt.ID)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	return requireRow(res)
}

func (r *appointmentRepo) SetExternalEventID(ctx context.Context, id, externalEventID string) error {
	query := `
		UPDATE appointments
		SET external_event_id = $1, updated_at = NOW()
		WHERE id = $2 AND external_event_id IS NULL`
	res, err := r.db.ExecContext(ctx, query, externalEventID, id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateExternalEvent
		}
		return fmt.Errorf("failed to set external event id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		// Either the appointment is gone or the id was already written.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrExternalEventIDSet
	}
	return nil
}

// patientRepo implements PatientRepository.
type patientRepo struct {
	db *sqlx.DB
}

func (r *patientRepo) ListByUserID(ctx context.Context, userID string) ([]Patient, error) {
	var patients []Patient
	query := `SELECT id, user_id, first_name, last_name FROM patients WHERE user_id = $1 ORDER BY last_name, first_name`
	if err := r.db.SelectContext(ctx, &patients, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}

// requireRow maps a zero-row update to ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
