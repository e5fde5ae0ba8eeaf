package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store aggregates repositories backed by PostgreSQL.
type Store struct {
	db *sqlx.DB

	accounts     AccountRepository
	appointments AppointmentRepository
	patients     PatientRepository
}

// Open connects to PostgreSQL and returns a Store with configured pooling.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	return New(db), nil
}

// New wires concrete repository implementations with a shared connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{
		db:           db,
		accounts:     &accountRepo{db: db},
		appointments: &appointmentRepo{db: db},
		patients:     &patientRepo{db: db},
	}
}

// Accounts returns the calendar account repository.
func (s *Store) Accounts() AccountRepository { return s.accounts }

// Appointments returns the appointment repository.
func (s *Store) Appointments() AppointmentRepository { return s.appointments }

// Patients returns the patient repository.
func (s *Store) Patients() PatientRepository { return s.patients }

// HealthCheck verifies that the underlying database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
