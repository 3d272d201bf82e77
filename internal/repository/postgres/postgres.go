// Package postgres implements the repositories on PostgreSQL through sqlx
// and lib/pq.
package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-scheduler/internal/repository"
)

// Store groups the repositories sharing one connection pool.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Businesses() repository.BusinessRepository     { return NewBusinessRepository(s.db) }
func (s *Store) Staff() repository.StaffRepository              { return NewStaffRepository(s.db) }
func (s *Store) Patients() repository.PatientRepository         { return NewPatientRepository(s.db) }
func (s *Store) Appointments() repository.AppointmentRepository { return NewAppointmentRepository(s.db) }
func (s *Store) Outbox() repository.OutboxRepository            { return NewOutboxRepository(s.db) }
