package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/internal/repository"
)

type patientRepository struct {
	db *sqlx.DB
}

func NewPatientRepository(db *sqlx.DB) repository.PatientRepository {
	return &patientRepository{db: db}
}

func (r *patientRepository) Get(ctx context.Context, businessID, id uuid.UUID) (*model.Patient, error) {
	query := `
		SELECT id, business_id, first_name, last_name, email, created_at, updated_at
		FROM patients
		WHERE id = $1 AND business_id = $2`
	var p model.Patient
	if err := r.db.GetContext(ctx, &p, query, id, businessID); err != nil {
		return nil, mapError("get patient", err)
	}
	return &p, nil
}
