package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/internal/repository"
)

type staffRepository struct {
	db *sqlx.DB
}

func NewStaffRepository(db *sqlx.DB) repository.StaffRepository {
	return &staffRepository{db: db}
}

func (r *staffRepository) Get(ctx context.Context, businessID, id uuid.UUID) (*model.Staff, error) {
	query := `
		SELECT id, business_id, name, email, role, is_active, created_at, updated_at
		FROM staff
		WHERE id = $1 AND business_id = $2`
	var s model.Staff
	if err := r.db.GetContext(ctx, &s, query, id, businessID); err != nil {
		return nil, mapError("get staff", err)
	}
	return &s, nil
}
