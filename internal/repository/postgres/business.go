package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/internal/repository"
)

type businessRepository struct {
	db *sqlx.DB
}

func NewBusinessRepository(db *sqlx.DB) repository.BusinessRepository {
	return &businessRepository{db: db}
}

func (r *businessRepository) Get(ctx context.Context, id uuid.UUID) (*model.Business, error) {
	query := `
		SELECT id, name, timezone, operating_hours, subscription_plan,
			   subscription_expires_at, is_active, created_at, updated_at
		FROM businesses
		WHERE id = $1`
	var b model.Business
	if err := r.db.GetContext(ctx, &b, query, id); err != nil {
		return nil, mapError("get business", err)
	}
	return &b, nil
}
