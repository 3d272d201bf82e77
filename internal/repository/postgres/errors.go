package postgres

import (
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/jwalitptl/clinic-scheduler/internal/repository"
)

const (
	codeUniqueViolation     = pq.ErrorCode("23505")
	codeForeignKeyViolation = pq.ErrorCode("23503")
	codeExclusionViolation  = pq.ErrorCode("23P01")
)

// mapError turns driver errors into repository sentinels and wraps the rest
// with op.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeExclusionViolation:
			return repository.ErrOverlap
		case codeForeignKeyViolation:
			return fmt.Errorf("failed to %s: %w (%s)", op, repository.ErrNotFound, pqErr.Constraint)
		case codeUniqueViolation:
			return fmt.Errorf("failed to %s: duplicate value for %s: %w", op, pqErr.Constraint, err)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
