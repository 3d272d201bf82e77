package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/internal/scheduling"
)

var (
	ErrNotFound = stderrors.New("record not found")
	// ErrOverlap is reported when the store itself rejects an overlapping
	// active booking.
	ErrOverlap = stderrors.New("overlapping booking")
)

// StaffDayKey identifies one staff calendar day within a business. Writes
// that can add a booking to the day are serialized on it.
type StaffDayKey struct {
	BusinessID uuid.UUID
	StaffID    uuid.UUID
	Date       scheduling.Date
}

func (k StaffDayKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.BusinessID, k.StaffID, k.Date)
}

// All repository interfaces in one file
type (
	BusinessRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Business, error)
	}

	StaffRepository interface {
		Get(ctx context.Context, businessID, id uuid.UUID) (*model.Staff, error)
	}

	PatientRepository interface {
		Get(ctx context.Context, businessID, id uuid.UUID) (*model.Patient, error)
	}

	// AppointmentReader serves queries that need no locking.
	AppointmentReader interface {
		Get(ctx context.Context, businessID, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, q model.AppointmentQuery) ([]*model.Appointment, int, error)
		ListForStaffDay(ctx context.Context, key StaffDayKey, statuses []scheduling.Status) ([]*model.Appointment, error)
	}

	// AppointmentTx is the view of the store inside one atomic unit.
	AppointmentTx interface {
		ListForStaffDay(ctx context.Context, key StaffDayKey, statuses []scheduling.Status) ([]*model.Appointment, error)
		GetForUpdate(ctx context.Context, businessID, id uuid.UUID) (*model.Appointment, error)
		Create(ctx context.Context, apt *model.Appointment) error
		Update(ctx context.Context, apt *model.Appointment) error
		Delete(ctx context.Context, businessID, id uuid.UUID) error
		AddEvent(ctx context.Context, evt *model.OutboxEvent) error
	}

	AppointmentRepository interface {
		AppointmentReader
		// Atomically runs fn in one transaction. When lock is non-nil no other
		// writer holding the same key runs concurrently, so a conflict check
		// inside fn stays valid until fn returns.
		Atomically(ctx context.Context, lock *StaffDayKey, fn func(tx AppointmentTx) error) error
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ClaimPending locks up to limit due events for the lifetime of fn.
		ClaimPending(ctx context.Context, limit int, fn func(events []*model.OutboxEvent, mark OutboxMarker) error) error
		CountPending(ctx context.Context) (int, error)
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// OutboxMarker records the outcome of delivering a claimed event.
	OutboxMarker interface {
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	}
)
