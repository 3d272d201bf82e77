package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/internal/repository"
	"github.com/jwalitptl/clinic-scheduler/internal/scheduling"
)

const appointmentColumns = `
	id, business_id, appointment_number, patient_id, staff_id, created_by,
	appointment_date, start_time, end_time, duration_minutes, type, status,
	reason_for_visit, notes, fee, cancellation_reason,
	confirmed_at, completed_at, cancelled_at, rescheduled_from,
	created_at, updated_at`

type appointmentRepository struct {
	db *sqlx.DB
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{db: db}
}

func (r *appointmentRepository) Get(ctx context.Context, businessID, id uuid.UUID) (*model.Appointment, error) {
	return getAppointment(ctx, r.db, businessID, id, "")
}

func (r *appointmentRepository) List(ctx context.Context, q model.AppointmentQuery) ([]*model.Appointment, int, error) {
	where := []string{"business_id = $1"}
	args := []interface{}{q.BusinessID}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if q.Status != nil {
		add("status = $%d", *q.Status)
	}
	if q.StaffID != nil {
		add("staff_id = $%d", *q.StaffID)
	}
	if q.PatientID != nil {
		add("patient_id = $%d", *q.PatientID)
	}
	if q.Type != nil {
		add("type = $%d", *q.Type)
	}
	if q.DateFrom != nil {
		add("appointment_date >= $%d", *q.DateFrom)
	}
	if q.DateTo != nil {
		add("appointment_date <= $%d", *q.DateTo)
	}
	if q.ActiveOnly {
		add("status = ANY($%d)", statusArray(scheduling.ActiveStatuses))
	}
	if q.VisibleTo != nil {
		args = append(args, *q.VisibleTo)
		where = append(where, fmt.Sprintf("(created_by = $%d OR staff_id = $%d)", len(args), len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM appointments WHERE "+cond, args...); err != nil {
		return nil, 0, mapError("count appointments", err)
	}

	query := "SELECT " + appointmentColumns + " FROM appointments WHERE " + cond +
		" ORDER BY appointment_date ASC, start_time ASC, id ASC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	appointments := []*model.Appointment{}
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, 0, mapError("list appointments", err)
	}
	return appointments, total, nil
}

func (r *appointmentRepository) ListForStaffDay(ctx context.Context, key repository.StaffDayKey, statuses []scheduling.Status) ([]*model.Appointment, error) {
	return listForStaffDay(ctx, r.db, key, statuses)
}

// Atomically serializes writers of one staff day with a transaction-scoped
// advisory lock. The lock is released on commit or rollback.
func (r *appointmentRepository) Atomically(ctx context.Context, lock *repository.StaffDayKey, fn func(tx repository.AppointmentTx) error) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if lock != nil {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lock.String()); err != nil {
				return fmt.Errorf("failed to lock staff day %s: %w", lock, err)
			}
		}
		return fn(&appointmentTx{tx: tx})
	})
}

type appointmentTx struct {
	tx *sqlx.Tx
}

func (t *appointmentTx) ListForStaffDay(ctx context.Context, key repository.StaffDayKey, statuses []scheduling.Status) ([]*model.Appointment, error) {
	return listForStaffDay(ctx, t.tx, key, statuses)
}

func (t *appointmentTx) GetForUpdate(ctx context.Context, businessID, id uuid.UUID) (*model.Appointment, error) {
	return getAppointment(ctx, t.tx, businessID, id, " FOR UPDATE")
}

func (t *appointmentTx) Create(ctx context.Context, apt *model.Appointment) error {
	if apt.ID == uuid.Nil {
		apt.ID = uuid.New()
	}
	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES (
			:id, :business_id, :appointment_number, :patient_id, :staff_id, :created_by,
			:appointment_date, :start_time, :end_time, :duration_minutes, :type, :status,
			:reason_for_visit, :notes, :fee, :cancellation_reason,
			:confirmed_at, :completed_at, :cancelled_at, :rescheduled_from,
			NOW(), NOW()
		)
		RETURNING created_at, updated_at`
	rows, err := sqlx.NamedQueryContext(ctx, t.tx, query, apt)
	if err != nil {
		return mapError("create appointment", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&apt.CreatedAt, &apt.UpdatedAt); err != nil {
			return mapError("create appointment", err)
		}
	}
	return mapError("create appointment", rows.Err())
}

func (t *appointmentTx) Update(ctx context.Context, apt *model.Appointment) error {
	query := `
		UPDATE appointments SET
			patient_id = :patient_id,
			staff_id = :staff_id,
			appointment_date = :appointment_date,
			start_time = :start_time,
			end_time = :end_time,
			duration_minutes = :duration_minutes,
			type = :type,
			status = :status,
			reason_for_visit = :reason_for_visit,
			notes = :notes,
			fee = :fee,
			cancellation_reason = :cancellation_reason,
			confirmed_at = :confirmed_at,
			completed_at = :completed_at,
			cancelled_at = :cancelled_at,
			updated_at = NOW()
		WHERE id = :id AND business_id = :business_id`
	result, err := t.tx.NamedExecContext(ctx, query, apt)
	if err != nil {
		return mapError("update appointment", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (t *appointmentTx) Delete(ctx context.Context, businessID, id uuid.UUID) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM appointments WHERE id = $1 AND business_id = $2`, id, businessID)
	if err != nil {
		return mapError("delete appointment", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (t *appointmentTx) AddEvent(ctx context.Context, evt *model.OutboxEvent) error {
	return insertOutboxEvent(ctx, t.tx, evt)
}

func getAppointment(ctx context.Context, q querier, businessID, id uuid.UUID, suffix string) (*model.Appointment, error) {
	query := "SELECT " + appointmentColumns + " FROM appointments WHERE id = $1 AND business_id = $2" + suffix
	var apt model.Appointment
	if err := q.GetContext(ctx, &apt, query, id, businessID); err != nil {
		return nil, mapError("get appointment", err)
	}
	return &apt, nil
}

func listForStaffDay(ctx context.Context, q querier, key repository.StaffDayKey, statuses []scheduling.Status) ([]*model.Appointment, error) {
	if len(statuses) == 0 {
		statuses = scheduling.ActiveStatuses
	}
	query := "SELECT " + appointmentColumns + ` FROM appointments
		WHERE business_id = $1 AND staff_id = $2 AND appointment_date = $3 AND status = ANY($4)
		ORDER BY start_time ASC`
	appointments := []*model.Appointment{}
	if err := q.SelectContext(ctx, &appointments, query, key.BusinessID, key.StaffID, key.Date, statusArray(statuses)); err != nil {
		return nil, mapError("list staff day", err)
	}
	return appointments, nil
}

func statusArray(statuses []scheduling.Status) interface{} {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.Array(out)
}
