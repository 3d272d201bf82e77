package appointment

import (
	"context"
	stderrors "errors"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/internal/repository"
	"github.com/jwalitptl/clinic-scheduler/internal/scheduling"
	"github.com/jwalitptl/clinic-scheduler/pkg/errors"
)

// UpdateAppointment applies the fields present in req. Moving an active
// appointment re-runs the conflict check on the target staff day.
func (s *Service) UpdateAppointment(ctx context.Context, scope model.Scope, id uuid.UUID, req model.UpdateAppointmentRequest) (*model.Appointment, error) {
	if err := requireStaff(scope); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	_, scope, err := s.localize(ctx, scope)
	if err != nil {
		return nil, err
	}

	if req.PatientID != nil {
		if err := s.checkPatient(ctx, scope, uuid.MustParse(*req.PatientID)); err != nil {
			return nil, err
		}
	}
	if req.StaffID != nil {
		if err := s.checkStaff(ctx, scope, uuid.MustParse(*req.StaffID)); err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt < maxKeyRetries; attempt++ {
		current, err := s.appointments.Get(ctx, scope.BusinessID, id)
		if err != nil {
			return nil, notFound(err)
		}
		if !current.VisibleTo(scope) {
			return nil, errors.NewForbidden("unauthorized to update this appointment")
		}
		target, err := mergeUpdate(current, req)
		if err != nil {
			return nil, err
		}

		var lock *repository.StaffDayKey
		if req.TouchesSchedule() && target.Status.IsActive() {
			key := dayKey(target)
			lock = &key
		}

		var updated *model.Appointment
		err = s.appointments.Atomically(ctx, lock, func(tx repository.AppointmentTx) error {
			locked, err := tx.GetForUpdate(ctx, scope.BusinessID, id)
			if err != nil {
				return err
			}
			next, err := mergeUpdate(locked, req)
			if err != nil {
				return err
			}
			if lock != nil && dayKey(next) != *lock {
				return errKeyMoved
			}
			if lock != nil {
				if err := s.ensureFree(ctx, tx, next); err != nil {
					return err
				}
			}
			if err := tx.Update(ctx, next); err != nil {
				return err
			}
			updated = next
			return s.enqueue(ctx, tx, model.EventAppointmentUpdated, next, scope)
		})
		if stderrors.Is(err, errKeyMoved) {
			continue
		}
		if err != nil {
			return nil, s.writeError("update", err)
		}

		s.logger.Info().
			Str("business_id", scope.BusinessID.String()).
			Str("appointment_id", id.String()).
			Msg("appointment updated")
		return updated, nil
	}

	s.metrics.SchedulingConflicts.WithLabelValues("update").Inc()
	return nil, errors.NewSchedulingConflict("the appointment changed while it was being updated, please retry")
}

// mergeUpdate returns a copy of apt with req applied and the interval
// re-validated. apt itself is left untouched.
func mergeUpdate(apt *model.Appointment, req model.UpdateAppointmentRequest) (*model.Appointment, error) {
	next := *apt

	if req.PatientID != nil {
		next.PatientID = uuid.MustParse(*req.PatientID)
	}
	if req.StaffID != nil {
		next.StaffID = uuid.MustParse(*req.StaffID)
	}
	if req.Type != nil {
		next.Type = model.AppointmentType(*req.Type)
	}
	if req.ReasonForVisit != nil {
		next.ReasonForVisit = req.ReasonForVisit
	}
	if req.Notes != nil {
		next.Notes = req.Notes
	}
	if req.Fee != nil {
		next.Fee = req.Fee
	}

	if req.AppointmentDate != nil || req.StartTime != nil || req.EndTime != nil || req.DurationMinutes != nil {
		date, start, end := apt.Date, apt.StartTime, apt.EndTime
		if req.AppointmentDate != nil {
			date, _ = scheduling.ParseDate(*req.AppointmentDate)
		}
		if req.StartTime != nil {
			start, _ = scheduling.ParseTimeOfDay(*req.StartTime)
		}
		if req.EndTime != nil {
			end, _ = scheduling.ParseTimeOfDay(*req.EndTime)
		}
		iv, err := buildInterval(date, start, end)
		if err != nil {
			return nil, err
		}
		if req.DurationMinutes != nil && *req.DurationMinutes != iv.Minutes() {
			return nil, durationMismatch()
		}
		next.SetInterval(iv)
	}
	return &next, nil
}

// Transition moves an appointment to the requested status through the
// lifecycle state machine.
func (s *Service) Transition(ctx context.Context, scope model.Scope, id uuid.UUID, req model.UpdateStatusRequest) (*model.Appointment, error) {
	if err := requireStaff(scope); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	target := scheduling.Status(req.Status)
	event, ok := scheduling.EventFor(target)
	if !ok {
		msg := "cannot be set directly"
		if target == scheduling.StatusRescheduled {
			msg = "cannot be set directly, use the reschedule endpoint"
		}
		return nil, errors.NewFieldValidation("status", msg)
	}
	_, scope, err := s.localize(ctx, scope)
	if err != nil {
		return nil, err
	}

	var updated *model.Appointment
	err = s.appointments.Atomically(ctx, nil, func(tx repository.AppointmentTx) error {
		apt, err := tx.GetForUpdate(ctx, scope.BusinessID, id)
		if err != nil {
			return err
		}
		if !apt.VisibleTo(scope) {
			return errors.NewForbidden("unauthorized to update this appointment")
		}
		if err := apt.Transition(event, scope.Now, scope.Today(), req.CancellationReason); err != nil {
			return transitionError(err)
		}
		if err := tx.Update(ctx, apt); err != nil {
			return err
		}
		updated = apt
		return s.enqueue(ctx, tx, model.StatusEventType(apt.Status), apt, scope)
	})
	if err != nil {
		result := "error"
		if stderrors.Is(err, errors.InvalidTransitionKind) {
			result = "rejected"
		}
		s.metrics.AppointmentTransitions.WithLabelValues(string(event), result).Inc()
		return nil, s.writeError("transition", err)
	}

	s.metrics.AppointmentTransitions.WithLabelValues(string(event), "applied").Inc()
	s.logger.Info().
		Str("business_id", scope.BusinessID.String()).
		Str("appointment_id", id.String()).
		Str("event", string(event)).
		Str("status", string(updated.Status)).
		Msg("appointment status changed")
	return updated, nil
}

// Reschedule retires the appointment as rescheduled and books a replacement
// at the requested time, atomically under the target staff-day lock.
func (s *Service) Reschedule(ctx context.Context, scope model.Scope, id uuid.UUID, req model.RescheduleRequest) (*model.Appointment, error) {
	if err := requireStaff(scope); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	interval, err := parseInterval(req.AppointmentDate, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	if req.DurationMinutes != nil && *req.DurationMinutes != interval.Minutes() {
		return nil, durationMismatch()
	}
	policy, scope, err := s.localize(ctx, scope)
	if err != nil {
		return nil, err
	}
	if !policy.CanBook(scope.Now) {
		return nil, errors.NewForbidden("business is inactive or its subscription has expired")
	}
	if req.StaffID != nil {
		if err := s.checkStaff(ctx, scope, uuid.MustParse(*req.StaffID)); err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt < maxKeyRetries; attempt++ {
		current, err := s.appointments.Get(ctx, scope.BusinessID, id)
		if err != nil {
			return nil, notFound(err)
		}
		if !current.VisibleTo(scope) {
			return nil, errors.NewForbidden("unauthorized to reschedule this appointment")
		}
		replacement := newReplacement(current, req, interval)
		key := dayKey(replacement)

		err = s.appointments.Atomically(ctx, &key, func(tx repository.AppointmentTx) error {
			old, err := tx.GetForUpdate(ctx, scope.BusinessID, id)
			if err != nil {
				return err
			}
			if req.StaffID == nil && old.StaffID != current.StaffID {
				return errKeyMoved
			}
			if err := old.Transition(scheduling.EventReschedule, scope.Now, scope.Today(), ""); err != nil {
				return transitionError(err)
			}
			// The old slot is released first so a replacement overlapping it
			// is not reported as a conflict with itself.
			if err := tx.Update(ctx, old); err != nil {
				return err
			}
			if err := s.ensureFree(ctx, tx, replacement); err != nil {
				return err
			}
			if err := tx.Create(ctx, replacement); err != nil {
				return err
			}
			return s.enqueue(ctx, tx, model.EventAppointmentRescheduled, replacement, scope)
		})
		if stderrors.Is(err, errKeyMoved) {
			continue
		}
		if err != nil {
			return nil, s.writeError("reschedule", err)
		}

		s.metrics.AppointmentTransitions.WithLabelValues(string(scheduling.EventReschedule), "applied").Inc()
		s.logger.Info().
			Str("business_id", scope.BusinessID.String()).
			Str("appointment_id", id.String()).
			Str("replacement_id", replacement.ID.String()).
			Str("interval", interval.String()).
			Msg("appointment rescheduled")
		return replacement, nil
	}

	return nil, errors.NewSchedulingConflict("the appointment changed while it was being rescheduled, please retry")
}

func newReplacement(old *model.Appointment, req model.RescheduleRequest, iv scheduling.Interval) *model.Appointment {
	from := old.ID
	apt := &model.Appointment{
		BusinessID:        old.BusinessID,
		AppointmentNumber: newAppointmentNumber(),
		PatientID:         old.PatientID,
		StaffID:           old.StaffID,
		CreatedBy:         old.CreatedBy,
		Type:              old.Type,
		Status:            scheduling.StatusScheduled,
		ReasonForVisit:    old.ReasonForVisit,
		Notes:             old.Notes,
		Fee:               old.Fee,
		RescheduledFrom:   &from,
	}
	apt.ID = uuid.New()
	if req.StaffID != nil {
		apt.StaffID = uuid.MustParse(*req.StaffID)
	}
	apt.SetInterval(iv)
	return apt
}

func transitionError(err error) error {
	if stderrors.Is(err, scheduling.ErrReasonRequired) {
		return errors.NewFieldValidation("cancellation_reason", "is required when status is cancelled")
	}
	return errors.NewInvalidStateTransition(err)
}
