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

// CheckAvailability lists the free slots of a staff member on a date, within
// the business hours that apply on that weekday. Slots already in the past
// are left out when the date is today.
func (s *Service) CheckAvailability(ctx context.Context, scope model.Scope, q model.AvailabilityQuery) (*model.Availability, error) {
	if err := s.validator.Validate(q); err != nil {
		return nil, err
	}
	date, _ := scheduling.ParseDate(q.Date)
	staffID := uuid.MustParse(q.StaffID)
	duration := q.DurationMinutes
	if duration == 0 {
		duration = s.cfg.DefaultDuration
	}

	policy, scope, err := s.localize(ctx, scope)
	if err != nil {
		return nil, err
	}
	if _, err := s.staff.Get(ctx, scope.BusinessID, staffID); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NewNotFound("staff member", err)
		}
		return nil, errors.NewInternal(err)
	}

	key := repository.StaffDayKey{BusinessID: scope.BusinessID, StaffID: staffID, Date: date}
	existing, err := s.appointments.ListForStaffDay(ctx, key, scheduling.ActiveStatuses)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	req := scheduling.AvailabilityRequest{
		StaffID:         staffID,
		Date:            date,
		DurationMinutes: duration,
		Hours:           policy.HoursOn(date),
		Granularity:     s.cfg.Granularity,
	}
	if date == scope.Today() {
		now := scope.Clock()
		req.NotBefore = &now
	}

	free := s.planner.Compute(req, model.Bookings(existing))
	slots := make([]model.AvailableSlot, 0, len(free))
	for _, iv := range free {
		slots = append(slots, model.AvailableSlot{
			StartTime: iv.Start,
			EndTime:   iv.End,
			Formatted: iv.Format(),
		})
	}
	s.metrics.AvailabilitySlots.Observe(float64(len(slots)))

	return &model.Availability{
		Date:                 date,
		StaffID:              staffID,
		DurationMinutes:      duration,
		BusinessHours:        req.Hours,
		AvailableSlots:       slots,
		ExistingAppointments: existing,
	}, nil
}
