package appointment

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/internal/repository"
	"github.com/jwalitptl/clinic-scheduler/internal/scheduling"
	"github.com/jwalitptl/clinic-scheduler/internal/service/business"
	"github.com/jwalitptl/clinic-scheduler/pkg/errors"
	"github.com/jwalitptl/clinic-scheduler/pkg/metrics"
	"github.com/jwalitptl/clinic-scheduler/pkg/validator"
)

// maxKeyRetries bounds how often an update retries when the appointment
// moved to another staff day between the unlocked read and the locked one.
const maxKeyRetries = 3

var errKeyMoved = stderrors.New("appointment moved during update")

// PolicyProvider resolves the scheduling policy of a business.
type PolicyProvider interface {
	Policy(ctx context.Context, businessID uuid.UUID) (*business.Policy, error)
}

type Config struct {
	DefaultDuration int
	Granularity     int
}

type Dependencies struct {
	Appointments repository.AppointmentRepository
	Staff        repository.StaffRepository
	Patients     repository.PatientRepository
	Policies     PolicyProvider
	Validator    validator.Validator
	Detector     scheduling.ConflictDetector
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
}

type Service struct {
	appointments repository.AppointmentRepository
	staff        repository.StaffRepository
	patients     repository.PatientRepository
	policies     PolicyProvider
	validator    validator.Validator
	detector     scheduling.ConflictDetector
	planner      scheduling.Planner
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	cfg          Config
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 60
	}
	if cfg.Granularity <= 0 {
		cfg.Granularity = scheduling.DefaultGranularity
	}
	if deps.Validator == nil {
		deps.Validator = model.NewValidator()
	}
	if deps.Detector == nil {
		deps.Detector = scheduling.NewLinearDetector()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	return &Service{
		appointments: deps.Appointments,
		staff:        deps.Staff,
		patients:     deps.Patients,
		policies:     deps.Policies,
		validator:    deps.Validator,
		detector:     deps.Detector,
		planner:      scheduling.NewPlanner(deps.Detector),
		metrics:      deps.Metrics,
		logger:       deps.Logger.With().Str("component", "appointment_service").Logger(),
		cfg:          cfg,
	}
}

// CreateAppointment books a new appointment after validating the request and
// checking the staff calendar under the staff-day lock.
func (s *Service) CreateAppointment(ctx context.Context, scope model.Scope, req model.CreateAppointmentRequest) (*model.Appointment, error) {
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
	if interval.Minutes() != req.DurationMinutes {
		return nil, durationMismatch()
	}
	patientID := uuid.MustParse(req.PatientID)
	staffID := uuid.MustParse(req.StaffID)

	policy, scope, err := s.localize(ctx, scope)
	if err != nil {
		return nil, err
	}
	if !policy.CanBook(scope.Now) {
		return nil, errors.NewForbidden("business is inactive or its subscription has expired")
	}
	if err := s.checkPatient(ctx, scope, patientID); err != nil {
		return nil, err
	}
	if err := s.checkStaff(ctx, scope, staffID); err != nil {
		return nil, err
	}

	apt := &model.Appointment{
		BusinessID:        scope.BusinessID,
		AppointmentNumber: newAppointmentNumber(),
		PatientID:         patientID,
		StaffID:           staffID,
		CreatedBy:         scope.UserID,
		Type:              model.AppointmentType(req.Type),
		Status:            scheduling.StatusScheduled,
		ReasonForVisit:    req.ReasonForVisit,
		Notes:             req.Notes,
		Fee:               req.Fee,
	}
	apt.ID = uuid.New()
	apt.SetInterval(interval)

	key := dayKey(apt)
	err = s.appointments.Atomically(ctx, &key, func(tx repository.AppointmentTx) error {
		if err := s.ensureFree(ctx, tx, apt); err != nil {
			return err
		}
		if err := tx.Create(ctx, apt); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, model.EventAppointmentCreated, apt, scope)
	})
	if err != nil {
		return nil, s.writeError("create", err)
	}

	s.metrics.AppointmentsCreated.Inc()
	s.logger.Info().
		Str("business_id", apt.BusinessID.String()).
		Str("appointment_id", apt.ID.String()).
		Str("staff_id", apt.StaffID.String()).
		Str("interval", apt.Interval().String()).
		Msg("appointment created")
	return apt, nil
}

// GetAppointment returns an appointment the caller may see.
func (s *Service) GetAppointment(ctx context.Context, scope model.Scope, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.appointments.Get(ctx, scope.BusinessID, id)
	if err != nil {
		return nil, notFound(err)
	}
	if !apt.VisibleTo(scope) {
		return nil, errors.NewForbidden("unauthorized access to this appointment")
	}
	return apt, nil
}

// ListResult is one page of appointments.
type ListResult struct {
	Appointments []*model.Appointment
	Page         int
	PageSize     int
	Total        int
}

func (s *Service) ListAppointments(ctx context.Context, scope model.Scope, filters model.AppointmentFilters) (*ListResult, error) {
	if err := s.validator.Validate(filters); err != nil {
		return nil, err
	}

	q := model.AppointmentQuery{BusinessID: scope.BusinessID}
	if filters.Status != "" {
		st := scheduling.Status(filters.Status)
		q.Status = &st
	}
	if filters.StaffID != "" {
		id := uuid.MustParse(filters.StaffID)
		q.StaffID = &id
	}
	if filters.PatientID != "" {
		id := uuid.MustParse(filters.PatientID)
		q.PatientID = &id
	}
	if filters.Type != "" {
		t := model.AppointmentType(filters.Type)
		q.Type = &t
	}
	if filters.Date != "" {
		d, _ := scheduling.ParseDate(filters.Date)
		q.DateFrom, q.DateTo = &d, &d
	}
	if filters.DateFrom != "" {
		d, _ := scheduling.ParseDate(filters.DateFrom)
		q.DateFrom = &d
	}
	if filters.DateTo != "" {
		d, _ := scheduling.ParseDate(filters.DateTo)
		q.DateTo = &d
	}
	if filters.Upcoming {
		_, local, err := s.localize(ctx, scope)
		if err != nil {
			return nil, err
		}
		today := local.Today()
		if q.DateFrom == nil || q.DateFrom.Before(today) {
			q.DateFrom = &today
		}
		q.ActiveOnly = true
	}
	if !scope.IsAdmin() {
		user := scope.UserID
		q.VisibleTo = &user
	}

	page := filters.Pagination.Normalize()
	q.Limit = page.PageSize
	q.Offset = page.Offset()

	list, total, err := s.appointments.List(ctx, q)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &ListResult{Appointments: list, Page: page.Page, PageSize: page.PageSize, Total: total}, nil
}

// DeleteAppointment removes the appointment permanently.
func (s *Service) DeleteAppointment(ctx context.Context, scope model.Scope, id uuid.UUID) error {
	if err := requireStaff(scope); err != nil {
		return err
	}
	_, scope, err := s.localize(ctx, scope)
	if err != nil {
		return err
	}

	err = s.appointments.Atomically(ctx, nil, func(tx repository.AppointmentTx) error {
		apt, err := tx.GetForUpdate(ctx, scope.BusinessID, id)
		if err != nil {
			return err
		}
		if !apt.VisibleTo(scope) {
			return errors.NewForbidden("unauthorized to delete this appointment")
		}
		if err := tx.Delete(ctx, scope.BusinessID, id); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, model.EventAppointmentDeleted, apt, scope)
	})
	if err != nil {
		return s.writeError("delete", err)
	}

	s.logger.Info().
		Str("business_id", scope.BusinessID.String()).
		Str("appointment_id", id.String()).
		Msg("appointment deleted")
	return nil
}

// localize loads the business policy and evaluates the scope's calendar in
// the business timezone unless the caller already fixed one.
func (s *Service) localize(ctx context.Context, scope model.Scope) (*business.Policy, model.Scope, error) {
	policy, err := s.policies.Policy(ctx, scope.BusinessID)
	if err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			return nil, scope, appErr
		}
		return nil, scope, errors.NewInternal(err)
	}
	if scope.Location == nil {
		scope = scope.In(policy.Location)
	}
	return policy, scope, nil
}

func (s *Service) checkPatient(ctx context.Context, scope model.Scope, id uuid.UUID) error {
	if _, err := s.patients.Get(ctx, scope.BusinessID, id); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return errors.NewNotFound("patient", err)
		}
		return errors.NewInternal(err)
	}
	return nil
}

func (s *Service) checkStaff(ctx context.Context, scope model.Scope, id uuid.UUID) error {
	st, err := s.staff.Get(ctx, scope.BusinessID, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return errors.NewNotFound("staff member", err)
		}
		return errors.NewInternal(err)
	}
	if !st.IsActive {
		return errors.NewFieldValidation("staff_id", "staff member is not active")
	}
	return nil
}

// ensureFree fails with a scheduling conflict when apt overlaps an active
// booking of its staff member. Must run inside the staff-day lock.
func (s *Service) ensureFree(ctx context.Context, tx repository.AppointmentTx, apt *model.Appointment) error {
	existing, err := tx.ListForStaffDay(ctx, dayKey(apt), scheduling.ActiveStatuses)
	if err != nil {
		return err
	}
	q := scheduling.ConflictQuery{
		StaffID:   apt.StaffID,
		Candidate: apt.Interval(),
		ExcludeID: apt.ID,
	}
	if clash, ok := s.detector.FirstConflict(q, model.Bookings(existing)); ok {
		return errors.NewSchedulingConflict(fmt.Sprintf(
			"time slot conflict detected with an appointment at %s, please choose a different time",
			clash.Interval.Format(),
		))
	}
	return nil
}

func (s *Service) enqueue(ctx context.Context, tx repository.AppointmentTx, eventType string, apt *model.Appointment, scope model.Scope) error {
	evt, err := model.NewAppointmentEvent(eventType, apt, scope.UserID, scope.Now)
	if err != nil {
		return err
	}
	return tx.AddEvent(ctx, evt)
}

// writeError converts repository failures from a write into AppErrors and
// counts conflicts.
func (s *Service) writeError(op string, err error) error {
	var appErr *errors.AppError
	switch {
	case stderrors.As(err, &appErr):
		if appErr.Code == errors.ErrSchedulingConflict {
			s.metrics.SchedulingConflicts.WithLabelValues(op).Inc()
		}
		return appErr
	case stderrors.Is(err, repository.ErrOverlap):
		s.metrics.SchedulingConflicts.WithLabelValues(op).Inc()
		return errors.NewSchedulingConflict("")
	case stderrors.Is(err, repository.ErrNotFound):
		return errors.NewNotFound("appointment", err)
	}
	s.logger.Error().Err(err).Str("operation", op).Msg("appointment write failed")
	return errors.NewInternal(err)
}

func requireStaff(scope model.Scope) error {
	if !scope.Role.IsStaff() {
		return errors.NewForbidden("only staff members may manage appointments")
	}
	return nil
}

func notFound(err error) error {
	if stderrors.Is(err, repository.ErrNotFound) {
		return errors.NewNotFound("appointment", err)
	}
	return errors.NewInternal(err)
}

func dayKey(apt *model.Appointment) repository.StaffDayKey {
	return repository.StaffDayKey{BusinessID: apt.BusinessID, StaffID: apt.StaffID, Date: apt.Date}
}

// parseInterval turns already format-checked request strings into a
// bookable interval, reporting bound violations against the request fields.
func parseInterval(date, start, end string) (scheduling.Interval, error) {
	d, err := scheduling.ParseDate(date)
	if err != nil {
		return scheduling.Interval{}, errors.NewFieldValidation("appointment_date", "must be a date in YYYY-MM-DD format")
	}
	from, err := scheduling.ParseTimeOfDay(start)
	if err != nil {
		return scheduling.Interval{}, errors.NewFieldValidation("start_time", "must be a time in HH:MM format")
	}
	to, err := scheduling.ParseTimeOfDay(end)
	if err != nil {
		return scheduling.Interval{}, errors.NewFieldValidation("end_time", "must be a time in HH:MM format")
	}
	return buildInterval(d, from, to)
}

func buildInterval(d scheduling.Date, from, to scheduling.TimeOfDay) (scheduling.Interval, error) {
	if from >= to {
		return scheduling.Interval{}, errors.NewFieldValidation("end_time", "must be after start_time")
	}
	iv, err := scheduling.NewInterval(d, from, to)
	if err != nil {
		return scheduling.Interval{}, errors.NewFieldValidation("duration_minutes",
			fmt.Sprintf("must be between %d and %d", scheduling.MinDuration, scheduling.MaxDuration))
	}
	return iv, nil
}

func durationMismatch() error {
	return errors.NewFieldValidation("duration_minutes", "must equal the minutes between start_time and end_time")
}

// newAppointmentNumber returns "APT" followed by a 10 character uppercase
// token.
func newAppointmentNumber() string {
	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "APT" + strings.ToUpper(token[:10])
}
