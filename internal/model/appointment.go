package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-scheduler/internal/scheduling"
)

type AppointmentType string

const (
	AppointmentTypeInPerson   AppointmentType = "in-person"
	AppointmentTypeTelehealth AppointmentType = "telehealth"
)

var AppointmentTypes = []AppointmentType{AppointmentTypeInPerson, AppointmentTypeTelehealth}

func (t AppointmentType) IsValid() bool {
	for _, v := range AppointmentTypes {
		if v == t {
			return true
		}
	}
	return false
}

type Appointment struct {
	Base
	BusinessID         uuid.UUID            `db:"business_id" json:"business_id"`
	AppointmentNumber  string               `db:"appointment_number" json:"appointment_number"`
	PatientID          uuid.UUID            `db:"patient_id" json:"patient_id"`
	StaffID            uuid.UUID            `db:"staff_id" json:"staff_id"`
	CreatedBy          uuid.UUID            `db:"created_by" json:"created_by"`
	Date               scheduling.Date      `db:"appointment_date" json:"appointment_date"`
	StartTime          scheduling.TimeOfDay `db:"start_time" json:"start_time"`
	EndTime            scheduling.TimeOfDay `db:"end_time" json:"end_time"`
	DurationMinutes    int                  `db:"duration_minutes" json:"duration_minutes"`
	Type               AppointmentType      `db:"type" json:"type"`
	Status             scheduling.Status    `db:"status" json:"status"`
	ReasonForVisit     *string              `db:"reason_for_visit" json:"reason_for_visit,omitempty"`
	Notes              *string              `db:"notes" json:"notes,omitempty"`
	Fee                *float64             `db:"fee" json:"fee,omitempty"`
	CancellationReason *string              `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	ConfirmedAt        *time.Time           `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time           `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt        *time.Time           `db:"cancelled_at" json:"cancelled_at,omitempty"`
	RescheduledFrom    *uuid.UUID           `db:"rescheduled_from" json:"rescheduled_from,omitempty"`
}

func (a *Appointment) Interval() scheduling.Interval {
	return scheduling.Interval{Date: a.Date, Start: a.StartTime, End: a.EndTime}
}

// SetInterval replaces date, times and duration together.
func (a *Appointment) SetInterval(iv scheduling.Interval) {
	a.Date = iv.Date
	a.StartTime = iv.Start
	a.EndTime = iv.End
	a.DurationMinutes = iv.Minutes()
}

func (a *Appointment) Booking() scheduling.Booking {
	return scheduling.Booking{
		ID:       a.ID,
		StaffID:  a.StaffID,
		Interval: a.Interval(),
		Status:   a.Status,
	}
}

func (a *Appointment) Lifecycle() scheduling.Lifecycle {
	return scheduling.Lifecycle{
		Status:             a.Status,
		Date:               a.Date,
		ConfirmedAt:        a.ConfirmedAt,
		CompletedAt:        a.CompletedAt,
		CancelledAt:        a.CancelledAt,
		CancellationReason: a.CancellationReason,
	}
}

// Transition applies ev through the lifecycle state machine. On error the
// appointment is left untouched.
func (a *Appointment) Transition(ev scheduling.Event, now time.Time, today scheduling.Date, reason string) error {
	next, err := a.Lifecycle().Apply(ev, now, today, reason)
	if err != nil {
		return err
	}
	a.Status = next.Status
	a.ConfirmedAt = next.ConfirmedAt
	a.CompletedAt = next.CompletedAt
	a.CancelledAt = next.CancelledAt
	a.CancellationReason = next.CancellationReason
	return nil
}

func (a *Appointment) CanBeCancelled(today scheduling.Date) bool {
	return a.Lifecycle().CanBeCancelled(today)
}

func (a *Appointment) CanBeRescheduled(today scheduling.Date) bool {
	return a.Lifecycle().CanBeRescheduled(today)
}

func (a *Appointment) CanBeCompleted() bool {
	return a.Lifecycle().CanBeCompleted()
}

// VisibleTo reports whether the caller may see or change the appointment.
// Admins see every appointment of their business, other users only those
// they created or are assigned to.
func (a *Appointment) VisibleTo(scope Scope) bool {
	if a.BusinessID != scope.BusinessID {
		return false
	}
	if scope.IsAdmin() {
		return true
	}
	return a.CreatedBy == scope.UserID || a.StaffID == scope.UserID
}

// Bookings projects appointments onto the calendar view used by conflict
// detection.
func Bookings(appointments []*Appointment) []scheduling.Booking {
	out := make([]scheduling.Booking, 0, len(appointments))
	for _, a := range appointments {
		out = append(out, a.Booking())
	}
	return out
}

type CreateAppointmentRequest struct {
	PatientID       string   `json:"patient_id" binding:"required,uuid"`
	StaffID         string   `json:"staff_id" binding:"required,uuid"`
	AppointmentDate string   `json:"appointment_date" binding:"required,date"`
	StartTime       string   `json:"start_time" binding:"required,hhmm"`
	EndTime         string   `json:"end_time" binding:"required,hhmm"`
	DurationMinutes int      `json:"duration_minutes" binding:"required,min=15,max=480"`
	Type            string   `json:"type" binding:"required,appointment_type"`
	ReasonForVisit  *string  `json:"reason_for_visit" binding:"omitempty,max=1000"`
	Notes           *string  `json:"notes" binding:"omitempty,max=2000"`
	Fee             *float64 `json:"fee" binding:"omitempty,min=0"`
}

// UpdateAppointmentRequest only changes fields that are present.
type UpdateAppointmentRequest struct {
	PatientID       *string  `json:"patient_id" binding:"omitempty,uuid"`
	StaffID         *string  `json:"staff_id" binding:"omitempty,uuid"`
	AppointmentDate *string  `json:"appointment_date" binding:"omitempty,date"`
	StartTime       *string  `json:"start_time" binding:"omitempty,hhmm"`
	EndTime         *string  `json:"end_time" binding:"omitempty,hhmm"`
	DurationMinutes *int     `json:"duration_minutes" binding:"omitempty,min=15,max=480"`
	Type            *string  `json:"type" binding:"omitempty,appointment_type"`
	ReasonForVisit  *string  `json:"reason_for_visit" binding:"omitempty,max=1000"`
	Notes           *string  `json:"notes" binding:"omitempty,max=2000"`
	Fee             *float64 `json:"fee" binding:"omitempty,min=0"`
}

// TouchesSchedule reports whether the update can move the appointment on a
// staff calendar.
func (r *UpdateAppointmentRequest) TouchesSchedule() bool {
	return r.StaffID != nil || r.AppointmentDate != nil || r.StartTime != nil ||
		r.EndTime != nil || r.DurationMinutes != nil
}

type UpdateStatusRequest struct {
	Status             string `json:"status" binding:"required,appointment_status"`
	CancellationReason string `json:"cancellation_reason" binding:"required_if=Status cancelled,max=500"`
}

type RescheduleRequest struct {
	StaffID         *string `json:"staff_id" binding:"omitempty,uuid"`
	AppointmentDate string  `json:"appointment_date" binding:"required,date"`
	StartTime       string  `json:"start_time" binding:"required,hhmm"`
	EndTime         string  `json:"end_time" binding:"required,hhmm"`
	DurationMinutes *int    `json:"duration_minutes" binding:"omitempty,min=15,max=480"`
}

type AppointmentFilters struct {
	Pagination
	Status    string `form:"status" binding:"omitempty,appointment_status"`
	StaffID   string `form:"staff_id" binding:"omitempty,uuid"`
	PatientID string `form:"patient_id" binding:"omitempty,uuid"`
	Type      string `form:"type" binding:"omitempty,appointment_type"`
	Date      string `form:"date" binding:"omitempty,date"`
	DateFrom  string `form:"date_from" binding:"omitempty,date"`
	DateTo    string `form:"date_to" binding:"omitempty,date"`
	Upcoming  bool   `form:"upcoming"`
}

// AppointmentQuery is the typed, tenant-scoped form of AppointmentFilters
// handed to repositories.
type AppointmentQuery struct {
	BusinessID uuid.UUID
	Status     *scheduling.Status
	StaffID    *uuid.UUID
	PatientID  *uuid.UUID
	Type       *AppointmentType
	DateFrom   *scheduling.Date
	DateTo     *scheduling.Date
	ActiveOnly bool
	// VisibleTo restricts rows to those created by or assigned to the user.
	VisibleTo *uuid.UUID
	Limit     int
	Offset    int
}

type AvailabilityQuery struct {
	StaffID         string `form:"staff_id" binding:"required,uuid"`
	Date            string `form:"date" binding:"required,date"`
	DurationMinutes int    `form:"duration_minutes" binding:"omitempty,min=15,max=480"`
}

type AvailableSlot struct {
	StartTime scheduling.TimeOfDay `json:"start_time"`
	EndTime   scheduling.TimeOfDay `json:"end_time"`
	Formatted string               `json:"formatted"`
}

type Availability struct {
	Date                 scheduling.Date          `json:"date"`
	StaffID              uuid.UUID                `json:"staff_id"`
	DurationMinutes      int                      `json:"duration_minutes"`
	BusinessHours        scheduling.BusinessHours `json:"business_hours"`
	AvailableSlots       []AvailableSlot          `json:"available_slots"`
	ExistingAppointments []*Appointment           `json:"existing_appointments"`
}
