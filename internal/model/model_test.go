package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-scheduler/internal/scheduling"
)

func sampleAppointment(t *testing.T, date string) *Appointment {
	t.Helper()
	d, err := scheduling.ParseDate(date)
	require.NoError(t, err)
	return &Appointment{
		Base:       Base{ID: uuid.New()},
		BusinessID: uuid.New(),
		PatientID:  uuid.New(),
		StaffID:    uuid.New(),
		CreatedBy:  uuid.New(),
		Date:       d,
		StartTime:  scheduling.MustTimeOfDay("09:00"),
		EndTime:    scheduling.MustTimeOfDay("09:30"),
		Type:       AppointmentTypeInPerson,
		Status:     scheduling.StatusScheduled,
	}
}

func TestAppointmentTransition(t *testing.T) {
	apt := sampleAppointment(t, "2025-06-10")
	now := time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)
	today := scheduling.DateOf(now)

	require.NoError(t, apt.Transition(scheduling.EventConfirm, now, today, ""))
	assert.Equal(t, scheduling.StatusConfirmed, apt.Status)
	require.NotNil(t, apt.ConfirmedAt)

	require.NoError(t, apt.Transition(scheduling.EventCancel, now, today, "travel"))
	assert.Equal(t, scheduling.StatusCancelled, apt.Status)
	assert.Equal(t, "travel", *apt.CancellationReason)

	before := *apt
	err := apt.Transition(scheduling.EventComplete, now, today, "")
	assert.ErrorIs(t, err, scheduling.ErrInvalidTransition)
	assert.Equal(t, before, *apt)
}

func TestAppointmentVisibleTo(t *testing.T) {
	apt := sampleAppointment(t, "2025-06-10")

	admin := Scope{BusinessID: apt.BusinessID, UserID: uuid.New(), Role: RoleAdmin}
	creator := Scope{BusinessID: apt.BusinessID, UserID: apt.CreatedBy, Role: RoleReceptionist}
	assignee := Scope{BusinessID: apt.BusinessID, UserID: apt.StaffID, Role: RoleDoctor}
	colleague := Scope{BusinessID: apt.BusinessID, UserID: uuid.New(), Role: RoleNurse}
	outsider := Scope{BusinessID: uuid.New(), UserID: uuid.New(), Role: RoleAdmin}

	assert.True(t, apt.VisibleTo(admin))
	assert.True(t, apt.VisibleTo(creator))
	assert.True(t, apt.VisibleTo(assignee))
	assert.False(t, apt.VisibleTo(colleague))
	assert.False(t, apt.VisibleTo(outsider))
}

func TestSetIntervalKeepsDuration(t *testing.T) {
	apt := sampleAppointment(t, "2025-06-10")
	iv, err := scheduling.NewInterval(apt.Date.AddDays(1), scheduling.MustTimeOfDay("13:00"), scheduling.MustTimeOfDay("14:15"))
	require.NoError(t, err)

	apt.SetInterval(iv)

	assert.Equal(t, iv, apt.Interval())
	assert.Equal(t, 75, apt.DurationMinutes)
}

func TestBusinessSubscription(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	assert.True(t, (&Business{SubscriptionPlan: PlanFree}).HasActiveSubscription(now))
	assert.True(t, (&Business{SubscriptionPlan: "pro", SubscriptionExpiresAt: &future}).HasActiveSubscription(now))
	assert.False(t, (&Business{SubscriptionPlan: "pro", SubscriptionExpiresAt: &past}).HasActiveSubscription(now))
	assert.False(t, (&Business{SubscriptionPlan: "pro"}).HasActiveSubscription(now))
	assert.False(t, (&Business{SubscriptionPlan: PlanFree, IsActive: false}).CanBook(now))
}

func TestOperatingHoursFor(t *testing.T) {
	fallback := scheduling.BusinessHours{Open: scheduling.MustTimeOfDay("09:00"), Close: scheduling.MustTimeOfDay("17:00")}

	var hours OperatingHours
	require.NoError(t, hours.Scan([]byte(`{
		"default": {"open": "08:00", "close": "18:00"},
		"weekdays": {"sunday": {"open": "00:00", "close": "00:00", "closed": true}}
	}`)))

	sunday, _ := scheduling.ParseDate("2025-06-01")
	monday, _ := scheduling.ParseDate("2025-06-02")

	assert.False(t, hours.For(sunday, fallback).IsOpen())
	assert.Equal(t, "08:00", hours.For(monday, fallback).Open.String())
	assert.Equal(t, fallback, OperatingHours{}.For(monday, fallback))

	v, err := OperatingHours{}.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)
}

func TestScopeTodayUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	s := Scope{Now: time.Date(2025, 6, 2, 2, 30, 0, 0, time.UTC)}
	assert.Equal(t, "2025-06-02", s.Today().String())

	local := s.In(loc)
	assert.Equal(t, "2025-06-01", local.Today().String())
	assert.Equal(t, "22:30", local.Clock().String())
}

func TestNewAppointmentEvent(t *testing.T) {
	apt := sampleAppointment(t, "2025-06-10")
	actor := uuid.New()
	at := time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC)

	evt, err := NewAppointmentEvent(EventAppointmentCreated, apt, actor, at)
	require.NoError(t, err)
	assert.Equal(t, OutboxStatusPending, evt.Status)
	assert.Equal(t, apt.ID, evt.AggregateID)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, "2025-06-10", payload["appointment_date"])
	assert.Equal(t, "09:00", payload["start_time"])
	assert.Equal(t, actor.String(), payload["actor_id"])
	assert.Equal(t, "appointment.cancelled", StatusEventType(scheduling.StatusCancelled))
}
