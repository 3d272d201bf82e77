package scheduling

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
	StatusRescheduled Status = "rescheduled"
)

// ActiveStatuses occupy the staff calendar.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress}

var AllStatuses = []Status{
	StatusScheduled, StatusConfirmed, StatusInProgress,
	StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled,
}

func (s Status) IsValid() bool {
	return containsStatus(AllStatuses, s)
}

func (s Status) IsActive() bool {
	return containsStatus(ActiveStatuses, s)
}

func (s Status) IsTerminal() bool {
	return s.IsValid() && !s.IsActive()
}

type Event string

const (
	EventConfirm    Event = "confirm"
	EventStart      Event = "start"
	EventComplete   Event = "complete"
	EventCancel     Event = "cancel"
	EventNoShow     Event = "no_show"
	EventReschedule Event = "reschedule"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrReasonRequired    = errors.New("cancellation reason is required")
)

// TransitionError carries the rejected pair.
type TransitionError struct {
	From  Status
	Event Event
	Cause string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s an appointment that is %s", e.Event, e.From)
	if e.Cause != "" {
		msg += ": " + e.Cause
	}
	return msg
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

type transition struct {
	from      []Status
	to        Status
	notBefore bool // appointment date must be today or later
}

var transitions = map[Event]transition{
	EventConfirm:    {from: []Status{StatusScheduled}, to: StatusConfirmed},
	EventStart:      {from: []Status{StatusScheduled, StatusConfirmed}, to: StatusInProgress},
	EventComplete:   {from: ActiveStatuses, to: StatusCompleted},
	EventCancel:     {from: []Status{StatusScheduled, StatusConfirmed}, to: StatusCancelled, notBefore: true},
	EventNoShow:     {from: ActiveStatuses, to: StatusNoShow},
	EventReschedule: {from: []Status{StatusScheduled, StatusConfirmed}, to: StatusRescheduled, notBefore: true},
}

// EventFor maps a requested target status onto the event that reaches it.
// Statuses with no inbound event report false.
func EventFor(target Status) (Event, bool) {
	switch target {
	case StatusConfirmed:
		return EventConfirm, true
	case StatusInProgress:
		return EventStart, true
	case StatusCompleted:
		return EventComplete, true
	case StatusCancelled:
		return EventCancel, true
	case StatusNoShow:
		return EventNoShow, true
	}
	return "", false
}

// Lifecycle is the status-bearing part of an appointment.
type Lifecycle struct {
	Status             Status
	Date               Date
	ConfirmedAt        *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason *string
}

func (l Lifecycle) CanBeCancelled(today Date) bool {
	return l.allows(EventCancel, today)
}

func (l Lifecycle) CanBeRescheduled(today Date) bool {
	return l.allows(EventReschedule, today)
}

func (l Lifecycle) CanBeCompleted() bool {
	return containsStatus(transitions[EventComplete].from, l.Status)
}

func (l Lifecycle) allows(ev Event, today Date) bool {
	t, ok := transitions[ev]
	if !ok || !containsStatus(t.from, l.Status) {
		return false
	}
	return !t.notBefore || !l.Date.Before(today)
}

// Apply returns the lifecycle after ev. The receiver is never modified, so a
// rejected event leaves the caller's state exactly as it was.
func (l Lifecycle) Apply(ev Event, now time.Time, today Date, reason string) (Lifecycle, error) {
	t, ok := transitions[ev]
	if !ok {
		return l, &TransitionError{From: l.Status, Event: ev, Cause: "unknown event"}
	}
	if !containsStatus(t.from, l.Status) {
		return l, &TransitionError{From: l.Status, Event: ev}
	}
	if t.notBefore && l.Date.Before(today) {
		return l, &TransitionError{From: l.Status, Event: ev, Cause: "appointment date has passed"}
	}

	reason = strings.TrimSpace(reason)
	if ev == EventCancel && reason == "" {
		return l, ErrReasonRequired
	}

	next := l
	next.Status = t.to
	stamp := now
	switch ev {
	case EventConfirm:
		next.ConfirmedAt = &stamp
	case EventComplete:
		next.CompletedAt = &stamp
	case EventCancel:
		next.CancelledAt = &stamp
		next.CancellationReason = &reason
	}
	return next, nil
}
