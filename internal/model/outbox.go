package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-scheduler/internal/scheduling"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusRetry     OutboxStatus = "retry"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

const (
	EventAppointmentCreated     = "appointment.created"
	EventAppointmentUpdated     = "appointment.updated"
	EventAppointmentRescheduled = "appointment.rescheduled"
	EventAppointmentDeleted     = "appointment.deleted"
)

// StatusEventType names the event emitted when an appointment enters status.
func StatusEventType(status scheduling.Status) string {
	return "appointment." + string(status)
}

type OutboxEvent struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	BusinessID    uuid.UUID       `db:"business_id" json:"business_id"`
	AggregateType string          `db:"aggregate_type" json:"aggregate_type"`
	AggregateID   uuid.UUID       `db:"aggregate_id" json:"aggregate_id"`
	EventType     string          `db:"event_type" json:"event_type"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	Status        OutboxStatus    `db:"status" json:"status"`
	ErrorMessage  *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount    int             `db:"retry_count" json:"retry_count"`
	RetryAt       *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt   *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// AppointmentEvent is the payload published for every appointment change.
type AppointmentEvent struct {
	AppointmentID      uuid.UUID            `json:"appointment_id"`
	AppointmentNumber  string               `json:"appointment_number"`
	BusinessID         uuid.UUID            `json:"business_id"`
	StaffID            uuid.UUID            `json:"staff_id"`
	PatientID          uuid.UUID            `json:"patient_id"`
	Date               scheduling.Date      `json:"appointment_date"`
	StartTime          scheduling.TimeOfDay `json:"start_time"`
	EndTime            scheduling.TimeOfDay `json:"end_time"`
	Status             scheduling.Status    `json:"status"`
	CancellationReason *string              `json:"cancellation_reason,omitempty"`
	RescheduledFrom    *uuid.UUID           `json:"rescheduled_from,omitempty"`
	ActorID            uuid.UUID            `json:"actor_id"`
	OccurredAt         time.Time            `json:"occurred_at"`
}

// NewAppointmentEvent builds a pending outbox row describing apt.
func NewAppointmentEvent(eventType string, apt *Appointment, actorID uuid.UUID, at time.Time) (*OutboxEvent, error) {
	payload, err := json.Marshal(AppointmentEvent{
		AppointmentID:      apt.ID,
		AppointmentNumber:  apt.AppointmentNumber,
		BusinessID:         apt.BusinessID,
		StaffID:            apt.StaffID,
		PatientID:          apt.PatientID,
		Date:               apt.Date,
		StartTime:          apt.StartTime,
		EndTime:            apt.EndTime,
		Status:             apt.Status,
		CancellationReason: apt.CancellationReason,
		RescheduledFrom:    apt.RescheduledFrom,
		ActorID:            actorID,
		OccurredAt:         at,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &OutboxEvent{
		ID:            uuid.New(),
		BusinessID:    apt.BusinessID,
		AggregateType: "appointment",
		AggregateID:   apt.ID,
		EventType:     eventType,
		Payload:       payload,
		Status:        OutboxStatusPending,
		CreatedAt:     at,
		UpdatedAt:     at,
	}, nil
}
