package scheduling

import "github.com/google/uuid"

const DefaultGranularity = 30

// BusinessHours is the bookable window of one business day.
type BusinessHours struct {
	Open   TimeOfDay `json:"open"`
	Close  TimeOfDay `json:"close"`
	Closed bool      `json:"closed,omitempty"`
}

// IsOpen reports whether the window has any bookable minutes.
func (h BusinessHours) IsOpen() bool {
	return !h.Closed && h.Open < h.Close
}

type AvailabilityRequest struct {
	StaffID         uuid.UUID
	Date            Date
	DurationMinutes int
	Hours           BusinessHours
	Granularity     int
	// NotBefore drops candidates that start earlier. Nil keeps all.
	NotBefore *TimeOfDay
}

// Planner derives free slots from business hours and existing bookings.
type Planner struct {
	Detector ConflictDetector
}

func NewPlanner(detector ConflictDetector) Planner {
	if detector == nil {
		detector = LinearDetector{}
	}
	return Planner{Detector: detector}
}

// Compute walks candidate starts from Open in Granularity steps and keeps
// every slot that ends by Close and does not overlap an active booking of
// the staff member. The result is ordered by start and never nil.
func (p Planner) Compute(req AvailabilityRequest, bookings []Booking) []Interval {
	slots := make([]Interval, 0)
	if !req.Hours.IsOpen() || req.DurationMinutes <= 0 {
		return slots
	}
	if req.DurationMinutes > int(req.Hours.Close-req.Hours.Open) {
		return slots
	}

	step := req.Granularity
	if step <= 0 {
		step = DefaultGranularity
	}
	detector := p.Detector
	if detector == nil {
		detector = LinearDetector{}
	}

	for start := req.Hours.Open; start < req.Hours.Close; start += TimeOfDay(step) {
		end, ok := start.Add(req.DurationMinutes)
		if !ok || end > req.Hours.Close {
			break
		}
		if req.NotBefore != nil && start < *req.NotBefore {
			continue
		}
		slot := Interval{Date: req.Date, Start: start, End: end}
		q := ConflictQuery{StaffID: req.StaffID, Candidate: slot}
		if detector.HasConflict(q, bookings) {
			continue
		}
		slots = append(slots, slot)
	}
	return slots
}
