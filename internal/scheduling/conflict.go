package scheduling

import "github.com/google/uuid"

// Booking is the part of an appointment that occupies a staff calendar.
type Booking struct {
	ID       uuid.UUID
	StaffID  uuid.UUID
	Interval Interval
	Status   Status
}

// ConflictQuery describes a candidate booking. ExcludeID is skipped so an
// appointment never conflicts with itself; uuid.Nil excludes nothing. An
// empty Statuses means ActiveStatuses.
type ConflictQuery struct {
	StaffID   uuid.UUID
	Candidate Interval
	ExcludeID uuid.UUID
	Statuses  []Status
}

func (q ConflictQuery) statuses() []Status {
	if len(q.Statuses) == 0 {
		return ActiveStatuses
	}
	return q.Statuses
}

// ConflictDetector decides whether a candidate collides with existing bookings.
type ConflictDetector interface {
	HasConflict(q ConflictQuery, bookings []Booking) bool
	FirstConflict(q ConflictQuery, bookings []Booking) (Booking, bool)
}

// LinearDetector scans every booking. A single staff day holds few enough
// bookings that nothing smarter is needed.
type LinearDetector struct{}

func NewLinearDetector() LinearDetector {
	return LinearDetector{}
}

func (LinearDetector) HasConflict(q ConflictQuery, bookings []Booking) bool {
	_, found := LinearDetector{}.FirstConflict(q, bookings)
	return found
}

func (LinearDetector) FirstConflict(q ConflictQuery, bookings []Booking) (Booking, bool) {
	statuses := q.statuses()
	for _, b := range bookings {
		if b.StaffID != q.StaffID {
			continue
		}
		if q.ExcludeID != uuid.Nil && b.ID == q.ExcludeID {
			continue
		}
		if !containsStatus(statuses, b.Status) {
			continue
		}
		if Overlaps(b.Interval, q.Candidate) {
			return b, true
		}
	}
	return Booking{}, false
}

func containsStatus(set []Status, s Status) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}
