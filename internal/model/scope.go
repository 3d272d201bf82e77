package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-scheduler/internal/scheduling"
)

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleDoctor       Role = "doctor"
	RoleNurse        Role = "nurse"
	RoleTherapist    Role = "therapist"
	RoleReceptionist Role = "receptionist"
)

var StaffRoles = []Role{RoleAdmin, RoleDoctor, RoleNurse, RoleTherapist, RoleReceptionist}

func (r Role) IsStaff() bool {
	for _, s := range StaffRoles {
		if s == r {
			return true
		}
	}
	return false
}

// Scope is who is acting, for which business, and when. Every service call
// receives one explicitly.
type Scope struct {
	BusinessID uuid.UUID
	UserID     uuid.UUID
	Role       Role
	Now        time.Time
	Location   *time.Location
}

func (s Scope) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// In returns a copy of the scope whose calendar is evaluated in loc.
func (s Scope) In(loc *time.Location) Scope {
	s.Location = loc
	return s
}

func (s Scope) local() time.Time {
	if s.Location == nil {
		return s.Now.UTC()
	}
	return s.Now.In(s.Location)
}

// Today is the business-local calendar date at Now.
func (s Scope) Today() scheduling.Date {
	return scheduling.DateOf(s.local())
}

// Clock is the business-local wall clock at Now.
func (s Scope) Clock() scheduling.TimeOfDay {
	return scheduling.ClockOf(s.local())
}
