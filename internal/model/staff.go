package model

import "github.com/google/uuid"

// Staff is a business user who can be assigned appointments.
type Staff struct {
	Base
	BusinessID uuid.UUID `db:"business_id" json:"business_id"`
	Name       string    `db:"name" json:"name"`
	Email      string    `db:"email" json:"email"`
	Role       Role      `db:"role" json:"role"`
	IsActive   bool      `db:"is_active" json:"is_active"`
}
