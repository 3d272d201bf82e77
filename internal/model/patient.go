package model

import "github.com/google/uuid"

type Patient struct {
	Base
	BusinessID uuid.UUID `db:"business_id" json:"business_id"`
	FirstName  string    `db:"first_name" json:"first_name"`
	LastName   string    `db:"last_name" json:"last_name"`
	Email      *string   `db:"email" json:"email,omitempty"`
}

func (p *Patient) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}
