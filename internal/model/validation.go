package model

import (
	playground "github.com/go-playground/validator/v10"

	"github.com/jwalitptl/clinic-scheduler/internal/scheduling"
	"github.com/jwalitptl/clinic-scheduler/pkg/validator"
)

// ValidationRules are the custom binding tags used by the request structs.
var ValidationRules = []validator.Rule{
	{
		Tag: "date",
		Fn: func(fl playground.FieldLevel) bool {
			_, err := scheduling.ParseDate(fl.Field().String())
			return err == nil
		},
		Message: "must be a date in YYYY-MM-DD format",
	},
	{
		Tag: "hhmm",
		Fn: func(fl playground.FieldLevel) bool {
			_, err := scheduling.ParseTimeOfDay(fl.Field().String())
			return err == nil
		},
		Message: "must be a time in HH:MM format",
	},
	{
		Tag: "appointment_type",
		Fn: func(fl playground.FieldLevel) bool {
			return AppointmentType(fl.Field().String()).IsValid()
		},
		Message: "must be one of in-person, telehealth",
	},
	{
		Tag: "appointment_status",
		Fn: func(fl playground.FieldLevel) bool {
			return scheduling.Status(fl.Field().String()).IsValid()
		},
		Message: "must be a valid appointment status",
	},
}

// NewValidator returns a validator that understands the request tags.
func NewValidator() validator.Validator {
	return validator.New(ValidationRules...)
}
