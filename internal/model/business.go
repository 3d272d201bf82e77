package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/clinic-scheduler/internal/scheduling"
)

const PlanFree = "free"

// Business is the tenant boundary.
type Business struct {
	Base
	Name                  string         `db:"name" json:"name"`
	Timezone              string         `db:"timezone" json:"timezone"`
	OperatingHours        OperatingHours `db:"operating_hours" json:"operating_hours"`
	SubscriptionPlan      string         `db:"subscription_plan" json:"subscription_plan"`
	SubscriptionExpiresAt *time.Time     `db:"subscription_expires_at" json:"subscription_expires_at,omitempty"`
	IsActive              bool           `db:"is_active" json:"is_active"`
}

// HasActiveSubscription is true on the free plan or before expiry.
func (b *Business) HasActiveSubscription(now time.Time) bool {
	if b.SubscriptionPlan == PlanFree {
		return true
	}
	return b.SubscriptionExpiresAt != nil && b.SubscriptionExpiresAt.After(now)
}

// CanBook reports whether new appointments may be created for the business.
func (b *Business) CanBook(now time.Time) bool {
	return b.IsActive && b.HasActiveSubscription(now)
}

// Location resolves the business timezone, falling back to fallback.
func (b *Business) Location(fallback *time.Location) *time.Location {
	if b.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// OperatingHours is a default window plus per-weekday overrides keyed by
// lowercase weekday name.
type OperatingHours struct {
	Default  *scheduling.BusinessHours           `json:"default,omitempty"`
	Weekdays map[string]scheduling.BusinessHours `json:"weekdays,omitempty"`
}

func (h OperatingHours) IsZero() bool {
	return h.Default == nil && len(h.Weekdays) == 0
}

// For returns the window that applies on d, or fallback when none is set.
func (h OperatingHours) For(d scheduling.Date, fallback scheduling.BusinessHours) scheduling.BusinessHours {
	if wh, ok := h.Weekdays[strings.ToLower(d.Weekday().String())]; ok {
		return wh
	}
	if h.Default != nil {
		return *h.Default
	}
	return fallback
}

func (h *OperatingHours) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*h = OperatingHours{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into OperatingHours", src)
	}
	if len(raw) == 0 {
		*h = OperatingHours{}
		return nil
	}
	return json.Unmarshal(raw, h)
}

func (h OperatingHours) Value() (driver.Value, error) {
	if h.IsZero() {
		return []byte("{}"), nil
	}
	return json.Marshal(h)
}
