package scheduling

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	MinDuration = 15
	MaxDuration = 480

	minutesPerDay = 24 * 60
	dateLayout    = "2006-01-02"
)

var (
	ErrInvalidInterval  = errors.New("invalid interval")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidTimeOfDay = errors.New("invalid time of day")
)

// Date is a calendar day without a zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Midnight returns the start of the day in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) Weekday() time.Weekday {
	return d.Midnight(time.UTC).Weekday()
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.Midnight(time.UTC).AddDate(0, 0, n))
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmp(d.Year, o.Year)
	case d.Month != o.Month:
		return cmp(int(d.Month), int(o.Month))
	default:
		return cmp(d.Day, o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = DateOf(v)
		return nil
	case []byte:
		return d.parseInto(string(v))
	case string:
		return d.parseInto(v)
	case nil:
		*d = Date{}
		return nil
	}
	return fmt.Errorf("cannot scan %T into Date", src)
}

func (d *Date) parseInto(s string) error {
	// Postgres may render a DATE with a time suffix depending on the driver path.
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay is a wall-clock minute within a day, 00:00 to 23:59.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %02d:%02d", ErrInvalidTimeOfDay, hour, minute)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// MustTimeOfDay panics on malformed input. Intended for constants and tests.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTimeOfDay accepts HH:MM, and HH:MM:SS with zero seconds.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	for _, p := range parts {
		if len(p) != 2 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
		}
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	if len(parts) == 3 && parts[2] != "00" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return NewTimeOfDay(hour, minute)
}

// ClockOf truncates t to the minute and returns its wall-clock time.
func ClockOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Add returns t shifted by minutes, and false if the result leaves the day.
// Exactly midnight at the end of the day is reported as in range so that a
// slot may end at close when close is the last minute boundary.
func (t TimeOfDay) Add(minutes int) (TimeOfDay, bool) {
	next := int(t) + minutes
	if next < 0 || next > minutesPerDay {
		return 0, false
	}
	return TimeOfDay(next), true
}

// On returns the instant of t on date d in loc.
func (t TimeOfDay) On(d Date, loc *time.Location) time.Time {
	return d.Midnight(loc).Add(time.Duration(t) * time.Minute)
}

func (t *TimeOfDay) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*t = ClockOf(v)
		return nil
	case []byte:
		return t.parseInto(string(v))
	case string:
		return t.parseInto(v)
	}
	return fmt.Errorf("cannot scan %T into TimeOfDay", src)
}

func (t *TimeOfDay) parseInto(s string) error {
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return t.parseInto(s)
}

// Interval is the half-open range [Start, End) on Date.
type Interval struct {
	Date  Date
	Start TimeOfDay
	End   TimeOfDay
}

// NewInterval builds a bookable interval. Start must precede End and the
// length must fall within MinDuration and MaxDuration minutes inclusive.
func NewInterval(date Date, start, end TimeOfDay) (Interval, error) {
	if date.IsZero() {
		return Interval{}, fmt.Errorf("%w: missing date", ErrInvalidInterval)
	}
	if start >= end {
		return Interval{}, fmt.Errorf("%w: start %s is not before end %s", ErrInvalidInterval, start, end)
	}
	minutes := int(end - start)
	if minutes < MinDuration || minutes > MaxDuration {
		return Interval{}, fmt.Errorf("%w: duration %d minutes outside %d-%d", ErrInvalidInterval, minutes, MinDuration, MaxDuration)
	}
	return Interval{Date: date, Start: start, End: end}, nil
}

func (i Interval) Minutes() int {
	return int(i.End - i.Start)
}

func (i Interval) Duration() time.Duration {
	return time.Duration(i.Minutes()) * time.Minute
}

// Format renders the interval as "09:30 - 10:00".
func (i Interval) Format() string {
	return i.Start.String() + " - " + i.End.String()
}

func (i Interval) String() string {
	return i.Date.String() + " " + i.Format()
}

// Overlaps reports whether a and b share any minute. Intervals that only
// touch at a boundary do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Date == b.Date && a.Start < b.End && b.Start < a.End
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
