package scheduling

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func starts(slots []Interval) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start.String())
	}
	return out
}

func ninetoFive() BusinessHours {
	return BusinessHours{Open: MustTimeOfDay("09:00"), Close: MustTimeOfDay("17:00")}
}

func TestComputeScenario(t *testing.T) {
	staff := uuid.New()
	date := mustDate(t, "2025-06-01")
	bookings := []Booking{
		{ID: uuid.New(), StaffID: staff, Interval: span(t, "2025-06-01", "09:00", "09:30"), Status: StatusScheduled},
		{ID: uuid.New(), StaffID: staff, Interval: span(t, "2025-06-01", "11:00", "12:30"), Status: StatusConfirmed},
	}

	slots := NewPlanner(nil).Compute(AvailabilityRequest{
		StaffID:         staff,
		Date:            date,
		DurationMinutes: 30,
		Hours:           ninetoFive(),
		Granularity:     30,
	}, bookings)

	assert.Equal(t, []string{
		"09:30", "10:00", "10:30",
		"12:30", "13:00", "13:30", "14:00", "14:30", "15:00", "15:30", "16:00", "16:30",
	}, starts(slots))
	assert.Equal(t, "17:00", slots[len(slots)-1].End.String())
}

func TestComputeExcludesBookedWindow(t *testing.T) {
	staff := uuid.New()
	booked := span(t, "2025-06-01", "10:00", "11:00")
	bookings := []Booking{{ID: uuid.New(), StaffID: staff, Interval: booked, Status: StatusScheduled}}

	slots := NewPlanner(nil).Compute(AvailabilityRequest{
		StaffID:         staff,
		Date:            booked.Date,
		DurationMinutes: 60,
		Hours:           ninetoFive(),
	}, bookings)

	require.NotEmpty(t, slots)
	for _, s := range slots {
		assert.False(t, Overlaps(s, booked), "slot %s overlaps booking", s)
		assert.GreaterOrEqual(t, s.Start, MustTimeOfDay("09:00"))
		assert.LessOrEqual(t, s.End, MustTimeOfDay("17:00"))
	}
	assert.Contains(t, starts(slots), "09:00")
	assert.Contains(t, starts(slots), "11:00")
	assert.Equal(t, "16:00", slots[len(slots)-1].Start.String())
	assert.NotContains(t, starts(slots), "09:30")
	assert.NotContains(t, starts(slots), "10:30")
}

func TestComputeOrderedAndAligned(t *testing.T) {
	slots := NewPlanner(nil).Compute(AvailabilityRequest{
		StaffID:         uuid.New(),
		Date:            mustDate(t, "2025-06-01"),
		DurationMinutes: 45,
		Hours:           BusinessHours{Open: MustTimeOfDay("08:15"), Close: MustTimeOfDay("12:00")},
		Granularity:     20,
	}, nil)

	require.NotEmpty(t, slots)
	for i, s := range slots {
		assert.Equal(t, 0, int(s.Start-MustTimeOfDay("08:15"))%20)
		assert.Equal(t, 45, s.Minutes())
		if i > 0 {
			assert.Less(t, slots[i-1].Start, s.Start)
		}
	}
	// 08:15 + 20k with k up to 9 gives 11:15, which ends at 12:00.
	assert.Equal(t, "11:15", slots[len(slots)-1].Start.String())
}

func TestComputeEdgeCases(t *testing.T) {
	date := mustDate(t, "2025-06-01")

	tests := []struct {
		name     string
		hours    BusinessHours
		duration int
	}{
		{name: "closed day", hours: BusinessHours{Open: MustTimeOfDay("09:00"), Close: MustTimeOfDay("17:00"), Closed: true}, duration: 30},
		{name: "zero hours", hours: BusinessHours{Open: MustTimeOfDay("09:00"), Close: MustTimeOfDay("09:00")}, duration: 30},
		{name: "duration longer than the day", hours: ninetoFive(), duration: 481},
		{name: "non-positive duration", hours: ninetoFive(), duration: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := NewPlanner(nil).Compute(AvailabilityRequest{
				StaffID:         uuid.New(),
				Date:            date,
				DurationMinutes: tt.duration,
				Hours:           tt.hours,
			}, nil)
			assert.NotNil(t, slots)
			assert.Empty(t, slots)
		})
	}
}

func TestComputeUnevenGranularity(t *testing.T) {
	slots := NewPlanner(nil).Compute(AvailabilityRequest{
		StaffID:         uuid.New(),
		Date:            mustDate(t, "2025-06-01"),
		DurationMinutes: 30,
		Hours:           BusinessHours{Open: MustTimeOfDay("09:00"), Close: MustTimeOfDay("10:10")},
		Granularity:     25,
	}, nil)

	assert.Equal(t, []string{"09:00", "09:25"}, starts(slots))
}

func TestComputeNotBefore(t *testing.T) {
	cutoff := MustTimeOfDay("15:10")
	slots := NewPlanner(nil).Compute(AvailabilityRequest{
		StaffID:         uuid.New(),
		Date:            mustDate(t, "2025-06-01"),
		DurationMinutes: 30,
		Hours:           ninetoFive(),
		NotBefore:       &cutoff,
	}, nil)

	assert.Equal(t, []string{"15:30", "16:00", "16:30"}, starts(slots))
}

func TestComputeIgnoresOtherStaff(t *testing.T) {
	staff := uuid.New()
	bookings := []Booking{
		{ID: uuid.New(), StaffID: uuid.New(), Interval: span(t, "2025-06-01", "09:00", "17:00"), Status: StatusScheduled},
	}

	slots := NewPlanner(nil).Compute(AvailabilityRequest{
		StaffID:         staff,
		Date:            mustDate(t, "2025-06-01"),
		DurationMinutes: 60,
		Hours:           ninetoFive(),
	}, bookings)

	assert.Len(t, slots, 15)
}
