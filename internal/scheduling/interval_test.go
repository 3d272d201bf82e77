package scheduling

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func span(t *testing.T, date, start, end string) Interval {
	t.Helper()
	return Interval{Date: mustDate(t, date), Start: MustTimeOfDay(start), End: MustTimeOfDay(end)}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "09:00", want: "09:00"},
		{in: "23:59", want: "23:59"},
		{in: "14:30:00", want: "14:30"},
		{in: "14:30:15", wantErr: true},
		{in: "24:00", wantErr: true},
		{in: "9:00", wantErr: true},
		{in: "09:60", wantErr: true},
		{in: "nine", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTimeOfDay)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2025, Month: time.June, Day: 1}, d)
	assert.Equal(t, time.Sunday, d.Weekday())
	assert.Equal(t, "2025-06-02", d.AddDays(1).String())

	_, err = ParseDate("2025-02-30")
	assert.ErrorIs(t, err, ErrInvalidDate)
	_, err = ParseDate("06/01/2025")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestDateCompare(t *testing.T) {
	a := mustDate(t, "2025-06-01")
	b := mustDate(t, "2025-06-02")

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.True(t, mustDate(t, "2024-12-31").Before(a))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-06-01", d.String())

	require.NoError(t, d.Scan([]byte("2025-07-04T00:00:00Z")))
	assert.Equal(t, "2025-07-04", d.String())

	assert.Error(t, d.Scan(42))
}

func TestTimeOfDayScan(t *testing.T) {
	var tod TimeOfDay
	require.NoError(t, tod.Scan([]byte("09:30:00")))
	assert.Equal(t, MustTimeOfDay("09:30"), tod)

	require.NoError(t, tod.Scan(time.Date(0, 1, 1, 16, 45, 0, 0, time.UTC)))
	assert.Equal(t, "16:45", tod.String())
}

func TestJSONRoundTrip(t *testing.T) {
	type payload struct {
		Date  Date      `json:"date"`
		Start TimeOfDay `json:"start"`
	}
	in := payload{Date: mustDate(t, "2025-06-01"), Start: MustTimeOfDay("09:30")}

	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2025-06-01","start":"09:30"}`, string(b))

	var out payload
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)

	assert.Error(t, json.Unmarshal([]byte(`{"start":"25:00"}`), &out))
}

func TestNewInterval(t *testing.T) {
	date := mustDate(t, "2025-06-01")

	tests := []struct {
		name       string
		start, end string
		wantErr    bool
	}{
		{name: "minimum length", start: "09:00", end: "09:15"},
		{name: "maximum length", start: "09:00", end: "17:00"},
		{name: "too short", start: "09:00", end: "09:14", wantErr: true},
		{name: "too long", start: "08:00", end: "16:01", wantErr: true},
		{name: "empty", start: "09:00", end: "09:00", wantErr: true},
		{name: "reversed", start: "10:00", end: "09:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iv, err := NewInterval(date, MustTimeOfDay(tt.start), MustTimeOfDay(tt.end))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInterval)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int(MustTimeOfDay(tt.end)-MustTimeOfDay(tt.start)), iv.Minutes())
		})
	}

	_, err := NewInterval(Date{}, MustTimeOfDay("09:00"), MustTimeOfDay("10:00"))
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{
			name: "touching boundary",
			a:    span(t, "2025-06-01", "09:00", "09:30"),
			b:    span(t, "2025-06-01", "09:30", "10:00"),
			want: false,
		},
		{
			name: "partial overlap",
			a:    span(t, "2025-06-01", "09:00", "10:00"),
			b:    span(t, "2025-06-01", "09:45", "10:15"),
			want: true,
		},
		{
			name: "contained",
			a:    span(t, "2025-06-01", "09:00", "12:00"),
			b:    span(t, "2025-06-01", "10:00", "10:30"),
			want: true,
		},
		{
			name: "identical",
			a:    span(t, "2025-06-01", "09:00", "09:30"),
			b:    span(t, "2025-06-01", "09:00", "09:30"),
			want: true,
		},
		{
			name: "disjoint",
			a:    span(t, "2025-06-01", "09:00", "09:30"),
			b:    span(t, "2025-06-01", "13:00", "14:00"),
			want: false,
		},
		{
			name: "different dates",
			a:    span(t, "2025-06-01", "09:00", "10:00"),
			b:    span(t, "2025-06-02", "09:00", "10:00"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.a, tt.b))
			assert.Equal(t, Overlaps(tt.a, tt.b), Overlaps(tt.b, tt.a), "overlap must be symmetric")
		})
	}
}

func TestOverlapsSymmetricExhaustive(t *testing.T) {
	date := mustDate(t, "2025-06-01")
	var all []Interval
	for s := 8 * 60; s < 11*60; s += 15 {
		for e := s + 15; e <= 11*60; e += 15 {
			all = append(all, Interval{Date: date, Start: TimeOfDay(s), End: TimeOfDay(e)})
		}
	}
	for _, a := range all {
		for _, b := range all {
			require.Equal(t, Overlaps(a, b), Overlaps(b, a), "%s vs %s", a, b)
		}
	}
}

func TestIntervalFormat(t *testing.T) {
	iv := span(t, "2025-06-01", "09:30", "10:00")
	assert.Equal(t, "09:30 - 10:00", iv.Format())
	assert.Equal(t, 30*time.Minute, iv.Duration())
}
