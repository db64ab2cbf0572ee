package temporal

import (
	"testing"
	"time"
)

func TestIsWeekendOrHoliday(t *testing.T) {
	cal := DefaultCalendar()
	tests := []struct {
		name  string
		start time.Time
		want  bool
	}{
		{"friday night", time.Date(2026, 2, 13, 22, 0, 0, 0, time.UTC), true},
		{"saturday night", time.Date(2026, 2, 14, 22, 0, 0, 0, time.UTC), true},
		{"sunday night", time.Date(2026, 2, 15, 22, 0, 0, 0, time.UTC), false},
		{"tuesday night", time.Date(2026, 2, 17, 22, 0, 0, 0, time.UTC), false},
		{"night before may day", time.Date(2026, 4, 30, 22, 0, 0, 0, time.UTC), true},
		{"night of ascension day", time.Date(2026, 5, 14, 22, 0, 0, 0, time.UTC), true},
		{"night before ascension day", time.Date(2026, 5, 13, 22, 0, 0, 0, time.UTC), true},
		{"regular tuesday in may", time.Date(2026, 5, 12, 22, 0, 0, 0, time.UTC), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := cal.IsWeekendOrHoliday(tc.start); got != tc.want {
				t.Fatalf("IsWeekendOrHoliday(%s) = %v; want %v", tc.start.Format(time.RFC3339), got, tc.want)
			}
		})
	}
}

func TestCalendarCovers(t *testing.T) {
	cal := DefaultCalendar()
	if cal.Region != "DE-NW" {
		t.Fatalf("expected region DE-NW, got %q", cal.Region)
	}
	if !cal.Covers(2026) || !cal.Covers(2027) {
		t.Fatal("expected embedded table to cover 2026 and 2027")
	}
	if cal.Covers(2030) {
		t.Fatal("expected embedded table not to cover 2030")
	}
}

func TestParseCalendarRejectsMisfiledDates(t *testing.T) {
	raw := []byte("region: X\nyears:\n  2026:\n    - \"2027-01-01\"\n")
	if _, err := ParseCalendar(raw); err == nil {
		t.Fatal("expected error for date listed under wrong year")
	}
}

func TestParseCalendarRejectsBadDates(t *testing.T) {
	raw := []byte("years:\n  2026:\n    - \"2026-13-01\"\n")
	if _, err := ParseCalendar(raw); err == nil {
		t.Fatal("expected error for invalid date")
	}
}

func TestNilCalendarOnlyCountsWeekends(t *testing.T) {
	var cal *Calendar
	if cal.IsWeekendOrHoliday(time.Date(2026, 4, 30, 22, 0, 0, 0, time.UTC)) {
		t.Fatal("expected nil calendar to report no holiday")
	}
	if !cal.IsWeekendOrHoliday(time.Date(2026, 2, 13, 22, 0, 0, 0, time.UTC)) {
		t.Fatal("expected friday to count without a calendar")
	}
}
