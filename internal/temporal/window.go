package temporal

import "time"

const NightLength = 8 * time.Hour

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// NightWindow returns the 8 hour window starting at 22:00 in loc. References
// before 06:00 belong to the previous evening's window; any later reference,
// including daytime ones, anchors to the same day's 22:00.
func NightWindow(reference time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	ref := reference.In(loc)
	day := ref
	if ref.Hour() < 6 {
		day = ref.AddDate(0, 0, -1)
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 22, 0, 0, 0, loc)
	return Window{Start: start, End: start.Add(NightLength)}
}

// MorningRange returns the activity range following a night window.
func MorningRange(nightEnd time.Time, length time.Duration) Window {
	return Window{Start: nightEnd, End: nightEnd.Add(length)}
}
