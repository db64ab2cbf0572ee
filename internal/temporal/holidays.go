package temporal

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

//go:embed holidays_de_nw.yaml
var defaultHolidays []byte

// Calendar is a year-scoped public holiday table.
type Calendar struct {
	Region string
	dates  map[string]struct{}
	years  map[int]struct{}
}

type calendarFile struct {
	Region string           `yaml:"region"`
	Years  map[int][]string `yaml:"years"`
}

// DefaultCalendar returns the embedded DE-NW table.
func DefaultCalendar() *Calendar {
	cal, err := ParseCalendar(defaultHolidays)
	if err != nil {
		panic(fmt.Sprintf("embedded holiday table: %v", err))
	}
	return cal
}

// LoadCalendar reads a holiday table from path, or returns the embedded
// default when path is empty.
func LoadCalendar(path string) (*Calendar, error) {
	if path == "" {
		return DefaultCalendar(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read holiday table: %w", err)
	}
	return ParseCalendar(raw)
}

func ParseCalendar(raw []byte) (*Calendar, error) {
	var file calendarFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse holiday table: %w", err)
	}
	cal := &Calendar{
		Region: file.Region,
		dates:  make(map[string]struct{}),
		years:  make(map[int]struct{}),
	}
	for year, dates := range file.Years {
		for _, d := range dates {
			parsed, err := time.Parse(dateLayout, d)
			if err != nil {
				return nil, fmt.Errorf("holiday %q: %w", d, err)
			}
			if parsed.Year() != year {
				return nil, fmt.Errorf("holiday %s listed under year %d", d, year)
			}
			cal.dates[d] = struct{}{}
		}
		cal.years[year] = struct{}{}
	}
	return cal, nil
}

// IsHoliday reports whether the calendar date of t (in t's location) is listed.
func (c *Calendar) IsHoliday(t time.Time) bool {
	if c == nil {
		return false
	}
	_, ok := c.dates[t.Format(dateLayout)]
	return ok
}

// Covers reports whether the table has entries for year.
func (c *Calendar) Covers(year int) bool {
	if c == nil {
		return false
	}
	_, ok := c.years[year]
	return ok
}

// IsWeekendOrHoliday reports whether a night starting at start falls before a
// day off: Friday and Saturday nights, or when the start date or the
// following date is a holiday.
func (c *Calendar) IsWeekendOrHoliday(start time.Time) bool {
	switch start.Weekday() {
	case time.Friday, time.Saturday:
		return true
	}
	return c.IsHoliday(start) || c.IsHoliday(start.AddDate(0, 0, 1))
}
