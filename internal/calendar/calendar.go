// Package calendar computes US federal holidays and business-day
// (processing-day) navigation for settlement-date attribution.
package calendar

import (
	"fmt"
	"time"
)

// Holiday is a named federal holiday on a specific observed date.
type Holiday struct {
	Name string
	Date time.Time
}

// dateOnly truncates a timestamp to its calendar date in its own location.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// observe shifts a fixed-date holiday off the weekend: Saturday observes
// the preceding Friday, Sunday the following Monday. Calculated holidays
// never pass through here.
func observe(name string, d time.Time) Holiday {
	switch d.Weekday() {
	case time.Saturday:
		return Holiday{Name: name + " (Observed)", Date: d.AddDate(0, 0, -1)}
	case time.Sunday:
		return Holiday{Name: name + " (Observed)", Date: d.AddDate(0, 0, 1)}
	default:
		return Holiday{Name: name, Date: d}
	}
}

// nthWeekday returns the nth occurrence of a weekday in the given month.
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset+(n-1)*7)
}

// lastWeekday returns the last occurrence of a weekday in the given month.
func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	d := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	offset := (int(d.Weekday()) - int(weekday) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// HolidaysFor returns the ten US federal processing holidays for a year.
// Fixed-date holidays are weekend-adjusted; calculated holidays land on
// weekdays by construction and are never shifted.
func HolidaysFor(year int) []Holiday {
	return []Holiday{
		observe("New Year's Day", time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)),
		{Name: "Martin Luther King Jr. Day", Date: nthWeekday(year, time.January, time.Monday, 3)},
		{Name: "Presidents Day", Date: nthWeekday(year, time.February, time.Monday, 3)},
		{Name: "Memorial Day", Date: lastWeekday(year, time.May, time.Monday)},
		observe("Independence Day", time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC)),
		{Name: "Labor Day", Date: nthWeekday(year, time.September, time.Monday, 1)},
		{Name: "Columbus Day", Date: nthWeekday(year, time.October, time.Monday, 2)},
		observe("Veterans Day", time.Date(year, time.November, 11, 0, 0, 0, 0, time.UTC)),
		{Name: "Thanksgiving Day", Date: nthWeekday(year, time.November, time.Thursday, 4)},
		observe("Christmas Day", time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC)),
	}
}

// IsNonProcessingDay reports whether d is a weekend or federal holiday,
// with a human-readable reason. Matching is on calendar date, not
// timestamp.
func IsNonProcessingDay(d time.Time) (bool, string) {
	day := dateOnly(d)
	switch day.Weekday() {
	case time.Saturday:
		return true, "Saturday"
	case time.Sunday:
		return true, "Sunday"
	}
	// Observed New Year's can spill back from January 1 of the next
	// year onto December 31, so check the adjacent year too.
	for _, year := range []int{day.Year(), day.Year() + 1} {
		for _, h := range HolidaysFor(year) {
			if h.Date.Equal(day) {
				return true, h.Name
			}
		}
	}
	return false, ""
}

// NextProcessingDay walks forward one day at a time until a processing
// day is found. Strictly increases the date.
func NextProcessingDay(d time.Time) time.Time {
	day := dateOnly(d).AddDate(0, 0, 1)
	for {
		if non, _ := IsNonProcessingDay(day); !non {
			return day
		}
		day = day.AddDate(0, 0, 1)
	}
}

// PreviousProcessingDay walks backward one day at a time until a
// processing day is found. Strictly decreases the date.
func PreviousProcessingDay(d time.Time) time.Time {
	day := dateOnly(d).AddDate(0, 0, -1)
	for {
		if non, _ := IsNonProcessingDay(day); !non {
			return day
		}
		day = day.AddDate(0, 0, -1)
	}
}

// FormatBusinessDay renders a business day in the YYYY-MM-DD form used
// across session and archive records.
func FormatBusinessDay(d time.Time) string {
	return d.Format("2006-01-02")
}

// ParseBusinessDay parses a YYYY-MM-DD business day string.
func ParseBusinessDay(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid business day %q: %w", s, err)
	}
	return d, nil
}
