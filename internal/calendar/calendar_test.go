package calendar

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestHolidaysFor_CountAndWeekdays(t *testing.T) {
	for year := 2020; year <= 2030; year++ {
		holidays := HolidaysFor(year)
		if len(holidays) != 10 {
			t.Fatalf("year %d: got %d holidays, want 10", year, len(holidays))
		}
		for _, h := range holidays {
			wd := h.Date.Weekday()
			if wd == time.Saturday || wd == time.Sunday {
				t.Errorf("year %d: %s observed on %s (%s)", year, h.Name, h.Date.Format("2006-01-02"), wd)
			}
		}
	}
}

func TestHolidaysFor_2025(t *testing.T) {
	tests := []struct {
		name string
		want time.Time
	}{
		{"New Year's Day", date(2025, time.January, 1)},
		{"Martin Luther King Jr. Day", date(2025, time.January, 20)},
		{"Presidents Day", date(2025, time.February, 17)},
		{"Memorial Day", date(2025, time.May, 26)},
		{"Independence Day", date(2025, time.July, 4)}, // Friday, no shift
		{"Labor Day", date(2025, time.September, 1)},
		{"Columbus Day", date(2025, time.October, 13)},
		{"Veterans Day", date(2025, time.November, 11)},
		{"Thanksgiving Day", date(2025, time.November, 27)},
		{"Christmas Day", date(2025, time.December, 25)}, // Thursday, no shift
	}

	holidays := HolidaysFor(2025)
	for i, tc := range tests {
		if holidays[i].Name != tc.name {
			t.Errorf("holiday %d: name = %q, want %q", i, holidays[i].Name, tc.name)
		}
		if !holidays[i].Date.Equal(tc.want) {
			t.Errorf("%s: date = %s, want %s", tc.name, holidays[i].Date.Format("2006-01-02"), tc.want.Format("2006-01-02"))
		}
	}
}

func TestHolidaysFor_ObservedShifts(t *testing.T) {
	// July 4, 2026 is a Saturday: observed Friday, July 3.
	var found bool
	for _, h := range HolidaysFor(2026) {
		if h.Name == "Independence Day (Observed)" {
			found = true
			if !h.Date.Equal(date(2026, time.July, 3)) {
				t.Errorf("Independence Day 2026 observed on %s, want 2026-07-03", h.Date.Format("2006-01-02"))
			}
		}
	}
	if !found {
		t.Error("Independence Day 2026 not marked observed")
	}

	// January 1, 2022 is a Saturday: observed Friday, December 31, 2021.
	for _, h := range HolidaysFor(2022) {
		if h.Name == "New Year's Day (Observed)" {
			if !h.Date.Equal(date(2021, time.December, 31)) {
				t.Errorf("New Year's 2022 observed on %s, want 2021-12-31", h.Date.Format("2006-01-02"))
			}
		}
	}
}

func TestIsNonProcessingDay(t *testing.T) {
	tests := []struct {
		name   string
		d      time.Time
		non    bool
		reason string
	}{
		{"weekday", date(2025, time.July, 9), false, ""},
		{"saturday", date(2025, time.July, 12), true, "Saturday"},
		{"sunday", date(2025, time.July, 13), true, "Sunday"},
		{"july 4 2025", date(2025, time.July, 4), true, "Independence Day"},
		{"christmas 2025", date(2025, time.December, 25), true, "Christmas Day"},
		{"observed new years spillback", date(2021, time.December, 31), true, "New Year's Day (Observed)"},
		{"thanksgiving 2025", date(2025, time.November, 27), true, "Thanksgiving Day"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			non, reason := IsNonProcessingDay(tc.d)
			if non != tc.non {
				t.Fatalf("IsNonProcessingDay(%s) = %v, want %v", tc.d.Format("2006-01-02"), non, tc.non)
			}
			if reason != tc.reason {
				t.Errorf("reason = %q, want %q", reason, tc.reason)
			}
		})
	}
}

func TestIsNonProcessingDay_IgnoresTimestamp(t *testing.T) {
	// Late-evening timestamp on a holiday must still match by calendar date.
	d := time.Date(2025, time.July, 4, 23, 59, 59, 0, time.UTC)
	non, reason := IsNonProcessingDay(d)
	if !non || reason != "Independence Day" {
		t.Errorf("got (%v, %q), want (true, Independence Day)", non, reason)
	}
}

func TestNextProcessingDay(t *testing.T) {
	tests := []struct {
		name string
		d    time.Time
		want time.Time
	}{
		{"friday to monday", date(2025, time.July, 11), date(2025, time.July, 14)},
		{"thursday before july 4 friday", date(2025, time.July, 3), date(2025, time.July, 7)},
		{"midweek", date(2025, time.March, 4), date(2025, time.March, 5)},
		{"before thanksgiving", date(2025, time.November, 26), date(2025, time.November, 28)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NextProcessingDay(tc.d)
			if !got.Equal(tc.want) {
				t.Errorf("NextProcessingDay(%s) = %s, want %s",
					tc.d.Format("2006-01-02"), got.Format("2006-01-02"), tc.want.Format("2006-01-02"))
			}
		})
	}
}

func TestPreviousProcessingDay(t *testing.T) {
	tests := []struct {
		name string
		d    time.Time
		want time.Time
	}{
		{"saturday back to friday", date(2025, time.July, 12), date(2025, time.July, 11)},
		{"monday after july 4 weekend", date(2025, time.July, 7), date(2025, time.July, 3)},
		{"midweek", date(2025, time.March, 5), date(2025, time.March, 4)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := PreviousProcessingDay(tc.d)
			if !got.Equal(tc.want) {
				t.Errorf("PreviousProcessingDay(%s) = %s, want %s",
					tc.d.Format("2006-01-02"), got.Format("2006-01-02"), tc.want.Format("2006-01-02"))
			}
		})
	}
}

func TestProcessingDayProperties(t *testing.T) {
	// For a spread of dates: the next processing day is itself a
	// processing day and is strictly after the input.
	d := date(2025, time.January, 1)
	for i := 0; i < 400; i++ {
		next := NextProcessingDay(d)
		if non, reason := IsNonProcessingDay(next); non {
			t.Fatalf("NextProcessingDay(%s) = %s is non-processing (%s)",
				d.Format("2006-01-02"), next.Format("2006-01-02"), reason)
		}
		if !next.After(d) {
			t.Fatalf("NextProcessingDay(%s) = %s does not advance", d.Format("2006-01-02"), next.Format("2006-01-02"))
		}
		prev := PreviousProcessingDay(d)
		if non, _ := IsNonProcessingDay(prev); non {
			t.Fatalf("PreviousProcessingDay(%s) = %s is non-processing", d.Format("2006-01-02"), prev.Format("2006-01-02"))
		}
		d = d.AddDate(0, 0, 1)
	}
}

func TestParseBusinessDay(t *testing.T) {
	d, err := ParseBusinessDay("2025-07-11")
	if err != nil {
		t.Fatalf("ParseBusinessDay: %v", err)
	}
	if FormatBusinessDay(d) != "2025-07-11" {
		t.Errorf("round trip = %s, want 2025-07-11", FormatBusinessDay(d))
	}
	if _, err := ParseBusinessDay("07/11/2025"); err == nil {
		t.Error("expected error for non-ISO date")
	}
}
