// Package dates holds calendar-date helpers. A date is a time.Time at UTC
// midnight; every date entering the system is normalized with Normalize.
package dates

import (
	"fmt"
	"time"
)

// Layout is the wire format for calendar dates.
const Layout = "2006-01-02"

// Normalize drops the clock part of t, keeping the calendar date as seen in
// t's own location.
func Normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// New builds a normalized date.
func New(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date in loc.
func Today(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Normalize(time.Now().In(loc))
}

// Parse parses a YYYY-MM-DD string.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// ParseFlexible accepts YYYY-MM-DD or RFC 3339 and returns the calendar date.
func ParseFlexible(s string) (time.Time, error) {
	if t, err := time.Parse(Layout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or RFC 3339", s)
	}
	return Normalize(t), nil
}

// Format renders t as YYYY-MM-DD.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// AddDays moves a date by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// EndOfMonth returns the last calendar day of t's month.
func EndOfMonth(t time.Time) time.Time {
	return New(t.Year(), t.Month(), DaysIn(t.Year(), t.Month()))
}

// EndOfYear returns December 31 of t's year.
func EndOfYear(t time.Time) time.Time {
	return New(t.Year(), time.December, 31)
}

// IsLastDayOfMonth reports whether t is the last day of its month.
func IsLastDayOfMonth(t time.Time) bool {
	return t.Day() == DaysIn(t.Year(), t.Month())
}

// ISOWeekday returns the ISO-8601 weekday number, Monday=1 through Sunday=7.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// Max returns the later of two dates.
func Max(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// Ptr normalizes t and returns a pointer to it.
func Ptr(t time.Time) *time.Time {
	n := Normalize(t)
	return &n
}
