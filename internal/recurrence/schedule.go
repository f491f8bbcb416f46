// Package recurrence decides on which calendar dates a recurring rule fires.
//
// A Schedule is a closed set of frequency types, each carrying only the
// configuration that frequency understands. Everything in this package is
// pure and safe for concurrent use.
package recurrence

import (
	"time"

	"beanmind/internal/dates"
)

// Frequency names how often a rule fires.
type Frequency string

const (
	FrequencyDaily    Frequency = "DAILY"
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyBiweekly Frequency = "BIWEEKLY"
	FrequencyMonthly  Frequency = "MONTHLY"
	FrequencyYearly   Frequency = "YEARLY"
)

// Frequencies lists every supported frequency.
var Frequencies = []Frequency{
	FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyYearly,
}

// Valid reports whether f is a supported frequency.
func (f Frequency) Valid() bool {
	for _, known := range Frequencies {
		if f == known {
			return true
		}
	}
	return false
}

// LastDay in a month_days list selects the last calendar day of the month.
const LastDay = -1

// Schedule is implemented by Daily, Weekly, Biweekly, Monthly and Yearly only.
type Schedule interface {
	Frequency() Frequency
	matches(date time.Time) bool
	validate() error
}

// Daily fires every day.
type Daily struct{}

// Weekly fires on the listed ISO weekdays (Monday=1 .. Sunday=7).
type Weekly struct {
	Weekdays []int
}

// Biweekly fires on the listed ISO weekdays in every other ISO week. Weeks
// whose number has the same parity as Anchor's week are the firing weeks.
type Biweekly struct {
	Weekdays []int
	Anchor   time.Time
}

// Monthly fires on the listed days of the month. LastDay selects the final
// day of every month. Days a month does not have are skipped, never clamped.
type Monthly struct {
	MonthDays []int
}

// Yearly fires once a year on Month/Day. February 29 fires only in leap years.
type Yearly struct {
	Month time.Month
	Day   int
}

func (Daily) Frequency() Frequency    { return FrequencyDaily }
func (Weekly) Frequency() Frequency   { return FrequencyWeekly }
func (Biweekly) Frequency() Frequency { return FrequencyBiweekly }
func (Monthly) Frequency() Frequency  { return FrequencyMonthly }
func (Yearly) Frequency() Frequency   { return FrequencyYearly }

func (Daily) matches(time.Time) bool { return true }

func (s Weekly) matches(date time.Time) bool {
	return containsInt(s.Weekdays, dates.ISOWeekday(date))
}

func (s Biweekly) matches(date time.Time) bool {
	if !containsInt(s.Weekdays, dates.ISOWeekday(date)) {
		return false
	}
	_, week := date.ISOWeek()
	_, anchorWeek := s.Anchor.ISOWeek()
	return week%2 == anchorWeek%2
}

func (s Monthly) matches(date time.Time) bool {
	if containsInt(s.MonthDays, date.Day()) {
		return true
	}
	return containsInt(s.MonthDays, LastDay) && dates.IsLastDayOfMonth(date)
}

func (s Yearly) matches(date time.Time) bool {
	return date.Month() == s.Month && date.Day() == s.Day
}

// IsDue reports whether s fires on date. Only the calendar date matters.
func IsDue(s Schedule, date time.Time) bool {
	return s.matches(dates.Normalize(date))
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
