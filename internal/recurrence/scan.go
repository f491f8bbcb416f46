package recurrence

import (
	"errors"
	"time"

	"beanmind/internal/dates"
)

// MaxScanDays bounds the forward search. Eight years covers the longest gap
// between two February 29ths, which happens around a skipped century leap year.
const MaxScanDays = 8 * 366

// ErrScanExhausted means no due date was found within MaxScanDays even though
// the rule has no end date in range. It indicates a configuration that can
// never fire.
var ErrScanExhausted = errors.New("no due date found within scan bound")

// NextDueOnOrAfter returns the first date d with max(from, start) <= d <= end
// on which s fires. ok is false when the window closes without a match.
func NextDueOnOrAfter(s Schedule, from, start time.Time, end *time.Time) (time.Time, bool, error) {
	d := dates.Max(dates.Normalize(from), dates.Normalize(start))
	var last time.Time
	if end != nil {
		last = dates.Normalize(*end)
	}

	for i := 0; i < MaxScanDays; i++ {
		if end != nil && d.After(last) {
			return time.Time{}, false, nil
		}
		if s.matches(d) {
			return d, true, nil
		}
		d = dates.AddDays(d, 1)
	}
	if end != nil && d.After(last) {
		return time.Time{}, false, nil
	}
	return time.Time{}, false, ErrScanExhausted
}

// Upcoming returns up to count due dates on or after from, in order.
func Upcoming(s Schedule, from, start time.Time, end *time.Time, count int) ([]time.Time, error) {
	out := make([]time.Time, 0, count)
	cursor := from
	for len(out) < count {
		next, ok, err := NextDueOnOrAfter(s, cursor, start, end)
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, next)
		cursor = dates.AddDays(next, 1)
	}
	return out, nil
}
