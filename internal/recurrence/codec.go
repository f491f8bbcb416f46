package recurrence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"beanmind/internal/dates"
)

// ConfigError reports a frequency configuration that cannot describe a
// schedule.
type ConfigError struct {
	Frequency Frequency
	Reason    string
}

func (e *ConfigError) Error() string {
	if e.Frequency == "" {
		return "invalid frequency config: " + e.Reason
	}
	return fmt.Sprintf("invalid %s config: %s", e.Frequency, e.Reason)
}

func configErr(f Frequency, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Frequency: f, Reason: fmt.Sprintf(format, args...)}
}

type weekdaysConfig struct {
	Weekdays []int `json:"weekdays"`
}

type monthDaysConfig struct {
	MonthDays []int `json:"month_days"`
}

type yearlyConfig struct {
	Month int `json:"month"`
	Day   int `json:"day"`
}

// Decode builds a Schedule from the stored frequency and its JSON config.
// Unknown keys are rejected. anchor is the rule's start date and is only
// used by BIWEEKLY.
func Decode(freq Frequency, raw []byte, anchor time.Time) (Schedule, error) {
	var s Schedule
	switch freq {
	case FrequencyDaily:
		var cfg struct{}
		if err := decodeStrict(raw, &cfg); err != nil {
			return nil, configErr(freq, "%v", err)
		}
		s = Daily{}
	case FrequencyWeekly:
		var cfg weekdaysConfig
		if err := decodeStrict(raw, &cfg); err != nil {
			return nil, configErr(freq, "%v", err)
		}
		s = Weekly{Weekdays: cfg.Weekdays}
	case FrequencyBiweekly:
		var cfg weekdaysConfig
		if err := decodeStrict(raw, &cfg); err != nil {
			return nil, configErr(freq, "%v", err)
		}
		s = Biweekly{Weekdays: cfg.Weekdays, Anchor: dates.Normalize(anchor)}
	case FrequencyMonthly:
		var cfg monthDaysConfig
		if err := decodeStrict(raw, &cfg); err != nil {
			return nil, configErr(freq, "%v", err)
		}
		s = Monthly{MonthDays: cfg.MonthDays}
	case FrequencyYearly:
		var cfg yearlyConfig
		if err := decodeStrict(raw, &cfg); err != nil {
			return nil, configErr(freq, "%v", err)
		}
		s = Yearly{Month: time.Month(cfg.Month), Day: cfg.Day}
	default:
		return nil, configErr("", "unsupported frequency %q", freq)
	}

	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Encode renders the config part of s in canonical form: sorted, without
// duplicates.
func Encode(s Schedule) ([]byte, error) {
	switch v := s.(type) {
	case Daily:
		return []byte("{}"), nil
	case Weekly:
		return json.Marshal(weekdaysConfig{Weekdays: canonical(v.Weekdays)})
	case Biweekly:
		return json.Marshal(weekdaysConfig{Weekdays: canonical(v.Weekdays)})
	case Monthly:
		return json.Marshal(monthDaysConfig{MonthDays: canonical(v.MonthDays)})
	case Yearly:
		return json.Marshal(yearlyConfig{Month: int(v.Month), Day: v.Day})
	default:
		return nil, configErr("", "unsupported schedule %T", s)
	}
}

// Validate checks that s can fire at all.
func Validate(s Schedule) error {
	if s == nil {
		return configErr("", "missing schedule")
	}
	return s.validate()
}

func (Daily) validate() error { return nil }

func (s Weekly) validate() error { return validateWeekdays(FrequencyWeekly, s.Weekdays) }

func (s Biweekly) validate() error {
	if s.Anchor.IsZero() {
		return configErr(FrequencyBiweekly, "missing anchor date")
	}
	return validateWeekdays(FrequencyBiweekly, s.Weekdays)
}

func (s Monthly) validate() error {
	if len(s.MonthDays) == 0 {
		return configErr(FrequencyMonthly, "month_days must not be empty")
	}
	for _, d := range s.MonthDays {
		if d != LastDay && (d < 1 || d > 31) {
			return configErr(FrequencyMonthly, "month day %d out of range (1-31 or -1)", d)
		}
	}
	return nil
}

func (s Yearly) validate() error {
	if s.Month < time.January || s.Month > time.December {
		return configErr(FrequencyYearly, "month %d out of range (1-12)", int(s.Month))
	}
	// Leap year so February allows 29.
	maxDay := dates.DaysIn(2000, s.Month)
	if s.Day < 1 || s.Day > maxDay {
		return configErr(FrequencyYearly, "day %d out of range for %s (1-%d)", s.Day, s.Month, maxDay)
	}
	return nil
}

func validateWeekdays(f Frequency, weekdays []int) error {
	if len(weekdays) == 0 {
		return configErr(f, "weekdays must not be empty")
	}
	for _, d := range weekdays {
		if d < 1 || d > 7 {
			return configErr(f, "weekday %d out of range (1-7)", d)
		}
	}
	return nil
}

func decodeStrict(raw []byte, dst interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func canonical(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
