// Package budget splits budgets into calendar cycles and measures spending
// against them.
package budget

import (
	"time"

	"beanmind/internal/dates"
	"beanmind/internal/models"

	"github.com/shopspring/decimal"
)

// MaxCycles caps generation for very long budgets (a century of months).
const MaxCycles = 1200

// Item is one spending limit within a budget.
type Item struct {
	ID             string
	AccountPattern string
	Amount         decimal.Decimal
	Currency       string
}

// Definition is the part of a budget that cycle generation and the
// calculator depend on.
type Definition struct {
	CycleType        models.CycleType
	StartDate        time.Time
	EndDate          *time.Time
	CarryOverEnabled bool
	Items            []Item
}

// FromModel builds a Definition from a stored budget with its items loaded.
func FromModel(b *models.Budget) Definition {
	def := Definition{
		CycleType:        b.CycleType,
		StartDate:        dates.Normalize(b.StartDate),
		CarryOverEnabled: b.CarryOverEnabled && b.CycleType != models.CycleTypeNone,
		Items:            make([]Item, 0, len(b.Items)),
	}
	if b.EndDate != nil {
		def.EndDate = dates.Ptr(*b.EndDate)
	}
	for _, it := range b.Items {
		def.Items = append(def.Items, Item{
			ID:             it.ID,
			AccountPattern: it.AccountPattern,
			Amount:         it.Amount,
			Currency:       it.Currency,
		})
	}
	return def
}

// Period is one cycle's inclusive date range.
type Period struct {
	Number int       `json:"period_number"`
	Start  time.Time `json:"period_start"`
	End    time.Time `json:"period_end"`
}

// Contains reports whether d falls within the period.
func (p Period) Contains(d time.Time) bool {
	d = dates.Normalize(d)
	return !d.Before(p.Start) && !d.After(p.End)
}

// GenerateCycles splits def into contiguous periods numbered from 1. Bounded
// budgets run to EndDate. Open-ended budgets stop after the first period
// starting after upperBound, so the current and next cycle are included.
func GenerateCycles(def Definition, upperBound time.Time) []Period {
	start := dates.Normalize(def.StartDate)
	upperBound = dates.Normalize(upperBound)

	if def.CycleType == models.CycleTypeNone || def.CycleType == "" {
		if def.EndDate == nil {
			return nil
		}
		return []Period{{Number: 1, Start: start, End: dates.Normalize(*def.EndDate)}}
	}

	var end time.Time
	if def.EndDate != nil {
		end = dates.Normalize(*def.EndDate)
		if end.Before(start) {
			return nil
		}
	}

	var periods []Period
	cursor := start
	for n := 1; n <= MaxCycles; n++ {
		var periodEnd time.Time
		switch def.CycleType {
		case models.CycleTypeMonthly:
			periodEnd = dates.EndOfMonth(cursor)
		case models.CycleTypeYearly:
			periodEnd = dates.EndOfYear(cursor)
		default:
			return periods
		}
		if def.EndDate != nil && periodEnd.After(end) {
			periodEnd = end
		}

		periods = append(periods, Period{Number: n, Start: cursor, End: periodEnd})

		if def.EndDate != nil && !periodEnd.Before(end) {
			break
		}
		if def.EndDate == nil && cursor.After(upperBound) {
			break
		}
		cursor = dates.AddDays(periodEnd, 1)
	}
	return periods
}

// FindPeriod returns the period containing d.
func FindPeriod(periods []Period, d time.Time) (Period, bool) {
	for _, p := range periods {
		if p.Contains(d) {
			return p, true
		}
	}
	return Period{}, false
}
