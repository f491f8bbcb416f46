package budget

import (
	"context"
	"fmt"
	"time"

	"beanmind/internal/accountpattern"
	"beanmind/internal/dates"
	"beanmind/internal/ledger"
	"beanmind/internal/models"

	"github.com/shopspring/decimal"
)

// Status classifies how much of a budget has been used.
type Status string

const (
	StatusNormal   Status = "normal"
	StatusWarning  Status = "warning"
	StatusExceeded Status = "exceeded"
)

var (
	hundred = decimal.NewFromInt(100)

	// WarningThreshold and ExceededThreshold are usage rates in percent.
	WarningThreshold  = decimal.NewFromInt(80)
	ExceededThreshold = hundred
)

func (s Status) severity() int {
	switch s {
	case StatusExceeded:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// Worst returns the more severe of two statuses.
func Worst(a, b Status) Status {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

func usagePercent(spent, effective decimal.Decimal) decimal.Decimal {
	if effective.Sign() <= 0 {
		return decimal.Zero
	}
	return spent.Mul(hundred).Div(effective)
}

// UsageRate returns spent as a percentage of effective, rounded to two
// places. A non-positive effective amount yields zero.
func UsageRate(spent, effective decimal.Decimal) decimal.Decimal {
	return usagePercent(spent, effective).Round(2)
}

// Classify derives the status of a single measure. Thresholds compare the
// exact percentage, not the rounded UsageRate.
func Classify(effective, spent decimal.Decimal) Status {
	rate := usagePercent(spent, effective)
	switch {
	case effective.Sign() < 0:
		return StatusExceeded
	case effective.Sign() == 0 && spent.Sign() > 0:
		return StatusExceeded
	case rate.GreaterThanOrEqual(ExceededThreshold):
		return StatusExceeded
	case rate.GreaterThanOrEqual(WarningThreshold):
		return StatusWarning
	default:
		return StatusNormal
	}
}

// NormalizeAmount turns a posting amount into spending. Debit-normal roots
// (Assets, Expenses) keep their sign; credit-normal roots are negated.
func NormalizeAmount(account string, amount decimal.Decimal) decimal.Decimal {
	switch ledger.AccountRoot(account) {
	case "Income", "Liabilities", "Equity":
		return amount.Neg()
	default:
		return amount
	}
}

// SumSpent totals the postings selected by item: matching account pattern and
// the item's currency.
func SumSpent(item Item, records []ledger.PostingRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		if r.Currency != item.Currency || !accountpattern.Matches(item.AccountPattern, r.Account) {
			continue
		}
		total = total.Add(NormalizeAmount(r.Account, r.Amount))
	}
	return total
}

// ItemResult is one item measured over one cycle.
type ItemResult struct {
	ItemID          string          `json:"item_id"`
	AccountPattern  string          `json:"account_pattern"`
	Currency        string          `json:"currency"`
	Amount          decimal.Decimal `json:"amount"`
	CarriedOver     decimal.Decimal `json:"carried_over"`
	EffectiveAmount decimal.Decimal `json:"effective_amount"`
	SpentAmount     decimal.Decimal `json:"spent_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	UsageRate       decimal.Decimal `json:"usage_rate"`
	Status          Status          `json:"status"`
}

// CycleResult is a budget measured over one cycle.
type CycleResult struct {
	PeriodNumber    int             `json:"period_number"`
	PeriodStart     time.Time       `json:"period_start"`
	PeriodEnd       time.Time       `json:"period_end"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	SpentAmount     decimal.Decimal `json:"spent_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	UsageRate       decimal.Decimal `json:"usage_rate"`
	Status          Status          `json:"status"`
	Items           []ItemResult    `json:"items"`
}

// EvaluateItem measures one item given its spending and the amount carried
// in from the previous cycle.
func EvaluateItem(item Item, spent, carried decimal.Decimal) ItemResult {
	effective := item.Amount.Add(carried)
	return ItemResult{
		ItemID:          item.ID,
		AccountPattern:  item.AccountPattern,
		Currency:        item.Currency,
		Amount:          item.Amount,
		CarriedOver:     carried,
		EffectiveAmount: effective,
		SpentAmount:     spent,
		RemainingAmount: effective.Sub(spent),
		UsageRate:       UsageRate(spent, effective),
		Status:          Classify(effective, spent),
	}
}

// Evaluate combines per-item measures into a cycle result. spent and carried
// are indexed like def.Items.
func Evaluate(def Definition, p Period, spent, carried []decimal.Decimal) CycleResult {
	result := CycleResult{
		PeriodNumber:    p.Number,
		PeriodStart:     p.Start,
		PeriodEnd:       p.End,
		TotalAmount:     decimal.Zero,
		SpentAmount:     decimal.Zero,
		RemainingAmount: decimal.Zero,
		Status:          StatusNormal,
		Items:           make([]ItemResult, 0, len(def.Items)),
	}
	for i, item := range def.Items {
		ir := EvaluateItem(item, spent[i], carried[i])
		result.Items = append(result.Items, ir)
		result.TotalAmount = result.TotalAmount.Add(ir.EffectiveAmount)
		result.SpentAmount = result.SpentAmount.Add(ir.SpentAmount)
		result.RemainingAmount = result.RemainingAmount.Add(ir.RemainingAmount)
		result.Status = Worst(result.Status, ir.Status)
	}
	result.UsageRate = UsageRate(result.SpentAmount, result.TotalAmount)
	return result
}

// CarryOver returns what each item carries into the cycle after prev: the
// item's remaining amount in prev. A nil prev carries nothing.
func CarryOver(def Definition, prev *CycleResult) []decimal.Decimal {
	out := make([]decimal.Decimal, len(def.Items))
	for i := range out {
		out[i] = decimal.Zero
	}
	if !def.CarryOverEnabled || prev == nil {
		return out
	}
	for i := range def.Items {
		if i < len(prev.Items) {
			out[i] = prev.Items[i].RemainingAmount
		}
	}
	return out
}

// Calculator measures budgets against ledger postings.
type Calculator struct {
	ledger ledger.Querier
}

// NewCalculator creates a calculator reading from q.
func NewCalculator(q ledger.Querier) *Calculator {
	return &Calculator{ledger: q}
}

// Spent returns the spending on item within p.
func (c *Calculator) Spent(ctx context.Context, item Item, p Period) (decimal.Decimal, error) {
	records, err := c.ledger.QueryPostings(ctx, accountpattern.QueryPrefix(item.AccountPattern), p.Start, p.End)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query postings for %s: %w", item.AccountPattern, err)
	}
	return SumSpent(item, records), nil
}

func (c *Calculator) measure(ctx context.Context, def Definition, p Period) ([]decimal.Decimal, error) {
	spent := make([]decimal.Decimal, len(def.Items))
	for i, item := range def.Items {
		s, err := c.Spent(ctx, item, p)
		if err != nil {
			return nil, err
		}
		spent[i] = s
	}
	return spent, nil
}

// ComputeCycles evaluates every period in order, chaining carry-over.
func (c *Calculator) ComputeCycles(ctx context.Context, def Definition, periods []Period) ([]CycleResult, error) {
	results := make([]CycleResult, 0, len(periods))
	var prev *CycleResult
	for _, p := range periods {
		spent, err := c.measure(ctx, def, p)
		if err != nil {
			return nil, err
		}
		results = append(results, Evaluate(def, p, spent, CarryOver(def, prev)))
		prev = &results[len(results)-1]
	}
	return results, nil
}

// ComputeCycle evaluates the period numbered number. It returns nil when no
// such period exists. With carry-over enabled every earlier cycle is folded
// in, so the result matches ComputeCycles.
func (c *Calculator) ComputeCycle(ctx context.Context, def Definition, periods []Period, number int) (*CycleResult, error) {
	idx := number - 1
	if idx < 0 || idx >= len(periods) {
		return nil, nil
	}

	if def.CarryOverEnabled && idx > 0 {
		chain, err := c.ComputeCycles(ctx, def, periods[:idx+1])
		if err != nil {
			return nil, err
		}
		return &chain[idx], nil
	}
	spent, err := c.measure(ctx, def, periods[idx])
	if err != nil {
		return nil, err
	}
	result := Evaluate(def, periods[idx], spent, CarryOver(def, nil))
	return &result, nil
}

// ComputeCurrent evaluates the period containing today, or returns nil.
func (c *Calculator) ComputeCurrent(ctx context.Context, def Definition, today time.Time) (*CycleResult, error) {
	periods := GenerateCycles(def, today)
	p, ok := FindPeriod(periods, today)
	if !ok {
		return nil, nil
	}
	return c.ComputeCycle(ctx, def, periods, p.Number)
}

// Totals aggregates several cycles.
type Totals struct {
	TotalAmount     decimal.Decimal `json:"total_amount"`
	SpentAmount     decimal.Decimal `json:"spent_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
}

// Summary describes a budget's cycles as of a date.
type Summary struct {
	IsCyclic        bool             `json:"is_cyclic"`
	CycleType       models.CycleType `json:"cycle_type"`
	TotalCycles     int              `json:"total_cycles"`
	CurrentCycle    *CycleResult     `json:"current_cycle"`
	CompletedCycles []CycleResult    `json:"completed_cycles"`
	CompletedTotals Totals           `json:"completed_totals"`
}

// Summarize splits results into the current cycle and the cycles that ended
// before today.
func Summarize(def Definition, results []CycleResult, today time.Time) Summary {
	today = dates.Normalize(today)
	s := Summary{
		IsCyclic:        def.CycleType != models.CycleTypeNone && def.CycleType != "",
		CycleType:       def.CycleType,
		TotalCycles:     len(results),
		CompletedCycles: []CycleResult{},
		CompletedTotals: Totals{TotalAmount: decimal.Zero, SpentAmount: decimal.Zero, RemainingAmount: decimal.Zero},
	}
	for i := range results {
		r := results[i]
		switch {
		case r.PeriodEnd.Before(today):
			s.CompletedCycles = append(s.CompletedCycles, r)
			s.CompletedTotals.TotalAmount = s.CompletedTotals.TotalAmount.Add(r.TotalAmount)
			s.CompletedTotals.SpentAmount = s.CompletedTotals.SpentAmount.Add(r.SpentAmount)
			s.CompletedTotals.RemainingAmount = s.CompletedTotals.RemainingAmount.Add(r.RemainingAmount)
		case !r.PeriodStart.After(today):
			s.CurrentCycle = &r
		}
	}
	return s
}
