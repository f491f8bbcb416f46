package budget

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"beanmind/internal/dates"
	"beanmind/internal/ledger"
	"beanmind/internal/models"

	"github.com/shopspring/decimal"
)

// fakeLedger answers queries from an in-memory posting list.
type fakeLedger struct {
	records []ledger.PostingRecord
	err     error
	queries int
}

func (f *fakeLedger) QueryPostings(_ context.Context, account string, from, to time.Time) ([]ledger.PostingRecord, error) {
	f.queries++
	if f.err != nil {
		return nil, f.err
	}
	var out []ledger.PostingRecord
	for _, r := range f.records {
		if r.Account != account && !strings.HasPrefix(r.Account, account+":") {
			continue
		}
		if r.Date.Before(from) || r.Date.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeLedger) add(date time.Time, account string, amount string, currency string) {
	f.records = append(f.records, ledger.PostingRecord{
		Date:     date,
		Account:  account,
		Amount:   decimal.RequireFromString(amount),
		Currency: currency,
	})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestClassify_Thresholds(t *testing.T) {
	tests := []struct {
		name  string
		spent string
		want  Status
	}{
		{"below_warning", "79.9", StatusNormal},
		{"at_warning", "80", StatusWarning},
		{"just_below_exceeded", "99.99", StatusWarning},
		{"rounds_to_exceeded", "99.999", StatusWarning},
		{"rounds_to_warning", "79.996", StatusNormal},
		{"at_exceeded", "100", StatusExceeded},
		{"over", "150", StatusExceeded},
		{"refund_net_negative", "-10", StatusNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := EvaluateItem(Item{Amount: dec("100"), Currency: "CNY"}, dec(tt.spent), decimal.Zero)
			if r.Status != tt.want {
				t.Errorf("spent %s of 100: expected %s, got %s (rate %s)", tt.spent, tt.want, r.Status, r.UsageRate)
			}
		})
	}
}

func TestEvaluateItem_RoundsReportedRateOnly(t *testing.T) {
	r := EvaluateItem(Item{Amount: dec("100"), Currency: "CNY"}, dec("99.999"), decimal.Zero)
	if !r.UsageRate.Equal(dec("100")) {
		t.Errorf("expected reported rate 100, got %s", r.UsageRate)
	}
	if !r.RemainingAmount.Equal(dec("0.001")) {
		t.Errorf("expected remaining 0.001, got %s", r.RemainingAmount)
	}
	if r.Status != StatusWarning {
		t.Errorf("expected warning while budget remains, got %s", r.Status)
	}
}

func TestEvaluateItem_DivisionGuard(t *testing.T) {
	t.Run("zero_budget_no_spend", func(t *testing.T) {
		r := EvaluateItem(Item{Amount: decimal.Zero}, decimal.Zero, decimal.Zero)
		if !r.UsageRate.IsZero() {
			t.Errorf("expected zero usage rate, got %s", r.UsageRate)
		}
		if r.Status != StatusNormal {
			t.Errorf("expected normal, got %s", r.Status)
		}
	})

	t.Run("zero_budget_with_spend", func(t *testing.T) {
		r := EvaluateItem(Item{Amount: decimal.Zero}, dec("5"), decimal.Zero)
		if !r.UsageRate.IsZero() {
			t.Errorf("expected zero usage rate, got %s", r.UsageRate)
		}
		if r.Status != StatusExceeded {
			t.Errorf("expected exceeded, got %s", r.Status)
		}
	})

	t.Run("negative_effective", func(t *testing.T) {
		r := EvaluateItem(Item{Amount: dec("100")}, decimal.Zero, dec("-150"))
		if !r.EffectiveAmount.Equal(dec("-50")) {
			t.Errorf("expected effective -50, got %s", r.EffectiveAmount)
		}
		if r.Status != StatusExceeded {
			t.Errorf("expected exceeded, got %s", r.Status)
		}
	})
}

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		account string
		amount  string
		want    string
	}{
		{"Expenses:Food", "30", "30"},
		{"Expenses:Food", "-5", "-5"},
		{"Assets:Savings", "100", "100"},
		{"Income:Salary", "-5000", "5000"},
		{"Liabilities:CreditCard", "-200", "200"},
		{"Equity:Opening", "10", "-10"},
	}
	for _, tt := range tests {
		if got := NormalizeAmount(tt.account, dec(tt.amount)); !got.Equal(dec(tt.want)) {
			t.Errorf("NormalizeAmount(%s, %s) = %s, want %s", tt.account, tt.amount, got, tt.want)
		}
	}
}

func TestSumSpent(t *testing.T) {
	item := Item{AccountPattern: "Expenses:Food:*", Currency: "CNY"}
	records := []ledger.PostingRecord{
		{Account: "Expenses:Food:Lunch", Amount: dec("30"), Currency: "CNY"},
		{Account: "Expenses:Food", Amount: dec("20"), Currency: "CNY"},
		{Account: "Expenses:Food:Lunch", Amount: dec("-10"), Currency: "CNY"},
		{Account: "Expenses:Food:Lunch", Amount: dec("99"), Currency: "USD"},
		{Account: "Expenses:FoodDelivery", Amount: dec("50"), Currency: "CNY"},
	}
	if got := SumSpent(item, records); !got.Equal(dec("40")) {
		t.Errorf("expected 40, got %s", got)
	}

	exact := Item{AccountPattern: "Expenses:Food", Currency: "CNY"}
	if got := SumSpent(exact, records); !got.Equal(dec("20")) {
		t.Errorf("expected exact pattern to exclude descendants, got %s", got)
	}
}

func monthlyCarryDefinition() Definition {
	return Definition{
		CycleType:        models.CycleTypeMonthly,
		StartDate:        dates.New(2025, 1, 1),
		CarryOverEnabled: true,
		Items: []Item{
			{ID: "food", AccountPattern: "Expenses:Food:*", Amount: dec("100"), Currency: "CNY"},
		},
	}
}

func TestComputeCycles_CarryOverDeficit(t *testing.T) {
	fl := &fakeLedger{}
	fl.add(dates.New(2025, 1, 10), "Expenses:Food:Lunch", "150", "CNY")
	fl.add(dates.New(2025, 2, 5), "Expenses:Food:Lunch", "40", "CNY")

	def := monthlyCarryDefinition()
	periods := GenerateCycles(def, dates.New(2025, 2, 15))
	results, err := NewCalculator(fl).ComputeCycles(context.Background(), def, periods)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jan, feb := results[0], results[1]
	if jan.Status != StatusExceeded {
		t.Errorf("expected January exceeded, got %s", jan.Status)
	}
	if !jan.RemainingAmount.Equal(dec("-50")) {
		t.Errorf("expected January remaining -50, got %s", jan.RemainingAmount)
	}

	item := feb.Items[0]
	if !item.CarriedOver.Equal(dec("-50")) {
		t.Errorf("expected carried -50, got %s", item.CarriedOver)
	}
	if !item.EffectiveAmount.Equal(dec("50")) {
		t.Errorf("expected effective 50, got %s", item.EffectiveAmount)
	}
	if !item.UsageRate.Equal(dec("80")) || item.Status != StatusWarning {
		t.Errorf("expected 80%% warning, got %s%% %s", item.UsageRate, item.Status)
	}
}

func TestComputeCycles_CarryChainsRemaining(t *testing.T) {
	fl := &fakeLedger{}
	fl.add(dates.New(2025, 1, 10), "Expenses:Food:Lunch", "150", "CNY")
	fl.add(dates.New(2025, 2, 10), "Expenses:Food:Lunch", "100", "CNY")
	fl.add(dates.New(2025, 3, 10), "Expenses:Food:Lunch", "20", "CNY")

	def := monthlyCarryDefinition()
	periods := GenerateCycles(def, dates.New(2025, 3, 15))
	calc := NewCalculator(fl)
	results, err := calc.ComputeCycles(context.Background(), def, periods)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name      string
		carried   string
		effective string
		remaining string
	}{
		{"january", "0", "100", "-50"},
		{"february", "-50", "50", "-50"},
		{"march", "-50", "50", "30"},
	}
	for i, tt := range tests {
		item := results[i].Items[0]
		if !item.CarriedOver.Equal(dec(tt.carried)) {
			t.Errorf("%s: expected carried %s, got %s", tt.name, tt.carried, item.CarriedOver)
		}
		if !item.EffectiveAmount.Equal(dec(tt.effective)) {
			t.Errorf("%s: expected effective %s, got %s", tt.name, tt.effective, item.EffectiveAmount)
		}
		if !item.RemainingAmount.Equal(dec(tt.remaining)) {
			t.Errorf("%s: expected remaining %s, got %s", tt.name, tt.remaining, item.RemainingAmount)
		}
		if i > 0 && !item.CarriedOver.Equal(results[i-1].Items[0].RemainingAmount) {
			t.Errorf("%s: carried %s does not match previous remaining %s", tt.name, item.CarriedOver, results[i-1].Items[0].RemainingAmount)
		}
	}

	march, err := calc.ComputeCycle(context.Background(), def, periods, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !march.Items[0].CarriedOver.Equal(dec("-50")) || !march.RemainingAmount.Equal(dec("30")) {
		t.Errorf("single-cycle March carried %s remaining %s, want -50 and 30", march.Items[0].CarriedOver, march.RemainingAmount)
	}
}

func TestComputeCycles_CarryDisabled(t *testing.T) {
	fl := &fakeLedger{}
	fl.add(dates.New(2025, 1, 10), "Expenses:Food:Lunch", "10", "CNY")

	def := monthlyCarryDefinition()
	def.CarryOverEnabled = false
	periods := GenerateCycles(def, dates.New(2025, 2, 15))
	results, err := NewCalculator(fl).ComputeCycles(context.Background(), def, periods)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !results[1].Items[0].EffectiveAmount.Equal(dec("100")) {
		t.Errorf("expected no carry, got effective %s", results[1].Items[0].EffectiveAmount)
	}
}

func TestComputeCycle_MatchesChain(t *testing.T) {
	fl := &fakeLedger{}
	fl.add(dates.New(2025, 1, 10), "Expenses:Food:Lunch", "150", "CNY")
	fl.add(dates.New(2025, 2, 5), "Expenses:Food:Lunch", "40", "CNY")

	def := monthlyCarryDefinition()
	calc := NewCalculator(fl)
	periods := GenerateCycles(def, dates.New(2025, 2, 15))

	all, err := calc.ComputeCycles(context.Background(), def, periods)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	one, err := calc.ComputeCycle(context.Background(), def, periods, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if one == nil {
		t.Fatal("expected cycle 2")
	}
	if !one.RemainingAmount.Equal(all[1].RemainingAmount) {
		t.Errorf("single-cycle remaining %s differs from chained %s", one.RemainingAmount, all[1].RemainingAmount)
	}

	missing, err := calc.ComputeCycle(context.Background(), def, periods, 99)
	if err != nil || missing != nil {
		t.Errorf("expected empty result for out-of-range cycle, got %v, %v", missing, err)
	}
}

func TestEvaluate_BudgetTotalsAndWorstStatus(t *testing.T) {
	def := Definition{
		Items: []Item{
			{ID: "a", Amount: dec("100"), Currency: "CNY"},
			{ID: "b", Amount: dec("200"), Currency: "CNY"},
		},
	}
	p := Period{Number: 1, Start: dates.New(2025, 1, 1), End: dates.New(2025, 1, 31)}
	r := Evaluate(def, p, []decimal.Decimal{dec("85"), dec("20")}, []decimal.Decimal{decimal.Zero, decimal.Zero})

	if !r.TotalAmount.Equal(dec("300")) || !r.SpentAmount.Equal(dec("105")) || !r.RemainingAmount.Equal(dec("195")) {
		t.Errorf("unexpected totals %s/%s/%s", r.TotalAmount, r.SpentAmount, r.RemainingAmount)
	}
	if r.Status != StatusWarning {
		t.Errorf("expected worst item status warning, got %s", r.Status)
	}
	if !r.UsageRate.Equal(dec("35")) {
		t.Errorf("expected 35%% usage, got %s", r.UsageRate)
	}
}

func TestComputeCurrent(t *testing.T) {
	fl := &fakeLedger{}
	fl.add(dates.New(2025, 2, 5), "Expenses:Food:Lunch", "40", "CNY")
	def := monthlyCarryDefinition()
	def.CarryOverEnabled = false

	cur, err := NewCalculator(fl).ComputeCurrent(context.Background(), def, dates.New(2025, 2, 15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cur == nil || cur.PeriodNumber != 2 {
		t.Fatalf("expected cycle 2, got %+v", cur)
	}
	if !cur.SpentAmount.Equal(dec("40")) {
		t.Errorf("expected spent 40, got %s", cur.SpentAmount)
	}

	before, err := NewCalculator(fl).ComputeCurrent(context.Background(), def, dates.New(2024, 12, 31))
	if err != nil || before != nil {
		t.Errorf("expected no current cycle before start, got %v, %v", before, err)
	}
}

func TestComputeCycles_LedgerError(t *testing.T) {
	fl := &fakeLedger{err: errors.New("ledger offline")}
	def := monthlyCarryDefinition()
	_, err := NewCalculator(fl).ComputeCycles(context.Background(), def, GenerateCycles(def, dates.New(2025, 1, 1)))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSummarize(t *testing.T) {
	fl := &fakeLedger{}
	fl.add(dates.New(2025, 1, 10), "Expenses:Food:Lunch", "60", "CNY")
	fl.add(dates.New(2025, 2, 10), "Expenses:Food:Lunch", "70", "CNY")

	def := monthlyCarryDefinition()
	def.CarryOverEnabled = false
	today := dates.New(2025, 3, 10)
	results, err := NewCalculator(fl).ComputeCycles(context.Background(), def, GenerateCycles(def, today))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := Summarize(def, results, today)
	if !s.IsCyclic {
		t.Error("expected cyclic summary")
	}
	if len(s.CompletedCycles) != 2 {
		t.Fatalf("expected 2 completed cycles, got %d", len(s.CompletedCycles))
	}
	if s.CurrentCycle == nil || s.CurrentCycle.PeriodNumber != 3 {
		t.Fatalf("expected current cycle 3, got %+v", s.CurrentCycle)
	}
	if !s.CompletedTotals.SpentAmount.Equal(dec("130")) || !s.CompletedTotals.TotalAmount.Equal(dec("200")) {
		t.Errorf("unexpected completed totals %+v", s.CompletedTotals)
	}
	if s.TotalCycles != 4 {
		t.Errorf("expected 4 generated cycles (through next month), got %d", s.TotalCycles)
	}
}
