package accountpattern

import "testing"

func TestMatches(t *testing.T) {
	tests := []struct {
		pattern string
		account string
		want    bool
	}{
		{"Expenses:Food:*", "Expenses:Food:Lunch", true},
		{"Expenses:Food:*", "Expenses:Food", true},
		{"Expenses:Food:*", "Expenses:FoodDelivery", false},
		{"Expenses:Food", "Expenses:Food:Lunch", false},
		{"Expenses:Food", "Expenses:Food", true},
		{"Expenses:Food:*", "Expenses:Food:Lunch:Weekday", true},
		{"Expenses:Food:*", "expenses:food:lunch", false},
		{"Expenses:*", "Income:Salary", false},
		{"Expenses:Food:*", "Expenses", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.account, func(t *testing.T) {
			if got := Matches(tt.pattern, tt.account); got != tt.want {
				t.Errorf("Matches(%q, %q) = %v, want %v", tt.pattern, tt.account, got, tt.want)
			}
		})
	}
}

func TestQueryPrefix(t *testing.T) {
	if got := QueryPrefix("Expenses:Food:*"); got != "Expenses:Food" {
		t.Errorf("expected Expenses:Food, got %s", got)
	}
	if got := QueryPrefix("Expenses:Food"); got != "Expenses:Food" {
		t.Errorf("expected Expenses:Food, got %s", got)
	}
}

func TestValidate(t *testing.T) {
	valid := []string{"Expenses:Food:*", "Expenses", "Assets:Bank:Checking"}
	for _, p := range valid {
		if err := Validate(p); err != nil {
			t.Errorf("Validate(%q) unexpected error: %v", p, err)
		}
	}

	invalid := []string{"", ":*", "Expenses::Food", "Expenses:*:Food", "Expenses:Fo*", "Expenses:"}
	for _, p := range invalid {
		if err := Validate(p); err == nil {
			t.Errorf("Validate(%q) expected error", p)
		}
	}
}
