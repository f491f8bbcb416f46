package ledger

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrorKind classifies a rejected ledger write.
type ErrorKind string

const (
	KindEmpty              ErrorKind = "empty"
	KindUnbalanced         ErrorKind = "unbalanced"
	KindInvalidPosting     ErrorKind = "invalid_posting"
	KindUnknownAccount     ErrorKind = "unknown_account"
	KindClosedAccount      ErrorKind = "closed_account"
	KindNotYetOpen         ErrorKind = "not_yet_open"
	KindCurrencyNotAllowed ErrorKind = "currency_not_allowed"
	KindDuplicateAccount   ErrorKind = "duplicate_account"
)

// ValidationError is returned when the ledger refuses a directive.
type ValidationError struct {
	Kind     ErrorKind
	Account  string
	Currency string
	Message  string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ErrAccountNotFound is returned by account lookups for unknown names.
var ErrAccountNotFound = errors.New("ledger account not found")

// AsValidationError unwraps err into a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr, true
	}
	return nil, false
}

var rootAccounts = map[string]bool{
	"Assets":      true,
	"Liabilities": true,
	"Equity":      true,
	"Income":      true,
	"Expenses":    true,
}

var (
	accountComponentRe = regexp.MustCompile(`^[\p{Lu}\p{Lo}\p{Nd}][\p{L}\p{Nd}-]*$`)
	currencyRe         = regexp.MustCompile(`^[A-Z][A-Z0-9'._-]{0,22}[A-Z0-9]$`)
)

// ValidAccountName reports whether name is a Beancount account: one of the
// five root types followed by at least one capitalized component.
func ValidAccountName(name string) bool {
	parts := strings.Split(name, ":")
	if len(parts) < 2 || !rootAccounts[parts[0]] {
		return false
	}
	for _, p := range parts[1:] {
		if !accountComponentRe.MatchString(p) {
			return false
		}
	}
	return true
}

// AccountRoot returns the root type of an account name.
func AccountRoot(name string) string {
	root, _, _ := strings.Cut(name, ":")
	return root
}

// ValidCurrency reports whether c is a Beancount commodity symbol.
func ValidCurrency(c string) bool {
	return currencyRe.MatchString(c)
}

// CheckPostings validates every posting and requires the amounts to sum to
// zero within each currency.
func CheckPostings(postings []Posting) error {
	if len(postings) == 0 {
		return &ValidationError{Kind: KindEmpty, Message: "transaction has no postings"}
	}

	sums := make(map[string]decimal.Decimal)
	for i, p := range postings {
		if !ValidAccountName(p.Account) {
			return &ValidationError{
				Kind:    KindInvalidPosting,
				Account: p.Account,
				Message: fmt.Sprintf("posting %d: invalid account name %q", i+1, p.Account),
			}
		}
		if !ValidCurrency(p.Currency) {
			return &ValidationError{
				Kind:     KindInvalidPosting,
				Account:  p.Account,
				Currency: p.Currency,
				Message:  fmt.Sprintf("posting %d: invalid currency %q", i+1, p.Currency),
			}
		}
		sums[p.Currency] = sums[p.Currency].Add(p.Amount)
	}

	currencies := make([]string, 0, len(sums))
	for c := range sums {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	for _, c := range currencies {
		if !sums[c].IsZero() {
			return &ValidationError{
				Kind:     KindUnbalanced,
				Currency: c,
				Message:  fmt.Sprintf("transaction does not balance: residual %s %s", sums[c].String(), c),
			}
		}
	}
	return nil
}
