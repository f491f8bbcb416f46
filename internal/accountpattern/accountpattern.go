// Package accountpattern matches Beancount account names against budget
// item patterns. A pattern is either an exact account name or an account
// name followed by ":*", which selects that account and every descendant.
package accountpattern

import (
	"fmt"
	"strings"
)

const wildcardSuffix = ":*"

// Matches reports whether account is selected by pattern. Matching is
// case-sensitive and segment-aware: "Expenses:Food:*" selects
// "Expenses:Food:Lunch" but not "Expenses:FoodDelivery".
func Matches(pattern, account string) bool {
	if prefix, ok := strings.CutSuffix(pattern, wildcardSuffix); ok {
		return account == prefix || strings.HasPrefix(account, prefix+":")
	}
	return account == pattern
}

// QueryPrefix returns the account name to hand to a ledger query: the
// pattern itself for exact patterns, the parent account for wildcards.
func QueryPrefix(pattern string) string {
	return strings.TrimSuffix(pattern, wildcardSuffix)
}

// Validate rejects patterns with empty segments or a misplaced wildcard.
func Validate(pattern string) error {
	base := QueryPrefix(pattern)
	if base == "" {
		return fmt.Errorf("account pattern %q is empty", pattern)
	}
	for _, seg := range strings.Split(base, ":") {
		if seg == "" {
			return fmt.Errorf("account pattern %q has an empty segment", pattern)
		}
		if strings.Contains(seg, "*") {
			return fmt.Errorf("account pattern %q: wildcard is only allowed as a trailing \":*\"", pattern)
		}
	}
	return nil
}
