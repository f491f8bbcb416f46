package ledger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"beanmind/internal/dates"
)

// FormatTransaction renders txn as a Beancount transaction directive.
func FormatTransaction(txn Transaction) string {
	var b strings.Builder

	flag := txn.Flag
	if flag == "" {
		flag = FlagComplete
	}
	fmt.Fprintf(&b, "%s %s", dates.Format(txn.Date), flag)
	if txn.Payee != "" {
		fmt.Fprintf(&b, " %s", quote(txn.Payee))
	}
	fmt.Fprintf(&b, " %s", quote(txn.Description))
	for _, tag := range txn.Tags {
		if tag = tagName(tag); tag != "" {
			fmt.Fprintf(&b, " #%s", tag)
		}
	}
	b.WriteString("\n")

	if txn.Source != "" {
		fmt.Fprintf(&b, "  source: %s\n", quote(txn.Source))
	}

	width := 0
	for _, p := range txn.Postings {
		if len(p.Account) > width {
			width = len(p.Account)
		}
	}
	for _, p := range txn.Postings {
		fmt.Fprintf(&b, "  %-*s  %s %s\n", width, p.Account, p.Amount.String(), p.Currency)
	}
	return b.String()
}

// FormatOpen renders an open directive.
func FormatOpen(name string, date time.Time, currencies []string) string {
	line := fmt.Sprintf("%s open %s", dates.Format(date), name)
	if len(currencies) > 0 {
		line += " " + strings.Join(currencies, ",")
	}
	return line + "\n"
}

// FormatClose renders a close directive.
func FormatClose(name string, date time.Time) string {
	return fmt.Sprintf("%s close %s\n", dates.Format(date), name)
}

var stringEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// quote renders s as a single-line Beancount string literal.
func quote(s string) string {
	return `"` + stringEscaper.Replace(s) + `"`
}

// tagName maps characters Beancount does not allow in a tag to '-'.
func tagName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '/', r == '.':
			return r
		default:
			return '-'
		}
	}, s)
}

// FileMirror appends directives to a Beancount file. Callers serialize
// access; the Journal holds its write lock around every Append.
type FileMirror struct {
	path string
}

// NewFileMirror returns a mirror writing to path, or nil when path is empty.
func NewFileMirror(path string) *FileMirror {
	if path == "" {
		return nil
	}
	return &FileMirror{path: path}
}

// Append writes one directive followed by a blank line.
func (m *FileMirror) Append(directive string) error {
	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger file: %w", err)
	}
	if _, err := f.WriteString(directive + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("write ledger file: %w", err)
	}
	return f.Close()
}
