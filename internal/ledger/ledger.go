// Package ledger is the double-entry journal rules write to and budgets read
// from. The Journal stores entries with gorm and can mirror every accepted
// directive into a Beancount text file.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// FlagComplete marks a cleared transaction.
const FlagComplete = "*"

// Posting is one leg of a transaction.
type Posting struct {
	Account  string          `json:"account"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Transaction is a dated, balanced set of postings.
type Transaction struct {
	Date        time.Time
	Flag        string
	Payee       string
	Description string
	Tags        []string
	Source      string
	Postings    []Posting
}

// PostingRecord is a stored posting together with its transaction context.
type PostingRecord struct {
	TransactionID string          `json:"transaction_id"`
	Date          time.Time       `json:"date"`
	Account       string          `json:"account"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

// Querier reads postings. account selects that account and all of its
// descendants; from and to are inclusive dates.
type Querier interface {
	QueryPostings(ctx context.Context, account string, from, to time.Time) ([]PostingRecord, error)
}

// Writer appends transactions and returns the new transaction id. Rejected
// transactions fail with *ValidationError.
type Writer interface {
	AppendTransaction(ctx context.Context, txn Transaction) (string, error)
}
