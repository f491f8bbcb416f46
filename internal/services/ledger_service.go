package services

import (
	"context"
	"errors"
	"time"

	apperrors "beanmind/internal/errors"
	"beanmind/internal/ledger"
	"beanmind/internal/models"
)

// ledgerService exposes the journal to HTTP handlers and translates its
// errors into AppErrors.
type ledgerService struct {
	journal *ledger.Journal
}

// NewLedgerService creates a new LedgerServicer backed by journal.
func NewLedgerService(journal *ledger.Journal) LedgerServicer {
	return &ledgerService{journal: journal}
}

// ledgerError maps journal errors onto the AppError taxonomy.
func ledgerError(err error) error {
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return apperrors.ErrLedgerAccountNotFound
	}
	if vErr, ok := ledger.AsValidationError(err); ok {
		switch vErr.Kind {
		case ledger.KindDuplicateAccount:
			return apperrors.WrapWithMessage(apperrors.ErrLedgerAccountExists, vErr.Message, vErr)
		case ledger.KindInvalidPosting:
			return apperrors.WrapWithMessage(apperrors.ErrInvalidInput, vErr.Message, vErr)
		default:
			return apperrors.WrapWithMessage(apperrors.ErrLedgerWriteFailed, vErr.Message, vErr)
		}
	}
	return apperrors.Wrap(apperrors.ErrInternalServer, err)
}

// OpenAccount adds an account to the chart of accounts.
func (s *ledgerService) OpenAccount(ctx context.Context, name string, openDate time.Time, currencies []string) (*models.LedgerAccount, error) {
	account, err := s.journal.OpenAccount(ctx, name, openDate, currencies)
	if err != nil {
		return nil, ledgerError(err)
	}
	return account, nil
}

// CloseAccount closes an open account as of closeDate.
func (s *ledgerService) CloseAccount(ctx context.Context, name string, closeDate time.Time) (*models.LedgerAccount, error) {
	account, err := s.journal.CloseAccount(ctx, name, closeDate)
	if err != nil {
		return nil, ledgerError(err)
	}
	return account, nil
}

// ListAccounts returns the chart of accounts.
func (s *ledgerService) ListAccounts(ctx context.Context) ([]models.LedgerAccount, error) {
	accounts, err := s.journal.ListAccounts(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return accounts, nil
}

// CreateTransaction appends a hand-entered transaction and returns the stored row.
func (s *ledgerService) CreateTransaction(ctx context.Context, txn ledger.Transaction) (*models.LedgerTransaction, error) {
	if txn.Source == "" {
		txn.Source = "manual"
	}
	id, err := s.journal.AppendTransaction(ctx, txn)
	if err != nil {
		return nil, ledgerError(err)
	}
	row, err := s.journal.GetTransaction(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return row, nil
}

// QueryPostings returns postings on account or its descendants within [from, to].
func (s *ledgerService) QueryPostings(ctx context.Context, account string, from, to time.Time) ([]ledger.PostingRecord, error) {
	if to.Before(from) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "to_date must not be before from_date")
	}
	records, err := s.journal.QueryPostings(ctx, account, from, to)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return records, nil
}
