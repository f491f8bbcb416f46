package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"beanmind/internal/dates"
	"beanmind/internal/logger"
	"beanmind/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Journal is the gorm-backed ledger. All writes go through a single mutex
// so appends are totally ordered, matching a single Beancount file.
type Journal struct {
	db     *gorm.DB
	mirror *FileMirror
	mu     sync.Mutex
}

// NewJournal creates a journal. mirror may be nil.
func NewJournal(db *gorm.DB, mirror *FileMirror) *Journal {
	return &Journal{db: db, mirror: mirror}
}

// AppendTransaction validates txn against the chart of accounts and stores it.
func (j *Journal) AppendTransaction(ctx context.Context, txn Transaction) (string, error) {
	txn.Date = dates.Normalize(txn.Date)
	if txn.Flag == "" {
		txn.Flag = FlagComplete
	}
	if err := CheckPostings(txn.Postings); err != nil {
		return "", err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	var id string
	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkAccounts(tx, txn); err != nil {
			return err
		}

		row := models.LedgerTransaction{
			Date:        txn.Date,
			Flag:        txn.Flag,
			Payee:       txn.Payee,
			Description: txn.Description,
			Tags:        datatypes.JSONSlice[string](txn.Tags),
			Source:      txn.Source,
		}
		for i, p := range txn.Postings {
			row.Postings = append(row.Postings, models.LedgerPosting{
				Position: i,
				Account:  p.Account,
				Amount:   p.Amount,
				Currency: p.Currency,
				Date:     txn.Date,
			})
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert ledger transaction: %w", err)
		}
		id = row.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	j.mirrorAppend(FormatTransaction(txn))
	return id, nil
}

// mirrorAppend copies a committed directive to the text mirror. The database
// stays authoritative, so a mirror failure is logged rather than returned.
func (j *Journal) mirrorAppend(directive string) {
	if j.mirror == nil {
		return
	}
	if err := j.mirror.Append(directive); err != nil {
		logger.Named("ledger").Errorw("failed to mirror ledger directive", "error", err)
	}
}

func checkAccounts(tx *gorm.DB, txn Transaction) error {
	names := make([]string, 0, len(txn.Postings))
	for _, p := range txn.Postings {
		names = append(names, p.Account)
	}

	var accounts []models.LedgerAccount
	if err := tx.Where("name IN ?", names).Find(&accounts).Error; err != nil {
		return fmt.Errorf("load ledger accounts: %w", err)
	}
	byName := make(map[string]*models.LedgerAccount, len(accounts))
	for i := range accounts {
		byName[accounts[i].Name] = &accounts[i]
	}

	for _, p := range txn.Postings {
		acct, ok := byName[p.Account]
		if !ok {
			return &ValidationError{
				Kind:    KindUnknownAccount,
				Account: p.Account,
				Message: fmt.Sprintf("account %s is not open", p.Account),
			}
		}
		if txn.Date.Before(acct.OpenDate) {
			return &ValidationError{
				Kind:    KindNotYetOpen,
				Account: p.Account,
				Message: fmt.Sprintf("account %s opens on %s", p.Account, dates.Format(acct.OpenDate)),
			}
		}
		if !acct.IsOpenOn(txn.Date) {
			return &ValidationError{
				Kind:    KindClosedAccount,
				Account: p.Account,
				Message: fmt.Sprintf("account %s was closed on %s", p.Account, dates.Format(*acct.CloseDate)),
			}
		}
		if !acct.AllowsCurrency(p.Currency) {
			return &ValidationError{
				Kind:     KindCurrencyNotAllowed,
				Account:  p.Account,
				Currency: p.Currency,
				Message:  fmt.Sprintf("account %s does not accept %s", p.Account, p.Currency),
			}
		}
	}
	return nil
}

// QueryPostings returns postings on account or any descendant dated within
// [from, to], oldest first.
func (j *Journal) QueryPostings(ctx context.Context, account string, from, to time.Time) ([]PostingRecord, error) {
	var rows []models.LedgerPosting
	err := j.db.WithContext(ctx).
		Where("(account = ? OR account LIKE ?) AND date >= ? AND date <= ?",
			account, account+":%", dates.Normalize(from), dates.Normalize(to)).
		Order("date ASC, transaction_id ASC, position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query postings: %w", err)
	}

	out := make([]PostingRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, PostingRecord{
			TransactionID: r.TransactionID,
			Date:          dates.Normalize(r.Date),
			Account:       r.Account,
			Amount:        r.Amount,
			Currency:      r.Currency,
		})
	}
	return out, nil
}

// GetTransaction loads a transaction with its postings.
func (j *Journal) GetTransaction(ctx context.Context, id string) (*models.LedgerTransaction, error) {
	var row models.LedgerTransaction
	err := j.db.WithContext(ctx).
		Preload("Postings", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&row, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// OpenAccount adds an account to the chart. currencies optionally restricts
// the commodities it may hold.
func (j *Journal) OpenAccount(ctx context.Context, name string, openDate time.Time, currencies []string) (*models.LedgerAccount, error) {
	if !ValidAccountName(name) {
		return nil, &ValidationError{Kind: KindInvalidPosting, Account: name, Message: fmt.Sprintf("invalid account name %q", name)}
	}
	for _, c := range currencies {
		if !ValidCurrency(c) {
			return nil, &ValidationError{Kind: KindInvalidPosting, Account: name, Currency: c, Message: fmt.Sprintf("invalid currency %q", c)}
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	account := &models.LedgerAccount{
		Name:       name,
		OpenDate:   dates.Normalize(openDate),
		Currencies: datatypes.JSONSlice[string](currencies),
	}
	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(account).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &ValidationError{Kind: KindDuplicateAccount, Account: name, Message: fmt.Sprintf("account %s is already open", name)}
			}
			return fmt.Errorf("insert ledger account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	j.mirrorAppend(FormatOpen(name, account.OpenDate, currencies))
	return account, nil
}

// CloseAccount closes an open account. Postings dated on or after closeDate
// are rejected afterwards.
func (j *Journal) CloseAccount(ctx context.Context, name string, closeDate time.Time) (*models.LedgerAccount, error) {
	closeDate = dates.Normalize(closeDate)

	j.mu.Lock()
	defer j.mu.Unlock()

	var account models.LedgerAccount
	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("name = ?", name).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("load ledger account: %w", err)
		}
		if account.CloseDate != nil {
			return &ValidationError{Kind: KindClosedAccount, Account: name, Message: fmt.Sprintf("account %s is already closed", name)}
		}
		if closeDate.Before(account.OpenDate) {
			return &ValidationError{Kind: KindNotYetOpen, Account: name, Message: fmt.Sprintf("account %s cannot close before it opens", name)}
		}
		if err := tx.Model(&account).Update("close_date", closeDate).Error; err != nil {
			return fmt.Errorf("close ledger account: %w", err)
		}
		account.CloseDate = &closeDate
		return nil
	})
	if err != nil {
		return nil, err
	}
	j.mirrorAppend(FormatClose(name, closeDate))
	return &account, nil
}

// ListAccounts returns the chart of accounts ordered by name.
func (j *Journal) ListAccounts(ctx context.Context) ([]models.LedgerAccount, error) {
	var accounts []models.LedgerAccount
	if err := j.db.WithContext(ctx).Order("name ASC").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("list ledger accounts: %w", err)
	}
	return accounts, nil
}
