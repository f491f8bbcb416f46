package models

import (
	"time"

	"beanmind/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LedgerAccount mirrors a Beancount open/close directive pair.
type LedgerAccount struct {
	Base
	Name       string                      `gorm:"uniqueIndex;not null" json:"name"`
	OpenDate   time.Time                   `gorm:"type:date;not null" json:"open_date"`
	CloseDate  *time.Time                  `gorm:"type:date" json:"close_date,omitempty"`
	Currencies datatypes.JSONSlice[string] `json:"currencies,omitempty" swaggertype:"array,string"`
}

// IsOpenOn reports whether the account accepts postings dated d.
func (a *LedgerAccount) IsOpenOn(d time.Time) bool {
	if d.Before(a.OpenDate) {
		return false
	}
	return a.CloseDate == nil || d.Before(*a.CloseDate)
}

// AllowsCurrency reports whether the account's currency constraint admits c.
func (a *LedgerAccount) AllowsCurrency(c string) bool {
	if len(a.Currencies) == 0 {
		return true
	}
	for _, allowed := range a.Currencies {
		if allowed == c {
			return true
		}
	}
	return false
}

// LedgerTransaction is one balanced journal entry.
type LedgerTransaction struct {
	Base
	Date        time.Time                   `gorm:"type:date;not null;index" json:"date"`
	Flag        string                      `gorm:"type:varchar(1);not null;default:'*'" json:"flag"`
	Payee       string                      `json:"payee,omitempty"`
	Description string                      `gorm:"not null" json:"description"`
	Tags        datatypes.JSONSlice[string] `json:"tags,omitempty" swaggertype:"array,string"`
	Source      string                      `gorm:"index" json:"source,omitempty"`

	// Relationships
	Postings []LedgerPosting `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE" json:"postings"`
}

// LedgerPosting is a single leg of a LedgerTransaction. Date is copied from
// the transaction so budget queries need no join.
type LedgerPosting struct {
	ID            string          `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID string          `gorm:"type:uuid;not null;index" json:"transaction_id"`
	Position      int             `gorm:"not null" json:"position"`
	Account       string          `gorm:"not null;index" json:"account"`
	Amount        decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"amount"`
	Currency      string          `gorm:"type:varchar(24);not null" json:"currency"`
	Date          time.Time       `gorm:"type:date;not null;index" json:"date"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (p *LedgerPosting) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New()
	}
	return nil
}
