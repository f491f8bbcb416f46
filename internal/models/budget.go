package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetPeriodType labels the planning horizon a budget was created for.
type BudgetPeriodType string

const (
	BudgetPeriodMonthly BudgetPeriodType = "MONTHLY"
	BudgetPeriodYearly  BudgetPeriodType = "YEARLY"
	BudgetPeriodCustom  BudgetPeriodType = "CUSTOM"
)

// CycleType decides how a budget's date range is split into cycles.
type CycleType string

const (
	CycleTypeNone    CycleType = "NONE"
	CycleTypeMonthly CycleType = "MONTHLY"
	CycleTypeYearly  CycleType = "YEARLY"
)

// Budget is a set of spending limits over account patterns. A budget with
// CycleType NONE is a single cycle and must have an EndDate.
type Budget struct {
	Base
	UserID           string           `gorm:"type:uuid;not null;index" json:"user_id"`
	Name             string           `gorm:"not null" json:"name"`
	PeriodType       BudgetPeriodType `gorm:"type:varchar(16);not null" json:"period_type"`
	StartDate        time.Time        `gorm:"type:date;not null" json:"start_date"`
	EndDate          *time.Time       `gorm:"type:date" json:"end_date,omitempty"`
	IsActive         bool             `gorm:"default:true;index" json:"is_active"`
	CycleType        CycleType        `gorm:"type:varchar(16);not null;default:'NONE'" json:"cycle_type"`
	CarryOverEnabled bool             `gorm:"not null;default:false" json:"carry_over_enabled"`

	// Relationships
	Items []BudgetItem `gorm:"foreignKey:BudgetID;constraint:OnDelete:CASCADE" json:"items"`
}

// BudgetItem limits spending on the accounts selected by AccountPattern.
type BudgetItem struct {
	Base
	BudgetID       string          `gorm:"type:uuid;not null;index" json:"budget_id"`
	Position       int             `gorm:"not null;default:0" json:"position"`
	AccountPattern string          `gorm:"not null" json:"account_pattern"`
	Amount         decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"amount"`
	Currency       string          `gorm:"type:varchar(24);not null" json:"currency"`
}
