package models

import (
	"time"

	"beanmind/internal/recurrence"
	"beanmind/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TemplatePosting is one leg of a recurring transaction template.
type TemplatePosting struct {
	Account  string          `json:"account"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// TransactionTemplate is the ledger transaction a rule produces, minus its date.
type TransactionTemplate struct {
	Description string            `json:"description"`
	Payee       string            `json:"payee,omitempty"`
	Postings    []TemplatePosting `json:"postings"`
	Tags        []string          `json:"tags,omitempty"`
}

// RecurringRule produces one ledger transaction on every due date between
// StartDate and EndDate. LastExecuted and NextExecution are caches derived
// from the execution history and the schedule.
type RecurringRule struct {
	Base
	UserID              string                                  `gorm:"type:uuid;not null;index" json:"user_id"`
	Name                string                                  `gorm:"not null" json:"name"`
	Frequency           recurrence.Frequency                    `gorm:"type:varchar(16);not null" json:"frequency"`
	FrequencyConfig     datatypes.JSON                          `gorm:"not null" json:"frequency_config" swaggertype:"object"`
	TransactionTemplate datatypes.JSONType[TransactionTemplate] `gorm:"not null" json:"transaction_template" swaggertype:"object"`
	StartDate           time.Time                               `gorm:"type:date;not null;index" json:"start_date"`
	EndDate             *time.Time                              `gorm:"type:date" json:"end_date,omitempty"`
	IsActive            bool                                    `gorm:"default:true;index" json:"is_active"`
	LastExecuted        *time.Time                              `gorm:"type:date" json:"last_executed,omitempty"`
	NextExecution       *time.Time                              `gorm:"type:date" json:"next_execution,omitempty"`
}

// Schedule decodes the rule's frequency configuration.
func (r *RecurringRule) Schedule() (recurrence.Schedule, error) {
	return recurrence.Decode(r.Frequency, r.FrequencyConfig, r.StartDate)
}

// Template returns the decoded transaction template.
func (r *RecurringRule) Template() TransactionTemplate {
	return r.TransactionTemplate.Data()
}

// ExecutionStatus is the lifecycle state of one execution attempt.
type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "PENDING"
	ExecutionStatusSuccess ExecutionStatus = "SUCCESS"
	ExecutionStatusFailed  ExecutionStatus = "FAILED"
)

// ExecutionTrigger records who started an execution attempt.
type ExecutionTrigger string

const (
	ExecutionTriggerScheduled ExecutionTrigger = "SCHEDULED"
	ExecutionTriggerManual    ExecutionTrigger = "MANUAL"
)

// RecurringExecution is one attempt to materialize a rule for a due date.
// Rows are append-only; no Base embed, no soft deletes. The partial unique
// index uq_recurring_executions_claim allows a single SUCCESS or PENDING row
// per (rule_id, executed_date); it is created by database.EnsureIndexes and
// the SQL migrations.
type RecurringExecution struct {
	ID            string           `gorm:"type:uuid;primaryKey" json:"id"`
	RuleID        string           `gorm:"type:uuid;not null;index" json:"rule_id"`
	ExecutedDate  time.Time        `gorm:"type:date;not null" json:"executed_date"`
	TransactionID *string          `gorm:"type:uuid" json:"transaction_id,omitempty"`
	Status        ExecutionStatus  `gorm:"type:varchar(16);not null" json:"status"`
	Trigger       ExecutionTrigger `gorm:"type:varchar(16);not null" json:"trigger"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	FinishedAt    *time.Time       `json:"finished_at,omitempty"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (e *RecurringExecution) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New()
	}
	return nil
}
