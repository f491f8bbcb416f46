package services

import (
	"context"
	"encoding/json"
	"time"

	"beanmind/internal/budget"
	"beanmind/internal/ledger"
	"beanmind/internal/models"
	"beanmind/internal/pagination"
	"beanmind/internal/recurrence"

	"github.com/shopspring/decimal"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password, firstName, lastName string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}

// RecurringRuleInput carries everything needed to create or replace a rule.
type RecurringRuleInput struct {
	Name            string
	Frequency       recurrence.Frequency
	FrequencyConfig json.RawMessage
	Template        models.TransactionTemplate
	StartDate       time.Time
	EndDate         *time.Time
	IsActive        *bool
}

// RuleOutcome is what a scheduled run did with one rule.
type RuleOutcome string

const (
	OutcomeExecuted        RuleOutcome = "executed"
	OutcomeFailed          RuleOutcome = "failed"
	OutcomeNotDue          RuleOutcome = "not_due"
	OutcomeAlreadyExecuted RuleOutcome = "already_executed"
)

// RuleRunResult reports one rule visited by RunDueRules.
type RuleRunResult struct {
	RuleID        string      `json:"rule_id"`
	RuleName      string      `json:"rule_name"`
	Outcome       RuleOutcome `json:"outcome"`
	ExecutionID   string      `json:"execution_id,omitempty"`
	TransactionID string      `json:"transaction_id,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// RunReport summarizes a scheduled run.
type RunReport struct {
	Date     time.Time       `json:"date"`
	Checked  int             `json:"checked"`
	Executed int             `json:"executed"`
	Skipped  int             `json:"skipped"`
	Failed   int             `json:"failed"`
	Results  []RuleRunResult `json:"results"`
}

// RecurringServicer defines the contract for recurring rules and their execution.
type RecurringServicer interface {
	CreateRule(userID string, in RecurringRuleInput) (*models.RecurringRule, error)
	GetUserRules(userID string, page pagination.PageRequest, isActive *bool) (*pagination.PageResponse[models.RecurringRule], error)
	GetRuleByID(userID, ruleID string) (*models.RecurringRule, error)
	UpdateRule(userID, ruleID string, in RecurringRuleInput) (*models.RecurringRule, error)
	DeleteRule(userID, ruleID string) (deactivated bool, err error)
	GetRuleExecutions(userID, ruleID string, page pagination.PageRequest) (*pagination.PageResponse[models.RecurringExecution], error)
	PreviewRule(userID, ruleID string, from time.Time, count int) ([]time.Time, error)
	ExecuteManually(ctx context.Context, userID, ruleID string, date time.Time) (*models.RecurringExecution, error)
	RunDueRules(ctx context.Context, today time.Time) (*RunReport, error)
}

// BudgetItemInput is one item of a budget being created or replaced.
type BudgetItemInput struct {
	AccountPattern string
	Amount         decimal.Decimal
	Currency       string
}

// BudgetInput carries everything needed to create or replace a budget.
type BudgetInput struct {
	Name             string
	PeriodType       models.BudgetPeriodType
	StartDate        time.Time
	EndDate          *time.Time
	CycleType        models.CycleType
	CarryOverEnabled bool
	IsActive         *bool
	Items            []BudgetItemInput
}

// BudgetOverview pairs an active budget with its current cycle.
type BudgetOverview struct {
	Budget       models.Budget       `json:"budget"`
	CurrentCycle *budget.CycleResult `json:"current_cycle"`
}

// BudgetServicer defines the contract for budgets and their cycle projections.
type BudgetServicer interface {
	CreateBudget(userID string, in BudgetInput) (*models.Budget, error)
	GetUserBudgets(userID string, page pagination.PageRequest, isActive *bool) (*pagination.PageResponse[models.Budget], error)
	GetBudgetByID(userID, budgetID string) (*models.Budget, error)
	UpdateBudget(userID, budgetID string, in BudgetInput) (*models.Budget, error)
	DeleteBudget(userID, budgetID string) error
	GetBudgetCycles(ctx context.Context, userID, budgetID string, today time.Time) ([]budget.CycleResult, error)
	GetBudgetCycle(ctx context.Context, userID, budgetID string, number int, today time.Time) (*budget.CycleResult, error)
	GetCycleSummary(ctx context.Context, userID, budgetID string, today time.Time) (*budget.Summary, error)
	GetBudgetProgress(ctx context.Context, userID, budgetID string, today time.Time) (*budget.CycleResult, error)
	GetActiveBudgetsOverview(ctx context.Context, userID string, today time.Time) ([]BudgetOverview, error)
}

// LedgerServicer defines the contract for the journal's HTTP-facing operations.
type LedgerServicer interface {
	OpenAccount(ctx context.Context, name string, openDate time.Time, currencies []string) (*models.LedgerAccount, error)
	CloseAccount(ctx context.Context, name string, closeDate time.Time) (*models.LedgerAccount, error)
	ListAccounts(ctx context.Context) ([]models.LedgerAccount, error)
	CreateTransaction(ctx context.Context, txn ledger.Transaction) (*models.LedgerTransaction, error)
	QueryPostings(ctx context.Context, account string, from, to time.Time) ([]ledger.PostingRecord, error)
}
