package testutil

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"beanmind/internal/models"
	"beanmind/internal/recurrence"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// Date builds a UTC calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hash),
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestLedgerAccount opens a ledger account directly in the store.
func CreateTestLedgerAccount(t *testing.T, db *gorm.DB, name string, openDate time.Time) *models.LedgerAccount {
	t.Helper()

	account := &models.LedgerAccount{Name: name, OpenDate: openDate}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create ledger account %s: %v", name, err)
	}
	return account
}

// RentTemplate is a balanced template moving amount CNY from checking to rent.
func RentTemplate(amount int64) models.TransactionTemplate {
	return models.TransactionTemplate{
		Description: "Monthly rent",
		Payee:       "Landlord",
		Postings: []models.TemplatePosting{
			{Account: "Expenses:Housing:Rent", Amount: decimal.NewFromInt(amount), Currency: "CNY"},
			{Account: "Assets:Bank:Checking", Amount: decimal.NewFromInt(-amount), Currency: "CNY"},
		},
	}
}

// CreateTestRule stores a recurring rule without going through validation.
func CreateTestRule(t *testing.T, db *gorm.DB, userID string, freq recurrence.Frequency, config string, start time.Time) *models.RecurringRule {
	t.Helper()

	rule := &models.RecurringRule{
		UserID:              userID,
		Name:                fmt.Sprintf("Rule %d", nextID()),
		Frequency:           freq,
		FrequencyConfig:     datatypes.JSON(config),
		TransactionTemplate: datatypes.NewJSONType(RentTemplate(3000)),
		StartDate:           start,
		IsActive:            true,
	}
	if err := db.Create(rule).Error; err != nil {
		t.Fatalf("failed to create test rule: %v", err)
	}
	return rule
}

// CreateTestExecution stores an execution row for rule on date.
func CreateTestExecution(t *testing.T, db *gorm.DB, ruleID string, date time.Time, status models.ExecutionStatus) *models.RecurringExecution {
	t.Helper()

	exec := &models.RecurringExecution{
		RuleID:       ruleID,
		ExecutedDate: date,
		Status:       status,
		Trigger:      models.ExecutionTriggerScheduled,
	}
	if err := db.Create(exec).Error; err != nil {
		t.Fatalf("failed to create test execution: %v", err)
	}
	return exec
}

// CreateTestBudget stores a budget with one item per pattern, each limited
// to amount CNY.
func CreateTestBudget(t *testing.T, db *gorm.DB, userID string, cycle models.CycleType, start time.Time, end *time.Time, amount int64, patterns ...string) *models.Budget {
	t.Helper()

	b := &models.Budget{
		UserID:     userID,
		Name:       fmt.Sprintf("Budget %d", nextID()),
		PeriodType: models.BudgetPeriodMonthly,
		StartDate:  start,
		EndDate:    end,
		IsActive:   true,
		CycleType:  cycle,
	}
	for i, p := range patterns {
		b.Items = append(b.Items, models.BudgetItem{
			Position:       i,
			AccountPattern: p,
			Amount:         decimal.NewFromInt(amount),
			Currency:       "CNY",
		})
	}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("failed to create test budget: %v", err)
	}
	return b
}

// MustJSON marshals v or fails the test.
func MustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	return raw
}
